package cli

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gastown-labs/orchkernel/internal/expect"
	"github.com/gastown-labs/orchkernel/internal/target"
	"github.com/gastown-labs/orchkernel/internal/terminal"
)

var expectCmd = &cobra.Command{
	Use:   "expect [patterns...]",
	Short: "Poll a pane's screen until one of the given patterns matches",
	Long: `Each pattern is one of:
  re:<regex>       a regular expression
  timeout:<secs>   the Timeout(seconds) sentinel (at most one allowed)
  <text>           a literal substring

At least one non-timeout pattern is required.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := openKernel()
		if err != nil {
			return err
		}
		defer k.Close()

		patterns, err := parsePatterns(args)
		if err != nil {
			return err
		}

		pane, err := k.Resolver.Resolve(target.Target{
			PaneID:    terminal.PaneHandle(paneTargetFlag),
			AgentName: agentFlag,
		})
		if err != nil {
			return err
		}

		timeout := time.Duration(expectTimeoutFlag * float64(time.Second))
		if timeout <= 0 {
			timeout = k.Config.ExpectTimeout()
		}
		opts := expect.Options{Timeout: timeout}
		result, err := expect.Expect(context.Background(), k.Backend, pane, patterns, opts)
		if err != nil {
			return err
		}
		fmt.Printf("matched %q at index %d: %q\n", result.MatchedPattern, result.MatchIndex, result.MatchedText)
		return nil
	},
}

var expectTimeoutFlag float64

func init() {
	expectCmd.Flags().StringVar(&paneTargetFlag, "pane", "", "pane id")
	expectCmd.Flags().StringVar(&agentFlag, "agent", "", "agent name")
	expectCmd.Flags().Float64Var(&expectTimeoutFlag, "timeout", 0, "overall timeout in seconds (default from kernel config)")
}

func parsePatterns(args []string) ([]expect.Pattern, error) {
	patterns := make([]expect.Pattern, 0, len(args))
	for _, a := range args {
		switch {
		case strings.HasPrefix(a, "re:"):
			re, err := regexp.Compile(strings.TrimPrefix(a, "re:"))
			if err != nil {
				return nil, &expect.InvalidArgsError{Reason: err.Error()}
			}
			patterns = append(patterns, expect.RegexPattern(re))
		case strings.HasPrefix(a, "timeout:"):
			secs, err := strconv.ParseFloat(strings.TrimPrefix(a, "timeout:"), 64)
			if err != nil {
				return nil, &expect.InvalidArgsError{Reason: "malformed timeout sentinel: " + err.Error()}
			}
			patterns = append(patterns, expect.Timeout(secs))
		default:
			patterns = append(patterns, expect.LiteralPattern(a))
		}
	}
	return patterns, nil
}

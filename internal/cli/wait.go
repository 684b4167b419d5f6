package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gastown-labs/orchkernel/internal/terminal"
	"github.com/gastown-labs/orchkernel/internal/wait"
)

var (
	waitUpToFlag    int
	waitOutputFlag  bool
	waitSummaryFlag bool
)

var waitCmd = &cobra.Command{
	Use:   "wait [agent]",
	Short: "Poll an agent's pane until it stops running, up to a bound",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, err := openKernel()
		if err != nil {
			return err
		}
		defer k.Close()

		resolve := wait.Resolver(func(agentName string) (pane terminal.PaneHandle, ok bool) {
			agent, found := k.Registry.GetAgent(agentName)
			if !found {
				return "", false
			}
			return agent.PaneID, true
		})

		opts := wait.Options{
			WaitUpToSeconds:  waitUpToFlag,
			ReturnOutput:     waitOutputFlag,
			SummaryOnTimeout: waitSummaryFlag,
		}
		result, err := wait.ForAgent(context.Background(), k.Backend, resolve, args[0], opts)
		if err != nil {
			return err
		}

		fmt.Printf("agent=%s status=%s completed=%v timed_out=%v elapsed=%.1fs can_continue=%v\n",
			result.Agent, result.Status, result.Completed, result.TimedOut, result.ElapsedSeconds, result.CanContinueWaiting)
		if result.Summary != nil {
			fmt.Printf("summary: %s\n", *result.Summary)
		}
		if result.Output != nil {
			fmt.Print(*result.Output)
		}
		return nil
	},
}

func init() {
	waitCmd.Flags().IntVar(&waitUpToFlag, "up-to", 30, "maximum seconds to wait")
	waitCmd.Flags().BoolVar(&waitOutputFlag, "output", false, "include full pane output on completion")
	waitCmd.Flags().BoolVar(&waitSummaryFlag, "summary", true, "attach a last-line summary on timeout")
}

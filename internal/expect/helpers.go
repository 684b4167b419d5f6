package expect

import (
	"context"
	"regexp"
	"time"

	"github.com/gastown-labs/orchkernel/internal/terminal"
)

// DefaultPromptPatterns are the shell-prompt regexes wait_for_prompt scans
// by default: a trailing "$ ", "# ", or ">" prompt at end of output.
var DefaultPromptPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[$#>]\s*$`),
}

// WaitForPrompt is a convenience wrapper returning true on prompt match,
// false on timeout, using promptPatterns (or DefaultPromptPatterns when nil)
// plus an internal Timeout sentinel sized to timeout (spec §4.G
// wait_for_prompt).
func WaitForPrompt(ctx context.Context, backend terminal.Backend, pane terminal.PaneHandle, timeout time.Duration, promptPatterns []*regexp.Regexp) (bool, error) {
	if promptPatterns == nil {
		promptPatterns = DefaultPromptPatterns
	}
	patterns := make([]Pattern, 0, len(promptPatterns)+1)
	for _, re := range promptPatterns {
		patterns = append(patterns, RegexPattern(re))
	}
	patterns = append(patterns, Timeout(timeout.Seconds()))

	result, err := Expect(ctx, backend, pane, patterns, Options{Timeout: timeout})
	if err != nil {
		var te *ExpectTimeoutError
		if isTimeoutErr(err, &te) {
			return false, nil
		}
		return false, err
	}
	return !result.MatchedPattern.isTimeout, nil
}

// WaitForPatterns concatenates success and error patterns (success first)
// and scans them together; the returned bool is true only if the matched
// index falls within the success slice (spec §4.G wait_for_patterns).
func WaitForPatterns(ctx context.Context, backend terminal.Backend, pane terminal.PaneHandle, success, errorPatterns []Pattern, timeout time.Duration) (bool, Result, error) {
	combined := make([]Pattern, 0, len(success)+len(errorPatterns))
	combined = append(combined, success...)
	combined = append(combined, errorPatterns...)

	result, err := Expect(ctx, backend, pane, combined, Options{Timeout: timeout})
	if err != nil {
		return false, Result{}, err
	}
	return result.MatchIndex >= 0 && result.MatchIndex < len(success), result, nil
}

// SendAndExpect writes text to pane, then runs Expect over patterns (spec
// §4.G send_and_expect).
func SendAndExpect(ctx context.Context, backend terminal.Backend, pane terminal.PaneHandle, text string, pressEnter bool, patterns []Pattern, timeout time.Duration) (Result, error) {
	if err := backend.SendText(pane, text, pressEnter); err != nil {
		return Result{}, err
	}
	return Expect(ctx, backend, pane, patterns, Options{Timeout: timeout})
}

func isTimeoutErr(err error, target **ExpectTimeoutError) bool {
	te, ok := err.(*ExpectTimeoutError)
	if !ok {
		return false
	}
	*target = te
	return true
}

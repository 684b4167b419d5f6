// Package expect implements the Expect Engine (spec §4.G): a pattern-driven
// polling read loop over a pane's screen buffer, plus the wait_for_prompt /
// wait_for_patterns / send_and_expect helpers layered on top of it.
package expect

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/gastown-labs/orchkernel/internal/constants"
	"github.com/gastown-labs/orchkernel/internal/terminal"
)

// InvalidArgsError is raised for a malformed pattern list (spec §7).
type InvalidArgsError struct {
	Reason string
}

func (e *InvalidArgsError) Error() string { return fmt.Sprintf("invalid expect args: %s", e.Reason) }

// ExpectTimeoutError is raised when no pattern matched before the effective
// deadline and no Timeout sentinel was present to absorb it.
type ExpectTimeoutError struct {
	Timeout  time.Duration
	Patterns []Pattern
	Output   string
}

func (e *ExpectTimeoutError) Error() string {
	return fmt.Sprintf("expect: timed out after %s with %d pattern(s)", e.Timeout, len(e.Patterns))
}

// CancelledError is raised when the caller's context is done before a match
// or timeout occurs.
type CancelledError struct{}

func (e *CancelledError) Error() string { return "expect: cancelled" }

// Pattern is one entry in an expect() pattern list: a compiled regex, a
// literal substring, or a Timeout(seconds) sentinel. At most one sentinel
// may appear in a list, at any position (spec §4.G).
type Pattern struct {
	regex          *regexp.Regexp
	literal        string
	isLiteral      bool
	isTimeout      bool
	timeoutSeconds float64
	label          string
}

// RegexPattern wraps a pre-compiled regular expression.
func RegexPattern(re *regexp.Regexp) Pattern {
	return Pattern{regex: re, label: re.String()}
}

// CompileRegexPattern compiles source as a regex pattern, returning
// InvalidArgsError on a malformed expression (spec §4.G validation).
func CompileRegexPattern(source string) (Pattern, error) {
	re, err := regexp.Compile(source)
	if err != nil {
		return Pattern{}, &InvalidArgsError{Reason: fmt.Sprintf("invalid regex %q: %v", source, err)}
	}
	return RegexPattern(re), nil
}

// LiteralPattern wraps a literal substring matcher.
func LiteralPattern(s string) Pattern {
	return Pattern{literal: s, isLiteral: true, label: s}
}

// Timeout builds the Timeout(seconds) sentinel pattern.
func Timeout(seconds float64) Pattern {
	return Pattern{isTimeout: true, timeoutSeconds: seconds, label: fmt.Sprintf("Timeout(%gs)", seconds)}
}

func (p Pattern) String() string { return p.label }

// findMatch reports whether p matches within text, and if so the matched
// substring's byte range and any regex capture groups.
func (p Pattern) findMatch(text string) (start, end int, groups []string, ok bool) {
	switch {
	case p.isLiteral:
		idx := indexOf(text, p.literal)
		if idx < 0 {
			return 0, 0, nil, false
		}
		return idx, idx + len(p.literal), nil, true
	case p.regex != nil:
		loc := p.regex.FindStringSubmatchIndex(text)
		if loc == nil {
			return 0, 0, nil, false
		}
		groups = make([]string, 0, len(loc)/2-1)
		for i := 2; i < len(loc); i += 2 {
			if loc[i] < 0 {
				groups = append(groups, "")
				continue
			}
			groups = append(groups, text[loc[i]:loc[i+1]])
		}
		return loc[0], loc[1], groups, true
	default:
		return 0, 0, nil, false
	}
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

// Result is the ExpectResult record (spec §3).
type Result struct {
	MatchedPattern Pattern
	MatchIndex     int
	FullOutput     string
	MatchedText    string
	BeforeText     string
	MatchGroups    []string
}

// Options configures a single Expect call; zero values take the package
// defaults from internal/constants.
type Options struct {
	Timeout           time.Duration
	PollInterval      time.Duration
	SearchWindowLines int
	Now               func() time.Time
	Sleep             func(time.Duration)
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = constants.DefaultExpectTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = constants.DefaultExpectPollInterval
	}
	if o.SearchWindowLines <= 0 {
		o.SearchWindowLines = constants.DefaultSearchWindowLines
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Sleep == nil {
		o.Sleep = time.Sleep
	}
	return o
}

// validate applies spec §4.G's validation rule: an empty pattern list, or a
// list containing only a Timeout sentinel, raises InvalidArgs; at most one
// sentinel is accepted.
func validate(patterns []Pattern) error {
	if len(patterns) == 0 {
		return &InvalidArgsError{Reason: "pattern list must not be empty"}
	}
	sentinels := 0
	nonSentinels := 0
	for _, p := range patterns {
		if p.isTimeout {
			sentinels++
		} else {
			nonSentinels++
		}
	}
	if sentinels > 1 {
		return &InvalidArgsError{Reason: "at most one Timeout sentinel is allowed"}
	}
	if nonSentinels == 0 {
		return &InvalidArgsError{Reason: "pattern list must contain at least one non-Timeout pattern"}
	}
	return nil
}

// sentinel returns the Timeout pattern in patterns, if present.
func sentinel(patterns []Pattern) (Pattern, bool) {
	for _, p := range patterns {
		if p.isTimeout {
			return p, true
		}
	}
	return Pattern{}, false
}

// Expect drives the polling read loop described in spec §4.G: it reads the
// last SearchWindowLines of pane's screen on each poll, scans patterns in
// list order, and returns on first match, on the effective timeout, or on
// ctx cancellation.
func Expect(ctx context.Context, backend terminal.Backend, pane terminal.PaneHandle, patterns []Pattern, opts Options) (Result, error) {
	if err := validate(patterns); err != nil {
		return Result{}, err
	}
	opts = opts.withDefaults()

	effectiveTimeout := opts.Timeout
	sent, hasSentinel := sentinel(patterns)
	if hasSentinel {
		sentDuration := time.Duration(sent.timeoutSeconds * float64(time.Second))
		if sentDuration < effectiveTimeout {
			effectiveTimeout = sentDuration
		}
	}

	deadline := opts.Now().Add(effectiveTimeout)
	var lastOutput string

	for {
		select {
		case <-ctx.Done():
			return Result{}, &CancelledError{}
		default:
		}

		output, err := backend.ReadScreen(pane, opts.SearchWindowLines)
		if err != nil {
			return Result{}, fmt.Errorf("reading pane screen: %w", err)
		}
		lastOutput = output

		for idx, p := range patterns {
			if p.isTimeout {
				continue
			}
			start, end, groups, ok := p.findMatch(output)
			if !ok {
				continue
			}
			return Result{
				MatchedPattern: p,
				MatchIndex:     idx,
				FullOutput:     output,
				MatchedText:    output[start:end],
				BeforeText:     output[:start],
				MatchGroups:    groups,
			}, nil
		}

		if !opts.Now().Before(deadline) {
			if hasSentinel {
				return Result{
					MatchedPattern: sent,
					MatchIndex:     indexOfPattern(patterns, sent),
					FullOutput:     lastOutput,
					MatchedText:    "",
				}, nil
			}
			return Result{}, &ExpectTimeoutError{Timeout: effectiveTimeout, Patterns: patterns, Output: lastOutput}
		}

		select {
		case <-ctx.Done():
			return Result{}, &CancelledError{}
		case <-afterFunc(opts.Sleep, opts.PollInterval):
		}
	}
}

// afterFunc runs sleep in a goroutine and signals completion on the
// returned channel, so the poll loop can select between it and ctx.Done.
func afterFunc(sleep func(time.Duration), d time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		sleep(d)
		close(done)
	}()
	return done
}

func indexOfPattern(patterns []Pattern, target Pattern) int {
	for i, p := range patterns {
		if p.isTimeout == target.isTimeout && p.label == target.label {
			return i
		}
	}
	return -1
}

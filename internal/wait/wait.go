// Package wait implements the Wait-for-agent operation (spec §4.H): a
// bounded, resumable poll of an agent's pane for completion. Grounded on
// message_handlers.py's handle_wait_for_agent poll loop from the
// pre-distillation original, generalized from a single timed_out=true
// shortcut on unknown agents to the richer per-status WaitResult spec §4.H
// requires.
package wait

import (
	"context"
	"strings"
	"time"

	"github.com/gastown-labs/orchkernel/internal/constants"
	"github.com/gastown-labs/orchkernel/internal/terminal"
)

// Status is the coarse state WaitResult reports (spec §4.H).
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusBlocked Status = "blocked"
	StatusError   Status = "error"
	StatusUnknown Status = "unknown"
)

// Resolver looks up the pane backing a named agent. It returns ok=false
// when the agent is not registered, distinct from a registered agent whose
// pane has since disappeared.
type Resolver func(agentName string) (pane terminal.PaneHandle, ok bool)

// Result is the WaitResult record (spec §4.H).
type Result struct {
	Agent              string
	Completed          bool
	TimedOut           bool
	ElapsedSeconds     float64
	Status             Status
	Output             *string
	Summary            *string
	CanContinueWaiting bool
}

// Options configures a single WaitForAgent call.
type Options struct {
	WaitUpToSeconds  int
	ReturnOutput     bool
	SummaryOnTimeout bool
	PollInterval     time.Duration
	Now              func() time.Time
	Sleep            func(time.Duration)
}

func (o Options) withDefaults() Options {
	if o.WaitUpToSeconds < constants.MinWaitSeconds {
		o.WaitUpToSeconds = constants.MinWaitSeconds
	}
	if o.WaitUpToSeconds > constants.MaxWaitSeconds {
		o.WaitUpToSeconds = constants.MaxWaitSeconds
	}
	if o.PollInterval <= 0 {
		o.PollInterval = constants.DefaultWaitPollInterval
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Sleep == nil {
		o.Sleep = time.Sleep
	}
	return o
}

func strPtr(s string) *string { return &s }

func unknownResult(agentName, summary string) Result {
	return Result{
		Agent:              agentName,
		Completed:          false,
		TimedOut:           false,
		ElapsedSeconds:     0,
		Status:             StatusUnknown,
		Summary:            strPtr(summary),
		CanContinueWaiting: false,
	}
}

// ForAgent polls backend.IsProcessing for the pane resolve maps agentName
// to, at a 0.5s (by default) cadence capped by WaitUpToSeconds, and returns
// once the agent goes idle, the deadline passes, or ctx is cancelled (spec
// §4.H).
func ForAgent(ctx context.Context, backend terminal.Backend, resolve Resolver, agentName string, opts Options) (Result, error) {
	opts = opts.withDefaults()

	pane, ok := resolve(agentName)
	if !ok {
		return unknownResult(agentName, "Agent not found"), nil
	}

	if _, err := backend.IsProcessing(pane); err != nil {
		return unknownResult(agentName, "Session not found for agent"), nil
	}

	deadline := opts.Now().Add(time.Duration(opts.WaitUpToSeconds) * time.Second)
	start := opts.Now()

	for {
		select {
		case <-ctx.Done():
			return partialResult(agentName, elapsedSeconds(start, opts.Now())), ctx.Err()
		default:
		}

		processing, err := backend.IsProcessing(pane)
		if err != nil {
			return errorResult(agentName, elapsedSeconds(start, opts.Now())), nil
		}

		if !processing {
			return completedResult(backend, pane, agentName, opts, elapsedSeconds(start, opts.Now())), nil
		}

		now := opts.Now()
		if !now.Before(deadline) {
			elapsed := elapsedSeconds(start, now)
			return timedOutResult(backend, pane, agentName, opts, elapsed, StatusRunning), nil
		}

		remaining := deadline.Sub(now)
		interval := opts.PollInterval
		if remaining < interval {
			interval = remaining
		}

		select {
		case <-ctx.Done():
			return partialResult(agentName, elapsedSeconds(start, opts.Now())), ctx.Err()
		case <-afterFunc(opts.Sleep, interval):
		}
	}
}

func elapsedSeconds(start time.Time, now time.Time) float64 {
	return now.Sub(start).Seconds()
}

// partialResult is returned on cancellation; it carries whatever elapsed
// time accrued but never claims completion or a timed-out state (the
// deadline never actually passed — the caller gave up first).
func partialResult(agentName string, elapsed float64) Result {
	return Result{
		Agent:          agentName,
		Completed:      false,
		TimedOut:       false,
		ElapsedSeconds: elapsed,
		Status:         StatusRunning,
	}
}

func completedResult(backend terminal.Backend, pane terminal.PaneHandle, agentName string, opts Options, elapsed float64) Result {
	r := Result{
		Agent:          agentName,
		Completed:      true,
		TimedOut:       false,
		ElapsedSeconds: elapsed,
		Status:         StatusIdle,
	}
	if opts.ReturnOutput {
		if out, err := backend.ReadScreen(pane, constants.DefaultSearchWindowLines); err == nil {
			r.Output = strPtr(out)
		}
	}
	return r
}

func timedOutResult(backend terminal.Backend, pane terminal.PaneHandle, agentName string, opts Options, elapsed float64, status Status) Result {
	r := Result{
		Agent:              agentName,
		Completed:          false,
		TimedOut:           true,
		ElapsedSeconds:     elapsed,
		Status:             status,
		CanContinueWaiting: status == StatusRunning,
	}
	out, readErr := backend.ReadScreen(pane, constants.DefaultSearchWindowLines)
	if opts.ReturnOutput && readErr == nil {
		r.Output = strPtr(out)
	}
	if opts.SummaryOnTimeout && readErr == nil {
		r.Summary = strPtr(lastNonEmptyLine(out))
	}
	return r
}

func errorResult(agentName string, elapsed float64) Result {
	return Result{
		Agent:          agentName,
		Completed:      false,
		TimedOut:       false,
		ElapsedSeconds: elapsed,
		Status:         StatusError,
		Summary:        strPtr("backend error while polling agent status"),
	}
}

// lastNonEmptyLine returns the last non-blank line of output, trimmed, for
// use as a one-line timeout summary (spec §4.H summary_on_timeout).
func lastNonEmptyLine(output string) string {
	lines := strings.Split(output, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func afterFunc(sleep func(time.Duration), d time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		if d > 0 {
			sleep(d)
		}
		close(done)
	}()
	return done
}

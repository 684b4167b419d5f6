package wait

import (
	"context"
	"testing"
	"time"

	"github.com/gastown-labs/orchkernel/internal/terminal"
	"github.com/stretchr/testify/require"
)

func resolverFor(pane terminal.PaneHandle, known bool) Resolver {
	return func(agentName string) (terminal.PaneHandle, bool) {
		if !known {
			return "", false
		}
		return pane, true
	}
}

func TestWaitUnknownAgentShortCircuits(t *testing.T) {
	backend := terminal.NewFakeBackend()
	result, err := ForAgent(context.Background(), backend, resolverFor("", false), "ghost", Options{WaitUpToSeconds: 5})
	require.NoError(t, err)
	require.Equal(t, StatusUnknown, result.Status)
	require.False(t, result.Completed)
	require.False(t, result.TimedOut)
	require.Zero(t, result.ElapsedSeconds)
	require.False(t, result.CanContinueWaiting)
	require.NotNil(t, result.Summary)
}

func TestWaitMissingPaneShortCircuits(t *testing.T) {
	backend := terminal.NewFakeBackend()
	result, err := ForAgent(context.Background(), backend, resolverFor("nonexistent-pane", true), "build", Options{WaitUpToSeconds: 5})
	require.NoError(t, err)
	require.Equal(t, StatusUnknown, result.Status)
	require.False(t, result.Completed)
}

func TestWaitCompletesWhenAgentGoesIdle(t *testing.T) {
	backend := terminal.NewFakeBackend()
	pane, err := backend.CreatePane(terminal.CreatePaneOpts{})
	require.NoError(t, err)
	require.NoError(t, backend.SetProcessing(pane, false))

	result, err := ForAgent(context.Background(), backend, resolverFor(pane, true), "build", Options{WaitUpToSeconds: 5})
	require.NoError(t, err)
	require.True(t, result.Completed)
	require.False(t, result.TimedOut)
	require.Equal(t, StatusIdle, result.Status)
}

func TestWaitReturnsOutputOnlyWhenRequested(t *testing.T) {
	backend := terminal.NewFakeBackend()
	pane, err := backend.CreatePane(terminal.CreatePaneOpts{})
	require.NoError(t, err)
	require.NoError(t, backend.SetProcessing(pane, false))
	require.NoError(t, backend.AppendOutput(pane, "build succeeded\n"))

	withOutput, err := ForAgent(context.Background(), backend, resolverFor(pane, true), "build", Options{WaitUpToSeconds: 5, ReturnOutput: true})
	require.NoError(t, err)
	require.NotNil(t, withOutput.Output)

	withoutOutput, err := ForAgent(context.Background(), backend, resolverFor(pane, true), "build", Options{WaitUpToSeconds: 5, ReturnOutput: false})
	require.NoError(t, err)
	require.Nil(t, withoutOutput.Output)
}

// Invariant 8 (spec §8): can_continue_waiting is true exactly when the call
// timed out while the agent was still running.
func TestWaitCanContinueWaitingOnlyWhenTimedOutAndRunning(t *testing.T) {
	backend := terminal.NewFakeBackend()
	pane, err := backend.CreatePane(terminal.CreatePaneOpts{})
	require.NoError(t, err)
	require.NoError(t, backend.SetProcessing(pane, true))

	result, err := ForAgent(context.Background(), backend, resolverFor(pane, true), "build", Options{
		WaitUpToSeconds: 1,
		PollInterval:    5 * time.Millisecond,
	})
	require.NoError(t, err)
	require.True(t, result.TimedOut)
	require.False(t, result.Completed)
	require.Equal(t, StatusRunning, result.Status)
	require.True(t, result.CanContinueWaiting)
}

// Scenario S6 (spec §8): first call times out with can_continue_waiting
// true plus a summary; a resumed call after the agent idles returns
// completed.
func TestWaitScenarioS6Resume(t *testing.T) {
	backend := terminal.NewFakeBackend()
	pane, err := backend.CreatePane(terminal.CreatePaneOpts{})
	require.NoError(t, err)
	require.NoError(t, backend.SetProcessing(pane, true))
	require.NoError(t, backend.AppendOutput(pane, "compiling module foo\n"))

	first, err := ForAgent(context.Background(), backend, resolverFor(pane, true), "build", Options{
		WaitUpToSeconds:  1,
		PollInterval:     5 * time.Millisecond,
		ReturnOutput:     true,
		SummaryOnTimeout: true,
	})
	require.NoError(t, err)
	require.False(t, first.Completed)
	require.True(t, first.TimedOut)
	require.Equal(t, StatusRunning, first.Status)
	require.True(t, first.CanContinueWaiting)
	require.NotNil(t, first.Summary)
	require.Equal(t, "compiling module foo", *first.Summary)

	require.NoError(t, backend.SetProcessing(pane, false))

	second, err := ForAgent(context.Background(), backend, resolverFor(pane, true), "build", Options{WaitUpToSeconds: 5})
	require.NoError(t, err)
	require.True(t, second.Completed)
	require.False(t, second.TimedOut)
	require.Equal(t, StatusIdle, second.Status)
}

func TestWaitCancellationAbortsPoll(t *testing.T) {
	backend := terminal.NewFakeBackend()
	pane, err := backend.CreatePane(terminal.CreatePaneOpts{})
	require.NoError(t, err)
	require.NoError(t, backend.SetProcessing(pane, true))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err = ForAgent(ctx, backend, resolverFor(pane, true), "build", Options{
		WaitUpToSeconds: 5,
		PollInterval:    5 * time.Millisecond,
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestWaitClampsOutOfRangeSeconds(t *testing.T) {
	opts := Options{WaitUpToSeconds: 0}.withDefaults()
	require.Equal(t, 1, opts.WaitUpToSeconds)

	opts = Options{WaitUpToSeconds: 9999}.withDefaults()
	require.Equal(t, 600, opts.WaitUpToSeconds)
}

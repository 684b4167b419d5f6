package router

import (
	"errors"
	"testing"
	"time"

	"github.com/gastown-labs/orchkernel/internal/terminal"
	"github.com/stretchr/testify/require"
)

// fixedEnvelope builds an Envelope with a wall-clock timestamp (no
// monotonic reading) so round-tripped and original envelopes compare equal
// under require.Equal.
func fixedEnvelope(sender string) Envelope {
	env := NewEnvelope(sender, PriorityHigh, map[string]any{"source": "test"})
	env.Timestamp = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	env.CorrelationID = "corr-1"
	return env
}

func newCommand(sender, text string) *TerminalCommand {
	return &TerminalCommand{
		Envelope: NewEnvelope(sender, PriorityNormal, nil),
		PaneID:   terminal.PaneHandle("p1"),
		Text:     text,
	}
}

func TestSendDispatchesToFirstHandler(t *testing.T) {
	r := New()
	var calls int
	r.Register("TerminalCommand", func(msg Message) (Message, error) {
		calls++
		return &ErrorMessage{Envelope: NewEnvelope("handler", PriorityNormal, nil), Code: "ok"}, nil
	})

	resp, err := r.Send(newCommand("alice", "echo hi"))
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.Equal(t, 1, calls)
}

func TestSendStampsCorrelationID(t *testing.T) {
	r := New()
	r.Register("TerminalCommand", func(msg Message) (Message, error) {
		return &ErrorMessage{Envelope: NewEnvelope("handler", PriorityNormal, nil), Code: "ok"}, nil
	})

	req := newCommand("alice", "echo hi")
	resp, err := r.Send(req)
	require.NoError(t, err)
	require.Equal(t, req.MessageID, resp.Env().CorrelationID)
}

func TestSendNoHandlerRaisesError(t *testing.T) {
	r := New()
	_, err := r.Send(newCommand("alice", "echo hi"))
	var noHandler *ErrNoHandler
	require.ErrorAs(t, err, &noHandler)
}

func TestSendHandlerErrorSynthesizesErrorMessage(t *testing.T) {
	r := New()
	r.Register("TerminalCommand", func(msg Message) (Message, error) {
		return nil, errors.New("backend unreachable")
	})

	resp, err := r.Send(newCommand("alice", "echo hi"))
	require.NoError(t, err)
	errMsg, ok := resp.(*ErrorMessage)
	require.True(t, ok)
	require.Equal(t, "HANDLER_ERROR", errMsg.Code)
	require.True(t, errMsg.Recoverable)
}

// Router dedup (spec §8 invariant 12): identical content-hash invokes the
// handler exactly once.
func TestSendDedupInvokesHandlerOnce(t *testing.T) {
	r := New()
	var calls int
	r.Register("TerminalCommand", func(msg Message) (Message, error) {
		calls++
		return nil, nil
	})

	msg1 := newCommand("alice", "echo hi")
	msg2 := newCommand("alice", "echo hi")
	msg2.MessageID = "different-id"

	_, err := r.Send(msg1)
	require.NoError(t, err)
	resp, err := r.Send(msg2)
	require.NoError(t, err)
	require.Nil(t, resp, "a duplicate content-hash send must short-circuit without invoking the handler")
	require.Equal(t, 1, calls)
}

func TestSendDedupDisabled(t *testing.T) {
	r := New(WithDedup(0))
	var calls int
	r.Register("TerminalCommand", func(msg Message) (Message, error) {
		calls++
		return nil, nil
	})

	msg1 := newCommand("alice", "echo hi")
	msg2 := newCommand("alice", "echo hi")
	msg2.MessageID = "different-id"

	_, _ = r.Send(msg1)
	_, _ = r.Send(msg2)
	require.Equal(t, 2, calls, "dedup disabled should invoke the handler every time")
}

func TestSendMultiInvokesAllHandlers(t *testing.T) {
	r := New()
	r.Register("TerminalCommand", func(msg Message) (Message, error) {
		return &ErrorMessage{Envelope: NewEnvelope("h1", PriorityNormal, nil), Code: "first"}, nil
	})
	r.Register("TerminalCommand", func(msg Message) (Message, error) {
		return &ErrorMessage{Envelope: NewEnvelope("h2", PriorityNormal, nil), Code: "second"}, nil
	})

	responses, err := r.SendMulti(newCommand("alice", "echo hi"))
	require.NoError(t, err)
	require.Len(t, responses, 2)
}

func TestPublishInvokesAllTopicSubscribers(t *testing.T) {
	r := New()
	var got []string
	r.OnTopic("deploys", func(n *BroadcastNotification) { got = append(got, "sub1") })
	r.OnTopic("deploys", func(n *BroadcastNotification) { got = append(got, "sub2") })

	count := r.Publish("deploys", "shipped v2", "ci")
	require.Equal(t, 2, count)
	require.ElementsMatch(t, []string{"sub1", "sub2"}, got)
}

func TestPublishSwallowsHandlerPanic(t *testing.T) {
	r := New()
	r.OnTopic("deploys", func(n *BroadcastNotification) { panic("boom") })
	var called bool
	r.OnTopic("deploys", func(n *BroadcastNotification) { called = true })

	require.NotPanics(t, func() { r.Publish("deploys", nil, "ci") })
	require.True(t, called)
}

func TestMailboxEnqueuePendingDrain(t *testing.T) {
	mb := NewMailbox(t.TempDir())
	pane := terminal.PaneHandle("p1")

	require.NoError(t, mb.Enqueue(pane, newCommand("alice", "first")))
	require.NoError(t, mb.Enqueue(pane, newCommand("alice", "second")))

	pending, err := mb.Pending(pane)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	drained, err := mb.Drain(pane)
	require.NoError(t, err)
	require.Len(t, drained, 2)
	require.Equal(t, "TerminalCommand", drained[0].Type)

	drainedAgain, err := mb.Drain(pane)
	require.NoError(t, err)
	require.Empty(t, drainedAgain)
}

// Serialization round-trip (spec §3 "_type" discriminator; spec §8
// invariant 11: deserialize(serialize(m)) == m for every supported
// variant).
func TestMarshalUnmarshalRoundTripsEveryVariant(t *testing.T) {
	variants := []Message{
		&TerminalCommand{Envelope: fixedEnvelope("alice"), PaneID: "p1", Text: "echo hi", Execute: true},
		&TerminalReadRequest{Envelope: fixedEnvelope("alice"), PaneID: "p1", Lines: 200},
		&ControlCharacterMessage{Envelope: fixedEnvelope("alice"), PaneID: "p1", Letter: 'c'},
		&SpecialKeyMessage{Envelope: fixedEnvelope("alice"), PaneID: "p1", Key: terminal.KeyEnter},
		&SessionStatusRequest{Envelope: fixedEnvelope("alice"), PaneID: "p1"},
		&SessionListRequest{Envelope: fixedEnvelope("alice")},
		&FocusSessionMessage{Envelope: fixedEnvelope("alice"), PaneID: "p1"},
		&BroadcastNotification{Envelope: fixedEnvelope("router"), Topic: "deploys", Payload: "shipped v2"},
		&WaitForAgentMessage{Envelope: fixedEnvelope("alice"), AgentName: "bob", WaitUpToSeconds: 30, ReturnOutput: true, SummaryOnTimeout: true},
		&ErrorMessage{Envelope: fixedEnvelope("router"), Code: "HANDLER_ERROR", Message: "boom", Original: "msg-1", Recoverable: true},
	}

	for _, want := range variants {
		t.Run(want.Type(), func(t *testing.T) {
			data, err := Marshal(want)
			require.NoError(t, err)
			require.Contains(t, string(data), `"_type":"`+want.Type()+`"`)

			got, err := Unmarshal(data)
			require.NoError(t, err)
			require.Equal(t, want, got)
		})
	}
}

func TestUnmarshalRejectsMissingDiscriminator(t *testing.T) {
	_, err := Unmarshal([]byte(`{"pane_id":"p1","text":"hi"}`))
	var unknown *UnknownTypeError
	require.ErrorAs(t, err, &unknown)
	require.Empty(t, unknown.Type)
}

func TestUnmarshalRejectsUnknownType(t *testing.T) {
	_, err := Unmarshal([]byte(`{"_type":"NotARealMessage"}`))
	var unknown *UnknownTypeError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, "NotARealMessage", unknown.Type)
}

func TestMailboxDrainReconstructsTypedMessage(t *testing.T) {
	mb := NewMailbox(t.TempDir())
	pane := terminal.PaneHandle("p1")
	original := &TerminalCommand{Envelope: fixedEnvelope("alice"), PaneID: pane, Text: "build"}

	require.NoError(t, mb.Enqueue(pane, original))

	drained, err := mb.Drain(pane)
	require.NoError(t, err)
	require.Len(t, drained, 1)

	msg, err := drained[0].Message()
	require.NoError(t, err)
	require.Equal(t, original, msg)
}

func TestDedupRingEvictsOldest(t *testing.T) {
	ring := newDedupRing(2)
	ring.Add("a")
	ring.Add("b")
	ring.Add("c")

	require.False(t, ring.Contains("a"))
	require.True(t, ring.Contains("b"))
	require.True(t, ring.Contains("c"))
}

package router

import "github.com/gastown-labs/orchkernel/internal/terminal"

// Concrete message variants (spec §3). Each carries a stable Type() tag and
// embeds Envelope for dispatch and correlation.

// TerminalCommand requests text (and optionally Enter) be sent to a pane.
type TerminalCommand struct {
	Envelope
	PaneID  terminal.PaneHandle `json:"pane_id"`
	Text    string              `json:"text"`
	Execute bool                `json:"execute"`
}

func (m *TerminalCommand) Type() string           { return "TerminalCommand" }
func (m *TerminalCommand) Env() *Envelope           { return &m.Envelope }
func (m *TerminalCommand) HashPayload() any {
	return struct {
		PaneID  terminal.PaneHandle
		Text    string
		Execute bool
	}{m.PaneID, m.Text, m.Execute}
}

// TerminalReadRequest requests a snapshot of a pane's screen buffer.
type TerminalReadRequest struct {
	Envelope
	PaneID terminal.PaneHandle `json:"pane_id"`
	Lines  int                 `json:"lines"`
}

func (m *TerminalReadRequest) Type() string       { return "TerminalReadRequest" }
func (m *TerminalReadRequest) Env() *Envelope       { return &m.Envelope }
func (m *TerminalReadRequest) HashPayload() any {
	return struct {
		PaneID terminal.PaneHandle
		Lines  int
	}{m.PaneID, m.Lines}
}

// ControlCharacterMessage sends a Ctrl-<letter> to a pane.
type ControlCharacterMessage struct {
	Envelope
	PaneID terminal.PaneHandle `json:"pane_id"`
	Letter rune                `json:"letter"`
}

func (m *ControlCharacterMessage) Type() string       { return "ControlCharacterMessage" }
func (m *ControlCharacterMessage) Env() *Envelope   { return &m.Envelope }
func (m *ControlCharacterMessage) HashPayload() any {
	return struct {
		PaneID terminal.PaneHandle
		Letter rune
	}{m.PaneID, m.Letter}
}

// SpecialKeyMessage sends a named special key to a pane.
type SpecialKeyMessage struct {
	Envelope
	PaneID terminal.PaneHandle  `json:"pane_id"`
	Key    terminal.SpecialKey  `json:"key"`
}

func (m *SpecialKeyMessage) Type() string       { return "SpecialKeyMessage" }
func (m *SpecialKeyMessage) Env() *Envelope         { return &m.Envelope }
func (m *SpecialKeyMessage) HashPayload() any {
	return struct {
		PaneID terminal.PaneHandle
		Key    terminal.SpecialKey
	}{m.PaneID, m.Key}
}

// SessionStatusRequest asks for a single pane's liveness/processing status.
type SessionStatusRequest struct {
	Envelope
	PaneID terminal.PaneHandle `json:"pane_id"`
}

func (m *SessionStatusRequest) Type() string       { return "SessionStatusRequest" }
func (m *SessionStatusRequest) Env() *Envelope      { return &m.Envelope }
func (m *SessionStatusRequest) HashPayload() any    { return m.PaneID }

// SessionListRequest asks for every known pane.
type SessionListRequest struct {
	Envelope
}

func (m *SessionListRequest) Type() string       { return "SessionListRequest" }
func (m *SessionListRequest) Env() *Envelope        { return &m.Envelope }

// FocusSessionMessage requests a pane be brought to the foreground.
type FocusSessionMessage struct {
	Envelope
	PaneID terminal.PaneHandle `json:"pane_id"`
}

func (m *FocusSessionMessage) Type() string       { return "FocusSessionMessage" }
func (m *FocusSessionMessage) Env() *Envelope       { return &m.Envelope }
func (m *FocusSessionMessage) HashPayload() any    { return m.PaneID }

// BroadcastNotification is the fabricated envelope publish() sends to every
// topic subscriber (spec §4.F).
type BroadcastNotification struct {
	Envelope
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

func (m *BroadcastNotification) Type() string       { return "BroadcastNotification" }
func (m *BroadcastNotification) Env() *Envelope     { return &m.Envelope }
func (m *BroadcastNotification) HashPayload() any {
	return struct {
		Topic   string
		Payload any
	}{m.Topic, m.Payload}
}

// WaitForAgentMessage requests the router drive a wait_for_agent poll
// (spec §4.H) via a registered handler.
type WaitForAgentMessage struct {
	Envelope
	AgentName        string `json:"agent_name"`
	WaitUpToSeconds  int    `json:"wait_up_to_seconds"`
	ReturnOutput     bool   `json:"return_output"`
	SummaryOnTimeout bool   `json:"summary_on_timeout"`
}

func (m *WaitForAgentMessage) Type() string       { return "WaitForAgentMessage" }
func (m *WaitForAgentMessage) Env() *Envelope       { return &m.Envelope }
func (m *WaitForAgentMessage) HashPayload() any {
	return struct {
		AgentName        string
		WaitUpToSeconds  int
		ReturnOutput     bool
		SummaryOnTimeout bool
	}{m.AgentName, m.WaitUpToSeconds, m.ReturnOutput, m.SummaryOnTimeout}
}

// ErrorMessage is the synthesized response on handler failure (spec §4.F
// step 4).
type ErrorMessage struct {
	Envelope
	Code        string `json:"code"`
	Message     string `json:"message"`
	Original    string `json:"original"`
	Recoverable bool   `json:"recoverable"`
}

func (m *ErrorMessage) Type() string       { return "ErrorMessage" }
func (m *ErrorMessage) Env() *Envelope              { return &m.Envelope }
func (m *ErrorMessage) HashPayload() any {
	return struct {
		Code        string
		Message     string
		Original    string
		Recoverable bool
	}{m.Code, m.Message, m.Original, m.Recoverable}
}

// NewErrorMessage builds the ErrorMessage the router synthesizes on a
// handler panic/error (spec §4.F step 4: "HANDLER_ERROR", recoverable).
func NewErrorMessage(original Message, err error) *ErrorMessage {
	e := &ErrorMessage{
		Envelope:    NewEnvelope("router", PriorityNormal, nil),
		Code:        "HANDLER_ERROR",
		Message:     err.Error(),
		Recoverable: true,
	}
	if original != nil {
		e.Original = original.Env().MessageID
	}
	return e
}

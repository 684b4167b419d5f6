package router

import (
	"encoding/json"
	"fmt"
)

// discriminatorField is the JSON key every serialized message carries
// alongside its own fields (spec §3: "Each typed message serializes as
// JSON with a _type discriminator equal to the variant name").
const discriminatorField = "_type"

// UnknownTypeError is raised by Unmarshal when the discriminator is
// missing or does not name a registered variant (spec §3: "Deserialization
// rejects unknown types and missing discriminator").
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	if e.Type == "" {
		return "router: missing _type discriminator"
	}
	return fmt.Sprintf("router: unknown message type %q", e.Type)
}

// messageFactories maps a variant name to a constructor for its zero value,
// populated by registerMessageType in init() below — one entry per concrete
// type in messages.go.
var messageFactories = map[string]func() Message{}

func registerMessageType(typeName string, factory func() Message) {
	messageFactories[typeName] = factory
}

func init() {
	registerMessageType("TerminalCommand", func() Message { return &TerminalCommand{} })
	registerMessageType("TerminalReadRequest", func() Message { return &TerminalReadRequest{} })
	registerMessageType("ControlCharacterMessage", func() Message { return &ControlCharacterMessage{} })
	registerMessageType("SpecialKeyMessage", func() Message { return &SpecialKeyMessage{} })
	registerMessageType("SessionStatusRequest", func() Message { return &SessionStatusRequest{} })
	registerMessageType("SessionListRequest", func() Message { return &SessionListRequest{} })
	registerMessageType("FocusSessionMessage", func() Message { return &FocusSessionMessage{} })
	registerMessageType("BroadcastNotification", func() Message { return &BroadcastNotification{} })
	registerMessageType("WaitForAgentMessage", func() Message { return &WaitForAgentMessage{} })
	registerMessageType("ErrorMessage", func() Message { return &ErrorMessage{} })
}

// Marshal serializes m to JSON with a "_type" field equal to m.Type()
// spliced in alongside its own fields.
func Marshal(m Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", m.Type(), err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", m.Type(), err)
	}
	tag, err := json.Marshal(m.Type())
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", m.Type(), err)
	}
	fields[discriminatorField] = tag

	out, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", m.Type(), err)
	}
	return out, nil
}

// Unmarshal reconstructs a typed Message from data, reading the "_type"
// discriminator to pick its variant. It rejects data with no discriminator
// and data naming a variant outside messageFactories (spec §3).
func Unmarshal(data []byte) (Message, error) {
	var tag struct {
		Type string `json:"_type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("decoding message: %w", err)
	}
	if tag.Type == "" {
		return nil, &UnknownTypeError{}
	}

	factory, ok := messageFactories[tag.Type]
	if !ok {
		return nil, &UnknownTypeError{Type: tag.Type}
	}

	msg := factory()
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", tag.Type, err)
	}
	return msg, nil
}

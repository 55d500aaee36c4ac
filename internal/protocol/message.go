package protocol

import (
	"encoding/json"
	"fmt"
)

// Kind identifies a runner message. It is carried in the "type" field.
type Kind string

// Client → Runner message kinds.
const (
	KindCode  Kind = "code"
	KindInput Kind = "input"
)

// Runner → Client message kinds.
const (
	KindStdout     Kind = "stdout"
	KindStderr     Kind = "stderr"
	KindCompileErr Kind = "compile_err"
	KindEcho       Kind = "echo"
)

// KindExit is sent in both directions: by the client to stop the process and
// by the runner once the process has ended.
const KindExit Kind = "exit"

// Message is the envelope for every frame exchanged with the runner.
// Exactly one message travels per websocket text frame.
type Message struct {
	Type       Kind     `json:"type"`
	Language   Language `json:"language,omitempty"`
	Source     string   `json:"source,omitempty"`
	Data       string   `json:"data,omitempty"`
	Stderr     string   `json:"stderr,omitempty"`
	ReturnCode *int     `json:"return_code,omitempty"`
}

// NewCompileMessage builds the compile/run request sent once the channel opens.
func NewCompileMessage(source string, language Language) *Message {
	return &Message{Type: KindCode, Language: language, Source: source}
}

// NewInputMessage builds a stdin message. data is a full line including its
// trailing newline.
func NewInputMessage(data string) *Message {
	return &Message{Type: KindInput, Data: data}
}

// NewExitMessage builds the termination request.
func NewExitMessage() *Message {
	return &Message{Type: KindExit}
}

// ExitCode returns the reported return code, 0 when the runner omitted it.
func (m *Message) ExitCode() int {
	if m.ReturnCode == nil {
		return 0
	}
	return *m.ReturnCode
}

// MarshalJSON always emits the fields a kind requires, even when empty, so a
// compile request for an empty file still carries "source":"".
func (m Message) MarshalJSON() ([]byte, error) {
	out := map[string]any{"type": m.Type}
	switch m.Type {
	case KindCode:
		out["language"] = m.Language
		out["source"] = m.Source
	case KindInput, KindStdout, KindStderr:
		out["data"] = m.Data
	case KindCompileErr:
		if m.Stderr != "" {
			out["stderr"] = m.Stderr
		}
	case KindExit:
		if m.ReturnCode != nil {
			out["return_code"] = *m.ReturnCode
		}
	case KindEcho:
		if m.Data != "" {
			out["data"] = m.Data
		}
	default:
		type plain Message
		return json.Marshal(plain(m))
	}
	return json.Marshal(out)
}

// Encode serializes a message into the text of one wire frame.
func Encode(m *Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("encode: nil message")
	}
	if m.Type == "" {
		return nil, fmt.Errorf("encode: %w", ErrMissingKind)
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal %s message: %w", m.Type, err)
	}
	return data, nil
}

// Decode parses one wire frame. It only checks that the frame is JSON with a
// kind; use ValidateServerMessage to also enforce the direction.
func Decode(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if msg.Type == "" {
		return nil, ErrMissingKind
	}
	return &msg, nil
}

package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingKind is returned for frames without a "type" field.
	ErrMissingKind = errors.New("missing 'type' field")
	// ErrUnknownKind is returned for kinds the receiving side does not accept.
	ErrUnknownKind = errors.New("unknown message type")
)

// validServerKinds is the set of kinds a runner may send.
var validServerKinds = map[Kind]bool{
	KindStdout:     true,
	KindStderr:     true,
	KindCompileErr: true,
	KindExit:       true,
	KindEcho:       true,
}

// validClientKinds is the set of kinds a client may send.
var validClientKinds = map[Kind]bool{
	KindCode:  true,
	KindInput: true,
	KindExit:  true,
}

// ValidateServerMessage decodes a frame received from the runner.
// Returns the parsed Message and any validation error.
func ValidateServerMessage(raw []byte) (*Message, error) {
	msg, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	if !validServerKinds[msg.Type] {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, msg.Type)
	}
	return msg, nil
}

// ValidateClientMessage decodes a frame received by a runner from a client.
func ValidateClientMessage(raw []byte) (*Message, error) {
	msg, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	if !validClientKinds[msg.Type] {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, msg.Type)
	}

	switch msg.Type {
	case KindCode:
		if msg.Language == "" {
			return nil, fmt.Errorf("missing required field 'language' in %s message", msg.Type)
		}
	case KindInput:
		if msg.Data == "" {
			return nil, fmt.Errorf("missing required field 'data' in %s message", msg.Type)
		}
	}

	return msg, nil
}

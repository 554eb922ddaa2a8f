package ocpp

import (
	"encoding/json"

	"github.com/oddbit-project/chargebridge/utils"
)

// OCPP 1.6 message type ids
type MessageType int

const (
	Call       MessageType = 2
	CallResult MessageType = 3
	CallError  MessageType = 4
)

const (
	ErrInvalidJSON    = utils.Error("payload is not valid json")
	ErrNotFrame       = utils.Error("payload is not an ocpp frame")
	ErrMalformedFrame = utils.Error("malformed ocpp frame")
)

// Frame is the decoded view of an OCPP-J message. Only the routing fields
// are extracted; the body travels opaque.
type Frame struct {
	Type          MessageType
	CorrelationID string
	Action        string // CALL frames only
}

func (f *Frame) IsCall() bool {
	return f.Type == Call
}

// Parse extracts type, correlation id and (for CALL frames) the action from
// an OCPP-J array. Valid JSON that is not an array yields ErrNotFrame so
// callers can pass such payloads through untouched; structural defects in an
// actual frame yield ErrMalformedFrame.
func Parse(data []byte) (*Frame, error) {
	if !json.Valid(data) {
		return nil, ErrInvalidJSON
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, ErrNotFrame
	}
	if len(elems) < 2 {
		return nil, ErrMalformedFrame
	}

	var msgType int
	if err := json.Unmarshal(elems[0], &msgType); err != nil {
		return nil, ErrMalformedFrame
	}
	switch MessageType(msgType) {
	case Call, CallResult, CallError:
	default:
		return nil, ErrMalformedFrame
	}

	var correlationID string
	if err := json.Unmarshal(elems[1], &correlationID); err != nil {
		return nil, ErrMalformedFrame
	}

	frame := &Frame{
		Type:          MessageType(msgType),
		CorrelationID: correlationID,
	}
	if frame.Type == Call {
		if len(elems) < 3 {
			return nil, ErrMalformedFrame
		}
		if err := json.Unmarshal(elems[2], &frame.Action); err != nil {
			return nil, ErrMalformedFrame
		}
	}
	return frame, nil
}

// NewCall builds a CALL frame; a nil body is serialized as an empty object.
func NewCall(correlationID, action string, body interface{}) ([]byte, error) {
	if body == nil {
		body = map[string]interface{}{}
	}
	return json.Marshal([]interface{}{int(Call), correlationID, action, body})
}

// NewCallResult builds a CALLRESULT frame for the given correlation id.
func NewCallResult(correlationID string, body interface{}) ([]byte, error) {
	if body == nil {
		body = map[string]interface{}{}
	}
	return json.Marshal([]interface{}{int(CallResult), correlationID, body})
}

// NewCallError builds a CALLERROR frame with empty error details.
func NewCallError(correlationID, code, description string) ([]byte, error) {
	return json.Marshal([]interface{}{
		int(CallError), correlationID, code, description, map[string]interface{}{},
	})
}

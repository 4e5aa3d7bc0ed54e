// Package protocol defines the wire frames exchanged between the hub and
// agent sessions, plus the schema validation applied to inbound frames.
package protocol

import (
	"encoding/json"
)

// Version is the current protocol version carried in identify frames.
const Version = 1

// FrameType identifies the kind of a wire frame.
type FrameType string

// Inbound frame types (agent -> hub).
const (
	FrameIdentify       FrameType = "identify"
	FrameTaskAccepted   FrameType = "task_accepted"
	FrameTaskRejected   FrameType = "task_rejected"
	FrameTaskProgress   FrameType = "task_progress"
	FrameTaskComplete   FrameType = "task_complete"
	FrameTaskFailed     FrameType = "task_failed"
	FrameTaskRecovering FrameType = "task_recovering"
	FrameWakeResult     FrameType = "wake_result"
	FrameResourceReport FrameType = "resource_report"
	FramePing           FrameType = "ping"
	FramePong           FrameType = "pong"
)

// Outbound frame types (hub -> agent).
const (
	FrameTaskAssign    FrameType = "task_assign"
	FrameTaskContinue  FrameType = "task_continue"
	FrameTaskCancelled FrameType = "task_cancelled"
	FrameWakeAck       FrameType = "wake_ack"
	FrameError         FrameType = "error"
)

// Error strings carried by error frames.
const (
	ErrUnauthorized      = "unauthorized"
	ErrCooldown          = "cooldown"
	ErrTooManyViolations = "too_many_violations"
	ErrBadFrame          = "bad_frame"
)

// Envelope is a decoded frame header: the type string plus the raw bytes
// for a second, typed decode pass.
type Envelope struct {
	Type FrameType
	raw  json.RawMessage
}

// DecodeEnvelope parses the frame header. Malformed JSON or a missing type
// field is a protocol violation.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var head struct {
		Type FrameType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, &ValidationError{Field: "frame", Reason: "malformed JSON"}
	}
	if head.Type == "" {
		return nil, &ValidationError{Field: "type", Reason: "required"}
	}
	return &Envelope{Type: head.Type, raw: data}, nil
}

// Decode unmarshals the envelope into a typed frame and runs its schema
// validation. Unknown additive fields are ignored.
func (e *Envelope) Decode(v Validator) error {
	if err := json.Unmarshal(e.raw, v); err != nil {
		return &ValidationError{Field: "frame", Reason: "does not match schema for " + string(e.Type)}
	}
	return v.Validate()
}

// Raw returns the undecoded frame bytes.
func (e *Envelope) Raw() []byte {
	return e.raw
}

// Encode marshals an outbound frame. The frame's Type field must already be
// set; the New* constructors take care of that.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

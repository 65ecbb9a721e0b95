// Package envelope defines the uniform {success, data, error, step} result
// returned by every call through the request layer.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind classifies a failed envelope.
type Kind int

const (
	KindNone Kind = iota
	// KindValidation: the caller supplied bad input.
	KindValidation
	// KindConcurrency: the operation was already running.
	KindConcurrency
	// KindConnectivity: transport-level failure. Normally absorbed by the mock fallback.
	KindConnectivity
	// KindRemote: the remote side answered success=false.
	KindRemote
	// KindInternal: unexpected local failure (panic, encode error).
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindValidation:
		return "validation"
	case KindConcurrency:
		return "concurrency"
	case KindConnectivity:
		return "connectivity"
	case KindRemote:
		return "remote"
	case KindInternal:
		return "internal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Envelope is the wire and in-process result shape.
//
// Kind is not part of the wire format; envelopes decoded from the remote
// side that report success=false are classified as KindRemote.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Step    string          `json:"step,omitempty"`
	Kind    Kind            `json:"-"`
}

// Failure is the error view of a failed envelope.
type Failure struct {
	Kind    Kind
	Message string
	Step    string
}

func (f *Failure) Error() string {
	if f.Step != "" {
		return fmt.Sprintf("%s (step %s)", f.Message, f.Step)
	}
	return f.Message
}

// Ok builds a success envelope. data may be nil, a json.RawMessage, or any
// JSON-encodable value.
func Ok(data any) Envelope {
	raw, err := encode(data)
	if err != nil {
		return Fail(KindInternal, "encode response: "+err.Error())
	}
	return Envelope{Success: true, Data: raw}
}

// Fail builds a failure envelope.
func Fail(kind Kind, msg string) Envelope {
	return Envelope{Success: false, Error: msg, Kind: kind}
}

// FailStep builds a failure envelope tagged with the validation stage that failed.
func FailStep(kind Kind, msg, step string) Envelope {
	return Envelope{Success: false, Error: msg, Step: step, Kind: kind}
}

// FromError wraps err as a failure envelope of the given kind.
func FromError(kind Kind, err error) Envelope {
	if err == nil {
		return Fail(kind, "unknown error")
	}
	var f *Failure
	if errors.As(err, &f) {
		return FailStep(f.Kind, f.Message, f.Step)
	}
	return Fail(kind, err.Error())
}

// OK reports whether the envelope is a success.
func (e Envelope) OK() bool { return e.Success }

// Err returns nil for a success envelope and a *Failure otherwise.
func (e Envelope) Err() error {
	if e.Success {
		return nil
	}
	k := e.Kind
	if k == KindNone {
		k = KindRemote
	}
	msg := e.Error
	if msg == "" {
		msg = "request failed"
	}
	return &Failure{Kind: k, Message: msg, Step: e.Step}
}

// Decode unmarshals Data into v. A missing payload leaves v untouched.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

// Parse decodes a remote response body. Bodies without a "success" field are
// treated as a bare success payload.
func Parse(body []byte) (Envelope, error) {
	if len(body) == 0 {
		return Envelope{Success: true}, nil
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		if json.Valid(body) {
			return Envelope{Success: true, Data: append(json.RawMessage(nil), body...)}, nil
		}
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if _, ok := probe["success"]; !ok {
		return Envelope{Success: true, Data: append(json.RawMessage(nil), body...)}, nil
	}
	var e Envelope
	if err := json.Unmarshal(body, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if !e.Success {
		e.Kind = KindRemote
	}
	return e, nil
}

func encode(data any) (json.RawMessage, error) {
	switch v := data.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return append(json.RawMessage(nil), v...), nil
	default:
		return json.Marshal(v)
	}
}

package proto

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrEmptyFrame is returned when a frame carries no bytes.
var ErrEmptyFrame = errors.New("proto: empty frame")

// Envelope is the msgpack frame exchanged with clients. Requests carry a
// client-chosen Seq; responses echo it with a Status.
type Envelope struct {
	Op      OpCode             `msgpack:"op"`
	Seq     uint32             `msgpack:"seq,omitempty"`
	Status  Status             `msgpack:"status,omitempty"`
	Payload msgpack.RawMessage `msgpack:"payload,omitempty"`
}

// Encode builds a server-initiated frame.
func Encode(op OpCode, payload any) ([]byte, error) {
	return encode(Envelope{Op: op}, payload)
}

// EncodeSuccess builds a success response to seq.
func EncodeSuccess(op OpCode, seq uint32, payload any) ([]byte, error) {
	return encode(Envelope{Op: op, Seq: seq, Status: StatusSuccess}, payload)
}

// EncodeFailure builds a failed response to seq carrying reason.
func EncodeFailure(op OpCode, seq uint32, reason string) ([]byte, error) {
	return encode(Envelope{Op: op, Seq: seq, Status: StatusFailed}, Failure{Reason: reason})
}

// EncodeRequest builds a client frame; used by bots and tests.
func EncodeRequest(op OpCode, seq uint32, payload any) ([]byte, error) {
	return encode(Envelope{Op: op, Seq: seq}, payload)
}

func encode(env Envelope, payload any) ([]byte, error) {
	if payload != nil {
		raw, err := msgpack.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", env.Op, err)
		}
		env.Payload = raw
	}
	data, err := msgpack.Marshal(&env)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", env.Op, err)
	}
	return data, nil
}

// Decode parses a frame.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if len(data) == 0 {
		return env, ErrEmptyFrame
	}
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// DecodePayload unmarshals the payload into v. A frame without payload leaves
// v untouched.
func (e Envelope) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	if err := msgpack.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Op, err)
	}
	return nil
}

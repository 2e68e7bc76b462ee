// Package transport connects a graph store to the execution service: it
// posts export documents for execution and applies the results the service
// pushes back.
package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

type MessageType string

const (
	MessageWelcome  MessageType = "welcome"
	MessageExecuted MessageType = "executed"
	MessageProgress MessageType = "progress"
	MessageError    MessageType = "error"
	MessageArtifact MessageType = "artifact"
)

var ErrMalformedMessage = errors.New("malformed message")

// Welcome assigns the execution session id.
type Welcome struct {
	SID string `json:"sid"`
}

// Executed reports a finished node. UpdateValues holds output values to
// write back into the graph.
type Executed struct {
	NodeID       string         `json:"nodeId"`
	Time         float64        `json:"time,omitempty"`
	Memory       int64          `json:"memory,omitempty"`
	UpdateValues map[string]any `json:"updateValues,omitempty"`
}

type Progress struct {
	NodeID   string  `json:"nodeId"`
	Progress float64 `json:"progress"`
}

type ExecutionError struct {
	NodeID string `json:"nodeId,omitempty"`
	Error  string `json:"error"`
}

// Artifact is a binary result addressed to a node output.
type Artifact struct {
	NodeID      string `json:"nodeId"`
	Key         string `json:"key"`
	ContentType string `json:"contentType,omitempty"`
	Data        []byte `json:"-"`
}

type envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// DecodeText parses a JSON message of the form {"type": ..., "data": {...}}
// and returns one of *Welcome, *Executed, *Progress or *ExecutionError.
func DecodeText(raw []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	var target any

	switch env.Type {
	case MessageWelcome:
		target = &Welcome{}
	case MessageExecuted:
		target = &Executed{}
	case MessageProgress:
		target = &Progress{}
	case MessageError:
		target = &ExecutionError{}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, env.Type)
	}

	if len(env.Data) == 0 {
		return nil, fmt.Errorf("%w: %s without data", ErrMalformedMessage, env.Type)
	}

	if err := json.Unmarshal(env.Data, target); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedMessage, env.Type, err)
	}

	return target, nil
}

// DecodeBinary parses a binary frame: a JSON header line with nodeId and
// key, then the payload.
func DecodeBinary(frame []byte) (*Artifact, error) {
	header, payload, found := bytes.Cut(frame, []byte("\n"))
	if !found {
		return nil, fmt.Errorf("%w: binary frame without header", ErrMalformedMessage)
	}

	var a Artifact
	if err := json.Unmarshal(header, &a); err != nil {
		return nil, fmt.Errorf("%w: artifact header: %w", ErrMalformedMessage, err)
	}

	if a.NodeID == "" || a.Key == "" {
		return nil, fmt.Errorf("%w: artifact header needs nodeId and key", ErrMalformedMessage)
	}

	a.Data = append([]byte(nil), payload...)

	return &a, nil
}

// EncodeBinary builds a binary frame for a.
func EncodeBinary(a Artifact) ([]byte, error) {
	header, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}

	frame := make([]byte, 0, len(header)+1+len(a.Data))
	frame = append(frame, header...)
	frame = append(frame, '\n')

	return append(frame, a.Data...), nil
}

// EncodeText builds a JSON message of the given type.
func EncodeText(t MessageType, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return json.Marshal(envelope{Type: t, Data: raw})
}

// Package events defines the notifications published while editing and
// executing a graph.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const Topic = "nodegraph.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Editing events.
	GraphChangedEvent EventType = "graph.changed"

	// Execution events relayed from the execution service.
	SessionAssignedEvent  EventType = "session.assigned"
	NodeExecutedEvent     EventType = "node.executed"
	NodeProgressEvent     EventType = "node.progress"
	ExecutionErrorEvent   EventType = "execution.error"
	ArtifactReceivedEvent EventType = "artifact.received"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent stamps a new event for the session.
func NewBaseEvent(eventType EventType, sessionID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		SessionID: sessionID,
	}
}

// GraphChanged reports a committed graph mutation.
type GraphChanged struct {
	BaseEvent

	Change string `json:"change"`
	NodeID string `json:"node_id,omitempty"`
	EdgeID string `json:"edge_id,omitempty"`
	Param  string `json:"param,omitempty"`
}

func (e GraphChanged) GetType() EventType {
	return GraphChangedEvent
}

// SessionAssigned reports the session id handed out by the execution
// service.
type SessionAssigned struct {
	BaseEvent

	RemoteSID string `json:"remote_sid"`
}

func (e SessionAssigned) GetType() EventType {
	return SessionAssignedEvent
}

type NodeExecuted struct {
	BaseEvent

	NodeID       string         `json:"node_id"`
	Time         float64        `json:"time,omitempty"`
	Memory       int64          `json:"memory,omitempty"`
	UpdateValues map[string]any `json:"update_values,omitempty"`
}

func (e NodeExecuted) GetType() EventType {
	return NodeExecutedEvent
}

type NodeProgress struct {
	BaseEvent

	NodeID   string  `json:"node_id"`
	Progress float64 `json:"progress"`
}

func (e NodeProgress) GetType() EventType {
	return NodeProgressEvent
}

type ExecutionError struct {
	BaseEvent

	NodeID string `json:"node_id,omitempty"`
	Error  string `json:"error"`
}

func (e ExecutionError) GetType() EventType {
	return ExecutionErrorEvent
}

// ArtifactReceived carries a binary result addressed to a node output. It
// is meant for the presentation layer and never touches the graph.
type ArtifactReceived struct {
	BaseEvent

	NodeID      string `json:"node_id"`
	Key         string `json:"key"`
	ContentType string `json:"content_type,omitempty"`
	Data        []byte `json:"data"`
}

func (e ArtifactReceived) GetType() EventType {
	return ArtifactReceivedEvent
}

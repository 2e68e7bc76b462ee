package models

// ExportedParam is a non-output parameter as sent to the execution service.
type ExportedParam struct {
	SourceID  string  `json:"sourceId,omitempty"`
	SourceKey string  `json:"sourceKey,omitempty"`
	Value     any     `json:"value,omitempty"`
	Display   Display `json:"display,omitempty"`
	Type      string  `json:"type,omitempty"`
}

type ExportedNode struct {
	Module string                   `json:"module"`
	Action string                   `json:"action"`
	Params map[string]ExportedParam `json:"params"`
}

// ExportedGraph is the execution request built from a graph.
type ExportedGraph struct {
	SID   string                  `json:"sid"`
	Nodes map[string]ExportedNode `json:"nodes"`
	Paths [][]string              `json:"paths"`
}

package models

// Edge wires a source parameter (handle) to a target parameter.
type Edge struct {
	ID           string `json:"id"           validate:"required"`
	Source       string `json:"source"       validate:"required"`
	SourceHandle string `json:"sourceHandle" validate:"required"`
	Target       string `json:"target"       validate:"required"`
	TargetHandle string `json:"targetHandle" validate:"required"`
}

// SameTarget reports whether both edges terminate at the same input handle.
func (e Edge) SameTarget(o Edge) bool {
	return e.Target == o.Target && e.TargetHandle == o.TargetHandle
}

// Touches reports whether the edge has nodeID as an endpoint.
func (e Edge) Touches(nodeID string) bool {
	return e.Source == nodeID || e.Target == nodeID
}

// Graph is the node and edge collections together.
type Graph struct {
	Nodes []*Node `json:"nodes"`
	Edges []Edge  `json:"edges"`
}

// Package models defines the node graph data model shared by the store,
// the persistence gateways and the HTTP API.
package models

import "slices"

// Built-in node categories.
const (
	CategoryPrimitive = "primitive"
	CategoryText      = "text"
	CategoryImage     = "image"
	CategoryAudio     = "audio"
)

// Position is the canvas location of a node. It has no meaning to the
// graph algorithms.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeData holds the semantic payload of a node.
type NodeData struct {
	Module   string `json:"module"`
	Action   string `json:"action"`
	Category string `json:"category,omitempty"`
	Label    string `json:"label,omitempty"`
	Params   Params `json:"params"`

	// Cache is true when the last output is valid and persisted.
	Cache  bool     `json:"cache,omitempty"`
	Time   float64  `json:"time,omitempty"`
	Memory int64    `json:"memory,omitempty"`
	Files  []string `json:"files,omitempty"`
}

// Node is a unit of the workflow graph.
type Node struct {
	ID       string   `json:"id"       validate:"required"`
	Type     string   `json:"type"     validate:"required"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}

	c := *n
	c.Data.Params = n.Data.Params.Clone()

	c.Data.Files = slices.Clone(n.Data.Files)

	return &c
}

// Param returns the named parameter of the node.
func (n *Node) Param(name string) (Parameter, bool) {
	return n.Data.Params.Get(name)
}

// NewNode instances a node of the given definition with every parameter
// set to its schema default.
func NewNode(id string, def NodeDefinition, pos Position) *Node {
	params := NewParams()

	for _, leaf := range def.Leaves() {
		params.Set(leaf.Name, leaf.Parameter())
	}

	return &Node{
		ID:       id,
		Type:     def.Type,
		Position: pos,
		Data: NodeData{
			Module:   def.Module,
			Action:   def.Action,
			Category: def.Category,
			Label:    def.Label,
			Params:   params,
		},
	}
}

// ApplyDocument merges a persisted document over the node's current
// state. Parameters absent from the node's schema are ignored.
func (n *Node) ApplyDocument(doc *NodeDocument) {
	if doc == nil {
		return
	}

	for name, value := range doc.Params {
		p, ok := n.Data.Params.Get(name)
		if !ok {
			continue
		}

		p.Value = CloneValue(value)
		n.Data.Params.Set(name, p)
	}

	n.Data.Cache = doc.Cache
	n.Data.Time = doc.Time
	n.Data.Memory = doc.Memory
	n.Data.Files = append([]string(nil), doc.Files...)
}

// ResetToDefaults clears execution state and sets every parameter value
// back to its default.
func (n *Node) ResetToDefaults() {
	params := n.Data.Params.Clone()
	for _, name := range params.Names() {
		p, _ := params.Get(name)
		p.Value = CloneValue(p.Default)
		params.Set(name, p)
	}

	n.Data.Params = params
	n.Data.Cache = false
	n.Data.Time = 0
	n.Data.Memory = 0
	n.Data.Files = []string{}
}

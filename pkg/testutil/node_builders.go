// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/dukex/nodegraph/pkg/models"
	"github.com/google/uuid"
)

// Schemas is a fixed set of node definitions keyed by type.
type Schemas map[string]models.NodeDefinition

func (s Schemas) Definition(nodeType string) (models.NodeDefinition, bool) {
	def, ok := s[nodeType]

	return def, ok
}

// NewSchemas indexes defs by type.
func NewSchemas(defs ...models.NodeDefinition) Schemas {
	s := make(Schemas, len(defs))
	for _, d := range defs {
		s[d.Type] = d
	}

	return s
}

// Definition builds a node definition with the given leaves.
func Definition(nodeType string, leaves ...*models.LeafSchema) models.NodeDefinition {
	params := make([]models.ParamSchema, 0, len(leaves))
	for _, l := range leaves {
		params = append(params, l)
	}

	return models.NodeDefinition{
		Type:     nodeType,
		Module:   "Test",
		Action:   nodeType,
		Category: models.CategoryPrimitive,
		Label:    nodeType,
		Params:   params,
	}
}

// Input is an input leaf with a default value.
func Input(name string, def any) *models.LeafSchema {
	return &models.LeafSchema{Name: name, Type: "string", Display: models.DisplayInput, Default: def}
}

// Output is an output leaf.
func Output(name string) *models.LeafSchema {
	return &models.LeafSchema{Name: name, Type: "string", Display: models.DisplayOutput}
}

// CreateTestNode creates a test Node with default values that can be overridden.
func CreateTestNode(overrides ...func(*models.Node)) *models.Node {
	params := models.NewParams()
	params.Set("text", models.Parameter{Value: "", Default: "", Type: "string", Display: models.DisplayInput})

	node := &models.Node{
		ID:       uuid.New().String(),
		Type:     "text",
		Position: models.Position{X: 100, Y: 200},
		Data: models.NodeData{
			Module:   "Primitives",
			Action:   "String",
			Category: models.CategoryText,
			Label:    "Test Node",
			Params:   params,
		},
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithID sets the node id.
func WithID(id string) func(*models.Node) {
	return func(n *models.Node) {
		n.ID = id
	}
}

// WithType sets the node type.
func WithType(nodeType string) func(*models.Node) {
	return func(n *models.Node) {
		n.Type = nodeType
	}
}

// WithParam sets or adds a parameter.
func WithParam(name string, p models.Parameter) func(*models.Node) {
	return func(n *models.Node) {
		n.Data.Params.Set(name, p)
	}
}

// WithoutParams clears every parameter.
func WithoutParams() func(*models.Node) {
	return func(n *models.Node) {
		n.Data.Params = models.NewParams()
	}
}

// WithPosition sets the node position.
func WithPosition(x, y float64) func(*models.Node) {
	return func(n *models.Node) {
		n.Position = models.Position{X: x, Y: y}
	}
}

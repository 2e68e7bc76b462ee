package models

import (
	"encoding/json"
	"fmt"
)

// SchemaKind tags the variant of a parameter schema entry.
type SchemaKind string

const (
	SchemaKindLeaf     SchemaKind = "leaf"
	SchemaKindGroup    SchemaKind = "group"
	SchemaKindCollapse SchemaKind = "collapse"
)

// ParamSchema is a closed variant: *LeafSchema, *GroupSchema or
// *CollapsibleSchema. Groups only matter to rendering; the engine works on
// the flattened leaves.
type ParamSchema interface {
	Kind() SchemaKind
	SchemaName() string
	leaves() []LeafSchema
}

// LeafSchema describes a single parameter.
type LeafSchema struct {
	Name    string  `json:"name"    validate:"required"`
	Label   string  `json:"label,omitempty"`
	Type    string  `json:"type,omitempty"`
	Display Display `json:"display,omitempty"`
	Default any     `json:"default,omitempty"`
	Options any     `json:"options,omitempty"`
	Source  string  `json:"source,omitempty"`
}

func (l *LeafSchema) Kind() SchemaKind     { return SchemaKindLeaf }
func (l *LeafSchema) SchemaName() string   { return l.Name }
func (l *LeafSchema) leaves() []LeafSchema { return []LeafSchema{*l} }

// Parameter instances the leaf with its value set to the default.
func (l LeafSchema) Parameter() Parameter {
	return Parameter{
		Value:   CloneValue(l.Default),
		Default: CloneValue(l.Default),
		Type:    l.Type,
		Display: l.Display,
		Label:   l.Label,
		Options: CloneValue(l.Options),
		Source:  l.Source,
	}
}

// GroupSchema lays out children side by side.
type GroupSchema struct {
	Name   string
	Label  string
	Params []ParamSchema
}

func (g *GroupSchema) Kind() SchemaKind   { return SchemaKindGroup }
func (g *GroupSchema) SchemaName() string { return g.Name }
func (g *GroupSchema) leaves() []LeafSchema {
	return flatten(g.Params)
}

// CollapsibleSchema is a group the user can fold.
type CollapsibleSchema struct {
	Name   string
	Label  string
	Open   bool
	Params []ParamSchema
}

func (c *CollapsibleSchema) Kind() SchemaKind   { return SchemaKindCollapse }
func (c *CollapsibleSchema) SchemaName() string { return c.Name }
func (c *CollapsibleSchema) leaves() []LeafSchema {
	return flatten(c.Params)
}

func flatten(entries []ParamSchema) []LeafSchema {
	var out []LeafSchema
	for _, e := range entries {
		out = append(out, e.leaves()...)
	}

	return out
}

// ParameterSchemaMap is the ordered set of leaves of a node type.
type ParameterSchemaMap []LeafSchema

// Lookup returns the leaf named name.
func (m ParameterSchemaMap) Lookup(name string) (LeafSchema, bool) {
	for _, l := range m {
		if l.Name == name {
			return l, true
		}
	}

	return LeafSchema{}, false
}

// NodeDefinition is a registry entry describing a node type.
type NodeDefinition struct {
	Type        string
	Module      string
	Action      string
	Category    string
	Label       string
	Description string
	Params      []ParamSchema
}

// Leaves returns every leaf parameter in declaration order. Duplicate
// names keep their first occurrence.
func (d NodeDefinition) Leaves() ParameterSchemaMap {
	seen := make(map[string]bool)

	var out ParameterSchemaMap

	for _, l := range flatten(d.Params) {
		if seen[l.Name] {
			continue
		}

		seen[l.Name] = true
		out = append(out, l)
	}

	return out
}

// RawParamSchema is the serialized form of a ParamSchema, used by the YAML
// catalog and the worker's JSON catalog.
type RawParamSchema struct {
	Kind    SchemaKind       `json:"kind,omitempty"    yaml:"kind,omitempty"`
	Name    string           `json:"name"              yaml:"name"`
	Label   string           `json:"label,omitempty"   yaml:"label,omitempty"`
	Type    string           `json:"type,omitempty"    yaml:"type,omitempty"`
	Display Display          `json:"display,omitempty" yaml:"display,omitempty"`
	Default any              `json:"default,omitempty" yaml:"default,omitempty"`
	Options any              `json:"options,omitempty" yaml:"options,omitempty"`
	Source  string           `json:"source,omitempty"  yaml:"source,omitempty"`
	Open    bool             `json:"open,omitempty"    yaml:"open,omitempty"`
	Params  []RawParamSchema `json:"params,omitempty"  yaml:"params,omitempty"`
}

// Build converts the raw entry to its variant.
func (r RawParamSchema) Build() (ParamSchema, error) {
	switch r.Kind {
	case "", SchemaKindLeaf:
		return &LeafSchema{
			Name:    r.Name,
			Label:   r.Label,
			Type:    r.Type,
			Display: r.Display,
			Default: r.Default,
			Options: r.Options,
			Source:  r.Source,
		}, nil
	case SchemaKindGroup:
		children, err := buildAll(r.Params)
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", r.Name, err)
		}

		return &GroupSchema{Name: r.Name, Label: r.Label, Params: children}, nil
	case SchemaKindCollapse:
		children, err := buildAll(r.Params)
		if err != nil {
			return nil, fmt.Errorf("collapse %s: %w", r.Name, err)
		}

		return &CollapsibleSchema{Name: r.Name, Label: r.Label, Open: r.Open, Params: children}, nil
	default:
		return nil, fmt.Errorf("unknown schema kind %q for %s", r.Kind, r.Name)
	}
}

func buildAll(raw []RawParamSchema) ([]ParamSchema, error) {
	out := make([]ParamSchema, 0, len(raw))

	for _, r := range raw {
		s, err := r.Build()
		if err != nil {
			return nil, err
		}

		out = append(out, s)
	}

	return out, nil
}

// RawNodeDefinition is the serialized form of a NodeDefinition.
type RawNodeDefinition struct {
	Type        string           `json:"type"                  yaml:"type"`
	Module      string           `json:"module"                yaml:"module"`
	Action      string           `json:"action"                yaml:"action"`
	Category    string           `json:"category,omitempty"    yaml:"category,omitempty"`
	Label       string           `json:"label,omitempty"       yaml:"label,omitempty"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	Params      []RawParamSchema `json:"params,omitempty"      yaml:"params,omitempty"`
}

func (r RawNodeDefinition) Build() (NodeDefinition, error) {
	params, err := buildAll(r.Params)
	if err != nil {
		return NodeDefinition{}, fmt.Errorf("node %s: %w", r.Type, err)
	}

	return NodeDefinition{
		Type:        r.Type,
		Module:      r.Module,
		Action:      r.Action,
		Category:    r.Category,
		Label:       r.Label,
		Description: r.Description,
		Params:      params,
	}, nil
}

// Raw converts a definition back to its serialized form.
func (d NodeDefinition) Raw() RawNodeDefinition {
	return RawNodeDefinition{
		Type:        d.Type,
		Module:      d.Module,
		Action:      d.Action,
		Category:    d.Category,
		Label:       d.Label,
		Description: d.Description,
		Params:      rawAll(d.Params),
	}
}

func rawAll(entries []ParamSchema) []RawParamSchema {
	out := make([]RawParamSchema, 0, len(entries))

	for _, e := range entries {
		switch s := e.(type) {
		case *LeafSchema:
			out = append(out, RawParamSchema{
				Kind: SchemaKindLeaf, Name: s.Name, Label: s.Label, Type: s.Type,
				Display: s.Display, Default: s.Default, Options: s.Options, Source: s.Source,
			})
		case *GroupSchema:
			out = append(out, RawParamSchema{Kind: SchemaKindGroup, Name: s.Name, Label: s.Label, Params: rawAll(s.Params)})
		case *CollapsibleSchema:
			out = append(out, RawParamSchema{
				Kind: SchemaKindCollapse, Name: s.Name, Label: s.Label, Open: s.Open, Params: rawAll(s.Params),
			})
		}
	}

	return out
}

func (d NodeDefinition) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Raw())
}

func (d *NodeDefinition) UnmarshalJSON(data []byte) error {
	var raw RawNodeDefinition
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	built, err := raw.Build()
	if err != nil {
		return err
	}

	*d = built

	return nil
}

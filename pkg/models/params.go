package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Display controls how a parameter is rendered and whether it is exported.
type Display string

const (
	DisplayInput  Display = "input"
	DisplayOutput Display = "output"
	DisplayHidden Display = "hidden"
	DisplayUI     Display = "ui"
)

// ParamRef addresses a parameter on another node.
type ParamRef struct {
	NodeID string `json:"nodeId" validate:"required"`
	Param  string `json:"param"  validate:"required"`
}

// Parameter is a named slot on a node. Value is owned by the graph store,
// Default by the node schema.
type Parameter struct {
	Value   any     `json:"value,omitempty"`
	Default any     `json:"default,omitempty"`
	Type    string  `json:"type,omitempty"`
	Display Display `json:"display,omitempty"`
	Label   string  `json:"label,omitempty"`
	Options any     `json:"options,omitempty"`
	Source  string  `json:"source,omitempty"`

	// Connections lists the parameters fed by this one. It is derived from
	// the edge list and rebuilt whenever edges change.
	Connections []ParamRef `json:"connections,omitempty"`
}

// IsOutput reports whether the parameter is produced by execution.
func (p Parameter) IsOutput() bool {
	return p.Display == DisplayOutput
}

// Clone returns a deep copy of the parameter.
func (p Parameter) Clone() Parameter {
	c := p
	c.Value = CloneValue(p.Value)
	c.Default = CloneValue(p.Default)
	c.Options = CloneValue(p.Options)

	if p.Connections != nil {
		c.Connections = append([]ParamRef(nil), p.Connections...)
	}

	return c
}

// Params is an insertion-ordered mapping of parameter name to Parameter.
// The zero value is an empty, usable set.
type Params struct {
	keys   []string
	values map[string]Parameter
}

// NewParams returns an empty Params.
func NewParams() Params {
	return Params{values: make(map[string]Parameter)}
}

func (ps Params) Len() int {
	return len(ps.keys)
}

// Names returns the parameter names in insertion order.
func (ps Params) Names() []string {
	return append([]string(nil), ps.keys...)
}

func (ps Params) Get(name string) (Parameter, bool) {
	p, ok := ps.values[name]

	return p, ok
}

func (ps Params) Has(name string) bool {
	_, ok := ps.values[name]

	return ok
}

// Set stores p under name, appending the name if it is new. Params shares
// storage with its copies, so callers mutating a snapshot must Clone first.
func (ps *Params) Set(name string, p Parameter) {
	if ps.values == nil {
		ps.values = make(map[string]Parameter)
	}

	if _, ok := ps.values[name]; !ok {
		ps.keys = append(ps.keys, name)
	}

	ps.values[name] = p
}

// Each calls fn for every parameter in order.
func (ps Params) Each(fn func(name string, p Parameter)) {
	for _, k := range ps.keys {
		fn(k, ps.values[k])
	}
}

func (ps Params) Clone() Params {
	c := Params{
		keys:   append([]string(nil), ps.keys...),
		values: make(map[string]Parameter, len(ps.values)),
	}

	for k, v := range ps.values {
		c.values[k] = v.Clone()
	}

	return c
}

// Values returns name → current value for every parameter.
func (ps Params) Values() map[string]any {
	out := make(map[string]any, len(ps.keys))
	for _, k := range ps.keys {
		out[k] = CloneValue(ps.values[k].Value)
	}

	return out
}

func (ps Params) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte('{')

	for i, k := range ps.keys {
		if i > 0 {
			buf.WriteByte(',')
		}

		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}

		val, err := json.Marshal(ps.values[k])
		if err != nil {
			return nil, fmt.Errorf("failed to marshal parameter %s: %w", k, err)
		}

		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping the key order of the input.
func (ps *Params) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}

	if tok == nil {
		*ps = Params{}

		return nil
	}

	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("params: expected object, got %v", tok)
	}

	out := NewParams()

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}

		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("params: expected string key, got %v", keyTok)
		}

		var p Parameter
		if err := dec.Decode(&p); err != nil {
			return fmt.Errorf("params: %s: %w", key, err)
		}

		out.Set(key, p)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}

	*ps = out

	return nil
}

// CloneValue deep-copies JSON-shaped values (maps, slices). Other values
// are returned as is.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = CloneValue(e)
		}

		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = CloneValue(e)
		}

		return s
	case []string:
		return append([]string(nil), t...)
	case []byte:
		return append([]byte(nil), t...)
	default:
		return v
	}
}

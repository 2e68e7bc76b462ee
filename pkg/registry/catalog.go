package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dukex/nodegraph/pkg/models"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

const catalogSchema = `{
  "type": "object",
  "required": ["nodes"],
  "properties": {
    "nodes": {"type": "array", "items": {"$ref": "#/definitions/node"}}
  },
  "definitions": {
    "node": {
      "type": "object",
      "required": ["type", "module", "action"],
      "properties": {
        "type": {"type": "string", "minLength": 1},
        "module": {"type": "string"},
        "action": {"type": "string"},
        "category": {"type": "string"},
        "label": {"type": "string"},
        "description": {"type": "string"},
        "params": {"type": "array", "items": {"$ref": "#/definitions/param"}}
      }
    },
    "param": {
      "type": "object",
      "required": ["name"],
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "kind": {"enum": ["leaf", "group", "collapse"]},
        "display": {"enum": ["input", "output", "hidden", "ui"]},
        "type": {"type": "string"},
        "label": {"type": "string"},
        "source": {"type": "string"},
        "open": {"type": "boolean"},
        "params": {"type": "array", "items": {"$ref": "#/definitions/param"}}
      }
    }
  }
}`

var catalogSchemaLoader = gojsonschema.NewStringLoader(catalogSchema)

// ParseYAML validates and decodes a YAML catalog.
func ParseYAML(data []byte) ([]models.NodeDefinition, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}

	if err := validate(gojsonschema.NewGoLoader(doc)); err != nil {
		return nil, err
	}

	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}

	return build(catalog)
}

// ParseJSON validates and decodes a JSON catalog.
// ParseFile reads and validates the YAML catalog at path.
func ParseFile(path string) ([]models.NodeDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}

	defs, err := ParseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}

	return defs, nil
}

func ParseJSON(data []byte) ([]models.NodeDefinition, error) {
	if err := validate(gojsonschema.NewBytesLoader(data)); err != nil {
		return nil, err
	}

	var catalog Catalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}

	return build(catalog)
}

func validate(doc gojsonschema.JSONLoader) error {
	result, err := gojsonschema.Validate(catalogSchemaLoader, doc)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}

	if !result.Valid() {
		var problems []string
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidCatalog, strings.Join(problems, "; "))
	}

	return nil
}

func build(catalog Catalog) ([]models.NodeDefinition, error) {
	seen := make(map[string]bool, len(catalog.Nodes))
	defs := make([]models.NodeDefinition, 0, len(catalog.Nodes))

	for _, raw := range catalog.Nodes {
		if seen[raw.Type] {
			return nil, fmt.Errorf("%w: duplicate node type %s", ErrInvalidCatalog, raw.Type)
		}

		seen[raw.Type] = true

		def, err := raw.Build()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
		}

		defs = append(defs, def)
	}

	return defs, nil
}

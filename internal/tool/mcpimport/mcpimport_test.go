package mcpimport

import (
	"testing"

	"github.com/attestia/attestia/internal/tool"
)

func TestParametersFromSchema(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Search text.",
			},
			"limit":  map[string]any{"type": "integer"},
			"strict": map[string]any{"type": "boolean"},
			"tags":   map[string]any{"type": "array"},
			"filter": map[string]any{"type": "object"},
			"mode": map[string]any{
				"type": "string",
				"enum": []any{"fast", "thorough"},
			},
		},
		"required": []any{"query"},
	}

	params := parametersFromSchema(schema)
	byName := map[string]tool.Parameter{}
	for _, p := range params {
		byName[p.Name] = p
	}

	if len(params) != 6 {
		t.Fatalf("got %d parameters, want 6", len(params))
	}
	if p := byName["query"]; p.Type != tool.TypeString || !p.Required || p.Description != "Search text." {
		t.Errorf("query = %+v, want required string with description", p)
	}
	if p := byName["limit"]; p.Type != tool.TypeNumber || p.Required {
		t.Errorf("limit = %+v, want optional number", p)
	}
	if p := byName["strict"]; p.Type != tool.TypeBoolean {
		t.Errorf("strict = %+v, want boolean", p)
	}
	if p := byName["tags"]; p.Type != tool.TypeArray {
		t.Errorf("tags = %+v, want array", p)
	}
	if p := byName["filter"]; p.Type != tool.TypeObject {
		t.Errorf("filter = %+v, want object", p)
	}
	if p := byName["mode"]; len(p.Enum) != 2 || p.Enum[0] != "fast" {
		t.Errorf("mode enum = %v, want [fast thorough]", p.Enum)
	}
}

func TestParametersFromSchemaNoProperties(t *testing.T) {
	if params := parametersFromSchema(map[string]any{"type": "object"}); params != nil {
		t.Errorf("params = %v, want nil for schema without properties", params)
	}
}

func TestSchemaToMap(t *testing.T) {
	if m := schemaToMap(nil); m["type"] != "object" {
		t.Errorf("nil schema = %v, want default object schema", m)
	}

	type schemaStruct struct {
		Type string `json:"type"`
	}
	if m := schemaToMap(schemaStruct{Type: "object"}); m["type"] != "object" {
		t.Errorf("struct schema = %v, want marshalled map", m)
	}
}

func TestImportValidatesConfig(t *testing.T) {
	im := NewImporter()
	reg := tool.New()

	cases := []ServerConfig{
		{},
		{Name: "s", Transport: "carrier-pigeon"},
		{Name: "s", Transport: TransportStdio},
		{Name: "s", Transport: TransportStreamableHTTP},
	}
	for _, cfg := range cases {
		if _, err := im.Import(t.Context(), reg, cfg); err == nil {
			t.Errorf("Import(%+v) = nil error, want config error", cfg)
		}
	}
}

package router

import (
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
)

func mustSchema(raw string) *jsonschema.Schema {
	var s jsonschema.Schema
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		panic(err)
	}
	return &s
}

// Declarative, fixed JSON schemas for the router's own exposed tools
// (spec §6). No reflection or codegen — the schemas are static literals.
var (
	listProvidersSchema = mustSchema(`{
		"type": "object",
		"properties": {
			"tag": {"type": "string"},
			"version": {"type": "string"}
		}
	}`)

	toolsListSchema = mustSchema(`{
		"type": "object",
		"required": ["provider"],
		"properties": {
			"provider": {"type": "string"}
		}
	}`)

	toolsCallSchema = mustSchema(`{
		"type": "object",
		"required": ["provider", "name"],
		"properties": {
			"provider": {"type": "string"},
			"name": {"type": "string"},
			"arguments": {"type": "object"}
		}
	}`)

	toolsRefreshSchema = mustSchema(`{
		"type": "object",
		"properties": {
			"provider": {"type": "string"}
		}
	}`)
)

const (
	ToolListProviders = "list_providers"
	ToolToolsList     = "tools.list"
	ToolToolsCall     = "tools.call"
	ToolToolsRefresh  = "tools.refresh"
)

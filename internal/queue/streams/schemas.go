package streams

import "fmt"

// Event types and payload version mirrored by the research sink.
const (
	EventResearchProgress = "research.progress"
	EventResearchResult   = "research.result"
	PayloadV1             = "v1"
)

// Definition describes a schema entry managed by the registry.
type Definition struct {
	EventType string
	Version   string
	Schema    []byte
}

var researchDefinitions = []Definition{
	{
		EventType: EventResearchProgress,
		Version:   PayloadV1,
		Schema: []byte(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["task_id", "status", "percentage", "completed_subtasks", "total_subtasks", "degraded", "final", "timestamp"],
  "properties": {
    "task_id": {"type": "string", "minLength": 1},
    "status": {"type": "string", "enum": ["pending", "planning", "searching", "scraping", "analyzing", "completed", "failed"]},
    "current_operation": {"type": "string"},
    "percentage": {"type": "number", "minimum": 0, "maximum": 100},
    "phase_label": {"type": "string"},
    "completed_subtasks": {"type": "integer", "minimum": 0},
    "total_subtasks": {"type": "integer", "minimum": 0},
    "subtasks": {
      "type": "array",
      "items": {"$ref": "#/definitions/subtask_progress"}
    },
    "degraded": {"type": "boolean"},
    "final": {"type": "boolean"},
    "error": {"type": "string"},
    "timestamp": {"type": "string", "format": "date-time"}
  },
  "additionalProperties": true,
  "definitions": {
    "subtask_progress": {
      "type": "object",
      "required": ["id", "query", "status", "results_found"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "query": {"type": "string"},
        "status": {"type": "string", "enum": ["pending", "searching", "scraping", "completed"]},
        "results_found": {"type": "integer", "minimum": 0},
        "scraped_pages": {"type": "integer", "minimum": 0}
      },
      "additionalProperties": true
    }
  }
}`),
	},
	{
		EventType: EventResearchResult,
		Version:   PayloadV1,
		Schema: []byte(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["task_id", "result", "subtask_query"],
  "properties": {
    "task_id": {"type": "string", "minLength": 1},
    "subtask_query": {"type": "string"},
    "result": {
      "type": "object",
      "required": ["id", "subtask_id", "url", "title", "content", "relevance_score", "scraped_at"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "subtask_id": {"type": "string", "minLength": 1},
        "url": {"type": "string", "minLength": 1},
        "title": {"type": "string"},
        "content": {"type": "string"},
        "relevance_score": {"type": "number", "minimum": 0},
        "scraped_at": {"type": "string", "format": "date-time"},
        "excerpt": {"type": "boolean"}
      },
      "additionalProperties": true
    }
  },
  "additionalProperties": true
}`),
	},
}

// ResearchDefinitions returns the built-in research event schemas.
func ResearchDefinitions() []Definition {
	defs := make([]Definition, len(researchDefinitions))
	copy(defs, researchDefinitions)
	return defs
}

// RegisterResearchSchemas loads the research event schemas into the provided registry.
func RegisterResearchSchemas(reg *SchemaRegistry) error {
	if reg == nil {
		return fmt.Errorf("registry is nil")
	}
	for _, def := range researchDefinitions {
		if err := reg.Register(def); err != nil {
			return fmt.Errorf("register %s %s: %w", def.EventType, def.Version, err)
		}
	}
	return nil
}

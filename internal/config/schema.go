package config

// schemaJSON is the JSON Schema the raw config document is validated
// against before decoding. additionalProperties is false throughout,
// implementing the spec's "strict JSON, reject unknown keys" rule —
// a deliberate departure from the teacher's own permissive
// Overflow-catchall config style (see DESIGN.md).
const schemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "listen": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "http": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "host": {"type": "string"},
            "port": {"type": "integer"},
            "path": {"type": "string"}
          }
        },
        "stdio": {"type": "boolean"}
      }
    },
    "admin": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "enabled": {"type": "boolean"},
        "path": {"type": "string"},
        "allowUnauthenticated": {"type": "boolean"}
      }
    },
    "toolExposure": {"type": "string", "enum": ["hierarchical", "namespaced", "both"]},
    "routing": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "selectorStrategy": {"type": "string", "enum": ["roundRobin", "random"]},
        "healthChecks": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "enabled": {"type": "boolean"},
            "intervalMs": {"type": "integer"},
            "timeoutMs": {"type": "integer"},
            "includeStdio": {"type": "boolean"}
          }
        },
        "circuitBreaker": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "enabled": {"type": "boolean"},
            "failureThreshold": {"type": "integer"},
            "openMs": {"type": "integer"}
          }
        }
      }
    },
    "audit": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "enabled": {"type": "boolean"},
        "logArguments": {"type": "boolean"},
        "maxArgumentChars": {"type": "integer"}
      }
    },
    "projects": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["id"],
        "properties": {
          "id": {"type": "string"},
          "name": {"type": "string"},
          "allowedMcpServers": {"type": "array", "items": {"type": "string"}},
          "allowedTags": {"type": "array", "items": {"type": "string"}},
          "rateLimit": {
            "type": "object",
            "additionalProperties": false,
            "properties": {"requestsPerMinute": {"type": "integer"}}
          }
        }
      }
    },
    "auth": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "tokens": {
          "type": "array",
          "items": {
            "type": "object",
            "additionalProperties": false,
            "required": ["value"],
            "properties": {
              "value": {"type": "string"},
              "projectId": {"type": "string"},
              "allowedMcpServers": {"type": "array", "items": {"type": "string"}},
              "allowedTags": {"type": "array", "items": {"type": "string"}},
              "rateLimit": {
                "type": "object",
                "additionalProperties": false,
                "properties": {"requestsPerMinute": {"type": "integer"}}
              }
            }
          }
        }
      }
    },
    "sandbox": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "stdio": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "allowedCommands": {"type": "array", "items": {"type": "string"}},
            "allowedCwdRoots": {"type": "array", "items": {"type": "string"}},
            "allowedEnvKeys": {"type": "array", "items": {"type": "string"}},
            "inheritEnvKeys": {"type": "array", "items": {"type": "string"}}
          }
        }
      }
    },
    "alerts": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "discord": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "enabled": {"type": "boolean"},
            "webhookUrl": {"type": "string"},
            "openChecksThreshold": {"type": "integer"},
            "cooldownMs": {"type": "integer"}
          }
        }
      }
    },
    "mcpServers": {"$ref": "#/definitions/upstreamMap"},
    "upstreams": {"$ref": "#/definitions/upstreamMap"}
  },
  "definitions": {
    "upstreamMap": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "additionalProperties": false,
        "required": ["transport"],
        "properties": {
          "transport": {"type": "string", "enum": ["pipe", "http"]},
          "enabled": {"type": "boolean"},
          "tags": {"type": "array", "items": {"type": "string"}},
          "version": {"type": "string"},
          "timeoutMs": {"type": "integer"},
          "url": {"type": "string"},
          "headers": {"type": "object", "additionalProperties": {"type": "string"}},
          "command": {"type": "string"},
          "args": {"type": "array", "items": {"type": "string"}},
          "cwd": {"type": "string"},
          "env": {"type": "object", "additionalProperties": {"type": "string"}},
          "stderrMode": {"type": "string", "enum": ["discard", "log"]},
          "allowedTools": {"type": "array", "items": {"type": "string"}},
          "disallowedTools": {"type": "array", "items": {"type": "string"}},
          "restartPolicy": {
            "type": "object",
            "additionalProperties": false,
            "properties": {
              "maxRetries": {"type": "integer"},
              "initialDelayMs": {"type": "integer"},
              "maxDelayMs": {"type": "integer"},
              "factor": {"type": "number"}
            }
          }
        }
      }
    }
  }
}`

package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Activity Audit API",
        "description": "Tamper-evident activity log with retention and security analysis",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [
        {"BearerAuth": []}
    ],
    "tags": [
        {"name": "Activities", "description": "Append-only activity log"},
        {"name": "Integrity", "description": "Signature verification and audits"},
        {"name": "Retention", "description": "Retention policies, archives and cleanup history"},
        {"name": "Security", "description": "Brute force, anomaly and report analysis"},
        {"name": "Maintenance", "description": "Scheduled background jobs"},
        {"name": "Metrics", "description": "Health and operational counters"}
    ],
    "paths": {
        "/health": {
            "get": {
                "tags": ["Metrics"],
                "summary": "Health check",
                "security": [],
                "responses": {
                    "200": {"description": "OK"},
                    "503": {"description": "Database unreachable"}
                }
            }
        },
        "/activities": {
            "get": {
                "tags": ["Activities"],
                "summary": "List activities",
                "parameters": [
                    {"name": "type", "in": "query", "type": "string"},
                    {"name": "module", "in": "query", "type": "string"},
                    {"name": "actorId", "in": "query", "type": "string"},
                    {"name": "ipAddress", "in": "query", "type": "string"},
                    {"name": "result", "in": "query", "type": "string", "enum": ["success", "failure", "warning", "client_error"]},
                    {"name": "minRisk", "in": "query", "type": "integer"},
                    {"name": "from", "in": "query", "type": "string", "format": "date-time"},
                    {"name": "to", "in": "query", "type": "string", "format": "date-time"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Activities"],
                "summary": "Record an activity",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LogActivityRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/activities/batch": {
            "post": {
                "tags": ["Activities"],
                "summary": "Record several activities",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LogBatchRequest"}}
                ],
                "responses": {
                    "201": {"description": "All stored"},
                    "207": {"description": "Partially stored"}
                }
            }
        },
        "/activities/{id}": {
            "get": {
                "tags": ["Activities"],
                "summary": "Get activity by id",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not found"}
                }
            },
            "put": {
                "tags": ["Activities"],
                "summary": "Activities cannot be modified",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "409": {"description": "AUDIT_TRAIL_PROTECTED", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Activities"],
                "summary": "Activities cannot be deleted",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "409": {"description": "AUDIT_TRAIL_PROTECTED", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/activities/{id}/verify": {
            "get": {
                "tags": ["Integrity"],
                "summary": "Verify a record signature",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/activities/{id}/tamper-check": {
            "post": {
                "tags": ["Integrity"],
                "summary": "Diff a record against a trusted snapshot",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TamperCheckRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/integrity/audit": {
            "post": {
                "tags": ["Integrity"],
                "summary": "Verify every stored record",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/retention/policies": {
            "get": {
                "tags": ["Retention"],
                "summary": "List retention policies",
                "parameters": [
                    {"name": "active", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            },
            "post": {
                "tags": ["Retention"],
                "summary": "Create retention policy",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RetentionPolicyRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created"}
                }
            }
        },
        "/retention/policies/{id}": {
            "get": {
                "tags": ["Retention"],
                "summary": "Get retention policy",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            },
            "put": {
                "tags": ["Retention"],
                "summary": "Replace retention policy",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RetentionPolicyRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            },
            "delete": {
                "tags": ["Retention"],
                "summary": "Delete retention policy",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Deleted"}
                }
            }
        },
        "/retention/policies/{id}/preview": {
            "get": {
                "tags": ["Retention"],
                "summary": "Preview what a policy would touch",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/retention/policies/{id}/execute": {
            "post": {
                "tags": ["Retention"],
                "summary": "Execute one policy",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/ExecutePolicyRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "409": {"description": "Policy already running"}
                }
            }
        },
        "/retention/execute": {
            "post": {
                "tags": ["Retention"],
                "summary": "Execute all active policies by priority",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/retention/cleanup": {
            "post": {
                "tags": ["Retention"],
                "summary": "Manual cleanup by criteria",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ManualCleanupRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/retention/logs": {
            "get": {
                "tags": ["Retention"],
                "summary": "List cleanup logs",
                "parameters": [
                    {"name": "policyId", "in": "query", "type": "string"},
                    {"name": "type", "in": "query", "type": "string", "enum": ["automatic", "manual"]},
                    {"name": "status", "in": "query", "type": "string", "enum": ["completed", "failed"]},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/retention/archives": {
            "get": {
                "tags": ["Retention"],
                "summary": "List archived activities",
                "parameters": [
                    {"name": "originalId", "in": "query", "type": "string"},
                    {"name": "type", "in": "query", "type": "string"},
                    {"name": "module", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/retention/archives/restore": {
            "post": {
                "tags": ["Retention"],
                "summary": "Restore archived activities",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RestoreRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/retention/archives/purge": {
            "post": {
                "tags": ["Retention"],
                "summary": "Permanently remove old archives",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/PurgeArchivedRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/security/report": {
            "get": {
                "tags": ["Security"],
                "summary": "Security report for a window",
                "parameters": [
                    {"name": "window", "in": "query", "type": "string", "description": "Go duration or Nd, default 7d"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/security/suspicious-ips": {
            "get": {
                "tags": ["Security"],
                "summary": "IPs with failed login bursts",
                "parameters": [
                    {"name": "window", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/security/brute-force": {
            "get": {
                "tags": ["Security"],
                "summary": "IPs over the brute force threshold",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/security/users/{actorId}/patterns": {
            "get": {
                "tags": ["Security"],
                "summary": "Behaviour pattern for one actor",
                "parameters": [
                    {"name": "actorId", "in": "path", "required": true, "type": "string"},
                    {"name": "window", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/security/alerts": {
            "get": {
                "tags": ["Security"],
                "summary": "List security alerts",
                "parameters": [
                    {"name": "kind", "in": "query", "type": "string"},
                    {"name": "severity", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/maintenance/jobs": {
            "get": {
                "tags": ["Maintenance"],
                "summary": "List scheduled jobs",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/maintenance/jobs/{name}/run": {
            "post": {
                "tags": ["Maintenance"],
                "summary": "Run a job now",
                "parameters": [
                    {"name": "name", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "409": {"description": "Job already running"}
                }
            }
        },
        "/metrics/summary": {
            "get": {
                "tags": ["Metrics"],
                "summary": "Audit counters and analysis queue depth",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        }
    },
    "definitions": {
        "LogActivityRequest": {
            "type": "object",
            "properties": {
                "type": {"type": "string"},
                "description": {"type": "string"},
                "actorId": {"type": "string"},
                "subjectType": {"type": "string"},
                "subjectId": {"type": "string"},
                "module": {"type": "string"},
                "properties": {"type": "object"},
                "ipAddress": {"type": "string"},
                "userAgent": {"type": "string"},
                "result": {"type": "string", "enum": ["success", "failure", "warning", "client_error"]},
                "riskLevel": {"type": "integer", "minimum": 0, "maximum": 10}
            },
            "required": ["type", "description"]
        },
        "LogBatchRequest": {
            "type": "object",
            "properties": {
                "activities": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/LogActivityRequest"}
                }
            },
            "required": ["activities"]
        },
        "TamperCheckRequest": {
            "type": "object",
            "properties": {
                "type": {"type": "string"},
                "description": {"type": "string"},
                "actorId": {"type": "string"},
                "module": {"type": "string"},
                "result": {"type": "string"},
                "createdAt": {"type": "string", "format": "date-time"},
                "properties": {"type": "object"}
            },
            "required": ["type", "result", "createdAt"]
        },
        "Condition": {
            "type": "object",
            "properties": {
                "field": {"type": "string"},
                "operator": {"type": "string", "enum": ["=", "!=", ">", ">=", "<", "<=", "in"]},
                "value": {}
            },
            "required": ["field", "operator"]
        },
        "RetentionPolicyRequest": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "activityType": {"type": "string"},
                "module": {"type": "string"},
                "conditions": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/Condition"}
                },
                "retentionDays": {"type": "integer", "minimum": 1},
                "action": {"type": "string", "enum": ["archive", "delete"]},
                "isActive": {"type": "boolean"},
                "priority": {"type": "integer"}
            },
            "required": ["name", "retentionDays", "action"]
        },
        "ExecutePolicyRequest": {
            "type": "object",
            "properties": {
                "dryRun": {"type": "boolean"}
            }
        },
        "ManualCleanupRequest": {
            "type": "object",
            "properties": {
                "dateFrom": {"type": "string", "format": "date-time"},
                "dateTo": {"type": "string", "format": "date-time"},
                "module": {"type": "string"},
                "type": {"type": "string"},
                "minRiskLevel": {"type": "integer"},
                "maxRiskLevel": {"type": "integer"},
                "action": {"type": "string", "enum": ["archive", "delete"]},
                "dryRun": {"type": "boolean"}
            },
            "required": ["dateTo", "action"]
        },
        "RestoreRequest": {
            "type": "object",
            "properties": {
                "archivedIds": {"type": "array", "items": {"type": "string"}}
            },
            "required": ["archivedIds"]
        },
        "PurgeArchivedRequest": {
            "type": "object",
            "properties": {
                "before": {"type": "string", "format": "date-time"}
            },
            "required": ["before"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}

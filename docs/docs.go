// Package docs registers the OpenAPI document served under /swagger.
// Keep it in step with the swag annotations on the handlers.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/admin/sync": {
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Re-syncs both datasets in the background, bypassing the freshness check.",
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Start a full sync",
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/handler.TriggerResponse"}}
                }
            }
        },
        "/admin/sync/diff": {
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Start a monthly diff sync",
                "parameters": [
                    {"type": "string", "description": "year and month of the diff, e.g. 2501", "name": "yymm", "in": "query", "required": true}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/handler.TriggerResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/admin/sync/history": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Sync history, most recent first",
                "parameters": [
                    {"type": "integer", "default": 20, "description": "page size (1-100)", "name": "limit", "in": "query"},
                    {"type": "integer", "default": 0, "description": "page offset", "name": "offset", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/models.SyncRun"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/admin/sync/status": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Current sync status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.SyncStatus"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Liveness and database reachability",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "503": {"description": "Service Unavailable", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/offices/{code}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["offices"],
                "summary": "Look up a business office postal code",
                "parameters": [
                    {"type": "string", "description": "postal code", "name": "code", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/models.OfficeRecord"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/postal-codes/search": {
            "get": {
                "produces": ["application/json"],
                "tags": ["postal-codes"],
                "summary": "Search postal codes",
                "parameters": [
                    {"type": "string", "description": "keyword (postal code prefix, kanji or kana)", "name": "q", "in": "query", "required": true},
                    {"type": "integer", "default": 20, "description": "page size (1-100)", "name": "limit", "in": "query"},
                    {"type": "integer", "default": 0, "description": "page offset", "name": "offset", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.PostalCodePage"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/postal-codes/{code}": {
            "get": {
                "description": "Returns every town row assigned the 7-digit code. Hyphens and full-width digits are accepted.",
                "produces": ["application/json"],
                "tags": ["postal-codes"],
                "summary": "Look up a postal code",
                "parameters": [
                    {"type": "string", "description": "postal code", "name": "code", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/models.AddressRecord"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        },
        "/prefectures": {
            "get": {
                "produces": ["application/json"],
                "tags": ["regions"],
                "summary": "List prefectures",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/models.Prefecture"}}}
                }
            }
        },
        "/prefectures/{code}/cities": {
            "get": {
                "produces": ["application/json"],
                "tags": ["regions"],
                "summary": "List the cities of a prefecture",
                "parameters": [
                    {"type": "string", "description": "prefecture code (01-47)", "name": "code", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/models.City"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handler.ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string"}}
        },
        "handler.TriggerResponse": {
            "type": "object",
            "properties": {"message": {"type": "string"}, "trigger_id": {"type": "string"}}
        },
        "models.AddressRecord": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "local_gov_code": {"type": "string"},
                "old_postal_code": {"type": "string"},
                "postal_code": {"type": "string"},
                "prefecture_kana": {"type": "string"},
                "city_kana": {"type": "string"},
                "town_kana": {"type": "string"},
                "prefecture": {"type": "string"},
                "city": {"type": "string"},
                "town": {"type": "string"},
                "multi_postal_flag": {"type": "integer"},
                "koaza_banchi_flag": {"type": "integer"},
                "chome_flag": {"type": "integer"},
                "multi_town_flag": {"type": "integer"},
                "update_flag": {"type": "integer"},
                "change_reason": {"type": "integer"}
            }
        },
        "models.City": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "prefecture_code": {"type": "string"},
                "name": {"type": "string"},
                "name_kana": {"type": "string"}
            }
        },
        "models.OfficeRecord": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "local_gov_code": {"type": "string"},
                "office_kana": {"type": "string"},
                "office_name": {"type": "string"},
                "prefecture": {"type": "string"},
                "city": {"type": "string"},
                "town": {"type": "string"},
                "address_detail": {"type": "string"},
                "postal_code": {"type": "string"},
                "old_postal_code": {"type": "string"},
                "post_office": {"type": "string"},
                "office_type": {"type": "integer"},
                "multi_number": {"type": "integer"},
                "change_reason": {"type": "integer"}
            }
        },
        "models.PostalCodePage": {
            "type": "object",
            "properties": {
                "total": {"type": "integer"},
                "limit": {"type": "integer"},
                "offset": {"type": "integer"},
                "results": {"type": "array", "items": {"$ref": "#/definitions/models.AddressRecord"}}
            }
        },
        "models.Prefecture": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "name": {"type": "string"},
                "name_kana": {"type": "string"}
            }
        },
        "models.SyncRun": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "sync_type": {"type": "string", "enum": ["full", "diff"]},
                "data_type": {"type": "string", "enum": ["postal_codes", "offices"]},
                "file_url": {"type": "string"},
                "file_date": {"type": "string"},
                "records_added": {"type": "integer"},
                "records_deleted": {"type": "integer"},
                "records_updated": {"type": "integer"},
                "status": {"type": "string", "enum": ["pending", "running", "completed", "failed"]},
                "error_message": {"type": "string"},
                "started_at": {"type": "string"},
                "completed_at": {"type": "string"}
            }
        },
        "models.SyncStatus": {
            "type": "object",
            "properties": {
                "is_syncing": {"type": "boolean"},
                "last_sync": {"$ref": "#/definitions/models.SyncRun"},
                "postal_codes_count": {"type": "integer"},
                "office_codes_count": {"type": "integer"},
                "checked_at": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "ApiKeyAuth": {"type": "apiKey", "name": "X-API-Key", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "postcodejp API",
	Description:      "Japanese postal-code lookup and sync administration.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

// Package docs registers the OpenAPI document served at /swagger/*any.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "license": {
            "name": "BSD-3-Clause"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "paths": {
        "/health": {
            "get": {
                "description": "Get API health status",
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Health check endpoint",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/main.HealthResponse"}}
                }
            }
        },
        "/transcribe": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Transcribe one uploaded audio file through the speech API",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json", "text/plain"],
                "tags": ["transcription"],
                "summary": "Transcribe audio to text",
                "parameters": [
                    {"type": "file", "description": "Audio file (mp3, wav, m4a, webm)", "name": "file", "in": "formData", "required": true},
                    {"type": "string", "description": "Caller correlation id", "name": "session_id", "in": "formData"},
                    {"type": "number", "description": "Recording length when the container cannot be probed", "name": "duration_seconds", "in": "formData"},
                    {"type": "string", "description": "Set to text for a text/plain reply", "name": "format", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/main.TranscriptionResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/main.ErrorResponse"}},
                    "403": {"description": "Quota exceeded", "schema": {"$ref": "#/definitions/main.ErrorResponse"}},
                    "413": {"description": "Upload too large", "schema": {"$ref": "#/definitions/main.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/main.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/main.ErrorResponse"}}
                }
            }
        },
        "/consultations": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Transcribe, analyze and store a consultation recording",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["consultations"],
                "summary": "Create a consultation",
                "parameters": [
                    {"type": "file", "name": "file", "in": "formData", "required": true},
                    {"type": "string", "name": "patient_id", "in": "formData", "required": true},
                    {"type": "boolean", "name": "consent", "in": "formData", "required": true},
                    {"type": "string", "enum": ["first_visit", "follow_up"], "name": "visit_type", "in": "formData"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/main.ConsultationResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/main.ErrorResponse"}},
                    "404": {"description": "Patient not found", "schema": {"$ref": "#/definitions/main.ErrorResponse"}}
                }
            }
        },
        "/consultations/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["consultations"],
                "summary": "Get a consultation",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/consultation.Record"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/main.ErrorResponse"}}
                }
            }
        },
        "/consultations/{id}/report/{field}": {
            "patch": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["consultations"],
                "summary": "Edit one report section",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "field", "in": "path", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/main.UpdateFieldRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/consultation.Record"}},
                    "400": {"description": "Unknown field", "schema": {"$ref": "#/definitions/main.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/main.ErrorResponse"}}
                }
            }
        },
        "/patients": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["patients"],
                "summary": "Register a patient",
                "parameters": [{"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/main.CreatePatientRequest"}}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/consultation.Patient"}}
                }
            }
        },
        "/patients/{id}/consultations": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["patients"],
                "summary": "List a patient's consultations",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "name": "limit", "in": "query"},
                    {"type": "integer", "name": "offset", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/consultation.Record"}}}
                }
            }
        },
        "/quota/check": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["quota"],
                "summary": "Check whether a recording fits the remaining allowance",
                "parameters": [{"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/main.QuotaCheckRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/main.QuotaResponse"}}
                }
            }
        },
        "/admin/usage/{user_id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Current-period usage for a user",
                "parameters": [{"type": "string", "name": "user_id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/main.QuotaResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/main.ErrorResponse"}}
                }
            }
        },
        "/auth/signin": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Sign in with email and password",
                "parameters": [{"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/main.SignInRequest"}}],
                "responses": {
                    "200": {"description": "Signed in", "schema": {"$ref": "#/definitions/main.SessionResponse"}},
                    "202": {"description": "Magic link sent", "schema": {"$ref": "#/definitions/main.SignInStatus"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/main.SignInStatus"}},
                    "503": {"description": "Backend unavailable", "schema": {"$ref": "#/definitions/main.SignInStatus"}}
                }
            }
        },
        "/auth/magic-link/redeem": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Exchange a magic-link token for a session",
                "parameters": [{"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/main.RedeemRequest"}}],
                "responses": {
                    "200": {"description": "Signed in", "schema": {"$ref": "#/definitions/main.SessionResponse"}},
                    "401": {"description": "Invalid or expired link", "schema": {"$ref": "#/definitions/main.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "main.HealthResponse": {
            "type": "object",
            "properties": {"status": {"type": "string"}}
        },
        "main.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "kind": {"type": "string"},
                "request_id": {"type": "string"},
                "detail": {"type": "string"}
            }
        },
        "main.TranscriptionResponse": {
            "type": "object",
            "properties": {
                "text": {"type": "string"},
                "result": {"type": "string"},
                "session_id": {"type": "string"},
                "request_id": {"type": "string"},
                "tag": {"type": "string"},
                "format": {"type": "string"},
                "duration_seconds": {"type": "number"}
            }
        },
        "main.ConsultationResponse": {
            "type": "object",
            "properties": {
                "consultation": {"$ref": "#/definitions/consultation.Record"},
                "request_id": {"type": "string"},
                "tag": {"type": "string"},
                "analysis_error": {"type": "string"}
            }
        },
        "main.UpdateFieldRequest": {
            "type": "object",
            "required": ["value"],
            "properties": {"value": {"type": "string"}}
        },
        "main.CreatePatientRequest": {
            "type": "object",
            "required": ["full_name"],
            "properties": {"full_name": {"type": "string"}}
        },
        "main.QuotaCheckRequest": {
            "type": "object",
            "required": ["duration_seconds"],
            "properties": {"duration_seconds": {"type": "number"}}
        },
        "main.QuotaResponse": {
            "type": "object",
            "properties": {
                "enabled": {"type": "boolean"},
                "allowed": {"type": "boolean"},
                "state": {"type": "string"},
                "plan": {"type": "string"},
                "minutes_used": {"type": "integer"},
                "monthly_minutes": {"type": "integer"},
                "remaining_minutes": {"type": "integer"},
                "required_minutes": {"type": "integer"},
                "period_start": {"type": "string"},
                "period_end": {"type": "string"}
            }
        },
        "main.SignInRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {"email": {"type": "string"}, "password": {"type": "string"}}
        },
        "main.RedeemRequest": {
            "type": "object",
            "required": ["token"],
            "properties": {"token": {"type": "string"}}
        },
        "main.SessionResponse": {
            "type": "object",
            "properties": {
                "token": {"type": "string"},
                "expires_at": {"type": "string"},
                "user_id": {"type": "string"},
                "role": {"type": "string"}
            }
        },
        "main.SignInStatus": {
            "type": "object",
            "properties": {
                "state": {"type": "string"},
                "retries": {"type": "integer"},
                "magic_link_sent": {"type": "boolean"},
                "error": {"type": "string"}
            }
        },
        "consultation.Patient": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "clinician_id": {"type": "string"},
                "full_name": {"type": "string"},
                "created_at": {"type": "string"}
            }
        },
        "consultation.Record": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "patient_id": {"type": "string"},
                "clinician_id": {"type": "string"},
                "transcript": {"type": "string"},
                "report": {"type": "object", "additionalProperties": {"type": "string"}},
                "duration_seconds": {"type": "integer"},
                "consent": {"type": "boolean"},
                "visit_type": {"type": "string"},
                "audio_url": {"type": "string"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "2.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Scribe API Service",
	Description:      "Consultation audio ingestion, transcription and structured reporting.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

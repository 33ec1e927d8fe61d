package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Colete API",
        "description": "Parcel logistics tracking for fixed Moldova routes",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "PIN based login and sessions"},
        {"name": "Parcels", "description": "Parcel lifecycle: intake, delivery, reassignment"},
        {"name": "Drivers", "description": "Driver accounts"},
        {"name": "Weeks", "description": "ISO week buckets"},
        {"name": "Archive", "description": "Weekly archive sweep"},
        {"name": "Exports", "description": "Async weekly manifest exports"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate by username and PIN",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Refresh access token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Current account info",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/parcels": {
            "get": {
                "tags": ["Parcels"],
                "summary": "List parcels",
                "parameters": [
                    {"name": "driver_id", "in": "query", "type": "string"},
                    {"name": "week_id", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string", "enum": ["pending", "delivered"]},
                    {"name": "archived", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Parcels"],
                "summary": "Log a parcel",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "origin_code", "in": "formData", "type": "string", "required": true},
                    {"name": "delivery_destination", "in": "formData", "type": "string", "required": true},
                    {"name": "sender_name", "in": "formData", "type": "string", "required": true},
                    {"name": "sender_phone", "in": "formData", "type": "string", "required": true},
                    {"name": "sender_address", "in": "formData", "type": "string"},
                    {"name": "receiver_name", "in": "formData", "type": "string", "required": true},
                    {"name": "receiver_phone", "in": "formData", "type": "string", "required": true},
                    {"name": "receiver_address", "in": "formData", "type": "string", "required": true},
                    {"name": "content_description", "in": "formData", "type": "string"},
                    {"name": "appearance", "in": "formData", "type": "string", "enum": ["box", "bag", "envelope", "other"]},
                    {"name": "weight", "in": "formData", "type": "number", "required": true},
                    {"name": "driver_id", "in": "formData", "type": "string"},
                    {"name": "photo", "in": "formData", "type": "file"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid route or payload"}
                }
            }
        },
        "/parcels/{id}": {
            "get": {
                "tags": ["Parcels"],
                "summary": "Get one parcel",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            },
            "patch": {
                "tags": ["Parcels"],
                "summary": "Correct parcel details (admin)",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateParcelRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Parcels"],
                "summary": "Delete a parcel (admin)",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "204": {"description": "Deleted"}
                }
            }
        },
        "/parcels/{id}/deliver": {
            "post": {
                "tags": ["Parcels"],
                "summary": "Mark a parcel delivered",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/DeliverParcelRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already delivered"}
                }
            }
        },
        "/parcels/reassign": {
            "post": {
                "tags": ["Parcels"],
                "summary": "Reassign parcels to another driver (admin)",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReassignParcelsRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/parcels/reorder": {
            "post": {
                "tags": ["Parcels"],
                "summary": "Store a driver's manual route order (admin)",
                "responses": {
                    "204": {"description": "Stored"}
                }
            }
        },
        "/contacts": {
            "get": {
                "tags": ["Parcels"],
                "summary": "Known contacts for autocomplete",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/weeks/current": {
            "get": {
                "tags": ["Weeks"],
                "summary": "Active week bucket",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/weeks/archived": {
            "get": {
                "tags": ["Weeks"],
                "summary": "Archived week buckets",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/drivers": {
            "get": {
                "tags": ["Drivers"],
                "summary": "List drivers (admin)",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Drivers"],
                "summary": "Create a driver account (admin)",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Username taken"}
                }
            }
        },
        "/admin/archive/reset": {
            "post": {
                "tags": ["Archive"],
                "summary": "Run the archive sweep now (admin)",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/exports": {
            "post": {
                "tags": ["Exports"],
                "summary": "Queue a weekly manifest export (admin)",
                "responses": {
                    "202": {"description": "Queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/exports/{id}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Export job status",
                "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/exports/download/{token}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download a finished export",
                "parameters": [{"name": "token", "in": "path", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "File stream"},
                    "403": {"description": "Invalid or expired token"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["username", "pin"],
            "properties": {
                "username": {"type": "string"},
                "pin": {"type": "string"}
            }
        },
        "DeliverParcelRequest": {
            "type": "object",
            "required": ["client_satisfied"],
            "properties": {
                "client_satisfied": {"type": "boolean"},
                "delivery_note": {"type": "string"}
            }
        },
        "ReassignParcelsRequest": {
            "type": "object",
            "required": ["parcel_ids", "target_driver_id"],
            "properties": {
                "parcel_ids": {"type": "array", "items": {"type": "string"}},
                "target_driver_id": {"type": "string"}
            }
        },
        "UpdateParcelRequest": {
            "type": "object",
            "properties": {
                "sender_name": {"type": "string"},
                "sender_phone": {"type": "string"},
                "sender_address": {"type": "string"},
                "receiver_name": {"type": "string"},
                "receiver_phone": {"type": "string"},
                "receiver_address": {"type": "string"},
                "content_description": {"type": "string"},
                "weight": {"type": "number"}
            }
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

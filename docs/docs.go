// Package docs serves the Swagger 2.0 document for the HTTP API. The
// template is maintained by hand; keep it in step with the @Summary and
// @Router annotations on the handlers.
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
        "/account": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["account"],
                "summary": "Open account",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.Account"}}
                }
            }
        },
        "/account/balance": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["account"],
                "summary": "Get balance",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "properties": {"accountId": {"type": "string"}, "balance": {"type": "integer"}}}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/account/ledger": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["account"],
                "summary": "Ledger history",
                "parameters": [
                    {"type": "integer", "description": "Page size", "name": "limit", "in": "query"},
                    {"type": "integer", "description": "Return entries with seq below this value", "name": "before", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "properties": {"entries": {"type": "array", "items": {"$ref": "#/definitions/models.LedgerEntry"}}, "nextBefore": {"type": "integer"}}}}
                }
            }
        },
        "/account/audit": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["account"],
                "summary": "Audit history",
                "parameters": [
                    {"type": "integer", "description": "Page size", "name": "limit", "in": "query"},
                    {"type": "integer", "description": "Return records with seq below this value", "name": "before", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "properties": {"records": {"type": "array", "items": {"$ref": "#/definitions/models.AuditRecord"}}, "nextBefore": {"type": "integer"}}}}
                }
            }
        },
        "/records/{recordId}/unlock": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["records"],
                "summary": "Unlock record",
                "parameters": [{"type": "string", "description": "Record ID", "name": "recordId", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.UnlockResult"}},
                    "402": {"description": "Insufficient balance", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "409": {"description": "Retry the request", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "429": {"description": "Too many unlocks", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/records/{recordId}/entitlement": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["records"],
                "summary": "Check entitlement",
                "parameters": [{"type": "string", "description": "Record ID", "name": "recordId", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "properties": {"recordId": {"type": "string"}, "entitled": {"type": "boolean"}}}}
                }
            }
        },
        "/entitlements": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["records"],
                "summary": "Owned records",
                "parameters": [{"type": "integer", "description": "Maximum number of records", "name": "limit", "in": "query"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "properties": {"entitlements": {"type": "array", "items": {"$ref": "#/definitions/models.Entitlement"}}}}}
                }
            }
        },
        "/payments/intents": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["payments"],
                "summary": "Create payment intent",
                "description": "Registers the gateway order id before the user pays. The amount due is priced server-side.",
                "parameters": [
                    {"description": "Intent", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.createIntentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/models.PaymentIntent"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/referrals": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["referrals"],
                "summary": "Create referral link",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/models.ReferralLink"}},
                    "409": {"description": "Referee already referred", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/referrals/{id}/qualify": {
            "post": {
                "produces": ["application/json"],
                "tags": ["webhooks"],
                "summary": "Referee qualified callback",
                "parameters": [
                    {"type": "string", "description": "Shared secret", "name": "X-Webhook-Secret", "in": "header", "required": true},
                    {"type": "string", "description": "Referral link ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "properties": {"bonusCredited": {"type": "boolean"}}}}
                }
            }
        },
        "/webhooks/payments/confirmed": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["webhooks"],
                "summary": "Payment confirmed callback",
                "description": "Idempotent on paymentIntentId. Redelivery returns the current balance. A late confirmation of a failed intent still credits.",
                "parameters": [
                    {"type": "string", "description": "Shared secret", "name": "X-Webhook-Secret", "in": "header", "required": true},
                    {"description": "Confirmation", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.PaymentConfirmation"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "properties": {"newBalance": {"type": "integer"}}}},
                    "404": {"description": "Unknown payment intent", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "409": {"description": "Intent id used by another account", "schema": {"$ref": "#/definitions/services.ErrorResponse"}},
                    "422": {"description": "Amount mismatch", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/webhooks/payments/failed": {
            "post": {
                "consumes": ["application/json"],
                "tags": ["webhooks"],
                "summary": "Payment failed callback",
                "parameters": [
                    {"type": "string", "description": "Shared secret", "name": "X-Webhook-Secret", "in": "header", "required": true},
                    {"description": "Failure", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.paymentFailedRequest"}}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/services.ErrorResponse"}}
                }
            }
        },
        "/admin/refunds": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Refund tokens",
                "parameters": [{"type": "string", "description": "Shared secret", "name": "X-Webhook-Secret", "in": "header", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "properties": {"balance": {"type": "integer"}}}}
                }
            }
        }
    },
    "definitions": {
        "handlers.createIntentRequest": {
            "type": "object",
            "required": ["paymentIntentId", "tokenQuantity"],
            "properties": {
                "paymentIntentId": {"type": "string", "maxLength": 128},
                "tokenQuantity": {"type": "integer", "minimum": 1, "maximum": 1000000}
            }
        },
        "handlers.paymentFailedRequest": {
            "type": "object",
            "required": ["paymentIntentId"],
            "properties": {
                "paymentIntentId": {"type": "string"},
                "reason": {"type": "string"}
            }
        },
        "models.Account": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "balance": {"type": "integer"},
                "version": {"type": "integer"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "models.LedgerEntry": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "seq": {"type": "integer"},
                "account_id": {"type": "string"},
                "delta": {"type": "integer"},
                "kind": {"type": "string"},
                "description": {"type": "string"},
                "reference": {"type": "string"},
                "balance_after": {"type": "integer"},
                "created_at": {"type": "string"}
            }
        },
        "models.AuditRecord": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "seq": {"type": "integer"},
                "account_id": {"type": "string"},
                "ledger_entry_id": {"type": "string"},
                "kind": {"type": "string"},
                "tokens": {"type": "integer"},
                "balance_before": {"type": "integer"},
                "balance_after": {"type": "integer"},
                "reference": {"type": "string"},
                "created_at": {"type": "string"}
            }
        },
        "models.Entitlement": {
            "type": "object",
            "properties": {
                "account_id": {"type": "string"},
                "record_id": {"type": "string"},
                "ledger_entry_id": {"type": "string"},
                "granted_at": {"type": "string"}
            }
        },
        "models.UnlockResult": {
            "type": "object",
            "properties": {
                "entitled": {"type": "boolean"},
                "alreadyOwned": {"type": "boolean"},
                "newBalance": {"type": "integer"},
                "state": {"type": "string"},
                "fields": {"type": "object"}
            }
        },
        "models.PaymentIntent": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "accountId": {"type": "string"},
                "amount": {"type": "integer"},
                "tokenQuantity": {"type": "integer"},
                "status": {"type": "string"},
                "createdAt": {"type": "string"}
            }
        },
        "models.PaymentConfirmation": {
            "type": "object",
            "required": ["paymentIntentId", "accountId", "tokenQuantity", "amountPaid"],
            "properties": {
                "paymentIntentId": {"type": "string"},
                "accountId": {"type": "string"},
                "tokenQuantity": {"type": "integer"},
                "amountPaid": {"type": "integer"}
            }
        },
        "models.ReferralLink": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "referrerId": {"type": "string"},
                "refereeId": {"type": "string"},
                "status": {"type": "string"},
                "bonusAmount": {"type": "integer"},
                "createdAt": {"type": "string"},
                "completedAt": {"type": "string"}
            }
        },
        "services.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "details": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Record Vault Ledger API",
	Description:      "Token balances, record unlocks and entitlements.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

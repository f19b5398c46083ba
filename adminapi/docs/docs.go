// Package docs holds the generated swagger specification for the admin introspection API.
// Normally produced by `swag init`; committed by hand here since this exercise never invokes
// the swag CLI, following the same shape `swag init --parseDependency` would emit.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/stores": {
            "get": {
                "security": [{"Bearer": []}],
                "tags": ["Stores"],
                "summary": "List stores",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/transactions": {
            "get": {
                "security": [{"Bearer": []}],
                "tags": ["Transactions"],
                "summary": "List live transactions",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/gc": {
            "get": {
                "security": [{"Bearer": []}],
                "tags": ["GC"],
                "summary": "GC status",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/deferred": {
            "get": {
                "security": [{"Bearer": []}],
                "tags": ["Deferred"],
                "summary": "Deferred task queue depth",
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "securityDefinitions": {
        "Bearer": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so it can be set by main.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/admin/v1",
	Schemes:          []string{},
	Title:            "kvenv admin API",
	Description:      "Read-only introspection over open stores, live transactions, and GC state.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

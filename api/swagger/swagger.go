// Package swagger serves a hand-maintained OpenAPI document until the
// swag generator is wired into the build.
package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "UniReg API",
        "description": "Module registration service for university courses",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "tags": [
        {"name": "Authentication", "description": "Signup, login and session management"},
        {"name": "Courses", "description": "Course catalog and enrollment"},
        {"name": "Modules", "description": "Module catalog and administration"},
        {"name": "Registrations", "description": "Module registration engine"},
        {"name": "Students", "description": "Student profiles and administration"},
        {"name": "Users", "description": "Account administration"},
        {"name": "Pages", "description": "Editable page content"},
        {"name": "Admin", "description": "Dashboard, bulk operations, imports and audit trail"},
        {"name": "Reports", "description": "Asynchronous report generation"}
    ],
    "paths": {
        "/auth/signup": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Create a student account",
                "responses": {"201": {"description": "Created"}}
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate and issue tokens",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Rotate the refresh token",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/courses": {
            "get": {
                "tags": ["Courses"],
                "summary": "List courses",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/courses/{id}/enroll": {
            "post": {
                "tags": ["Courses"],
                "summary": "Enroll the current student in a course",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/modules": {
            "get": {
                "tags": ["Modules"],
                "summary": "List modules",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/modules/{code}/register": {
            "post": {
                "tags": ["Registrations"],
                "summary": "Register for a module",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            },
            "delete": {
                "tags": ["Registrations"],
                "summary": "Drop a module registration",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/registrations/me": {
            "get": {
                "tags": ["Registrations"],
                "summary": "List own registrations",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/profile": {
            "get": {
                "tags": ["Students"],
                "summary": "Get own profile",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            },
            "put": {
                "tags": ["Students"],
                "summary": "Update own profile",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/admin/dashboard": {
            "get": {
                "tags": ["Admin"],
                "summary": "Aggregated registration statistics",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/reports": {
            "post": {
                "tags": ["Reports"],
                "summary": "Queue a report generation job",
                "security": [{"BearerAuth": []}],
                "responses": {"202": {"description": "Accepted"}}
            }
        }
    },
    "definitions": {
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
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

package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Academic Records API",
        "description": "Grade and attendance ledgers with atomic batch writes and derived averages",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Grades", "description": "Grade ledger writes and weighted averages"},
        {"name": "Attendance", "description": "Attendance batches and presence ratios"},
        {"name": "Students", "description": "Per-student grades, attendance and transcripts"},
        {"name": "System", "description": "Operational counters"}
    ],
    "paths": {
        "/grades": {
            "post": {
                "tags": ["Grades"],
                "summary": "Record or correct a grade entry",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RecordGradeRequest"}}
                ],
                "responses": {
                    "200": {"description": "Corrected", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid payload", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not assigned to subject", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Value out of domain or student not enrolled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Transaction aborted, retry the request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/grades/average": {
            "get": {
                "tags": ["Grades"],
                "summary": "Weighted average for a student in a subject",
                "parameters": [
                    {"name": "studentId", "in": "query", "type": "string", "required": true},
                    {"name": "subjectId", "in": "query", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendance/batch": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Record attendance for a class session",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AttendanceBatchRequest"}}
                ],
                "responses": {
                    "200": {"description": "Committed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid payload", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not assigned to subject", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "A row failed; error.details.row holds its index", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Transaction aborted, retry the request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendance/ratio": {
            "get": {
                "tags": ["Attendance"],
                "summary": "Presence ratio for a student in a subject",
                "parameters": [
                    {"name": "studentId", "in": "query", "type": "string", "required": true},
                    {"name": "subjectId", "in": "query", "type": "string", "required": true},
                    {"name": "month", "in": "query", "type": "integer"},
                    {"name": "year", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}/grades": {
            "get": {
                "tags": ["Students"],
                "summary": "Grade entries grouped by subject",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "subjectId", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}/attendance": {
            "get": {
                "tags": ["Students"],
                "summary": "Attendance history",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "month", "in": "query", "type": "integer"},
                    {"name": "year", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{id}/transcript": {
            "get": {
                "tags": ["Students"],
                "summary": "Student transcript as JSON, CSV or PDF",
                "produces": ["application/json", "text/csv", "application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/system/metrics": {
            "get": {
                "tags": ["System"],
                "summary": "Request and transaction counters",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "RecordGradeRequest": {
            "type": "object",
            "required": ["student_id", "subject_id", "assessment_kind", "score"],
            "properties": {
                "student_id": {"type": "string"},
                "subject_id": {"type": "string"},
                "assessment_kind": {"type": "string", "enum": ["FIRST_TEST", "SECOND_TEST", "PROJECT", "PARTICIPATION", "FINAL_EXAM"]},
                "score": {"type": "number", "minimum": 0, "maximum": 20},
                "weight": {"type": "number", "exclusiveMinimum": true, "minimum": 0, "maximum": 1},
                "evaluated_on": {"type": "string", "format": "date"},
                "notes": {"type": "string"}
            }
        },
        "AttendanceRow": {
            "type": "object",
            "required": ["student_id", "status"],
            "properties": {
                "student_id": {"type": "string"},
                "status": {"type": "string", "enum": ["PRESENT", "ABSENT", "EXCUSED", "LATE"]},
                "justification": {"type": "string"}
            }
        },
        "AttendanceBatchRequest": {
            "type": "object",
            "required": ["subject_id", "class_date"],
            "properties": {
                "subject_id": {"type": "string"},
                "class_date": {"type": "string", "format": "date"},
                "records": {"type": "array", "items": {"$ref": "#/definitions/AttendanceRow"}}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "details": {"type": "object"},
                "retryable": {"type": "boolean"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
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

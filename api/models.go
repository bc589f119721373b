package api

import "github.com/AndyMelnik/iot-query-probe-v2/export"

// LoginRequest is the JSON body for POST /api/auth/login.
type LoginRequest struct {
	Email     string `json:"email"`
	IoTDBURL  string `json:"iotDbUrl"`
	UserDBURL string `json:"userDbUrl"`
	Role      string `json:"role,omitempty"`
}

// User is the identity echoed back after login.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// LoginResponse is returned from POST /api/auth/login.
type LoginResponse struct {
	Success bool   `json:"success"`
	User    User   `json:"user"`
	Token   string `json:"token"`
}

// CSRFTokenResponse is returned from GET /api/csrf-token.
type CSRFTokenResponse struct {
	CSRFToken string `json:"csrfToken"`
}

// QueryRequest is the JSON body for POST /api/query/execute.
type QueryRequest struct {
	SQL string `json:"sql"`
}

// QueryColumn describes one result column.
type QueryColumn struct {
	Name     string `json:"name"`
	DataType uint32 `json:"dataType"`
}

// QueryResponse is returned from a successful POST /api/query/execute.
// Rows are positional, in column order.
type QueryResponse struct {
	Success         bool          `json:"success"`
	Columns         []QueryColumn `json:"columns"`
	Rows            [][]any       `json:"rows"`
	RowCount        int           `json:"rowCount"`
	Truncated       bool          `json:"truncated"`
	ExecutionTimeMs int64         `json:"executionTimeMs"`
}

// ExportRequest is the JSON body for POST /api/export/xlsx.
type ExportRequest struct {
	export.Table
	Filename string `json:"filename"`
}

// HealthResponse is returned from GET /health.
type HealthResponse struct {
	OK bool `json:"ok"`
}

// SuccessResponse acknowledges a request with no other payload.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Success         bool   `json:"success"`
	Error           string `json:"error"`
	Code            string `json:"code,omitempty"`
	ExecutionTimeMs *int64 `json:"executionTimeMs,omitempty"`
}

package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/AndyMelnik/iot-query-probe-v2/export"
	"github.com/AndyMelnik/iot-query-probe-v2/query"
)

const msgTableRequired = "columns and rows required"

// ExecuteQuery runs the caller's read-only statement on their tenant
// database.
func (a *API) ExecuteQuery(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())

	// A malformed body leaves SQL empty, which the executor rejects after
	// the credential check.
	var req QueryRequest
	_ = decodeJSON(w, r, &req)

	pool, err := a.poolFor(r)
	if err != nil {
		a.audit.logUser(AuditQueryFailed, r, id.UserID, zap.Error(err))
		a.metrics.observeQuery("failed", 0, 0, false)
		writeErrorCode(w, http.StatusBadRequest, "Invalid database connection string", query.CodeQueryError)
		return
	}

	res, err := a.runner.Execute(r.Context(), pool, req.SQL)
	if err != nil {
		a.auditQueryError(r, id.UserID, err)
		writeQueryError(w, err)
		return
	}

	a.metrics.observeQuery(query.Outcome(nil), res.Elapsed, res.RowCount(), res.Truncated)
	a.audit.logUser(AuditQueryExecute, r, id.UserID,
		zap.Int("rowCount", res.RowCount()),
		zap.Int64("durationMs", res.Elapsed.Milliseconds()),
		zap.Bool("truncated", res.Truncated),
	)

	columns := make([]QueryColumn, len(res.Columns))
	for i, c := range res.Columns {
		columns[i] = QueryColumn{Name: c.Name, DataType: c.DataType}
	}
	writeJSON(w, http.StatusOK, QueryResponse{
		Success:         true,
		Columns:         columns,
		Rows:            res.Rows,
		RowCount:        res.RowCount(),
		Truncated:       res.Truncated,
		ExecutionTimeMs: res.Elapsed.Milliseconds(),
	})
}

func (a *API) auditQueryError(r *http.Request, userID string, err error) {
	outcome := query.Outcome(err)
	var qerr *query.Error
	if !errors.As(err, &qerr) {
		a.metrics.observeQuery(outcome, 0, 0, false)
		a.audit.logUser(AuditQueryFailed, r, userID, zap.Error(err))
		return
	}
	a.metrics.observeQuery(outcome, qerr.Elapsed, 0, false)

	switch {
	case qerr.Kind == query.KindSSLConfiguration:
		a.audit.logUser(AuditDBSSLError, r, userID,
			zap.String("error", qerr.Detail),
			zap.String("code", qerr.Code),
		)
	case qerr.Executed():
		a.audit.logUser(AuditQueryFailed, r, userID,
			zap.String("kind", qerr.Kind.String()),
			zap.String("code", qerr.Code),
			zap.Int64("durationMs", qerr.Elapsed.Milliseconds()),
		)
	}
}

// ExportXLSX streams the posted result set back as a workbook.
func (a *API) ExportXLSX(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())

	var req ExportRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Columns == nil || req.Rows == nil {
		writeError(w, http.StatusBadRequest, msgTableRequired)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, req.Table); err != nil {
		a.internalError(w, r, err)
		return
	}

	name := export.SanitizeFilename(req.Filename, "export")
	a.audit.logUser(AuditExportXLSX, r, id.UserID, zap.Int("rowCount", len(req.Rows)))
	w.Header().Set("Content-Type", export.XLSXContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, name))
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

// ReportHTML renders the posted result set, charts and map as a standalone
// HTML document.
func (a *API) ReportHTML(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromContext(r.Context())

	var req export.Report
	if err := decodeJSON(w, r, &req); err != nil || req.Columns == nil || req.Rows == nil {
		writeError(w, http.StatusBadRequest, msgTableRequired)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteReport(&buf, req, a.reportMaxRows, a.now().UTC()); err != nil {
		a.internalError(w, r, err)
		return
	}

	a.audit.logUser(AuditReportHTML, r, id.UserID,
		zap.Int("rowCount", len(req.Rows)),
		zap.Int("charts", len(req.ChartSVGs)),
	)
	w.Header().Set("Content-Type", export.HTMLContentType)
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

// Health reports liveness.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{OK: true})
}

// NotFound is the JSON 404 for unmatched routes.
func (a *API) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Not found")
}

package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AndyMelnik/iot-query-probe-v2/session"
)

const msgLoginFieldsRequired = "Missing required fields: email, iotDbUrl, userDbUrl"

// Login opens a session for the caller's database URLs and returns a bearer
// token for clients that cannot hold cookies. The session id is rotated so
// an id planted before login never becomes authenticated.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgLoginFieldsRequired)
		return
	}
	email := strings.TrimSpace(req.Email)
	iotURL := strings.TrimSpace(req.IoTDBURL)
	userURL := strings.TrimSpace(req.UserDBURL)
	if email == "" || iotURL == "" || userURL == "" {
		writeError(w, http.StatusBadRequest, msgLoginFieldsRequired)
		return
	}
	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = a.defaultRole
	}

	// Sign first so a failure leaves no session or cached credentials.
	userID := uuid.NewString()
	token, err := a.tokens.Issue(userID, email, role)
	if err != nil {
		a.internalError(w, r, err)
		return
	}
	sid, err := session.NewID()
	if err != nil {
		a.internalError(w, r, err)
		return
	}

	ctx := r.Context()
	st := stateFromContext(ctx)
	if st.session != nil {
		a.sessions.Destroy(ctx, st.sessionID)
	}
	s := a.sessions.Create(ctx, sid, session.Data{
		UserID:    userID,
		Email:     email,
		Role:      role,
		IoTDBURL:  iotURL,
		UserDBURL: userURL,
	})
	st.sessionID = sid
	st.session = &s
	a.credentials.Set(ctx, userID, session.Credentials{IoTDBURL: iotURL, UserDBURL: userURL})

	a.writeSessionCookie(w, r, sid)

	a.audit.logUser(AuditLogin, r, userID, zap.String("email", email), zap.String("role", role))
	writeJSON(w, http.StatusOK, LoginResponse{
		Success: true,
		User:    User{ID: userID, Email: email, Role: role},
		Token:   token,
	})
}

// Logout destroys the caller's session and clears both cookies. Cached
// credentials stay until their TTL so bearer clients are unaffected.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	st := stateFromContext(r.Context())
	if st.session != nil {
		a.sessions.Destroy(r.Context(), st.sessionID)
		a.audit.logUser(AuditLogout, r, st.session.UserID)
	}
	a.clearSessionCookie(w, r)
	a.clearCSRFCookie(w, r)
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"death2data.org/internal/audit"
	"death2data.org/internal/auth"
)

type signupRequest struct {
	Email string `json:"email"`
}

type signupResponse struct {
	Token string `json:"token"`
	Email string `json:"email"`
	Tier  string `json:"tier"`
}

type sessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

const sessionTTL = 24 * time.Hour

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	token, user, err := a.auth.Signup(r.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrAlreadyExists):
			writeError(w, r, http.StatusConflict, "email already registered")
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, "a valid email is required")
		default:
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.signup", map[string]any{
		"user_id": user.ID,
		"tier":    user.Tier,
	})

	// The access token is shown exactly once; only its hash is stored.
	writeJSON(w, http.StatusCreated, signupResponse{
		Token: token,
		Email: user.Email,
		Tier:  user.Tier,
	})
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	token, expiresAt, err := a.auth.Session(principal, sessionTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "session issue failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.session.issued", map[string]any{
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, sessionResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

func (a *API) handleUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	snapshot, err := a.meter.Snapshot(r.Context(), principal.UserID, principal.Tier)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tier":  principal.Tier,
		"usage": snapshot,
	})
}

// handleAccount serves DELETE /v1/me: the user's records, bookmarks, usage
// counters and account row all go at once.
func (a *API) handleAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}

	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	ctx := r.Context()
	if err := a.registry.DeleteByOwner(ctx, principal.UserID); err != nil {
		writeError(w, r, http.StatusInternalServerError, "account deletion failed")
		return
	}
	if err := a.saves.DeleteByUser(ctx, principal.UserID); err != nil {
		writeError(w, r, http.StatusInternalServerError, "account deletion failed")
		return
	}
	if err := a.meter.Reset(ctx, principal.UserID); err != nil {
		writeError(w, r, http.StatusInternalServerError, "account deletion failed")
		return
	}
	if err := a.auth.Delete(ctx, principal.UserID); err != nil && !errors.Is(err, auth.ErrNotFound) {
		writeError(w, r, http.StatusInternalServerError, "account deletion failed")
		return
	}

	_ = audit.LogEvent(ctx, "auth.account.deleted", map[string]any{
		"email_domain": emailDomain(principal.Email),
	})

	w.WriteHeader(http.StatusNoContent)
}

func emailDomain(email string) string {
	if i := strings.LastIndexByte(email, '@'); i >= 0 {
		return email[i+1:]
	}
	return ""
}

package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"death2data.org/internal/audit"
	"death2data.org/internal/auth"
	"death2data.org/internal/export"
	"death2data.org/internal/obs"
	"death2data.org/internal/saved"
)

type saveRequest struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

type listSavedResponse struct {
	Items []saved.Item `json:"items"`
	AsOf  time.Time    `json:"as_of"`
}

func (a *API) handleSavedCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createSaved(w, r)
	case http.MethodGet:
		a.listSaved(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleSavedResource(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/saved/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}

	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := a.saves.Delete(r.Context(), principal.UserID, id); err != nil {
		handleSavedError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) createSaved(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	var req saveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	item, err := a.saves.Save(r.Context(), principal.UserID, principal.Tier, req.Title, req.URL, req.Snippet)
	if err != nil {
		handleSavedError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "saved.create", map[string]any{
		"saved_id": item.ID,
	})

	writeJSON(w, http.StatusCreated, item)
}

func (a *API) listSaved(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 100, 1, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	items, err := a.saves.List(r.Context(), principal.UserID, limit)
	if err != nil {
		handleSavedError(w, r, err)
		return
	}
	if items == nil {
		items = []saved.Item{}
	}
	writeJSON(w, http.StatusOK, listSavedResponse{
		Items: items,
		AsOf:  time.Now().UTC(),
	})
}

func (a *API) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = export.FormatJSON
	}

	doc, contentType, err := a.exporter.Render(r.Context(), principal.UserID, format)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	_ = audit.LogEvent(r.Context(), "export.render", map[string]any{
		"format": format,
	})

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

func handleSavedError(w http.ResponseWriter, r *http.Request, err error) {
	var quota *saved.QuotaExceededError
	switch {
	case errors.As(err, &quota):
		obs.ObserveQuotaDenial("saves")
		writeError(w, r, http.StatusPaymentRequired, quota.Error())
	case errors.Is(err, saved.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, saved.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "bookmark not found")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

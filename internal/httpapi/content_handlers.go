package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"death2data.org/internal/audit"
	"death2data.org/internal/auth"
	"death2data.org/internal/certificate"
	"death2data.org/internal/fingerprint"
	"death2data.org/internal/obs"
	"death2data.org/internal/registry"
	"death2data.org/internal/stream"
)

type registerRequest struct {
	Path        string `json:"path"`
	Title       string `json:"title"`
	Description string `json:"description"`
	License     string `json:"license"`
	Tags        string `json:"tags"`
	Notes       string `json:"notes"`
}

type listContentResponse struct {
	Items []registry.Record `json:"items"`
	AsOf  time.Time         `json:"as_of"`
}

type verifyResponse struct {
	UUID     string `json:"uuid"`
	Verified bool   `json:"verified"`
	Reason   string `json:"reason"`
}

func (a *API) handleContentCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.registerContent(w, r)
	case http.MethodGet:
		a.listContent(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleContentResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/content/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if strings.HasSuffix(path, "/certificate") {
		id := strings.TrimSuffix(path, "/certificate")
		id = strings.TrimSuffix(id, "/")
		if id == "" {
			writeError(w, r, http.StatusNotFound, "content not found")
			return
		}
		a.getCertificate(w, r, id)
		return
	}

	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.getContent(w, r, path)
	default:
		methodNotAllowed(w, r, http.MethodGet)
	}
}

// registerContent serves POST /v1/content. A body carrying path registers a
// file on the server's filesystem; a body carrying title registers metadata
// only. Both count against the monthly registration quota.
func (a *API) registerContent(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var (
		rec  registry.Record
		err  error
		mode = "file"
	)
	if strings.TrimSpace(req.Path) != "" {
		rec, err = a.registry.Register(r.Context(), registry.RegisterRequest{
			Path:    req.Path,
			OwnerID: principal.UserID,
			Tier:    principal.Tier,
			License: req.License,
			Tags:    req.Tags,
			Notes:   req.Notes,
		})
	} else if strings.TrimSpace(req.Title) != "" {
		mode = "metadata"
		rec, err = a.registry.RegisterMetadata(r.Context(), registry.MetadataRequest{
			Title:       req.Title,
			Description: req.Description,
			OwnerID:     principal.UserID,
			Tier:        principal.Tier,
			License:     req.License,
			Tags:        req.Tags,
		})
	} else {
		writeError(w, r, http.StatusBadRequest, "path or title is required")
		return
	}
	if err != nil {
		obs.ObserveRegistration(mode, "error")
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "file not found")
			return
		}
		handleRegistryError(w, r, err)
		return
	}
	obs.ObserveRegistration(mode, "ok")

	if a.stream != nil {
		a.stream.Publish(stream.RegistrationEvent{
			UUID:      rec.ID,
			Filename:  rec.Filename,
			License:   rec.License,
			Auto:      rec.Auto,
			Timestamp: time.Now().UTC(),
		})
	}

	_ = audit.LogEvent(r.Context(), "registry.content.register", map[string]any{
		"uuid":    rec.ID,
		"mode":    mode,
		"license": rec.License,
	})

	w.Header().Set("Location", "/v1/content/"+rec.ID)
	writeJSON(w, http.StatusCreated, rec)
}

func (a *API) listContent(w http.ResponseWriter, r *http.Request) {
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

	items, err := a.registry.ListByOwner(r.Context(), principal.UserID, limit)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	if items == nil {
		items = []registry.Record{}
	}
	writeJSON(w, http.StatusOK, listContentResponse{
		Items: items,
		AsOf:  time.Now().UTC(),
	})
}

func (a *API) getContent(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := a.registry.Get(r.Context(), id)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) getCertificate(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = certificate.FormatText
	}

	doc, contentType, err := a.certs.Render(r.Context(), id, format)
	if err != nil {
		handleRegistryError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

type verifyRequest struct {
	UUID string `json:"uuid"`
	Path string `json:"path"`
}

// handleVerify serves /v1/verify — no authentication, so anyone holding a
// certificate can check a file against its claim. Without a candidate path it
// degrades to an existence lookup.
func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	var id, path string
	switch r.Method {
	case http.MethodGet:
		id = strings.TrimSpace(r.URL.Query().Get("uuid"))
		path = strings.TrimSpace(r.URL.Query().Get("path"))
	case http.MethodPost:
		var req verifyRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		id = strings.TrimSpace(req.UUID)
		path = strings.TrimSpace(req.Path)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		return
	}
	if id == "" {
		writeError(w, r, http.StatusBadRequest, "uuid is required")
		return
	}

	if path == "" {
		a.verifyExistence(w, r, id)
		return
	}

	verified, reason, err := a.registry.Verify(r.Context(), id, path)
	if err != nil {
		if errors.Is(err, fingerprint.ErrNotFound) || errors.Is(err, fingerprint.ErrUnreadable) {
			writeError(w, r, http.StatusBadRequest, "candidate file is not readable")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	result := "mismatch"
	switch {
	case verified:
		result = "match"
	case reason == registry.ReasonNotFound:
		result = "not_found"
	}
	obs.ObserveVerification(result)

	_ = audit.LogEvent(r.Context(), "registry.content.verify", map[string]any{
		"uuid":   id,
		"result": result,
	})

	writeJSON(w, http.StatusOK, verifyResponse{
		UUID:     id,
		Verified: verified,
		Reason:   reason,
	})
}

// verifyExistence answers "is this uuid registered at all" without touching
// any file.
func (a *API) verifyExistence(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := a.registry.Get(r.Context(), id)
	if errors.Is(err, registry.ErrNotFound) {
		obs.ObserveVerification("not_found")
		writeJSON(w, http.StatusOK, map[string]any{
			"uuid":       id,
			"registered": false,
			"reason":     registry.ReasonNotFound,
		})
		return
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	obs.ObserveVerification("lookup")
	writeJSON(w, http.StatusOK, map[string]any{
		"uuid":          rec.ID,
		"registered":    true,
		"sha256":        rec.Fingerprint,
		"filename":      rec.Filename,
		"registered_at": rec.RegisteredAt,
	})
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("limit must be between 1 and 1000")
	}
	return val, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleRegistryError(w http.ResponseWriter, r *http.Request, err error) {
	var quota *registry.QuotaExceededError
	switch {
	case errors.As(err, &quota):
		obs.ObserveQuotaDenial("registrations")
		writeError(w, r, http.StatusPaymentRequired, quota.Error())
	case errors.Is(err, registry.ErrUnknownLicense), errors.Is(err, registry.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, registry.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "content not found")
	case errors.Is(err, registry.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, fingerprint.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "file not found")
	case errors.Is(err, fingerprint.ErrUnreadable):
		writeError(w, r, http.StatusBadRequest, "file is not readable")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"death2data.org/internal/auth"
	"death2data.org/internal/certificate"
	"death2data.org/internal/export"
	"death2data.org/internal/fingerprint"
	"death2data.org/internal/ids"
	"death2data.org/internal/registry"
	"death2data.org/internal/saved"
	"death2data.org/internal/stream"
	"death2data.org/internal/usage"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	users := auth.NewInMemory()
	authSvc := auth.NewService(users, []byte("test-secret"))

	meter := usage.NewMeter(usage.NewInMemory(), usage.DefaultLimits())
	engine := fingerprint.New()
	store := registry.NewInMemory(users)
	registrySvc := registry.NewService(store, meter, engine, registry.DefaultLicenses(), ids.NewContentID)
	savedSvc := saved.NewService(saved.NewInMemory(), meter)

	api := New(ReadyProbe{}, "test", Deps{
		Auth:     authSvc,
		Registry: registrySvc,
		Certs:    certificate.New(store, "http://localhost:5051", "test"),
		Saves:    savedSvc,
		Exporter: export.New(registrySvc, savedSvc),
		Meter:    meter,
		Stream:   stream.New(),
	})

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
	}
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

func (c *apiClient) delete(path string, headers map[string]string) *http.Response {
	c.t.Helper()
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("delete request: %v", err)
	}
	return resp
}

func (c *apiClient) signup(email string) string {
	c.t.Helper()
	resp := c.post("/v1/auth/signup", map[string]any{"email": email}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("unexpected signup status: %d", resp.StatusCode)
	}
	var payload signupResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.t.Fatalf("decode signup response: %v", err)
	}
	if payload.Token == "" {
		c.t.Fatalf("empty token issued")
	}
	return payload.Token
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestAPIRegisterVerifyFlow(t *testing.T) {
	api := newTestAPI(t)
	token := api.signup("owner@example.com")
	authHeader := map[string]string{"Authorization": "Bearer " + token}

	path := writeTempFile(t, "song.mp3", bytes.Repeat([]byte("d2d"), 4096))

	resp := api.post("/v1/content", map[string]any{
		"path":    path,
		"license": "CC-BY-4.0",
		"tags":    "music,demo",
	}, authHeader)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	rec := decode[map[string]any](t, resp)
	id := rec["uuid"].(string)
	if id == "" {
		t.Fatalf("missing uuid in response")
	}
	if rec["license"] != "CC-BY-4.0" {
		t.Fatalf("unexpected license: %v", rec["license"])
	}

	// Public lookup without auth.
	resp = api.get("/v1/content/"+id, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected lookup status: %d", resp.StatusCode)
	}
	got := decode[map[string]any](t, resp)
	if got["sha256"] != rec["sha256"] {
		t.Fatalf("lookup fingerprint mismatch")
	}

	// Verify the untouched file.
	resp = api.get("/v1/verify", url.Values{
		"uuid": []string{id},
		"path": []string{path},
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected verify status: %d", resp.StatusCode)
	}
	verdict := decode[verifyResponse](t, resp)
	if !verdict.Verified {
		t.Fatalf("expected verified, got reason %q", verdict.Reason)
	}

	// Tamper and verify again.
	if err := os.WriteFile(path, []byte("tampered"), 0o600); err != nil {
		t.Fatalf("tamper file: %v", err)
	}
	resp = api.get("/v1/verify", url.Values{
		"uuid": []string{id},
		"path": []string{path},
	}, nil)
	verdict = decode[verifyResponse](t, resp)
	if verdict.Verified {
		t.Fatalf("expected mismatch after tampering")
	}

	// Certificate in both formats.
	resp = api.get("/v1/content/"+id+"/certificate", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected certificate status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.get("/v1/content/"+id+"/certificate", url.Values{"format": []string{"json"}}, nil)
	cert := decode[map[string]any](t, resp)
	if cert["uuid"] != id {
		t.Fatalf("certificate uuid mismatch: %v", cert["uuid"])
	}

	// Listing requires auth and includes the record.
	resp = api.get("/v1/content", nil, authHeader)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected list status: %d", resp.StatusCode)
	}
	list := decode[listContentResponse](t, resp)
	if len(list.Items) != 1 {
		t.Fatalf("expected 1 record, got %d", len(list.Items))
	}
}

func TestAPIVerifyExistenceLookup(t *testing.T) {
	api := newTestAPI(t)
	token := api.signup("lookup@example.com")
	authHeader := map[string]string{"Authorization": "Bearer " + token}

	path := writeTempFile(t, "asset.png", []byte("pixels"))
	resp := api.post("/v1/content", map[string]any{"path": path}, authHeader)
	rec := decode[map[string]any](t, resp)
	id := rec["uuid"].(string)

	// No candidate path: existence lookup only.
	resp = api.get("/v1/verify", url.Values{"uuid": []string{id}}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	lookup := decode[map[string]any](t, resp)
	if lookup["registered"] != true {
		t.Fatalf("expected registered=true, got %v", lookup["registered"])
	}
	if lookup["sha256"] != rec["sha256"] {
		t.Fatalf("fingerprint mismatch in lookup")
	}

	// Unknown uuid reports unregistered, not an error.
	resp = api.get("/v1/verify", url.Values{"uuid": []string{"00000000-0000-4000-8000-000000000000"}}, nil)
	lookup = decode[map[string]any](t, resp)
	if lookup["registered"] != false {
		t.Fatalf("expected registered=false for unknown uuid")
	}

	// POST body form works too.
	resp = api.post("/v1/verify", map[string]any{"uuid": id, "path": path}, nil)
	verdict := decode[verifyResponse](t, resp)
	if !verdict.Verified {
		t.Fatalf("expected verified via POST, got reason %q", verdict.Reason)
	}
}

func TestAPIMetadataRegistration(t *testing.T) {
	api := newTestAPI(t)
	token := api.signup("meta@example.com")
	authHeader := map[string]string{"Authorization": "Bearer " + token}

	resp := api.post("/v1/content", map[string]any{
		"title":       "My unpublished manuscript",
		"description": "Draft of chapter one",
	}, authHeader)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	rec := decode[map[string]any](t, resp)
	if rec["license"] != "Proprietary" {
		t.Fatalf("expected default license, got %v", rec["license"])
	}
	if rec["sha256"] == "" {
		t.Fatalf("expected fingerprint for metadata registration")
	}
}

func TestAPIRejectsUnknownLicense(t *testing.T) {
	api := newTestAPI(t)
	token := api.signup("lic@example.com")
	authHeader := map[string]string{"Authorization": "Bearer " + token}

	path := writeTempFile(t, "doc.txt", []byte("hello"))
	resp := api.post("/v1/content", map[string]any{
		"path":    path,
		"license": "WTFPL",
	}, authHeader)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestAPISessionExchange(t *testing.T) {
	api := newTestAPI(t)
	token := api.signup("session@example.com")

	resp := api.post("/v1/auth/session", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected session status: %d", resp.StatusCode)
	}
	session := decode[sessionResponse](t, resp)
	if session.Token == "" {
		t.Fatalf("empty session token")
	}

	// The JWT works as a bearer credential.
	resp = api.get("/v1/me/usage", nil, map[string]string{
		"Authorization": "Bearer " + session.Token,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected usage status: %d", resp.StatusCode)
	}
	usagePayload := decode[map[string]any](t, resp)
	if usagePayload["tier"] != "free" {
		t.Fatalf("unexpected tier: %v", usagePayload["tier"])
	}
}

func TestAPISavedFlow(t *testing.T) {
	api := newTestAPI(t)
	token := api.signup("saver@example.com")
	authHeader := map[string]string{"Authorization": "Bearer " + token}

	resp := api.post("/v1/saved", map[string]any{
		"title": "Result",
		"url":   "https://example.com/a",
	}, authHeader)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected save status: %d", resp.StatusCode)
	}
	item := decode[map[string]any](t, resp)
	id := item["id"].(string)

	resp = api.get("/v1/saved", nil, authHeader)
	list := decode[listSavedResponse](t, resp)
	if len(list.Items) != 1 {
		t.Fatalf("expected 1 bookmark, got %d", len(list.Items))
	}

	resp = api.delete("/v1/saved/"+id, authHeader)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("unexpected delete status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.delete("/v1/saved/"+id, authHeader)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestAPIExport(t *testing.T) {
	api := newTestAPI(t)
	token := api.signup("export@example.com")
	authHeader := map[string]string{"Authorization": "Bearer " + token}

	path := writeTempFile(t, "keep.txt", []byte("mine"))
	resp := api.post("/v1/content", map[string]any{"path": path}, authHeader)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected register status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.get("/v1/export", nil, authHeader)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected export status: %d", resp.StatusCode)
	}
	doc := decode[map[string]any](t, resp)
	content, ok := doc["content"].([]any)
	if !ok || len(content) != 1 {
		t.Fatalf("expected 1 exported record, got %v", doc["content"])
	}

	resp = api.get("/v1/export", url.Values{"format": []string{"md"}}, authHeader)
	if got := resp.Header.Get("Content-Type"); got != "text/markdown; charset=utf-8" {
		t.Fatalf("unexpected export content type: %q", got)
	}
	resp.Body.Close()
}

func TestAPIDeleteAccount(t *testing.T) {
	api := newTestAPI(t)
	token := api.signup("leaver@example.com")
	authHeader := map[string]string{"Authorization": "Bearer " + token}

	path := writeTempFile(t, "gone.txt", []byte("bye"))
	resp := api.post("/v1/content", map[string]any{"path": path}, authHeader)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected register status: %d", resp.StatusCode)
	}
	rec := decode[map[string]any](t, resp)
	id := rec["uuid"].(string)

	resp = api.delete("/v1/me", authHeader)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("unexpected delete status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Token no longer works.
	resp = api.get("/v1/content", nil, authHeader)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after account deletion, got %d", resp.StatusCode)
	}

	// Records are gone too.
	resp = api.get("/v1/content/"+id, nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for deleted record, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAPIEnforcesAuth(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/v1/content", map[string]any{"path": "/tmp/x"}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	var errBody map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&errBody); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if errBody["error"] == "" {
		t.Fatalf("expected error message")
	}
}

func TestAPISignupValidation(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/v1/auth/signup", map[string]any{"email": "not-an-email"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	api.signup("dup@example.com")
	resp = api.post("/v1/auth/signup", map[string]any{"email": "dup@example.com"}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestAPIStats(t *testing.T) {
	api := newTestAPI(t)
	api.signup("stats@example.com")

	resp := api.get("/v1/stats", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	stats := decode[map[string]any](t, resp)
	if stats["users"].(float64) != 1 {
		t.Fatalf("unexpected user count: %v", stats["users"])
	}
}

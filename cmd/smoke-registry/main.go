package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// End-to-end smoke against a running API: signup, register a file,
// verify it, fetch the certificate.
func main() {
	base := os.Getenv("D2D_API_URL")
	if base == "" {
		base = "http://localhost:5051"
	}

	client := &http.Client{Timeout: 10 * time.Second}

	email := fmt.Sprintf("smoke-%d@example.com", rand.New(rand.NewSource(time.Now().UnixNano())).Int())
	token := post[map[string]any](client, base+"/v1/auth/signup", map[string]any{
		"email": email,
	}, "")["token"].(string)

	path := filepath.Join(os.TempDir(), fmt.Sprintf("smoke-%d.txt", time.Now().UnixNano()))
	if err := os.WriteFile(path, []byte("smoke payload"), 0o600); err != nil {
		log.Fatalf("write smoke file: %v", err)
	}
	defer os.Remove(path)

	rec := post[map[string]any](client, base+"/v1/content", map[string]any{
		"path":    path,
		"license": "CC0-1.0",
	}, token)
	id := rec["uuid"].(string)
	log.Printf("registered %s as %s", path, id)

	verdict := get[map[string]any](client, base+"/v1/verify?"+url.Values{
		"uuid": []string{id},
		"path": []string{path},
	}.Encode())
	if verdict["verified"] != true {
		log.Fatalf("verification failed: %v", verdict["reason"])
	}
	log.Printf("verified: %v", verdict["reason"])

	resp, err := client.Get(base + "/v1/content/" + id + "/certificate")
	if err != nil {
		log.Fatalf("certificate: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("certificate status: %d", resp.StatusCode)
	}

	log.Println("SMOKE OK")
}

func post[T any](client *http.Client, u string, body map[string]any, token string) T {
	payload, err := json.Marshal(body)
	if err != nil {
		log.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("POST %s: %v", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Fatalf("POST %s: status %d", u, resp.StatusCode)
	}
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		log.Fatalf("decode %s: %v", u, err)
	}
	return v
}

func get[T any](client *http.Client, u string) T {
	resp, err := client.Get(u)
	if err != nil {
		log.Fatalf("GET %s: %v", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Fatalf("GET %s: status %d", u, resp.StatusCode)
	}
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		log.Fatalf("decode %s: %v", u, err)
	}
	return v
}

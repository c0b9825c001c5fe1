// Package certificate renders proof documents for registered content. A
// certificate is a read-only projection of a record plus its owner's email;
// nothing is persisted and every render reflects current store state.
package certificate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"death2data.org/internal/registry"
)

// Supported output formats.
const (
	FormatText = "txt"
	FormatJSON = "json"
)

const registryName = "Death2Data Content Registry"

// RecordGetter is the slice of the registry store the generator needs.
type RecordGetter interface {
	GetByID(ctx context.Context, id string) (registry.Record, error)
}

// Generator renders certificates from live store state.
type Generator struct {
	records RecordGetter
	baseURL string
	version string
	now     func() time.Time
}

// New constructs a Generator. baseURL is the public address used to build
// verification links.
func New(records RecordGetter, baseURL, version string) *Generator {
	return &Generator{
		records: records,
		baseURL: strings.TrimRight(baseURL, "/"),
		version: version,
		now:     time.Now,
	}
}

// WithClock overrides the render timestamp source, for tests.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Render produces the certificate for the record in the requested format and
// returns the document with its content type. Unknown formats fall back to
// plain text; an unknown identifier yields registry.ErrNotFound.
func (g *Generator) Render(ctx context.Context, id, format string) ([]byte, string, error) {
	rec, err := g.records.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if format == FormatJSON {
		doc, err := g.renderJSON(rec)
		return doc, "application/json", err
	}
	return []byte(g.renderText(rec)), "text/plain; charset=utf-8", nil
}

func (g *Generator) verifyURL(id string) string {
	return g.baseURL + "/v1/verify?uuid=" + id
}

func (g *Generator) renderText(rec registry.Record) string {
	var b strings.Builder
	b.WriteString("CONTENT REGISTRATION CERTIFICATE\n")
	b.WriteString("=================================\n\n")
	fmt.Fprintf(&b, "UUID:         %s\n", rec.ID)
	fmt.Fprintf(&b, "SHA256:       %s\n", rec.Fingerprint)
	fmt.Fprintf(&b, "Filename:     %s\n", rec.Filename)
	fmt.Fprintf(&b, "Size:         %d bytes\n", rec.Filesize)
	fmt.Fprintf(&b, "Registered:   %s\n", rec.RegisteredAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Owner:        %s\n", rec.OwnerEmail)
	fmt.Fprintf(&b, "License:      %s\n", rec.License)
	if rec.Notes != "" {
		fmt.Fprintf(&b, "\n%s\n", rec.Notes)
	}
	b.WriteString("\nThis certificate proves registration of the above content.\n")
	fmt.Fprintf(&b, "Verify at: %s\n\n", g.verifyURL(rec.ID))
	fmt.Fprintf(&b, "%s v%s\n", registryName, g.version)
	// The generation timestamp is a freshness marker of this render, not a
	// stored field.
	fmt.Fprintf(&b, "Generated: %s\n", g.now().UTC().Format(time.RFC3339))
	return b.String()
}

type jsonCertificate struct {
	UUID         string   `json:"uuid"`
	SHA256       string   `json:"sha256"`
	Filename     string   `json:"filename"`
	Filesize     int64    `json:"filesize"`
	RegisteredAt string   `json:"registered_at"`
	Owner        string   `json:"owner"`
	License      string   `json:"license"`
	Tags         []string `json:"tags"`
	Notes        string   `json:"notes"`
	VerifyURL    string   `json:"verify_url"`
	Registry     string   `json:"registry"`
	Version      string   `json:"version"`
	GeneratedAt  string   `json:"generated_at"`
}

func (g *Generator) renderJSON(rec registry.Record) ([]byte, error) {
	return json.MarshalIndent(jsonCertificate{
		UUID:         rec.ID,
		SHA256:       rec.Fingerprint,
		Filename:     rec.Filename,
		Filesize:     rec.Filesize,
		RegisteredAt: rec.RegisteredAt.UTC().Format(time.RFC3339),
		Owner:        rec.OwnerEmail,
		License:      rec.License,
		Tags:         SplitTags(rec.Tags),
		Notes:        rec.Notes,
		VerifyURL:    g.verifyURL(rec.ID),
		Registry:     registryName,
		Version:      g.version,
		GeneratedAt:  g.now().UTC().Format(time.RFC3339),
	}, "", "  ")
}

// SplitTags turns the stored comma-separated tag string into a list. An
// empty string yields an empty list, never a single empty tag.
func SplitTags(tags string) []string {
	out := []string{}
	for _, tag := range strings.Split(tags, ",") {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

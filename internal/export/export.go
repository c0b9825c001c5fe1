// Package export renders a user's registered content and saved bookmarks as
// a portable document, so accounts can leave with their data.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"death2data.org/internal/registry"
	"death2data.org/internal/saved"
)

// Supported output formats.
const (
	FormatJSON     = "json"
	FormatMarkdown = "md"
)

const exportLimit = 1000

// Exporter assembles exports from the live stores.
type Exporter struct {
	records *registry.Service
	saves   *saved.Service
	now     func() time.Time
}

// New constructs an Exporter.
func New(records *registry.Service, saves *saved.Service) *Exporter {
	return &Exporter{records: records, saves: saves, now: time.Now}
}

type document struct {
	ExportedAt time.Time         `json:"exported_at"`
	Saved      []saved.Item      `json:"saved"`
	Content    []registry.Record `json:"content"`
}

// Render produces the user's export in the requested format and returns the
// document with its content type. Unknown formats fall back to JSON.
func (e *Exporter) Render(ctx context.Context, userID, format string) ([]byte, string, error) {
	items, err := e.saves.List(ctx, userID, exportLimit)
	if err != nil {
		return nil, "", err
	}
	records, err := e.records.ListByOwner(ctx, userID, exportLimit)
	if err != nil {
		return nil, "", err
	}

	if format == FormatMarkdown {
		return []byte(renderMarkdown(items, records)), "text/markdown; charset=utf-8", nil
	}

	doc, err := json.MarshalIndent(document{
		ExportedAt: e.now().UTC(),
		Saved:      items,
		Content:    records,
	}, "", "  ")
	if err != nil {
		return nil, "", err
	}
	return doc, "application/json", nil
}

func renderMarkdown(items []saved.Item, records []registry.Record) string {
	var b strings.Builder
	b.WriteString("# Export\n\n## Saved\n\n")
	for _, item := range items {
		fmt.Fprintf(&b, "- [%s](%s)\n", item.Title, item.URL)
	}
	b.WriteString("\n## Content\n\n")
	for _, rec := range records {
		fmt.Fprintf(&b, "- %s (%s)\n", rec.Filename, rec.ID)
	}
	return b.String()
}

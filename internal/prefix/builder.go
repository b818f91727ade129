package prefix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"FlowSpectra/internal/model"

	"github.com/charmbracelet/log"
)

const (
	// DefaultURL is the published AWS IP ranges document.
	DefaultURL = "https://ip-ranges.amazonaws.com/ip-ranges.json"

	maxResponseBytes = 10 << 20 // 10 MiB safety cap
)

// Document is the schema of the published ranges document.
type Document struct {
	SyncToken  string               `json:"syncToken"`
	CreateDate string               `json:"createDate"`
	Prefixes   *[]model.PrefixEntry `json:"prefixes"`
}

// Builder fetches the ranges document and turns it into a prefix table.
type Builder struct {
	url        string
	httpClient *http.Client
}

// NewBuilder creates a builder for the document at url. A nil client gets a
// client with a 30 second timeout.
func NewBuilder(url string, httpClient *http.Client) *Builder {
	if url == "" {
		url = DefaultURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Builder{url: url, httpClient: httpClient}
}

// Build fetches the document and keeps the entries for region whose service
// differs from excludeService.
func (b *Builder) Build(ctx context.Context, region, excludeService string) ([]model.PrefixEntry, error) {
	doc, err := b.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	all := *doc.Prefixes
	filtered := Filter(all, region, excludeService)
	log.Info("Filtered prefix table",
		"region", region,
		"excluded_service", excludeService,
		"total", len(all),
		"kept", len(filtered),
		"create_date", doc.CreateDate,
	)
	return filtered, nil
}

// Fetch downloads and decodes the ranges document.
func (b *Builder) Fetch(ctx context.Context) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prefix document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return Decode(io.LimitReader(resp.Body, maxResponseBytes))
}

// Decode parses a ranges document. Anything that does not match the schema
// is reported as a *model.ParseError.
func Decode(r io.Reader) (*Document, error) {
	var doc Document
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, &model.ParseError{Source: "prefix document", Err: err}
	}
	if doc.Prefixes == nil {
		return nil, &model.ParseError{Source: "prefix document", Err: errors.New("missing 'prefixes' array")}
	}
	for i, p := range *doc.Prefixes {
		if p.IPPrefix == "" {
			return nil, &model.ParseError{
				Source: "prefix document",
				Err:    fmt.Errorf("entry %d has no ip_prefix", i),
			}
		}
	}
	return &doc, nil
}

// Filter keeps entries in region whose service is not excludeService.
// Input order is preserved, so filtering twice yields the same table.
func Filter(entries []model.PrefixEntry, region, excludeService string) []model.PrefixEntry {
	out := make([]model.PrefixEntry, 0, len(entries))
	for _, e := range entries {
		if e.Region == region && e.Service != excludeService {
			out = append(out, e)
		}
	}
	return out
}

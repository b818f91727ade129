package graph

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"FlowSpectra/internal/model"
)

// SummaryData holds the metadata written next to a rendered graph.
type SummaryData struct {
	Groups     map[model.Label]int      `json:"groups"`
	Nodes      int                      `json:"nodes"`
	Edges      int                      `json:"edges"`
	TotalBytes uint64                   `json:"total_bytes"`
	MaxBytes   uint64                   `json:"max_bytes"`
	Conflicts  map[string][]model.Label `json:"conflicts,omitempty"`
	Timestamp  string                   `json:"timestamp"`
}

// Summarize computes the summary of g.
func Summarize(g *Graph) SummaryData {
	groups := make(map[model.Label]int)
	for label, addrs := range g.Clusters() {
		groups[label] = len(addrs)
	}
	max, _ := g.MaxBytes()
	return SummaryData{
		Groups:     groups,
		Nodes:      len(g.Nodes),
		Edges:      len(g.Edges),
		TotalBytes: g.TotalBytes(),
		MaxBytes:   max,
		Conflicts:  g.Conflicts,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
}

// WriteSummary writes summary.json for g into dir.
func WriteSummary(g *Graph, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create summary directory: %w", err)
	}
	summaryFilePath := filepath.Join(dir, "summary.json")
	summaryFile, err := os.Create(summaryFilePath)
	if err != nil {
		return "", fmt.Errorf("failed to create summary file: %w", err)
	}
	defer summaryFile.Close()

	jsonEncoder := json.NewEncoder(summaryFile)
	jsonEncoder.SetIndent("", "  ")
	if err := jsonEncoder.Encode(Summarize(g)); err != nil {
		return "", fmt.Errorf("failed to encode summary to json: %w", err)
	}
	return summaryFilePath, nil
}

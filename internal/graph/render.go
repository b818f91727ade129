package graph

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"FlowSpectra/internal/model"

	"github.com/charmbracelet/log"
	"github.com/emicklei/dot"
)

// FormatDOT writes the DOT source instead of invoking Graphviz.
const FormatDOT = "dot"

// NodeLabeler returns the display text of a node.
type NodeLabeler func(addr string, label model.Label) string

// Renderer turns a Graph into a Graphviz image.
type Renderer struct {
	// Format is the Graphviz output format, e.g. "png" or "svg".
	Format string
	// DotBinary is the Graphviz executable, looked up on PATH.
	DotBinary string
	// NodeLabel customizes node captions; nil uses the address.
	NodeLabel NodeLabeler
}

// NewRenderer creates a renderer for format.
func NewRenderer(format string) *Renderer {
	if format == "" {
		format = "png"
	}
	return &Renderer{Format: format, DotBinary: "dot"}
}

// DOT builds the DOT document: left-to-right layout, one filled cluster per
// label, edges captioned with their byte totals and widened by volume.
func (r *Renderer) DOT(g *Graph) (*dot.Graph, error) {
	max, err := g.MaxBytes()
	if err != nil {
		return nil, err
	}

	root := dot.NewGraph(dot.Directed)
	root.Attr("rankdir", "LR")
	root.Attr("label", "Network Traffic")

	nodes := make(map[string]dot.Node, len(g.Nodes))
	clusters := g.Clusters()
	for _, label := range g.Labels() {
		sub := root.Subgraph(string(label), dot.ClusterOption{})
		sub.Attr("label", string(label))
		sub.Attr("style", "filled")
		sub.Attr("color", "lightgrey")
		for _, addr := range clusters[label] {
			n := sub.Node(addr)
			n.Label(r.caption(addr, label))
			nodes[addr] = n
		}
	}

	for _, e := range g.SortedEdges() {
		root.Edge(nodes[e.Src], nodes[e.Dst]).
			Attr("label", FormatBytes(e.Bytes)).
			Attr("penwidth", fmt.Sprintf("%.2f", PenWidth(e.Bytes, max)))
	}
	return root, nil
}

func (r *Renderer) caption(addr string, label model.Label) string {
	if r.NodeLabel == nil {
		return addr
	}
	return r.NodeLabel(addr, label)
}

// Render writes <base>.<format>. An empty graph fails with
// model.ErrEmptyGraph before anything is written.
func (r *Renderer) Render(ctx context.Context, g *Graph, base string) (string, error) {
	doc, err := r.DOT(g)
	if err != nil {
		return "", err
	}

	outPath := base + "." + r.Format
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	if r.Format == FormatDOT {
		if err := os.WriteFile(outPath, []byte(doc.String()), 0644); err != nil {
			return "", fmt.Errorf("failed to write dot file: %w", err)
		}
		return outPath, nil
	}

	cmd := exec.CommandContext(ctx, r.DotBinary, "-T"+r.Format, "-o", outPath)
	cmd.Stdin = strings.NewReader(doc.String())
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.Remove(outPath)
		return "", fmt.Errorf("failed to run %s: %w: %s", r.DotBinary, err, strings.TrimSpace(stderr.String()))
	}
	log.Debug("Rendered graph", "path", outPath, "format", r.Format)
	return outPath, nil
}

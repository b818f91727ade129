package graph

import (
	"fmt"
	"sort"

	"FlowSpectra/internal/model"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// EdgeKey identifies a directed edge by its ordered address pair.
type EdgeKey struct {
	Src string
	Dst string
}

// EdgeStats accumulates the traffic of all records sharing an EdgeKey.
type EdgeStats struct {
	Bytes   uint64
	Packets uint64
	Records int
}

// Graph is the aggregated traffic graph of a tagged table.
type Graph struct {
	// Nodes maps an address to its label. When an address is seen with
	// different labels the last one wins.
	Nodes map[string]model.Label
	Edges map[EdgeKey]*EdgeStats
	// Conflicts lists, per address, every distinct label it was seen with,
	// for addresses seen with more than one.
	Conflicts map[string][]model.Label
}

// Edge is an EdgeKey with its stats, used for ordered iteration.
type Edge struct {
	EdgeKey
	EdgeStats
}

// Build aggregates tagged records into a graph.
func Build(records []model.TaggedFlowRecord) *Graph {
	g := &Graph{
		Nodes:     make(map[string]model.Label),
		Edges:     make(map[EdgeKey]*EdgeStats),
		Conflicts: make(map[string][]model.Label),
	}
	seen := make(map[string][]model.Label)

	for _, rec := range records {
		g.setNode(seen, rec.SrcAddr, rec.SrcTag)
		g.setNode(seen, rec.DstAddr, rec.DstTag)

		key := EdgeKey{Src: rec.SrcAddr, Dst: rec.DstAddr}
		stats, ok := g.Edges[key]
		if !ok {
			stats = &EdgeStats{}
			g.Edges[key] = stats
		}
		stats.Bytes += rec.Bytes
		stats.Packets += rec.Packets
		stats.Records++
	}

	for addr, labels := range seen {
		if len(labels) > 1 {
			g.Conflicts[addr] = labels
		}
	}
	return g
}

func (g *Graph) setNode(seen map[string][]model.Label, addr string, label model.Label) {
	if label == "" {
		label = model.LabelUnknown
	}
	g.Nodes[addr] = label
	for _, l := range seen[addr] {
		if l == label {
			return
		}
	}
	seen[addr] = append(seen[addr], label)
}

// MaxBytes returns the largest edge total, or model.ErrEmptyGraph when the
// graph has no edges.
func (g *Graph) MaxBytes() (uint64, error) {
	if len(g.Edges) == 0 {
		return 0, model.ErrEmptyGraph
	}
	var max uint64
	for _, e := range g.Edges {
		if e.Bytes > max {
			max = e.Bytes
		}
	}
	return max, nil
}

// TotalBytes sums all edge totals.
func (g *Graph) TotalBytes() uint64 {
	var total uint64
	for _, e := range g.Edges {
		total += e.Bytes
	}
	return total
}

// SortedEdges returns the edges by bytes descending, then by address pair.
func (g *Graph) SortedEdges() []Edge {
	edges := make([]Edge, 0, len(g.Edges))
	for k, s := range g.Edges {
		edges = append(edges, Edge{EdgeKey: k, EdgeStats: *s})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Bytes != edges[j].Bytes {
			return edges[i].Bytes > edges[j].Bytes
		}
		if edges[i].Src != edges[j].Src {
			return edges[i].Src < edges[j].Src
		}
		return edges[i].Dst < edges[j].Dst
	})
	return edges
}

// Clusters groups node addresses by label. Addresses are sorted.
func (g *Graph) Clusters() map[model.Label][]string {
	clusters := make(map[model.Label][]string)
	for addr, label := range g.Nodes {
		clusters[label] = append(clusters[label], addr)
	}
	for _, addrs := range clusters {
		sort.Strings(addrs)
	}
	return clusters
}

// Labels returns the cluster labels in byte order, so service names such as
// "S3" precede the lower-case built-in labels.
func (g *Graph) Labels() []model.Label {
	clusters := g.Clusters()
	labels := make([]model.Label, 0, len(clusters))
	for l := range clusters {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
	return labels
}

// PenWidth scales an edge total linearly into [0.5, 5.5].
func PenWidth(bytes, max uint64) float64 {
	if max == 0 {
		return 0.5
	}
	return 0.5 + float64(bytes)/float64(max)*5
}

var bytePrinter = message.NewPrinter(language.English)

// FormatBytes renders n with comma thousands separators, e.g. 1,234,567.
func FormatBytes(n uint64) string {
	return bytePrinter.Sprintf("%d", n)
}

func (e Edge) String() string {
	return fmt.Sprintf("%s -> %s (%s bytes)", e.Src, e.Dst, FormatBytes(e.Bytes))
}

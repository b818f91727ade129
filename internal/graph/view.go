package graph

import (
	"FlowSpectra/internal/model"
)

// NodeView is the JSON form of a node.
type NodeView struct {
	Address string      `json:"address"`
	Label   model.Label `json:"label"`
	Country string      `json:"country,omitempty"`
}

// EdgeView is the JSON form of an edge.
type EdgeView struct {
	Source      string  `json:"source"`
	Destination string  `json:"destination"`
	Bytes       uint64  `json:"bytes"`
	Packets     uint64  `json:"packets"`
	Records     int     `json:"records"`
	PenWidth    float64 `json:"pen_width"`
}

// View is the JSON form of a graph.
type View struct {
	Nodes []NodeView `json:"nodes"`
	Edges []EdgeView `json:"edges"`
}

// CountryFunc resolves an address to an ISO country code, or "".
type CountryFunc func(addr string) string

// NewView flattens g into sorted node and edge lists. country may be nil.
func NewView(g *Graph, country CountryFunc) View {
	v := View{
		Nodes: make([]NodeView, 0, len(g.Nodes)),
		Edges: make([]EdgeView, 0, len(g.Edges)),
	}
	clusters := g.Clusters()
	for _, label := range g.Labels() {
		for _, addr := range clusters[label] {
			n := NodeView{Address: addr, Label: label}
			if country != nil && label == model.LabelInternet {
				n.Country = country(addr)
			}
			v.Nodes = append(v.Nodes, n)
		}
	}

	max, err := g.MaxBytes()
	if err != nil {
		return v
	}
	for _, e := range g.SortedEdges() {
		v.Edges = append(v.Edges, EdgeView{
			Source:      e.Src,
			Destination: e.Dst,
			Bytes:       e.Bytes,
			Packets:     e.Packets,
			Records:     e.Records,
			PenWidth:    PenWidth(e.Bytes, max),
		})
	}
	return v
}

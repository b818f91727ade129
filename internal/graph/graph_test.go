package graph

import (
	"context"
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"FlowSpectra/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(src, dst string, bytes uint64, srcTag, dstTag model.Label) model.TaggedFlowRecord {
	return model.TaggedFlowRecord{
		FlowRecord: model.FlowRecord{SrcAddr: src, DstAddr: dst, Bytes: bytes, Packets: 1},
		SrcTag:     srcTag,
		DstTag:     dstTag,
	}
}

func TestBuild_AccumulatesPerPair(t *testing.T) {
	g := Build([]model.TaggedFlowRecord{
		rec("A", "B", 100, model.LabelInternal, model.LabelInternet),
		rec("A", "B", 250, model.LabelInternal, model.LabelInternet),
	})

	require.Len(t, g.Edges, 1)
	e := g.Edges[EdgeKey{Src: "A", Dst: "B"}]
	require.NotNil(t, e)
	assert.Equal(t, uint64(350), e.Bytes)
	assert.Equal(t, uint64(2), e.Packets)
	assert.Equal(t, 2, e.Records)
	assert.Len(t, g.Nodes, 2)
}

func TestBuild_DirectionMatters(t *testing.T) {
	g := Build([]model.TaggedFlowRecord{
		rec("A", "B", 10, model.LabelInternal, model.LabelInternet),
		rec("B", "A", 20, model.LabelInternet, model.LabelInternal),
	})
	assert.Len(t, g.Edges, 2)
	assert.Equal(t, uint64(20), g.Edges[EdgeKey{Src: "B", Dst: "A"}].Bytes)
}

func TestBuild_OrderIndependentTotals(t *testing.T) {
	var records []model.TaggedFlowRecord
	addrs := []string{"10.0.0.1", "10.0.0.2", "8.8.8.8", "52.216.0.1"}
	want := make(map[EdgeKey]uint64)
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		src, dst := addrs[r.Intn(len(addrs))], addrs[r.Intn(len(addrs))]
		b := uint64(r.Intn(10000))
		records = append(records, rec(src, dst, b, model.LabelInternal, model.LabelInternet))
		want[EdgeKey{Src: src, Dst: dst}] += b
	}

	for round := 0; round < 5; round++ {
		r.Shuffle(len(records), func(i, j int) { records[i], records[j] = records[j], records[i] })
		g := Build(records)
		require.Len(t, g.Edges, len(want))
		for k, total := range want {
			assert.Equal(t, total, g.Edges[k].Bytes, k)
		}
	}
}

func TestBuild_LastLabelWinsAndConflictsRecorded(t *testing.T) {
	g := Build([]model.TaggedFlowRecord{
		rec("10.0.0.1", "1.2.3.4", 1, model.LabelInternal, model.LabelInternet),
		rec("10.0.0.1", "1.2.3.4", 1, model.LabelInternal, "S3"),
	})

	assert.Equal(t, model.Label("S3"), g.Nodes["1.2.3.4"])
	assert.Equal(t, []model.Label{model.LabelInternet, "S3"}, g.Conflicts["1.2.3.4"])
	assert.NotContains(t, g.Conflicts, "10.0.0.1")
}

func TestMaxBytes_Empty(t *testing.T) {
	g := Build(nil)
	_, err := g.MaxBytes()
	assert.ErrorIs(t, err, model.ErrEmptyGraph)
}

func TestPenWidth(t *testing.T) {
	assert.InDelta(t, 5.5, PenWidth(100, 100), 1e-9)
	assert.InDelta(t, 3.0, PenWidth(50, 100), 1e-9)
	assert.InDelta(t, 0.5, PenWidth(0, 100), 1e-9)
}

func TestFormatBytes(t *testing.T) {
	cases := map[uint64]string{
		0:          "0",
		999:        "999",
		1000:       "1,000",
		123456:     "123,456",
		1234567:    "1,234,567",
		1000000000: "1,000,000,000",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatBytes(in))
	}
}

func TestClusters(t *testing.T) {
	g := Build([]model.TaggedFlowRecord{
		rec("10.0.0.2", "8.8.8.8", 1, model.LabelInternal, model.LabelInternet),
		rec("10.0.0.1", "52.216.0.1", 1, model.LabelInternal, "S3"),
	})
	clusters := g.Clusters()
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, clusters[model.LabelInternal])
	assert.Equal(t, []string{"8.8.8.8"}, clusters[model.LabelInternet])
	// Byte order: upper-case service names sort before the built-in labels.
	assert.Equal(t, []model.Label{"S3", model.LabelInternal, model.LabelInternet}, g.Labels())
}

func TestRender_EmptyGraphWritesNothing(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "network_traffic")

	for _, format := range []string{FormatDOT, "png"} {
		_, err := NewRenderer(format).Render(context.Background(), Build(nil), base)
		assert.ErrorIs(t, err, model.ErrEmptyGraph)
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRender_DOT(t *testing.T) {
	g := Build([]model.TaggedFlowRecord{
		rec("10.0.0.1", "8.8.8.8", 1234567, model.LabelInternal, model.LabelInternet),
		rec("10.0.0.1", "52.216.0.1", 100, model.LabelInternal, "S3"),
	})
	base := filepath.Join(t.TempDir(), "out", "network_traffic")

	r := NewRenderer(FormatDOT)
	r.NodeLabel = func(addr string, label model.Label) string {
		if label == model.LabelInternet {
			return addr + " (US)"
		}
		return addr
	}
	path, err := r.Render(context.Background(), g, base)
	require.NoError(t, err)
	assert.Equal(t, base+".dot", path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	src := string(data)

	assert.True(t, strings.HasPrefix(strings.TrimSpace(src), "digraph"))
	assert.Contains(t, src, "rankdir")
	assert.Contains(t, src, "cluster_")
	assert.Contains(t, src, "internal-network")
	assert.Contains(t, src, "S3")
	assert.Contains(t, src, "lightgrey")
	assert.Contains(t, src, "1,234,567")
	assert.Contains(t, src, "5.50")
	assert.Contains(t, src, "8.8.8.8 (US)")
}

func TestWriteSummary(t *testing.T) {
	g := Build([]model.TaggedFlowRecord{
		rec("10.0.0.1", "8.8.8.8", 300, model.LabelInternal, model.LabelInternet),
		rec("10.0.0.2", "8.8.8.8", 100, model.LabelInternal, model.LabelInternet),
	})
	path, err := WriteSummary(g, t.TempDir())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var summary SummaryData
	require.NoError(t, json.Unmarshal(data, &summary))

	assert.Equal(t, 3, summary.Nodes)
	assert.Equal(t, 2, summary.Edges)
	assert.Equal(t, uint64(400), summary.TotalBytes)
	assert.Equal(t, uint64(300), summary.MaxBytes)
	assert.Equal(t, 2, summary.Groups[model.LabelInternal])
	assert.Equal(t, 1, summary.Groups[model.LabelInternet])
}

func TestNewView(t *testing.T) {
	g := Build([]model.TaggedFlowRecord{
		rec("10.0.0.1", "8.8.8.8", 300, model.LabelInternal, model.LabelInternet),
		rec("10.0.0.1", "52.216.0.1", 600, model.LabelInternal, "S3"),
	})
	v := NewView(g, func(addr string) string { return "US" })

	require.Len(t, v.Edges, 2)
	assert.Equal(t, "52.216.0.1", v.Edges[0].Destination)
	assert.InDelta(t, 5.5, v.Edges[0].PenWidth, 1e-9)
	assert.InDelta(t, 3.0, v.Edges[1].PenWidth, 1e-9)

	require.Len(t, v.Nodes, 3)
	for _, n := range v.Nodes {
		if n.Label == model.LabelInternet {
			assert.Equal(t, "US", n.Country)
		} else {
			assert.Empty(t, n.Country)
		}
	}
}

func TestNewView_Empty(t *testing.T) {
	v := NewView(Build(nil), nil)
	assert.Empty(t, v.Nodes)
	assert.Empty(t, v.Edges)
}

package table

import (
	"bytes"
	"encoding/csv"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"FlowSpectra/internal/classifier"
	"FlowSpectra/internal/model"
	"FlowSpectra/internal/tagger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []model.FlowRecord {
	return []model.FlowRecord{
		{Timestamp: "2024-05-01 10:00:00.000", InterfaceID: "eni-0abc", SrcAddr: "10.0.1.5", DstAddr: "52.216.8.1", SrcPort: "44321", DstPort: "443", Protocol: "6", Packets: 12, Bytes: 9000, Action: "ACCEPT"},
		{Timestamp: "2024-05-01 10:00:01.000", InterfaceID: "eni-0abc", SrcAddr: "8.8.8.8", DstAddr: "10.0.1.5", SrcPort: "53", DstPort: "5353", Protocol: "17", Packets: 1, Bytes: 76, Action: "ACCEPT"},
		{Timestamp: "2024-05-01 10:00:02.000", InterfaceID: "eni-0abc", SrcAddr: "bad,addr", DstAddr: "10.0.1.5", Protocol: "6", Action: "REJECT"},
	}
}

func readRaw(t *testing.T, r io.Reader) [][]string {
	t.Helper()
	rows, err := csv.NewReader(r).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestTraffic_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTraffic(&buf, sampleRecords()))

	got, err := ReadTraffic(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, sampleRecords(), got)
}

func TestTagging_PreservesColumnsAndAppendsTwo(t *testing.T) {
	var traffic bytes.Buffer
	require.NoError(t, WriteTraffic(&traffic, sampleRecords()))
	original := readRaw(t, bytes.NewReader(traffic.Bytes()))

	records, err := ReadTraffic(bytes.NewReader(traffic.Bytes()))
	require.NoError(t, err)

	c, err := classifier.New("10.0.0.0/16", []model.PrefixEntry{{IPPrefix: "52.216.0.0/15", Service: "S3"}})
	require.NoError(t, err)

	var tagged bytes.Buffer
	require.NoError(t, WriteTagged(&tagged, tagger.TagAll(records, c)))
	result := readRaw(t, bytes.NewReader(tagged.Bytes()))

	require.Len(t, result, len(original))
	for i := range original {
		require.Len(t, result[i], len(original[i])+2)
		assert.Equal(t, original[i], result[i][:len(original[i])])
	}
	assert.Equal(t, []string{"srcaddr_tag", "dstaddr_tag"}, result[0][len(original[0]):])
	assert.Equal(t, []string{"internal-network", "S3"}, result[1][len(original[1]):])
	assert.Equal(t, []string{"unknown", "internal-network"}, result[3][len(original[3]):])
}

func TestTagged_RoundTrip(t *testing.T) {
	in := []model.TaggedFlowRecord{
		{FlowRecord: sampleRecords()[0], SrcTag: model.LabelInternal, DstTag: "S3"},
		{FlowRecord: sampleRecords()[1], SrcTag: model.LabelInternet, DstTag: model.LabelInternal},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteTagged(&buf, in))

	out, err := ReadTagged(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestPrefixes_RoundTrip(t *testing.T) {
	in := []model.PrefixEntry{
		{IPPrefix: "52.216.0.0/15", Region: "us-east-1", Service: "S3", NetworkBorderGroup: "us-east-1"},
		{IPPrefix: "3.80.0.0/12", Region: "us-east-1", Service: "EC2", NetworkBorderGroup: "us-east-1"},
	}
	var buf bytes.Buffer
	require.NoError(t, WritePrefixes(&buf, in))
	assert.True(t, strings.HasPrefix(buf.String(), "ip_prefix,region,service,network_border_group\n"))

	out, err := ReadPrefixes(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestReadTraffic_MissingColumn(t *testing.T) {
	_, err := ReadTraffic(strings.NewReader("srcaddr,bytes\n10.0.0.1,5\n"))
	var perr *model.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, err.Error(), "dstaddr")
}

func TestReadTraffic_Empty(t *testing.T) {
	_, err := ReadTraffic(strings.NewReader(""))
	var perr *model.ParseError
	require.ErrorAs(t, err, &perr)
}

func TestReadTraffic_BadBytes(t *testing.T) {
	_, err := ReadTraffic(strings.NewReader("srcaddr,dstaddr,bytes\n10.0.0.1,10.0.0.2,many\n"))
	var perr *model.ParseError
	require.ErrorAs(t, err, &perr)
}

func TestReadTagged_RequiresTagColumns(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTraffic(&buf, sampleRecords()))
	_, err := ReadTagged(&buf)
	var perr *model.ParseError
	require.ErrorAs(t, err, &perr)
}

func TestWriteFileReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "traffic.csv")
	require.NoError(t, WriteFile(path, func(w io.Writer) error {
		return WriteTraffic(w, sampleRecords())
	}))

	got, err := ReadFile(path, ReadTraffic)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

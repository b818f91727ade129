package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"FlowSpectra/internal/model"
)

var (
	PrefixColumns  = []string{"ip_prefix", "region", "service", "network_border_group"}
	TrafficColumns = []string{"timestamp", "interface_id", "srcaddr", "dstaddr", "srcport", "dstport", "protocol", "packets", "bytes", "action"}
	TagColumns     = []string{"srcaddr_tag", "dstaddr_tag"}
)

// TaggedColumns is the traffic header followed by the two tag columns.
func TaggedColumns() []string {
	cols := make([]string, 0, len(TrafficColumns)+len(TagColumns))
	cols = append(cols, TrafficColumns...)
	return append(cols, TagColumns...)
}

// header maps column names to their index in a row.
type header map[string]int

func readHeader(r *csv.Reader, source string, required []string) (header, error) {
	names, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &model.ParseError{Source: source, Err: errors.New("missing header row")}
		}
		return nil, &model.ParseError{Source: source, Err: err}
	}
	h := make(header, len(names))
	for i, n := range names {
		h[n] = i
	}
	for _, col := range required {
		if _, ok := h[col]; !ok {
			return nil, &model.ParseError{Source: source, Err: fmt.Errorf("missing column '%s'", col)}
		}
	}
	return h, nil
}

func (h header) get(row []string, col string) string {
	i, ok := h[col]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	return cr
}

// WritePrefixes writes the prefix table.
func WritePrefixes(w io.Writer, entries []model.PrefixEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(PrefixColumns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, e := range entries {
		if err := cw.Write([]string{e.IPPrefix, e.Region, e.Service, e.NetworkBorderGroup}); err != nil {
			return fmt.Errorf("failed to write prefix row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadPrefixes reads a prefix table written by WritePrefixes.
func ReadPrefixes(r io.Reader) ([]model.PrefixEntry, error) {
	cr := newReader(r)
	h, err := readHeader(cr, "prefix table", []string{"ip_prefix", "service"})
	if err != nil {
		return nil, err
	}
	var entries []model.PrefixEntry
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &model.ParseError{Source: "prefix table", Err: err}
		}
		entries = append(entries, model.PrefixEntry{
			IPPrefix:           h.get(row, "ip_prefix"),
			Region:             h.get(row, "region"),
			Service:            h.get(row, "service"),
			NetworkBorderGroup: h.get(row, "network_border_group"),
		})
	}
	return entries, nil
}

func trafficRow(rec model.FlowRecord) []string {
	return []string{
		rec.Timestamp,
		rec.InterfaceID,
		rec.SrcAddr,
		rec.DstAddr,
		rec.SrcPort,
		rec.DstPort,
		rec.Protocol,
		strconv.FormatUint(rec.Packets, 10),
		strconv.FormatUint(rec.Bytes, 10),
		rec.Action,
	}
}

func recordFromRow(h header, row []string, source string) (model.FlowRecord, error) {
	packets, err := parseCount(h.get(row, "packets"))
	if err != nil {
		return model.FlowRecord{}, &model.ParseError{Source: source + " column packets", Err: err}
	}
	bytes, err := parseCount(h.get(row, "bytes"))
	if err != nil {
		return model.FlowRecord{}, &model.ParseError{Source: source + " column bytes", Err: err}
	}
	return model.FlowRecord{
		Timestamp:   h.get(row, "timestamp"),
		InterfaceID: h.get(row, "interface_id"),
		SrcAddr:     h.get(row, "srcaddr"),
		DstAddr:     h.get(row, "dstaddr"),
		SrcPort:     h.get(row, "srcport"),
		DstPort:     h.get(row, "dstport"),
		Protocol:    h.get(row, "protocol"),
		Packets:     packets,
		Bytes:       bytes,
		Action:      h.get(row, "action"),
	}, nil
}

func parseCount(v string) (uint64, error) {
	if v == "" || v == "-" {
		return 0, nil
	}
	return strconv.ParseUint(v, 10, 64)
}

// WriteTraffic writes the traffic table.
func WriteTraffic(w io.Writer, records []model.FlowRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(TrafficColumns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, rec := range records {
		if err := cw.Write(trafficRow(rec)); err != nil {
			return fmt.Errorf("failed to write traffic row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadTraffic reads a traffic table. Tagged tables are accepted too; their
// tag columns are ignored.
func ReadTraffic(r io.Reader) ([]model.FlowRecord, error) {
	cr := newReader(r)
	h, err := readHeader(cr, "traffic table", []string{"srcaddr", "dstaddr", "bytes"})
	if err != nil {
		return nil, err
	}
	var records []model.FlowRecord
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &model.ParseError{Source: "traffic table", Err: err}
		}
		rec, err := recordFromRow(h, row, "traffic table")
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// WriteTagged writes the tagged table: the traffic columns plus the two tags.
func WriteTagged(w io.Writer, records []model.TaggedFlowRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(TaggedColumns()); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, rec := range records {
		row := append(trafficRow(rec.FlowRecord), string(rec.SrcTag), string(rec.DstTag))
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write tagged row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadTagged reads a tagged table written by WriteTagged.
func ReadTagged(r io.Reader) ([]model.TaggedFlowRecord, error) {
	cr := newReader(r)
	h, err := readHeader(cr, "tagged table", []string{"srcaddr", "dstaddr", "bytes", "srcaddr_tag", "dstaddr_tag"})
	if err != nil {
		return nil, err
	}
	var records []model.TaggedFlowRecord
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &model.ParseError{Source: "tagged table", Err: err}
		}
		rec, err := recordFromRow(h, row, "tagged table")
		if err != nil {
			return nil, err
		}
		records = append(records, model.TaggedFlowRecord{
			FlowRecord: rec,
			SrcTag:     model.Label(h.get(row, "srcaddr_tag")),
			DstTag:     model.Label(h.get(row, "dstaddr_tag")),
		})
	}
	return records, nil
}

// WriteFile creates path (and its directory) and fills it with write.
func WriteFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file '%s': %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadFile opens path and hands it to read.
func ReadFile[T any](path string, read func(io.Reader) (T, error)) (T, error) {
	f, err := os.Open(path)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("failed to open '%s': %w", path, err)
	}
	defer f.Close()
	return read(f)
}

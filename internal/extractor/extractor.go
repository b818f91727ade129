package extractor

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"FlowSpectra/internal/logquery"
	"FlowSpectra/internal/model"
)

// DefaultLimit caps the number of records a query returns.
const DefaultLimit = 50

// FieldNames is the positional grammar of a default-format flow-log line.
var FieldNames = []string{
	"version", "account_id", "interface_id", "srcaddr", "dstaddr",
	"srcport", "dstport", "protocol", "packets", "bytes",
	"start", "end", "action", "log_status",
}

var interfaceIDPattern = regexp.MustCompile(`^eni-[0-9a-f]+$`)

// QueryRunner submits a query and waits for its rows.
type QueryRunner interface {
	SubmitAndWait(ctx context.Context, logGroup, query string, tr logquery.TimeRange) ([]logquery.Row, error)
}

// Extractor pulls the heaviest flows of one interface out of a flow-log group.
type Extractor struct {
	runner QueryRunner
}

// New creates an extractor that delegates to runner.
func New(runner QueryRunner) *Extractor {
	return &Extractor{runner: runner}
}

// Extract queries logGroup for flows of interfaceID within tr, sorted by bytes
// descending and capped at limit.
func (e *Extractor) Extract(ctx context.Context, logGroup, interfaceID string, tr logquery.TimeRange, limit int) ([]model.FlowRecord, error) {
	query, err := BuildQuery(interfaceID, limit)
	if err != nil {
		return nil, err
	}

	rows, err := e.runner.SubmitAndWait(ctx, logGroup, query, tr)
	if err != nil {
		return nil, err
	}

	records := make([]model.FlowRecord, 0, len(rows))
	for i, row := range rows {
		rec, err := RecordFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("failed to convert row %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// BuildQuery renders the Logs Insights query for interfaceID.
func BuildQuery(interfaceID string, limit int) (string, error) {
	if !interfaceIDPattern.MatchString(interfaceID) {
		return "", fmt.Errorf("invalid interface id '%s': expected eni-<hex>", interfaceID)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	groups := make([]string, len(FieldNames))
	for i, name := range FieldNames {
		groups[i] = fmt.Sprintf(`(?<%s>\S+)`, name)
	}

	var queryBuilder strings.Builder
	queryBuilder.WriteString("fields @timestamp, @message\n")
	fmt.Fprintf(&queryBuilder, "| filter @message like /%s/\n", interfaceID)
	fmt.Fprintf(&queryBuilder, "| parse @message /%s/\n", strings.Join(groups, " "))
	queryBuilder.WriteString("| sort bytes desc\n")
	fmt.Fprintf(&queryBuilder, "| limit %d\n", limit)
	return queryBuilder.String(), nil
}

// SampleQuery returns raw messages, newest first, to check the log format.
func SampleQuery(limit int) string {
	if limit <= 0 {
		limit = 5
	}
	return fmt.Sprintf("fields @timestamp, @message\n| sort @timestamp desc\n| limit %d\n", limit)
}

// RecordFromRow converts a query row into a typed record. Missing fields stay
// empty; counters that are present but not numeric are a *model.ParseError.
func RecordFromRow(row logquery.Row) (model.FlowRecord, error) {
	packets, err := parseCounter("packets", row["packets"])
	if err != nil {
		return model.FlowRecord{}, err
	}
	bytes, err := parseCounter("bytes", row["bytes"])
	if err != nil {
		return model.FlowRecord{}, err
	}

	return model.FlowRecord{
		Timestamp:   row["@timestamp"],
		InterfaceID: row["interface_id"],
		SrcAddr:     row["srcaddr"],
		DstAddr:     row["dstaddr"],
		SrcPort:     row["srcport"],
		DstPort:     row["dstport"],
		Protocol:    row["protocol"],
		Packets:     packets,
		Bytes:       bytes,
		Action:      row["action"],
		LogStatus:   row["log_status"],
	}, nil
}

// ParseMessage applies the positional grammar to a raw flow-log line. Fields
// beyond the end of the line are left empty.
func ParseMessage(line string) logquery.Row {
	parts := strings.Fields(line)
	row := make(logquery.Row, len(FieldNames))
	for i, name := range FieldNames {
		if i < len(parts) {
			row[name] = parts[i]
		} else {
			row[name] = ""
		}
	}
	return row
}

// parseCounter treats "" and "-" (NODATA/SKIPDATA rows) as zero.
func parseCounter(name, value string) (uint64, error) {
	if value == "" || value == "-" {
		return 0, nil
	}
	n, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, &model.ParseError{Source: "field " + name, Err: err}
	}
	return n, nil
}

package query

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"FlowSpectra/internal/config"
	"FlowSpectra/internal/model"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// TotalsRequest selects the rows that are aggregated. Zero fields do not filter.
type TotalsRequest struct {
	InterfaceID string
	Tag         model.Label
	Since       time.Time
	Limit       int
}

// LabelTotal is the traffic toward one destination label.
type LabelTotal struct {
	Label   model.Label `json:"label"`
	Bytes   uint64      `json:"bytes"`
	Packets uint64      `json:"packets"`
	Flows   uint64      `json:"flows"`
}

// PairTotal is the traffic of one source/destination pair.
type PairTotal struct {
	SrcAddr string      `json:"srcaddr"`
	DstAddr string      `json:"dstaddr"`
	SrcTag  model.Label `json:"srcaddr_tag"`
	DstTag  model.Label `json:"dstaddr_tag"`
	Bytes   uint64      `json:"bytes"`
	Packets uint64      `json:"packets"`
}

// Querier reads the tagged flow history stored by the clickhouse sink.
type Querier interface {
	LabelTotals(ctx context.Context, req TotalsRequest) ([]LabelTotal, error)
	TopTalkers(ctx context.Context, req TotalsRequest) ([]PairTotal, error)
	Close() error
}

// clickhouseQuerier implements the Querier interface for ClickHouse.
type clickhouseQuerier struct {
	conn  driver.Conn
	table string
}

// NewClickHouseQuerier creates a new querier for ClickHouse.
func NewClickHouseQuerier(ctx context.Context, cfg config.ClickHouseConfig) (Querier, error) {
	if !tableNamePattern.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid clickhouse table name '%s'", cfg.Table)
	}
	conn, err := connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	return &clickhouseQuerier{conn: conn, table: cfg.Table}, nil
}

func connect(ctx context.Context, cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return conn, nil
}

// whereClause renders the filters of req. Tag matches either side.
func whereClause(req TotalsRequest) (string, []any) {
	var whereClauses []string
	args := []any{}

	if req.InterfaceID != "" {
		whereClauses = append(whereClauses, "InterfaceID = ?")
		args = append(args, req.InterfaceID)
	}
	if req.Tag != "" {
		whereClauses = append(whereClauses, "(SrcTag = ? OR DstTag = ?)")
		args = append(args, string(req.Tag), string(req.Tag))
	}
	if !req.Since.IsZero() {
		whereClauses = append(whereClauses, "LoadedAt >= ?")
		args = append(args, req.Since)
	}

	if len(whereClauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(whereClauses, " AND "), args
}

func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}

// buildLabelTotalsQuery groups the history by destination label.
func buildLabelTotalsQuery(table string, req TotalsRequest) (string, []any) {
	var queryBuilder strings.Builder
	fmt.Fprintf(&queryBuilder, `
		SELECT
			DstTag,
			SUM(Bytes) AS TotalBytes,
			SUM(Packets) AS TotalPackets,
			COUNT(*) AS FlowCount
		FROM %s`, table)

	where, args := whereClause(req)
	queryBuilder.WriteString(where)
	queryBuilder.WriteString(`
		GROUP BY DstTag
		ORDER BY TotalBytes DESC`)
	queryBuilder.WriteString(limitClause(req.Limit))
	return queryBuilder.String(), args
}

// buildTopTalkersQuery groups the history by address pair.
func buildTopTalkersQuery(table string, req TotalsRequest) (string, []any) {
	var queryBuilder strings.Builder
	fmt.Fprintf(&queryBuilder, `
		SELECT
			SrcAddr,
			DstAddr,
			any(SrcTag) AS SrcLabel,
			any(DstTag) AS DstLabel,
			SUM(Bytes) AS TotalBytes,
			SUM(Packets) AS TotalPackets
		FROM %s`, table)

	where, args := whereClause(req)
	queryBuilder.WriteString(where)
	queryBuilder.WriteString(`
		GROUP BY SrcAddr, DstAddr
		ORDER BY TotalBytes DESC`)
	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	queryBuilder.WriteString(limitClause(limit))
	return queryBuilder.String(), args
}

// LabelTotals returns bytes, packets and flow counts per destination label.
func (q *clickhouseQuerier) LabelTotals(ctx context.Context, req TotalsRequest) ([]LabelTotal, error) {
	query, args := buildLabelTotalsQuery(q.table, req)
	rows, err := q.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var totals []LabelTotal
	for rows.Next() {
		var t LabelTotal
		var label string
		if err := rows.Scan(&label, &t.Bytes, &t.Packets, &t.Flows); err != nil {
			return nil, fmt.Errorf("failed to scan label totals: %w", err)
		}
		t.Label = model.Label(label)
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// TopTalkers returns the heaviest address pairs, 20 unless req.Limit is set.
func (q *clickhouseQuerier) TopTalkers(ctx context.Context, req TotalsRequest) ([]PairTotal, error) {
	query, args := buildTopTalkersQuery(q.table, req)
	rows, err := q.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var pairs []PairTotal
	for rows.Next() {
		var p PairTotal
		var srcTag, dstTag string
		if err := rows.Scan(&p.SrcAddr, &p.DstAddr, &srcTag, &dstTag, &p.Bytes, &p.Packets); err != nil {
			return nil, fmt.Errorf("failed to scan top talkers: %w", err)
		}
		p.SrcTag, p.DstTag = model.Label(srcTag), model.Label(dstTag)
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// Close closes the connection.
func (q *clickhouseQuerier) Close() error {
	return q.conn.Close()
}

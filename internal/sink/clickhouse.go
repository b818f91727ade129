package sink

import (
	"context"
	"fmt"
	"regexp"

	"FlowSpectra/internal/config"
	"FlowSpectra/internal/factory"
	"FlowSpectra/internal/model"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/charmbracelet/log"
)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS %s (
    Timestamp   String,
    InterfaceID String,
    SrcAddr     String,
    DstAddr     String,
    SrcPort     String,
    DstPort     String,
    Protocol    String,
    Packets     UInt64,
    Bytes       UInt64,
    Action      String,
    SrcTag      String,
    DstTag      String,
    LoadedAt    DateTime DEFAULT now()
) ENGINE = MergeTree()
ORDER BY (InterfaceID, SrcAddr, DstAddr);
`

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func init() {
	factory.RegisterSink("clickhouse", func(def config.SinkDef) (model.Sink, error) {
		return NewClickHouseSink(context.Background(), def.ClickHouse)
	})
}

// ClickHouseSink inserts tagged flows into a ClickHouse table.
type ClickHouseSink struct {
	conn  driver.Conn
	table string
}

// NewClickHouseSink connects to ClickHouse and ensures the table exists.
func NewClickHouseSink(ctx context.Context, cfg config.ClickHouseConfig) (*ClickHouseSink, error) {
	if !tableNamePattern.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid clickhouse table name '%s'", cfg.Table)
	}

	conn, err := connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(ctx, fmt.Sprintf(createTableStatement, cfg.Table)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	log.Info("Connected to ClickHouse", "host", cfg.Host, "table", cfg.Table)

	return &ClickHouseSink{conn: conn, table: cfg.Table}, nil
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
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
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

// Name returns the sink type.
func (s *ClickHouseSink) Name() string {
	return "clickhouse"
}

// Write inserts records in a single batch.
func (s *ClickHouseSink) Write(ctx context.Context, records []model.TaggedFlowRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s (Timestamp, InterfaceID, SrcAddr, DstAddr, SrcPort, DstPort, Protocol, Packets, Bytes, Action, SrcTag, DstTag)", s.table))
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, rec := range records {
		if err := batch.Append(rowValues(rec)...); err != nil {
			batch.Abort()
			return fmt.Errorf("failed to append flow to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	log.Info("Wrote tagged flows to ClickHouse", "count", len(records), "table", s.table)
	return nil
}

// Close closes the connection.
func (s *ClickHouseSink) Close() error {
	return s.conn.Close()
}

func rowValues(rec model.TaggedFlowRecord) []any {
	return []any{
		rec.Timestamp,
		rec.InterfaceID,
		rec.SrcAddr,
		rec.DstAddr,
		rec.SrcPort,
		rec.DstPort,
		rec.Protocol,
		rec.Packets,
		rec.Bytes,
		rec.Action,
		string(rec.SrcTag),
		string(rec.DstTag),
	}
}

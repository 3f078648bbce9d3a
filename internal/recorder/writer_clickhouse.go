package recorder

import (
	"Go2Mgen/internal/config"
	"context"
	"fmt"
	"log"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const createEventsTableStatement = `
CREATE TABLE IF NOT EXISTS %s (
    RecordedAt  DateTime64(6),
    Instance    String,
    LogTime     String,
    Type        LowCardinality(String),
    Protocol    LowCardinality(String),
    FlowID      Int32,
    Sequence    Int64,
    SrcAddr     String,
    SrcPort     UInt16,
    DstAddr     String,
    DstPort     UInt16,
    SentTime    String,
    Size        UInt32,
    GPSStatus   String,
    Lat         Float64,
    Lon         Float64,
    Alt         Float64,
    Data        String,
    DataLength  String
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(RecordedAt)
ORDER BY (Instance, RecordedAt);
`

// ClickHouseWriter writes event batches to ClickHouse.
type ClickHouseWriter struct {
	conn  driver.Conn
	table string
}

// NewClickHouseWriter connects and makes sure the events table exists.
func NewClickHouseWriter(cfg config.ClickHouseConfig) (*ClickHouseWriter, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), fmt.Sprintf(createEventsTableStatement, cfg.Table)); err != nil {
		return nil, fmt.Errorf("failed to create %s table: %w", cfg.Table, err)
	}
	log.Printf("Successfully connected to ClickHouse and ensured %s table exists.", cfg.Table)

	return &ClickHouseWriter{conn: conn, table: cfg.Table}, nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
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

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

// WriteBatch inserts rows in one batch.
func (w *ClickHouseWriter) WriteBatch(ctx context.Context, rows []Row) error {
	batch, err := w.conn.PrepareBatch(ctx, "INSERT INTO "+w.table)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for i := range rows {
		if err := batch.AppendStruct(&rows[i]); err != nil {
			return fmt.Errorf("failed to append event to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	log.Printf("Wrote %d events to ClickHouse", len(rows))
	return nil
}

// Close closes the connection.
func (w *ClickHouseWriter) Close() error {
	return w.conn.Close()
}

// TypeCount summarises the stored events of one type.
type TypeCount struct {
	Type   string
	Events uint64
	Flows  uint64
	Bytes  uint64
}

const summaryQuery = `
SELECT Type, count() AS Events, uniqExact(FlowID) AS Flows, sum(toUInt64(Size)) AS Bytes
FROM %s
WHERE Instance = ?
GROUP BY Type
ORDER BY Type`

// Summary counts the stored events of instance by type.
func (w *ClickHouseWriter) Summary(ctx context.Context, instance string) ([]TypeCount, error) {
	rows, err := w.conn.Query(ctx, fmt.Sprintf(summaryQuery, w.table), instance)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", w.table, err)
	}
	defer rows.Close()

	var out []TypeCount
	for rows.Next() {
		var tc TypeCount
		if err := rows.Scan(&tc.Type, &tc.Events, &tc.Flows, &tc.Bytes); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

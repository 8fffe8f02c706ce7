package repository

import (
	"context"
	"fmt"
	"time"

	"QuantPulse/internal/domain/models"
	"QuantPulse/internal/domain/repository"
	"QuantPulse/pkg/clickhouse"
)

const defaultQueryLimit = 1000

// ClickHouseStorage implements Storage on a ClickHouse MergeTree table.
type ClickHouseStorage struct {
	client *clickhouse.Client
	table  string
}

func NewClickHouseStorage(client *clickhouse.Client, table string) *ClickHouseStorage {
	if table == "" {
		table = "ticks"
	}
	return &ClickHouseStorage{client: client, table: table}
}

var _ repository.Storage = (*ClickHouseStorage)(nil)

// TickSchema returns the DDL for the tick table.
func TickSchema(table string) []string {
	return []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	ts       DateTime64(3, 'UTC'),
	symbol   LowCardinality(String),
	price    Float64,
	quantity Float64
) ENGINE = MergeTree
PARTITION BY toYYYYMMDD(ts)
ORDER BY (symbol, ts)`, table)}
}

func (s *ClickHouseStorage) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, TickSchema(s.table))
}

func (s *ClickHouseStorage) Store(ctx context.Context, t *models.Tick) error {
	return s.StoreBatch(ctx, []*models.Tick{t})
}

// StoreBatch inserts ticks in one block through a prepared batch statement.
func (s *ClickHouseStorage) StoreBatch(ctx context.Context, ticks []*models.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	db := s.client.DB()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("clickhouse begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (ts, symbol, price, quantity)", s.table))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clickhouse prepare: %w", err)
	}
	defer stmt.Close()

	n := 0
	for _, t := range ticks {
		if t == nil || t.Symbol == "" || t.Timestamp.IsZero() {
			continue
		}
		if _, err := stmt.ExecContext(ctx, t.Timestamp.UTC(), t.Symbol, t.Price, t.Quantity); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("clickhouse append: %w", err)
		}
		n++
	}
	if n == 0 {
		_ = tx.Rollback()
		return nil
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("clickhouse commit: %w", err)
	}
	return nil
}

// Query returns ticks for symbol in [from, to], oldest first. A zero to
// means now.
func (s *ClickHouseStorage) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.Tick, error) {
	from, to, limit = queryBounds(from, to, limit)
	q := fmt.Sprintf(`SELECT symbol, ts, price, quantity FROM (
	SELECT symbol, ts, price, quantity FROM %s
	WHERE symbol = ? AND ts >= ? AND ts <= ?
	ORDER BY ts DESC LIMIT ?
) ORDER BY ts ASC`, s.table)
	rows, err := s.client.DB().QueryContext(ctx, q, symbol, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("clickhouse query: %w", err)
	}
	defer rows.Close()

	var out []*models.Tick
	for rows.Next() {
		var t models.Tick
		if err := rows.Scan(&t.Symbol, &t.Timestamp, &t.Price, &t.Quantity); err != nil {
			return nil, err
		}
		t.Timestamp = t.Timestamp.UTC()
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *ClickHouseStorage) Health(ctx context.Context) error { return s.client.Health(ctx) }

func (s *ClickHouseStorage) Close() error { return s.client.Close() }

func queryBounds(from, to time.Time, limit int) (time.Time, time.Time, int) {
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	return from.UTC(), to.UTC(), limit
}

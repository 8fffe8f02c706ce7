package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"QuantPulse/internal/domain/models"
	"QuantPulse/internal/domain/repository"
)

// tickRow is the SQLite row for one tick.
type tickRow struct {
	ID        uint      `gorm:"primaryKey"`
	Symbol    string    `gorm:"size:32;not null;index:idx_ticks_symbol_ts,priority:1"`
	Timestamp time.Time `gorm:"not null;index:idx_ticks_symbol_ts,priority:2"`
	Price     float64   `gorm:"not null"`
	Quantity  float64   `gorm:"not null"`
}

func (tickRow) TableName() string { return "ticks" }

// SQLiteStorage implements Storage on a local SQLite file through gorm.
type SQLiteStorage struct {
	db *gorm.DB
}

var _ repository.Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens path, creating its directory. ":memory:" opens a
// private in-memory database.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlite dir: %w", err)
			}
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	// one connection keeps ":memory:" a single database and serializes writes
	sqlDB.SetMaxOpenConns(1)
	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Init(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&tickRow{}); err != nil {
		return fmt.Errorf("sqlite migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) Store(ctx context.Context, t *models.Tick) error {
	return s.StoreBatch(ctx, []*models.Tick{t})
}

func (s *SQLiteStorage) StoreBatch(ctx context.Context, ticks []*models.Tick) error {
	rows := make([]tickRow, 0, len(ticks))
	for _, t := range ticks {
		if t == nil || t.Symbol == "" || t.Timestamp.IsZero() {
			continue
		}
		rows = append(rows, tickRow{Symbol: t.Symbol, Timestamp: t.Timestamp.UTC(), Price: t.Price, Quantity: t.Quantity})
	}
	if len(rows) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).CreateInBatches(rows, 500).Error; err != nil {
		return fmt.Errorf("sqlite insert: %w", err)
	}
	return nil
}

// Query returns at most limit of the latest ticks in [from, to], oldest
// first.
func (s *SQLiteStorage) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.Tick, error) {
	from, to, limit = queryBounds(from, to, limit)
	var rows []tickRow
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND timestamp >= ? AND timestamp <= ?", symbol, from, to).
		Order("timestamp DESC").Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("sqlite query: %w", err)
	}
	out := make([]*models.Tick, len(rows))
	for i, r := range rows {
		out[len(rows)-1-i] = &models.Tick{Symbol: r.Symbol, Price: r.Price, Quantity: r.Quantity, Timestamp: r.Timestamp.UTC()}
	}
	return out, nil
}

func (s *SQLiteStorage) Health(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQLiteStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

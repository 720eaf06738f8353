package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/uptrace/bun"

	"github.com/oakbridge-games/homestead/internal/game"
)

const lastPriceCacheSize = 4096

// SessionRecord is the versioned session blob row.
type SessionRecord struct {
	bun.BaseModel `bun:"table:sessions,alias:s"`

	Code      string      `bun:"code,pk"`
	Status    game.Status `bun:"status,notnull"`
	State     []byte      `bun:"state,type:jsonb,notnull"`
	Version   int64       `bun:"version,notnull"`
	CreatedAt time.Time   `bun:"created_at,notnull"`
	UpdatedAt time.Time   `bun:"updated_at,notnull"`
}

// PriceHistoryRecord is one row of the append-only price series.
type PriceHistoryRecord struct {
	bun.BaseModel `bun:"table:price_history,alias:ph"`

	ID        int64         `bun:"id,pk,autoincrement"`
	Code      string        `bun:"code,notnull"`
	Resource  game.Resource `bun:"resource,notnull"`
	Buy       int           `bun:"buy,notnull"`
	Sell      int           `bun:"sell,notnull"`
	Baseline  int           `bun:"baseline,notnull"`
	Trade     bool          `bun:"trade,notnull,default:false"`
	Timestamp time.Time     `bun:"timestamp,notnull"`
}

// PostgresStore persists sessions as versioned JSONB blobs. Commit uses a
// conditional update on the version column; a miss surfaces as
// ErrConflict so callers re-read and retry.
type PostgresStore struct {
	db *DB
}

// NewPostgresStore creates the store and ensures its schema.
func NewPostgresStore(ctx context.Context, db *DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	_, err := db.BunDB().NewCreateTable().
		Model((*SessionRecord)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}
	return s, nil
}

func (p *PostgresStore) Get(ctx context.Context, code string) (*game.Session, error) {
	var rec SessionRecord
	err := p.db.BunDB().NewSelect().
		Model(&rec).
		Where("code = ?", code).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch session %s: %w", code, err)
	}

	var s game.Session
	if err := json.Unmarshal(rec.State, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", code, err)
	}
	s.Version = rec.Version
	return &s, nil
}

func (p *PostgresStore) Put(ctx context.Context, s *game.Session) error {
	blob, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.Code, err)
	}
	now := time.Now().UTC()
	rec := &SessionRecord{
		Code:      s.Code,
		Status:    s.Status,
		State:     blob,
		Version:   s.Version,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = p.db.BunDB().NewInsert().
		Model(rec).
		On("CONFLICT (code) DO UPDATE").
		Set("state = EXCLUDED.state").
		Set("status = EXCLUDED.status").
		Set("version = EXCLUDED.version").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to put session %s: %w", s.Code, err)
	}
	return nil
}

func (p *PostgresStore) Commit(ctx context.Context, s *game.Session) error {
	prev := s.Version
	next := prev + 1
	s.Version = next
	blob, err := json.Marshal(s)
	if err != nil {
		s.Version = prev
		return fmt.Errorf("encode session %s: %w", s.Code, err)
	}

	res, err := p.db.BunDB().NewUpdate().
		Model((*SessionRecord)(nil)).
		Set("state = ?", blob).
		Set("status = ?", s.Status).
		Set("version = ?", next).
		Set("updated_at = ?", time.Now().UTC()).
		Where("code = ?", s.Code).
		Where("version = ?", prev).
		Exec(ctx)
	if err != nil {
		s.Version = prev
		return fmt.Errorf("failed to commit session %s: %w", s.Code, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		s.Version = prev
		return fmt.Errorf("failed to commit session %s: %w", s.Code, err)
	}
	if affected == 0 {
		s.Version = prev
		exists, err := p.db.BunDB().NewSelect().
			Model((*SessionRecord)(nil)).
			Where("code = ?", s.Code).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("failed to commit session %s: %w", s.Code, err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, code string) error {
	_, err := p.db.BunDB().NewDelete().
		Model((*SessionRecord)(nil)).
		Where("code = ?", code).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", code, err)
	}
	return nil
}

func (p *PostgresStore) ListInProgress(ctx context.Context) ([]string, error) {
	var codes []string
	err := p.db.BunDB().NewSelect().
		Model((*SessionRecord)(nil)).
		Column("code").
		Where("status = ?", game.StatusInProgress).
		Order("created_at ASC").
		Scan(ctx, &codes)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return codes, nil
}

// PostgresHistory is the bun-backed price series with an LRU cache over
// the most recent record per (session, resource).
type PostgresHistory struct {
	db    *DB
	cache *lru.Cache
}

// NewPostgresHistory creates the series store and ensures its schema.
func NewPostgresHistory(ctx context.Context, db *DB) (*PostgresHistory, error) {
	cache, _ := lru.New(lastPriceCacheSize)
	h := &PostgresHistory{db: db, cache: cache}

	_, err := db.BunDB().NewCreateTable().
		Model((*PriceHistoryRecord)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create price history table: %w", err)
	}
	_, err = db.BunDB().NewCreateIndex().
		Model((*PriceHistoryRecord)(nil)).
		Index("idx_price_history_code_resource_timestamp").
		Column("code", "resource", "timestamp").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create price history index: %w", err)
	}
	return h, nil
}

func (h *PostgresHistory) Append(ctx context.Context, code string, res game.Resource, rec game.PriceRecord) error {
	row := &PriceHistoryRecord{
		Code:      code,
		Resource:  res,
		Buy:       rec.Buy,
		Sell:      rec.Sell,
		Baseline:  rec.Baseline,
		Trade:     rec.Trade,
		Timestamp: rec.Timestamp,
	}
	if _, err := h.db.BunDB().NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("failed to append price history: %w", err)
	}
	h.cache.Add(historyKey(code, res), rec)
	return nil
}

func (h *PostgresHistory) Window(ctx context.Context, code string, res game.Resource, since time.Time) ([]game.PriceRecord, error) {
	var rows []PriceHistoryRecord
	err := h.db.BunDB().NewSelect().
		Model(&rows).
		Where("code = ?", code).
		Where("resource = ?", res).
		Where("timestamp >= ?", since).
		Order("timestamp ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch price history: %w", err)
	}
	out := make([]game.PriceRecord, len(rows))
	for i, row := range rows {
		out[i] = game.PriceRecord{
			Timestamp: row.Timestamp,
			Buy:       row.Buy,
			Sell:      row.Sell,
			Baseline:  row.Baseline,
			Trade:     row.Trade,
		}
	}
	return out, nil
}

func (h *PostgresHistory) LastPrice(ctx context.Context, code string, res game.Resource) (game.PriceRecord, bool) {
	if cached, ok := h.cache.Get(historyKey(code, res)); ok {
		return cached.(game.PriceRecord), true
	}
	var row PriceHistoryRecord
	err := h.db.BunDB().NewSelect().
		Model(&row).
		Where("code = ?", code).
		Where("resource = ?", res).
		Order("timestamp DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return game.PriceRecord{}, false
	}
	rec := game.PriceRecord{
		Timestamp: row.Timestamp,
		Buy:       row.Buy,
		Sell:      row.Sell,
		Baseline:  row.Baseline,
		Trade:     row.Trade,
	}
	h.cache.Add(historyKey(code, res), rec)
	return rec, true
}

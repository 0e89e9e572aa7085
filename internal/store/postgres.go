package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vmbid/matching-engine/internal/model"
)

// Schema creates the fills table. Volumes, prices and sequence numbers are
// unsigned 64-bit, so they are stored as NUMERIC(20) rather than BIGINT.
// journal_id records insertion order, which breaks ties between fills that
// share a microsecond timestamp.
const Schema = `
CREATE TABLE IF NOT EXISTS fills (
	journal_id BIGSERIAL,
	id         UUID PRIMARY KEY,
	username   TEXT NOT NULL,
	volume     NUMERIC(20, 0) NOT NULL CHECK (volume > 0),
	price      NUMERIC(20, 0) NOT NULL,
	source     TEXT NOT NULL,
	bid_seq    NUMERIC(20, 0) NOT NULL,
	timestamp  TIMESTAMPTZ NOT NULL
);
ALTER TABLE fills ADD COLUMN IF NOT EXISTS journal_id BIGSERIAL;
CREATE INDEX IF NOT EXISTS fills_username_order_idx ON fills (username, timestamp, journal_id);
`

const selectFillsByUser = `SELECT id::TEXT, username, volume::TEXT, price::TEXT, source, bid_seq::TEXT, timestamp
FROM fills WHERE username = $1 ORDER BY timestamp, journal_id`

// PostgresStore implements Store using PostgreSQL as the audit trail.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the fills table if it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertFills(ctx context.Context, fills []model.Fill) error {
	if len(fills) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, f := range fills {
		batch.Queue(
			`INSERT INTO fills (id, username, volume, price, source, bid_seq, timestamp)
			 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5, $6::NUMERIC, $7)`,
			f.ID, f.Username,
			strconv.FormatUint(f.Volume, 10),
			strconv.FormatUint(f.Price, 10),
			string(f.Source),
			strconv.FormatUint(f.BidSeq, 10),
			f.Timestamp,
		)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert %d fills: %w", len(fills), err)
	}
	return nil
}

func (s *PostgresStore) GetFillsByUser(ctx context.Context, username string) ([]model.Fill, error) {
	rows, err := s.pool.Query(ctx, selectFillsByUser, username)
	if err != nil {
		return nil, fmt.Errorf("get fills for %s: %w", username, err)
	}
	defer rows.Close()

	return scanFills(rows)
}

// pgxRows is the subset of pgx.Rows that scanFills needs.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanFills(rows pgxRows) ([]model.Fill, error) {
	fills := []model.Fill{}
	for rows.Next() {
		var f model.Fill
		var volS, priceS, source, seqS string

		if err := rows.Scan(&f.ID, &f.Username, &volS, &priceS, &source, &seqS, &f.Timestamp); err != nil {
			return nil, err
		}

		var err error
		if f.Volume, err = strconv.ParseUint(volS, 10, 64); err != nil {
			return nil, fmt.Errorf("fill %s volume: %w", f.ID, err)
		}
		if f.Price, err = strconv.ParseUint(priceS, 10, 64); err != nil {
			return nil, fmt.Errorf("fill %s price: %w", f.ID, err)
		}
		if f.BidSeq, err = strconv.ParseUint(seqS, 10, 64); err != nil {
			return nil, fmt.Errorf("fill %s bid_seq: %w", f.ID, err)
		}
		f.Source = model.FillSource(source)

		fills = append(fills, f)
	}
	return fills, rows.Err()
}

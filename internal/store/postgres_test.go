package store

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vmbid/matching-engine/internal/model"
)

// fakeRows feeds scanFills canned column values.
type fakeRows struct {
	rows [][]any
	i    int
	err  error
}

func (r *fakeRows) Next() bool {
	if r.i >= len(r.rows) {
		return false
	}
	r.i++
	return true
}

func (r *fakeRows) Scan(dest ...interface{}) error {
	row := r.rows[r.i-1]
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = row[i].(string)
		case *time.Time:
			*p = row[i].(time.Time)
		default:
			return errors.New("unexpected scan target")
		}
	}
	return nil
}

func (r *fakeRows) Err() error { return r.err }

func TestScanFills(t *testing.T) {
	ts := time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)
	rows := &fakeRows{rows: [][]any{
		{"f1", "alice", "18446744073709551615", "3", "bid", "7", ts},
		{"f2", "alice", "10", "0", "supply", "0", ts},
	}}

	fills, err := scanFills(rows)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(fills) != 2 {
		t.Fatalf("expected 2 fills, got %d", len(fills))
	}
	if fills[0].Volume != ^uint64(0) {
		t.Errorf("expected max uint64 volume, got %d", fills[0].Volume)
	}
	if fills[0].Source != model.SourceBid || fills[0].BidSeq != 7 || fills[0].Price != 3 {
		t.Errorf("unexpected fill: %+v", fills[0])
	}
	if !fills[1].Timestamp.Equal(ts) {
		t.Errorf("unexpected timestamp %s", fills[1].Timestamp)
	}
}

func TestScanFills_BadNumber(t *testing.T) {
	rows := &fakeRows{rows: [][]any{
		{"f1", "alice", "-1", "3", "bid", "7", time.Now()},
	}}
	if _, err := scanFills(rows); err == nil {
		t.Fatal("expected error for negative volume")
	}
}

func TestSelectFillsByUser_OrdersByInsertionWithinTimestamp(t *testing.T) {
	if !strings.HasSuffix(selectFillsByUser, "ORDER BY timestamp, journal_id") {
		t.Errorf("history query must break timestamp ties by insertion order: %s", selectFillsByUser)
	}
	if !strings.Contains(Schema, "journal_id BIGSERIAL") {
		t.Error("schema must define journal_id")
	}
}

func newPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	ps := NewPostgresStore(pool)
	if err := ps.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return ps
}

// TestPostgresStore_SameTimestampKeepsInsertionOrder runs against a real
// database when TEST_DATABASE_URL is set.
func TestPostgresStore_SameTimestampKeepsInsertionOrder(t *testing.T) {
	ps := newPostgresStore(t)
	ctx := context.Background()

	user := "pg-tie-" + time.Now().Format("150405.000000")
	ts := time.Now().UTC().Truncate(time.Microsecond)
	var fills []model.Fill
	for i := uint64(1); i <= 5; i++ {
		f := model.NewFill(user, i, 4, model.SourceBid, i)
		f.Timestamp = ts
		fills = append(fills, f)
	}
	if err := ps.InsertFills(ctx, fills); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := ps.GetFillsByUser(ctx, user)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != len(fills) {
		t.Fatalf("expected %d fills, got %d", len(fills), len(got))
	}
	for i := range fills {
		if got[i].ID != fills[i].ID {
			t.Errorf("position %d: expected fill %s, got %s", i, fills[i].ID, got[i].ID)
		}
	}
}

// TestPostgresStore_RoundTrip runs against a real database when
// TEST_DATABASE_URL is set.
func TestPostgresStore_RoundTrip(t *testing.T) {
	ps := newPostgresStore(t)
	ctx := context.Background()

	user := "pg-test-" + time.Now().Format("150405.000000")
	fills := []model.Fill{
		model.NewFill(user, 10, 3, model.SourceSupply, 0),
		model.NewFill(user, 5, 4, model.SourceBid, 9),
	}
	fills[1].Timestamp = fills[0].Timestamp.Add(time.Millisecond)
	if err := ps.InsertFills(ctx, fills); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := ps.GetFillsByUser(ctx, user)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 fills, got %d", len(got))
	}
	if got[1].BidSeq != 9 || got[1].Volume != 5 {
		t.Errorf("unexpected fill: %+v", got[1])
	}
}

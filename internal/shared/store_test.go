package shared

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args []any
}

type fakeExecer struct {
	calls []execCall
	tag   pgconn.CommandTag
	err   error
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	return f.tag, f.err
}

func TestAuditLoggerRecord(t *testing.T) {
	db := &fakeExecer{}
	logger := NewAuditLogger(db)
	at := time.Date(2024, 6, 1, 20, 0, 0, 0, time.FixedZone("CEST", 2*3600))

	require.NoError(t, logger.Record(context.Background(), AuditLog{
		Action:   "bom:assemble",
		Entity:   "product",
		EntityID: "gt",
		Meta:     map[string]any{"quantity": 2},
		At:       at,
	}))
	require.Len(t, db.calls, 1)
	args := db.calls[0].args
	require.Equal(t, SystemActor, args[0])
	require.JSONEq(t, `{"quantity":2}`, string(args[4].([]byte)))
	stamped := args[5].(*time.Time)
	require.True(t, stamped.Equal(at))
	require.Equal(t, time.UTC, stamped.Location())

	require.NoError(t, logger.Record(context.Background(), AuditLog{Actor: "marta", Action: "catalog:create", Entity: "product", EntityID: "gin"}))
	var meta map[string]any
	require.NoError(t, json.Unmarshal(db.calls[1].args[4].([]byte), &meta))
	require.Empty(t, meta)
	require.Nil(t, db.calls[1].args[5].(*time.Time))
}

func TestAuditLoggerRejectsIncompleteEntries(t *testing.T) {
	db := &fakeExecer{}
	require.Error(t, NewAuditLogger(db).Record(context.Background(), AuditLog{Action: "x", Entity: "product"}))
	require.Empty(t, db.calls)

	var nilLogger *AuditLogger
	require.Error(t, nilLogger.Record(context.Background(), AuditLog{Action: "x", Entity: "y", EntityID: "z"}))
}

func TestIdempotencyCheckAndInsert(t *testing.T) {
	db := &fakeExecer{}
	store := NewIdempotencyStore(db)
	store.now = func() time.Time { return time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC) }

	require.NoError(t, store.CheckAndInsert(context.Background(), "abc", "bom"))
	require.Equal(t, []any{"bom:abc", "bom", store.now()}, db.calls[0].args)

	db.err = &pgconn.PgError{Code: "23505"}
	err := store.CheckAndInsert(context.Background(), "abc", "bom")
	require.ErrorIs(t, err, ErrIdempotencyConflict)
	require.ErrorIs(t, err, ErrConflict)

	db.err = errors.New("connection reset")
	require.EqualError(t, store.CheckAndInsert(context.Background(), "abc", "bom"), "connection reset")

	require.Error(t, store.CheckAndInsert(context.Background(), "", "bom"))
	require.Error(t, store.CheckAndInsert(context.Background(), "abc", ""))
}

func TestIdempotencyCleanupAndDelete(t *testing.T) {
	db := &fakeExecer{tag: pgconn.NewCommandTag("DELETE 4")}
	store := NewIdempotencyStore(db)
	now := time.Date(2024, 6, 8, 3, 30, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	deleted, err := store.Cleanup(context.Background(), 7*24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(4), deleted)
	require.Equal(t, []any{now.Add(-7 * 24 * time.Hour)}, db.calls[0].args)

	_, err = store.Cleanup(context.Background(), 0)
	require.ErrorIs(t, err, ErrValidation)

	require.NoError(t, store.Delete(context.Background(), "abc", "movements"))
	require.Equal(t, []any{"movements:abc"}, db.calls[1].args)

	var nilStore *IdempotencyStore
	require.NoError(t, nilStore.Delete(context.Background(), "abc", "bom"))
	n, err := nilStore.Cleanup(context.Background(), time.Hour)
	require.NoError(t, err)
	require.Zero(t, n)
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/burenotti/go_course_backend/internal/domain"
)

var (
	ErrInternal = errors.New("internal storage error")
	ErrNoSQL    = errors.New("database is not backed by sql")
)

type DBContext interface {
	Begin(ctx context.Context) (DBContext, error)
	Commit() error
	Rollback() error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Beginner starts the transaction a unit of work runs in.
type Beginner interface {
	Begin(ctx context.Context) (DBContext, error)
}

type DB struct {
	*sql.DB
}

func (D *DB) Commit() error {
	return nil
}

func (D *DB) Rollback() error {
	return nil
}

func (D *DB) Begin(ctx context.Context) (DBContext, error) {
	tx, err := D.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, InternalError(err)
	}
	return &Tx{tx}, nil
}

type Tx struct {
	*sql.Tx
}

func (t *Tx) Begin(ctx context.Context) (DBContext, error) {
	return t, nil
}

// NopDB is a DBContext without a database behind it. Commit and
// Rollback do nothing and every SQL call fails with ErrNoSQL.
type NopDB struct{}

func (NopDB) Begin(context.Context) (DBContext, error) { return NopDB{}, nil }
func (NopDB) Commit() error                            { return nil }
func (NopDB) Rollback() error                          { return nil }

func (NopDB) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, ErrNoSQL
}

func (NopDB) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, ErrNoSQL
}

func (NopDB) QueryRowContext(context.Context, string, ...any) *sql.Row {
	return nil
}

func InternalError(err error) error {
	return errors.Join(fmt.Errorf("internal storage error: %w", err), ErrInternal)
}

// Tracker remembers the aggregates a storage handed out or accepted so their
// events can be collected once the unit of work finishes.
type Tracker struct {
	seenMu sync.Mutex
	seen   map[string]domain.EventSource
}

func (t *Tracker) MarkSeen(key string, src domain.EventSource) {
	t.seenMu.Lock()
	if t.seen == nil {
		t.seen = make(map[string]domain.EventSource)
	}
	t.seen[key] = src
	t.seenMu.Unlock()
}

func (t *Tracker) CollectEvents() []domain.Event {
	t.seenMu.Lock()
	defer t.seenMu.Unlock()
	var events []domain.Event
	for _, src := range t.seen {
		events = append(events, src.PopEvents()...)
	}
	t.seen = make(map[string]domain.EventSource)
	return events
}

func (t *Tracker) Clear() {
	t.seenMu.Lock()
	t.seen = make(map[string]domain.EventSource)
	t.seenMu.Unlock()
}

package batchservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/civil"
	"github.com/burenotti/go_course_backend/internal/adapter/storage"
	batchstorage "github.com/burenotti/go_course_backend/internal/adapter/storage/batches"
	"github.com/burenotti/go_course_backend/internal/adapter/storage/memory"
	"github.com/burenotti/go_course_backend/internal/domain"
	"github.com/burenotti/go_course_backend/internal/domain/batch"
)

type BatchStorage interface {
	Add(ctx context.Context, b *batch.Batch) error
	GetByID(ctx context.Context, courseID, batchID string) (*batch.Batch, error)
	ListDue(ctx context.Context, today civil.Date) ([]*batch.Batch, error)
	Persist(ctx context.Context, b *batch.Batch) error
	Close() error
	CollectEvents() []domain.Event
}

type AtomicContext struct {
	ctx context.Context
	storage.DBContext
	BatchStorage BatchStorage
}

func (a *AtomicContext) Context() context.Context {
	return a.ctx
}

func (a *AtomicContext) Commit() error {
	return a.DBContext.Commit()
}

func (a *AtomicContext) Close() error {
	if err := a.BatchStorage.Close(); err != nil {
		return errors.Join(fmt.Errorf("failed to close storage"), err)
	}
	return nil
}

func (a *AtomicContext) CollectEvents() []domain.Event {
	return a.BatchStorage.CollectEvents()
}

// ContextFactory opens an AtomicContext on top of a transaction.
type ContextFactory func(ctx context.Context, db storage.DBContext) (*AtomicContext, error)

func PostgresContext(logger *slog.Logger) ContextFactory {
	return func(ctx context.Context, db storage.DBContext) (*AtomicContext, error) {
		return &AtomicContext{
			ctx:          ctx,
			DBContext:    db,
			BatchStorage: batchstorage.NewPostgresStorage(db, logger),
		}, nil
	}
}

func MemoryContext(store *memory.Store) ContextFactory {
	return func(ctx context.Context, db storage.DBContext) (*AtomicContext, error) {
		return &AtomicContext{
			ctx:          ctx,
			DBContext:    db,
			BatchStorage: store.BatchesIn(db),
		}, nil
	}
}

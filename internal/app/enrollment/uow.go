package enrollmentservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/burenotti/go_course_backend/internal/adapter/storage"
	batchstorage "github.com/burenotti/go_course_backend/internal/adapter/storage/batches"
	enrollmentstorage "github.com/burenotti/go_course_backend/internal/adapter/storage/enrollments"
	"github.com/burenotti/go_course_backend/internal/adapter/storage/memory"
	"github.com/burenotti/go_course_backend/internal/domain"
	"github.com/burenotti/go_course_backend/internal/domain/batch"
	"github.com/burenotti/go_course_backend/internal/domain/enrollment"
)

type BatchStorage interface {
	GetByID(ctx context.Context, courseID, batchID string) (*batch.Batch, error)
	Close() error
	CollectEvents() []domain.Event
}

type EnrollmentStorage interface {
	Add(ctx context.Context, e *enrollment.Enrollment) error
	GetByID(ctx context.Context, batchID, userID string) (*enrollment.Enrollment, error)
	ListByBatch(ctx context.Context, batchID string, activeOnly bool) ([]*enrollment.Enrollment, error)
	Persist(ctx context.Context, e *enrollment.Enrollment) error
	Close() error
	CollectEvents() []domain.Event
}

type AtomicContext struct {
	ctx context.Context
	storage.DBContext
	BatchStorage      BatchStorage
	EnrollmentStorage EnrollmentStorage
}

func (a *AtomicContext) Context() context.Context {
	return a.ctx
}

func (a *AtomicContext) Commit() error {
	return a.DBContext.Commit()
}

func (a *AtomicContext) Close() (err error) {
	if closeErr := a.BatchStorage.Close(); closeErr != nil {
		err = errors.Join(err, closeErr)
	}

	if closeErr := a.EnrollmentStorage.Close(); closeErr != nil {
		err = errors.Join(err, closeErr)
	}

	if err != nil {
		err = errors.Join(fmt.Errorf("failed to close storage"), err)
	}

	return err
}

func (a *AtomicContext) CollectEvents() []domain.Event {
	batchEvents := a.BatchStorage.CollectEvents()
	enrollmentEvents := a.EnrollmentStorage.CollectEvents()

	events := make([]domain.Event, 0, len(batchEvents)+len(enrollmentEvents))
	events = append(events, batchEvents...)
	events = append(events, enrollmentEvents...)
	return events
}

type ContextFactory func(ctx context.Context, db storage.DBContext) (*AtomicContext, error)

func PostgresContext(logger *slog.Logger) ContextFactory {
	return func(ctx context.Context, db storage.DBContext) (*AtomicContext, error) {
		return &AtomicContext{
			ctx:               ctx,
			DBContext:         db,
			BatchStorage:      batchstorage.NewPostgresStorage(db, logger),
			EnrollmentStorage: enrollmentstorage.NewPostgresStorage(db, logger),
		}, nil
	}
}

func MemoryContext(store *memory.Store) ContextFactory {
	return func(ctx context.Context, db storage.DBContext) (*AtomicContext, error) {
		return &AtomicContext{
			ctx:               ctx,
			DBContext:         db,
			BatchStorage:      store.BatchesIn(db),
			EnrollmentStorage: store.EnrollmentsIn(db),
		}, nil
	}
}

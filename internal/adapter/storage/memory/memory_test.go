package memory

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/burenotti/go_course_backend/internal/adapter/storage"
	"github.com/burenotti/go_course_backend/internal/domain/batch"
	"github.com/burenotti/go_course_backend/internal/domain/enrollment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var at = time.Date(2024, time.May, 10, 10, 0, 0, 0, time.UTC)

func newBatch(id string) *batch.Batch {
	return batch.FromSnapshot(batch.Snapshot{
		BatchID: id, CourseID: "c1", EnrollmentType: batch.EnrollmentOpen,
		StartDate: civil.Date{Year: 2024, Month: time.May, Day: 12},
	})
}

func begin(t *testing.T, s *Store) storage.DBContext {
	t.Helper()
	tx, err := s.Begin(context.Background())
	require.NoError(t, err)
	return tx
}

func TestTx_CommitApplies(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	tx := begin(t, s)

	b := newBatch("b1")
	require.NoError(t, s.BatchesIn(tx).Add(ctx, b))
	require.NoError(t, s.EnrollmentsIn(tx).Add(ctx, enrollment.New(b.Snapshot, "u1", "u1", at)))

	_, err := s.Batches().GetByID(ctx, "c1", "b1")
	assert.ErrorIs(t, err, batch.ErrBatchNotFound)
	assert.Equal(t, 0, s.EnrollmentRows())

	staged, err := s.EnrollmentsIn(tx).GetByID(ctx, "b1", "u1")
	require.NoError(t, err)
	assert.True(t, staged.Active)

	require.NoError(t, tx.Commit())
	_, err = s.Batches().GetByID(ctx, "c1", "b1")
	assert.NoError(t, err)
	assert.Equal(t, 1, s.EnrollmentRows())
	assert.NoError(t, tx.Rollback())
	assert.Equal(t, 1, s.EnrollmentRows())
}

func TestTx_RollbackDiscards(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	b := newBatch("b1")
	require.NoError(t, s.Batches().Add(ctx, b))
	require.NoError(t, s.Enrollments().Add(ctx, enrollment.New(b.Snapshot, "u1", "u1", at)))

	tx := begin(t, s)
	e, err := s.EnrollmentsIn(tx).GetByID(ctx, "b1", "u1")
	require.NoError(t, err)
	e.Active = false
	require.NoError(t, s.EnrollmentsIn(tx).Persist(ctx, e))
	require.NoError(t, s.EnrollmentsIn(tx).Add(ctx, enrollment.New(b.Snapshot, "u2", "u2", at)))

	active, err := s.EnrollmentsIn(tx).ListByBatch(ctx, "b1", true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "u2", active[0].UserID)

	require.NoError(t, tx.Rollback())
	got, err := s.Enrollments().GetByID(ctx, "b1", "u1")
	require.NoError(t, err)
	assert.True(t, got.Active)
	assert.Equal(t, 1, s.EnrollmentRows())
}

func TestTx_ConflictsSeeStagedRows(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	tx := begin(t, s)

	b := newBatch("b1")
	require.NoError(t, s.BatchesIn(tx).Add(ctx, b))
	assert.ErrorIs(t, s.BatchesIn(tx).Add(ctx, newBatch("b1")), batch.ErrBatchExists)

	require.NoError(t, s.EnrollmentsIn(tx).Add(ctx, enrollment.New(b.Snapshot, "u1", "u1", at)))
	err := s.EnrollmentsIn(tx).Add(ctx, enrollment.New(b.Snapshot, "u1", "u1", at))
	assert.ErrorIs(t, err, enrollment.ErrUserAlreadyEnrolledCourse)
}

func TestBatchesIn_ForeignDBWritesThrough(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.BatchesIn(storage.NopDB{}).Add(ctx, newBatch("b1")))
	_, err := s.Batches().GetByID(ctx, "c1", "b1")
	assert.NoError(t, err)

	other := begin(t, NewStore())
	require.NoError(t, s.BatchesIn(other).Add(ctx, newBatch("b2")))
	_, err = s.Batches().GetByID(ctx, "c1", "b2")
	assert.NoError(t, err)
}

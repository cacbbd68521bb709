package searchindex

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/burenotti/go_course_backend/internal/domain/batch"
	"github.com/burenotti/go_course_backend/internal/domain/enrollment"
)

// Memory is an in-process index. Sync calls are still asynchronous so the
// propagation lag of the real index is visible to tests; call Wait to settle.
type Memory struct {
	syncer
	mu          sync.RWMutex
	batches     map[string]batch.Snapshot
	enrollments map[string]enrollment.Snapshot
	failWith    error
}

func NewMemory(logger *slog.Logger) *Memory {
	return &Memory{
		syncer:      syncer{logger: logger, timeout: 5 * time.Second},
		batches:     make(map[string]batch.Snapshot),
		enrollments: make(map[string]enrollment.Snapshot),
	}
}

// FailWith makes every call return err until it is called again with nil.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	m.failWith = err
	m.mu.Unlock()
}

func (m *Memory) GetBatch(_ context.Context, batchID string) (batch.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return batch.Snapshot{}, m.failWith
	}
	b, ok := m.batches[batchID]
	if !ok {
		return batch.Snapshot{}, batch.ErrBatchNotFound
	}
	return b.Clone(), nil
}

func (m *Memory) SaveBatch(_ context.Context, b batch.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.batches[b.BatchID] = b.Clone()
	return nil
}

func (m *Memory) SyncBatch(b batch.Snapshot) {
	b = b.Clone()
	m.goSave(kindBatch, b.BatchID, func(ctx context.Context) error {
		return m.SaveBatch(ctx, b)
	})
}

func (m *Memory) QueryBatches(_ context.Context, f batch.Filter) ([]batch.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	var result []batch.Snapshot
	for _, b := range m.batches {
		if matchBatch(b, f) {
			result = append(result, b.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].BatchID < result[j].BatchID })
	return result, nil
}

func matchBatch(b batch.Snapshot, f batch.Filter) bool {
	if f.CourseID != "" && b.CourseID != f.CourseID {
		return false
	}
	if len(f.BatchIDs) > 0 && !slices.Contains(f.BatchIDs, b.BatchID) {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, b.Status) {
		return false
	}
	if f.EnrollmentType != "" && b.EnrollmentType != f.EnrollmentType {
		return false
	}
	return true
}

func (m *Memory) GetEnrollment(_ context.Context, batchID, userID string) (enrollment.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return enrollment.Snapshot{}, m.failWith
	}
	e, ok := m.enrollments[enrollment.ID(batchID, userID)]
	if !ok {
		return enrollment.Snapshot{}, enrollment.ErrEnrollmentNotFound
	}
	return e, nil
}

func (m *Memory) SaveEnrollment(_ context.Context, e enrollment.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.enrollments[e.ID()] = e
	return nil
}

func (m *Memory) SyncEnrollment(e enrollment.Snapshot) {
	m.goSave(kindEnrollment, e.ID(), func(ctx context.Context) error {
		return m.SaveEnrollment(ctx, e)
	})
}

func (m *Memory) QueryEnrollments(_ context.Context, f enrollment.Filter) ([]enrollment.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	var result []enrollment.Snapshot
	for _, e := range m.enrollments {
		if matchEnrollment(e, f) {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].EnrolledOn.Before(result[j].EnrolledOn) })
	return result, nil
}

func matchEnrollment(e enrollment.Snapshot, f enrollment.Filter) bool {
	if f.BatchID != "" && e.BatchID != f.BatchID {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.CourseID != "" && e.CourseID != f.CourseID {
		return false
	}
	if f.Active != nil && e.Active != *f.Active {
		return false
	}
	return true
}

func (m *Memory) Close(context.Context) error {
	m.Wait()
	return nil
}

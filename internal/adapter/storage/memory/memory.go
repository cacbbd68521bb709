// Package memory is an in-process backend for the authoritative store and the
// directory. It is used by tests and by the memory driver of the server.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"cloud.google.com/go/civil"
	"github.com/burenotti/go_course_backend/internal/adapter/storage"
	"github.com/burenotti/go_course_backend/internal/domain/batch"
	"github.com/burenotti/go_course_backend/internal/domain/enrollment"
)

// Store holds the shared state. Storages created from it are cheap per-request views.
// Store is a storage.Beginner: writes made through a transaction are applied on Commit.
type Store struct {
	mu          sync.RWMutex
	batches     map[string]batch.Snapshot
	enrollments map[string]enrollment.Snapshot
}

func NewStore() *Store {
	return &Store{
		batches:     make(map[string]batch.Snapshot),
		enrollments: make(map[string]enrollment.Snapshot),
	}
}

func (s *Store) Begin(context.Context) (storage.DBContext, error) {
	return &Tx{
		store:       s,
		batches:     make(map[string]batch.Snapshot),
		enrollments: make(map[string]enrollment.Snapshot),
	}, nil
}

// Tx stages writes until Commit. Reads see the staged rows over the committed ones.
// Conflicts are checked against that view when a row is written, the last commit wins.
type Tx struct {
	storage.NopDB
	store *Store

	mu          sync.Mutex
	done        bool
	batches     map[string]batch.Snapshot
	enrollments map[string]enrollment.Snapshot
}

func (t *Tx) Begin(context.Context) (storage.DBContext, error) {
	return t, nil
}

func (t *Tx) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil
	}

	t.store.mu.Lock()
	maps.Copy(t.store.batches, t.batches)
	maps.Copy(t.store.enrollments, t.enrollments)
	t.store.mu.Unlock()

	t.finish()
	return nil
}

func (t *Tx) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finish()
	return nil
}

func (t *Tx) finish() {
	t.done = true
	clear(t.batches)
	clear(t.enrollments)
}

// view is what a storage reads and writes: the store itself, or a transaction over it.
// Every accessor expects the lock returned by lock to be held.
type view struct {
	store *Store
	tx    *Tx
}

func (s *Store) viewOf(db storage.DBContext) view {
	if tx, ok := db.(*Tx); ok && tx.store == s {
		return view{store: s, tx: tx}
	}
	return view{store: s}
}

func (v view) lock() (unlock func()) {
	if v.tx != nil {
		v.tx.mu.Lock()
		return v.tx.mu.Unlock
	}
	v.store.mu.Lock()
	return v.store.mu.Unlock
}

func (v view) batch(id string) (batch.Snapshot, bool) {
	if v.tx == nil {
		b, ok := v.store.batches[id]
		return b, ok
	}
	if b, ok := v.tx.batches[id]; ok {
		return b, true
	}
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	b, ok := v.store.batches[id]
	return b, ok
}

func (v view) allBatches() map[string]batch.Snapshot {
	if v.tx == nil {
		return v.store.batches
	}
	v.store.mu.RLock()
	all := maps.Clone(v.store.batches)
	v.store.mu.RUnlock()
	maps.Copy(all, v.tx.batches)
	return all
}

func (v view) putBatch(b batch.Snapshot) {
	if v.tx != nil {
		v.tx.batches[b.BatchID] = b
		return
	}
	v.store.batches[b.BatchID] = b
}

func (v view) enrollment(id string) (enrollment.Snapshot, bool) {
	if v.tx == nil {
		e, ok := v.store.enrollments[id]
		return e, ok
	}
	if e, ok := v.tx.enrollments[id]; ok {
		return e, true
	}
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	e, ok := v.store.enrollments[id]
	return e, ok
}

func (v view) allEnrollments() map[string]enrollment.Snapshot {
	if v.tx == nil {
		return v.store.enrollments
	}
	v.store.mu.RLock()
	all := maps.Clone(v.store.enrollments)
	v.store.mu.RUnlock()
	maps.Copy(all, v.tx.enrollments)
	return all
}

func (v view) putEnrollment(e enrollment.Snapshot) {
	if v.tx != nil {
		v.tx.enrollments[e.ID()] = e
		return
	}
	v.store.enrollments[e.ID()] = e
}

type BatchStorage struct {
	storage.Tracker
	view view
}

// Batches returns a storage writing straight to the store.
func (s *Store) Batches() *BatchStorage {
	return &BatchStorage{view: view{store: s}}
}

// BatchesIn returns a storage bound to db when db is a transaction of this store.
func (s *Store) BatchesIn(db storage.DBContext) *BatchStorage {
	return &BatchStorage{view: s.viewOf(db)}
}

func (s *BatchStorage) Add(_ context.Context, b *batch.Batch) error {
	defer s.view.lock()()

	if _, exists := s.view.batch(b.BatchID); exists {
		return batch.ErrBatchExists
	}
	s.view.putBatch(b.Snapshot.Clone())
	s.MarkSeen(b.BatchID, b)
	return nil
}

func (s *BatchStorage) GetByID(_ context.Context, courseID, batchID string) (*batch.Batch, error) {
	unlock := s.view.lock()
	snap, ok := s.view.batch(batchID)
	unlock()

	if !ok || snap.CourseID != courseID {
		return nil, batch.ErrBatchNotFound
	}
	b := batch.FromSnapshot(snap)
	s.MarkSeen(b.BatchID, b)
	return b, nil
}

func (s *BatchStorage) ListDue(_ context.Context, today civil.Date) ([]*batch.Batch, error) {
	defer s.view.lock()()

	var due []*batch.Batch
	for _, snap := range s.view.allBatches() {
		opening := snap.Status == batch.StatusNotStarted && !snap.StartDate.After(today)
		closing := snap.Status == batch.StatusStarted && !snap.EndDate.IsZero() && snap.EndDate.Before(today)
		if opening || closing {
			b := batch.FromSnapshot(snap)
			s.MarkSeen(b.BatchID, b)
			due = append(due, b)
		}
	}
	slices.SortFunc(due, func(a, b *batch.Batch) int {
		if a.StartDate.Before(b.StartDate) {
			return -1
		}
		if a.StartDate.After(b.StartDate) {
			return 1
		}
		return 0
	})
	return due, nil
}

func (s *BatchStorage) Persist(_ context.Context, b *batch.Batch) error {
	defer s.view.lock()()

	current, ok := s.view.batch(b.BatchID)
	if !ok || current.CourseID != b.CourseID {
		return batch.ErrBatchNotFound
	}
	s.view.putBatch(b.Snapshot.Clone())
	s.MarkSeen(b.BatchID, b)
	return nil
}

func (s *BatchStorage) Close() error {
	s.Clear()
	return nil
}

type EnrollmentStorage struct {
	storage.Tracker
	view view
}

// Enrollments returns a storage writing straight to the store.
func (s *Store) Enrollments() *EnrollmentStorage {
	return &EnrollmentStorage{view: view{store: s}}
}

// EnrollmentsIn returns a storage bound to db when db is a transaction of this store.
func (s *Store) EnrollmentsIn(db storage.DBContext) *EnrollmentStorage {
	return &EnrollmentStorage{view: s.viewOf(db)}
}

// Add mirrors the conditional upsert of the postgres storage.
func (s *EnrollmentStorage) Add(_ context.Context, e *enrollment.Enrollment) error {
	defer s.view.lock()()

	if current, exists := s.view.enrollment(e.ID()); exists && current.Active {
		return enrollment.ErrUserAlreadyEnrolledCourse
	}
	s.view.putEnrollment(e.Snapshot)
	s.MarkSeen(e.ID(), e)
	return nil
}

func (s *EnrollmentStorage) GetByID(_ context.Context, batchID, userID string) (*enrollment.Enrollment, error) {
	unlock := s.view.lock()
	snap, ok := s.view.enrollment(enrollment.ID(batchID, userID))
	unlock()

	if !ok {
		return nil, enrollment.ErrEnrollmentNotFound
	}
	e := enrollment.FromSnapshot(snap)
	s.MarkSeen(e.ID(), e)
	return e, nil
}

func (s *EnrollmentStorage) ListByBatch(_ context.Context, batchID string, activeOnly bool) ([]*enrollment.Enrollment, error) {
	defer s.view.lock()()

	var result []*enrollment.Enrollment
	for _, snap := range s.view.allEnrollments() {
		if snap.BatchID != batchID || (activeOnly && !snap.Active) {
			continue
		}
		e := enrollment.FromSnapshot(snap)
		s.MarkSeen(e.ID(), e)
		result = append(result, e)
	}
	slices.SortFunc(result, func(a, b *enrollment.Enrollment) int {
		return a.EnrolledOn.Compare(b.EnrolledOn)
	})
	return result, nil
}

func (s *EnrollmentStorage) Persist(_ context.Context, e *enrollment.Enrollment) error {
	defer s.view.lock()()

	if _, ok := s.view.enrollment(e.ID()); !ok {
		return enrollment.ErrEnrollmentNotFound
	}
	s.view.putEnrollment(e.Snapshot)
	s.MarkSeen(e.ID(), e)
	return nil
}

func (s *EnrollmentStorage) Close() error {
	s.Clear()
	return nil
}

// EnrollmentRows returns the number of committed enrollment rows, active or not.
func (s *Store) EnrollmentRows() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.enrollments)
}

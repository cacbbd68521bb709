package enrollmentservice

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"cloud.google.com/go/civil"
	"github.com/burenotti/go_course_backend/internal/app/unitofwork"
	"github.com/burenotti/go_course_backend/internal/domain"
	"github.com/burenotti/go_course_backend/internal/domain/batch"
	"github.com/burenotti/go_course_backend/internal/domain/directory"
	"github.com/burenotti/go_course_backend/internal/domain/enrollment"
	"github.com/burenotti/go_course_backend/internal/domain/membership"
	"github.com/samber/lo"
)

// ResultSuccess marks a user id that a bulk call handled.
const ResultSuccess = "SUCCESS"

type Directory interface {
	GetUserByID(ctx context.Context, userID string) (*directory.User, error)
	GetUsersByIDs(ctx context.Context, userIDs []string) (map[string]directory.User, error)
}

type Index interface {
	QueryBatches(ctx context.Context, f batch.Filter) ([]batch.Snapshot, error)
	QueryEnrollments(ctx context.Context, f enrollment.Filter) ([]enrollment.Snapshot, error)
	SaveEnrollment(ctx context.Context, e enrollment.Snapshot) error
	SyncEnrollment(e enrollment.Snapshot)
}

type Timeouts struct {
	Store  time.Duration
	Index  time.Duration
	Lookup time.Duration
}

type Service struct {
	directory Directory
	index     Index
	timeouts  Timeouts
	location  *time.Location
	now       func() time.Time
	logger    *slog.Logger
}

func New(dir Directory, index Index, timeouts Timeouts, location *time.Location, logger *slog.Logger) *Service {
	if location == nil {
		location = time.UTC
	}
	return &Service{
		directory: dir,
		index:     index,
		timeouts:  timeouts,
		location:  location,
		now:       time.Now,
		logger:    logger,
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// change is an enrollment write that still has to reach the index.
type change struct {
	snapshot enrollment.Snapshot
	inserted bool
}

func (s *Service) Enroll(
	ctx context.Context,
	uow *unitofwork.UnitOfWork[*AtomicContext],
	courseID, batchID, userID, requestedBy string,
) error {
	if userID != requestedBy {
		return batch.ErrUnauthorized
	}

	now := s.now()
	today := batch.Today(now, s.location)

	var result change
	storeCtx, cancel := withTimeout(ctx, s.timeouts.Store)
	defer cancel()
	err := uow.Atomic(storeCtx, func(actx *AtomicContext) error {
		b, err := s.selfServiceBatch(actx, courseID, batchID)
		if err != nil {
			return err
		}
		if err := s.ensureNoOtherActiveEnrollment(ctx, courseID, batchID, userID); err != nil {
			return err
		}
		if err := batch.IsEligibleForEnrollment(b.Snapshot, today); err != nil {
			return err
		}

		result, err = s.activate(actx, b.Snapshot, userID, requestedBy, now)
		if err != nil {
			return err
		}
		return domain.DependencyError(actx.Commit())
	})
	if err != nil {
		return err
	}

	s.propagate(ctx, result)
	s.logger.Info("user enrolled", "batch_id", batchID, "user_id", userID, "inserted", result.inserted)
	return nil
}

// Unenroll deactivates the enrollment. A second call fails with
// enrollment.ErrUserNotEnrolledCourse.
func (s *Service) Unenroll(
	ctx context.Context,
	uow *unitofwork.UnitOfWork[*AtomicContext],
	courseID, batchID, userID, requestedBy string,
) error {
	if userID != requestedBy {
		return batch.ErrUnauthorized
	}

	now := s.now()
	today := batch.Today(now, s.location)

	var result change
	storeCtx, cancel := withTimeout(ctx, s.timeouts.Store)
	defer cancel()
	err := uow.Atomic(storeCtx, func(actx *AtomicContext) error {
		b, err := s.selfServiceBatch(actx, courseID, batchID)
		if err != nil {
			return err
		}
		if err := batch.IsEligibleForEnrollment(b.Snapshot, today); err != nil {
			return err
		}

		result, err = s.deactivate(actx, b.Snapshot, userID, requestedBy, now)
		if err != nil {
			return err
		}
		return domain.DependencyError(actx.Commit())
	})
	if err != nil {
		return err
	}

	s.propagate(ctx, result)
	s.logger.Info("user unenrolled", "batch_id", batchID, "user_id", userID)
	return nil
}

// AddParticipants enrolls users into an invite-only batch on behalf of its
// creator or a mentor. The result holds ResultSuccess or an error message per id.
func (s *Service) AddParticipants(
	ctx context.Context,
	uow *unitofwork.UnitOfWork[*AtomicContext],
	courseID, batchID, requestedBy string,
	userIDs []string,
) (map[string]string, error) {
	now := s.now()
	today := batch.Today(now, s.location)
	requested := lo.Uniq(userIDs)
	results := make(map[string]string, len(requested))

	var changes []change
	storeCtx, cancel := withTimeout(ctx, s.timeouts.Store)
	defer cancel()
	err := uow.Atomic(storeCtx, func(actx *AtomicContext) error {
		b, err := s.managedBatch(actx, courseID, batchID, requestedBy, today)
		if err != nil {
			return err
		}

		active, err := s.activeParticipants(actx, batchID)
		if err != nil {
			return err
		}
		delta := membership.ParticipantDelta(active, slices.Concat(active, requested))
		for _, id := range lo.Intersect(active, requested) {
			results[id] = ResultSuccess
		}

		creator, users, err := s.lookupUsers(ctx, b.CreatedBy, delta.AddedParticipants)
		if err != nil {
			return err
		}

		for _, id := range delta.AddedParticipants {
			u, ok := users[id]
			switch {
			case !ok || u.IsDeleted:
				results[id] = batch.ErrInvalidUserID.Message
				continue
			case u.RootOrgID != creator.RootOrgID:
				results[id] = batch.ErrUserNotAssociatedToRootOrg.Message
				continue
			}

			c, err := s.activate(actx, b.Snapshot, id, requestedBy, now)
			if isFatal(err) {
				return err
			}
			if err != nil {
				results[id] = err.Error()
				continue
			}
			results[id] = ResultSuccess
			changes = append(changes, c)
		}
		return domain.DependencyError(actx.Commit())
	})
	if err != nil {
		return nil, err
	}

	for _, c := range changes {
		s.propagate(ctx, c)
	}
	s.logger.Info("participants added", "batch_id", batchID, "requested_by", requestedBy, "added", len(changes))
	return results, nil
}

// RemoveParticipants is the inverse of AddParticipants.
func (s *Service) RemoveParticipants(
	ctx context.Context,
	uow *unitofwork.UnitOfWork[*AtomicContext],
	courseID, batchID, requestedBy string,
	userIDs []string,
) (map[string]string, error) {
	now := s.now()
	today := batch.Today(now, s.location)
	requested := lo.Uniq(userIDs)
	results := make(map[string]string, len(requested))

	var changes []change
	storeCtx, cancel := withTimeout(ctx, s.timeouts.Store)
	defer cancel()
	err := uow.Atomic(storeCtx, func(actx *AtomicContext) error {
		b, err := s.managedBatch(actx, courseID, batchID, requestedBy, today)
		if err != nil {
			return err
		}

		active, err := s.activeParticipants(actx, batchID)
		if err != nil {
			return err
		}
		delta := membership.ParticipantDelta(active, lo.Without(active, requested...))
		for _, id := range lo.Without(requested, delta.RemovedParticipants...) {
			results[id] = enrollment.ErrUserNotEnrolledCourse.Message
		}

		for _, id := range delta.RemovedParticipants {
			c, err := s.deactivate(actx, b.Snapshot, id, requestedBy, now)
			if isFatal(err) {
				return err
			}
			if err != nil {
				results[id] = err.Error()
				continue
			}
			results[id] = ResultSuccess
			changes = append(changes, c)
		}
		return domain.DependencyError(actx.Commit())
	})
	if err != nil {
		return nil, err
	}

	for _, c := range changes {
		s.propagate(ctx, c)
	}
	s.logger.Info("participants removed", "batch_id", batchID, "requested_by", requestedBy, "removed", len(changes))
	return results, nil
}

type Participants struct {
	Count          int
	ParticipantIDs []string
}

// GetParticipants reads the participants of a batch from the search index.
func (s *Service) GetParticipants(ctx context.Context, batchID string, activeOnly bool) (Participants, error) {
	ctx, cancel := withTimeout(ctx, s.timeouts.Index)
	defer cancel()

	f := enrollment.Filter{BatchID: batchID}
	if activeOnly {
		f.Active = lo.ToPtr(true)
	}
	found, err := s.index.QueryEnrollments(ctx, f)
	if err != nil {
		return Participants{}, domain.DependencyError(err)
	}

	ids := lo.Map(found, func(e enrollment.Snapshot, _ int) string { return e.UserID })
	return Participants{Count: len(ids), ParticipantIDs: ids}, nil
}

func (s *Service) loadBatch(actx *AtomicContext, courseID, batchID string) (*batch.Batch, error) {
	b, err := actx.BatchStorage.GetByID(actx.Context(), courseID, batchID)
	if err != nil {
		return nil, domain.DependencyError(err)
	}
	return b, nil
}

func (s *Service) selfServiceBatch(actx *AtomicContext, courseID, batchID string) (*batch.Batch, error) {
	b, err := s.loadBatch(actx, courseID, batchID)
	if err != nil {
		return nil, err
	}
	if b.EnrollmentType == batch.EnrollmentInviteOnly {
		return nil, batch.ErrEnrollmentTypeValidation
	}
	return b, nil
}

func (s *Service) managedBatch(actx *AtomicContext, courseID, batchID, requestedBy string, today civil.Date) (*batch.Batch, error) {
	b, err := s.loadBatch(actx, courseID, batchID)
	if err != nil {
		return nil, err
	}
	if b.EnrollmentType != batch.EnrollmentInviteOnly {
		return nil, batch.ErrEnrollmentTypeValidation
	}
	if !b.IsManagedBy(requestedBy) {
		return nil, batch.ErrUnauthorized
	}
	if err := batch.IsEligibleForEnrollment(b.Snapshot, today); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Service) activeParticipants(actx *AtomicContext, batchID string) ([]string, error) {
	rows, err := actx.EnrollmentStorage.ListByBatch(actx.Context(), batchID, true)
	if err != nil {
		return nil, domain.DependencyError(err)
	}
	return lo.Map(rows, func(e *enrollment.Enrollment, _ int) string { return e.UserID }), nil
}

// ensureNoOtherActiveEnrollment looks for an active enrollment of the user in
// another running batch of the course. The index may lag behind the store, so
// this is best effort and index failures count as no conflict.
func (s *Service) ensureNoOtherActiveEnrollment(ctx context.Context, courseID, batchID, userID string) error {
	ctx, cancel := withTimeout(ctx, s.timeouts.Index)
	defer cancel()

	active, err := s.index.QueryEnrollments(ctx, enrollment.Filter{
		UserID:   userID,
		CourseID: courseID,
		Active:   lo.ToPtr(true),
	})
	if err != nil {
		s.logger.Error("failed to query active enrollments", "user_id", userID, "course_id", courseID, "error", err)
		return nil
	}

	others := lo.Without(lo.Map(active, func(e enrollment.Snapshot, _ int) string { return e.BatchID }), batchID)
	if len(others) == 0 {
		return nil
	}

	running, err := s.index.QueryBatches(ctx, batch.Filter{
		CourseID: courseID,
		BatchIDs: others,
		Statuses: []batch.Status{batch.StatusNotStarted, batch.StatusStarted},
	})
	if err != nil {
		s.logger.Error("failed to query batches", "course_id", courseID, "error", err)
		return nil
	}
	if len(running) > 0 {
		return enrollment.ErrUserAlreadyEnrolledCourse
	}
	return nil
}

// activate inserts a new enrollment or reactivates an inactive one.
func (s *Service) activate(actx *AtomicContext, b batch.Snapshot, userID, addedBy string, now time.Time) (change, error) {
	existing, err := actx.EnrollmentStorage.GetByID(actx.Context(), b.BatchID, userID)
	if errors.Is(err, enrollment.ErrEnrollmentNotFound) {
		e := enrollment.New(b, userID, addedBy, now)
		if err := actx.EnrollmentStorage.Add(actx.Context(), e); err != nil {
			return change{}, domain.DependencyError(err)
		}
		return change{snapshot: e.Snapshot, inserted: true}, nil
	}
	if err != nil {
		return change{}, domain.DependencyError(err)
	}

	if err := existing.Activate(b, addedBy, now); err != nil {
		return change{}, err
	}
	if err := actx.EnrollmentStorage.Persist(actx.Context(), existing); err != nil {
		return change{}, domain.DependencyError(err)
	}
	return change{snapshot: existing.Snapshot}, nil
}

func (s *Service) deactivate(actx *AtomicContext, b batch.Snapshot, userID, removedBy string, now time.Time) (change, error) {
	existing, err := actx.EnrollmentStorage.GetByID(actx.Context(), b.BatchID, userID)
	if errors.Is(err, enrollment.ErrEnrollmentNotFound) {
		return change{}, enrollment.ErrUserNotEnrolledCourse
	}
	if err != nil {
		return change{}, domain.DependencyError(err)
	}

	if err := existing.Deactivate(b, removedBy, now); err != nil {
		return change{}, err
	}
	if err := actx.EnrollmentStorage.Persist(actx.Context(), existing); err != nil {
		return change{}, domain.DependencyError(err)
	}
	return change{snapshot: existing.Snapshot}, nil
}

func (s *Service) lookupUsers(
	ctx context.Context,
	creatorID string,
	userIDs []string,
) (*directory.User, map[string]directory.User, error) {
	if len(userIDs) == 0 {
		return nil, nil, nil
	}
	ctx, cancel := withTimeout(ctx, s.timeouts.Lookup)
	defer cancel()

	creator, err := s.directory.GetUserByID(ctx, creatorID)
	if errors.Is(err, directory.ErrUserNotFound) {
		return nil, nil, batch.ErrInvalidUserID
	}
	if err != nil {
		return nil, nil, domain.DependencyError(err)
	}

	users, err := s.directory.GetUsersByIDs(ctx, userIDs)
	if err != nil {
		return nil, nil, domain.DependencyError(err)
	}
	return creator, users, nil
}

// propagate writes an enrollment change to the index. Fresh rows are saved in
// the foreground so reads see them at once; other changes are synced in the background.
func (s *Service) propagate(ctx context.Context, c change) {
	if !c.inserted {
		s.index.SyncEnrollment(c.snapshot)
		return
	}

	ctx, cancel := withTimeout(context.WithoutCancel(ctx), s.timeouts.Index)
	defer cancel()
	if err := s.index.SaveEnrollment(ctx, c.snapshot); err != nil {
		s.logger.Error("failed to propagate enrollment",
			"batch_id", c.snapshot.BatchID, "user_id", c.snapshot.UserID, "error", err)
	}
}

// isFatal reports whether a per-user failure must abort a bulk call.
func isFatal(err error) bool {
	return err != nil && errors.Is(err, domain.ErrDependency)
}

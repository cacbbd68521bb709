package batchservice

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"
	"github.com/burenotti/go_course_backend/internal/app/unitofwork"
	"github.com/burenotti/go_course_backend/internal/domain"
	"github.com/burenotti/go_course_backend/internal/domain/batch"
	"github.com/burenotti/go_course_backend/internal/domain/directory"
	"github.com/burenotti/go_course_backend/internal/domain/membership"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type Directory interface {
	GetUserByID(ctx context.Context, userID string) (*directory.User, error)
	GetUsersByIDs(ctx context.Context, userIDs []string) (map[string]directory.User, error)
	GetOrgByID(ctx context.Context, orgID string) (*directory.Organisation, error)
}

type CourseCatalog interface {
	GetCourse(ctx context.Context, courseID string) (*directory.Course, error)
}

type Index interface {
	GetBatch(ctx context.Context, batchID string) (batch.Snapshot, error)
	SaveBatch(ctx context.Context, b batch.Snapshot) error
	SyncBatch(b batch.Snapshot)
}

type Timeouts struct {
	Store  time.Duration
	Index  time.Duration
	Lookup time.Duration
}

type Service struct {
	directory Directory
	courses   CourseCatalog
	index     Index
	timeouts  Timeouts
	location  *time.Location
	now       func() time.Time
	logger    *slog.Logger
}

func New(
	dir Directory,
	courses CourseCatalog,
	index Index,
	timeouts Timeouts,
	location *time.Location,
	logger *slog.Logger,
) *Service {
	if location == nil {
		location = time.UTC
	}
	return &Service{
		directory: dir,
		courses:   courses,
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

type CreateRequest struct {
	CourseID          string
	Name              string
	Description       string
	EnrollmentType    batch.EnrollmentType
	StartDate         string
	EndDate           string
	EnrollmentEndDate string
	CreatedBy         string
	CreatedFor        []string
	Mentors           []string
	// Participants must stay nil. Participants join through enrollment.
	Participants []string
}

func (s *Service) Create(
	ctx context.Context,
	uow *unitofwork.UnitOfWork[*AtomicContext],
	req CreateRequest,
) (string, error) {
	if req.Participants != nil {
		return "", batch.ErrInvalidParameter
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}

	now := s.now()
	today := batch.Today(now, s.location)

	start, err := batch.ValidateCreateWindow(req.StartDate)
	if err != nil {
		return "", err
	}
	dates := batch.Dates{Start: start}
	if dates.End, err = batch.ParseDate(req.EndDate); err != nil {
		return "", err
	}
	if dates.EnrollmentEnd, err = batch.ParseDate(req.EnrollmentEndDate); err != nil {
		return "", err
	}
	if err := batch.ValidateCreateDates(dates, today); err != nil {
		return "", err
	}

	enrollmentType := req.EnrollmentType
	if enrollmentType == "" {
		enrollmentType = batch.EnrollmentOpen
	}
	if !enrollmentType.Valid() {
		return "", batch.ErrInvalidEnrollmentType
	}

	course, err := s.liveCourse(ctx, req.CourseID)
	if err != nil {
		return "", err
	}

	createdFor := lo.Uniq(req.CreatedFor)
	if err := s.validateOrgs(ctx, createdFor); err != nil {
		return "", err
	}
	mentors := lo.Uniq(req.Mentors)
	if err := s.validateMentors(ctx, req.CreatedBy, mentors); err != nil {
		return "", err
	}

	b := batch.New(batch.Snapshot{
		BatchID:           id.String(),
		CourseID:          course.CourseID,
		CourseName:        course.Name,
		Name:              req.Name,
		Description:       req.Description,
		EnrollmentType:    enrollmentType,
		Status:            batch.DeriveInitialStatus(start, today),
		StartDate:         dates.Start,
		EndDate:           dates.End,
		EnrollmentEndDate: dates.EnrollmentEnd,
		CreatedBy:         req.CreatedBy,
		CreatedFor:        createdFor,
		Mentors:           mentors,
	}, now)

	storeCtx, cancel := withTimeout(ctx, s.timeouts.Store)
	defer cancel()
	err = uow.Atomic(storeCtx, func(ctx *AtomicContext) error {
		if err := ctx.BatchStorage.Add(ctx.Context(), b); err != nil {
			return domain.DependencyError(err)
		}
		return domain.DependencyError(ctx.Commit())
	})
	if err != nil {
		return "", err
	}

	s.propagate(ctx, b.Snapshot)
	s.logger.Info("batch created", "batch_id", b.BatchID, "course_id", b.CourseID, "status", b.Status.String())
	return b.BatchID, nil
}

type UpdateRequest struct {
	CourseID          string
	BatchID           string
	RequestedBy       string
	Name              *string
	Description       *string
	EnrollmentType    *batch.EnrollmentType
	StartDate         *string
	EndDate           *string
	EnrollmentEndDate *string
	// nil keeps the stored list
	CreatedFor   []string
	Mentors      []string
	Participants []string
}

func (r UpdateRequest) dateChange() (batch.DateChange, error) {
	var change batch.DateChange
	parse := func(raw *string) (*civil.Date, error) {
		if raw == nil {
			return nil, nil
		}
		d, err := batch.ParseDate(*raw)
		if err != nil {
			return nil, err
		}
		return &d, nil
	}

	var err error
	if change.Start, err = parse(r.StartDate); err != nil {
		return change, err
	}
	if change.Start != nil && change.Start.IsZero() {
		return change, batch.ErrInvalidDate
	}
	if change.End, err = parse(r.EndDate); err != nil {
		return change, err
	}
	if change.EnrollmentEnd, err = parse(r.EnrollmentEndDate); err != nil {
		return change, err
	}
	return change, nil
}

func (s *Service) Update(
	ctx context.Context,
	uow *unitofwork.UnitOfWork[*AtomicContext],
	req UpdateRequest,
) error {
	if req.Participants != nil {
		return batch.ErrInvalidParameter
	}
	change, err := req.dateChange()
	if err != nil {
		return err
	}

	now := s.now()
	today := batch.Today(now, s.location)

	var updated batch.Snapshot
	storeCtx, cancel := withTimeout(ctx, s.timeouts.Store)
	defer cancel()
	err = uow.Atomic(storeCtx, func(actx *AtomicContext) error {
		b, err := actx.BatchStorage.GetByID(actx.Context(), req.CourseID, req.BatchID)
		if err != nil {
			return domain.DependencyError(err)
		}
		existing := b.Snapshot.Clone()
		merged := existing.Clone()

		if req.EnrollmentType != nil {
			if !req.EnrollmentType.Valid() {
				return batch.ErrInvalidEnrollmentType
			}
			merged.EnrollmentType = *req.EnrollmentType
		}
		var newOrgs []string
		if req.CreatedFor != nil {
			merged.CreatedFor = lo.Uniq(req.CreatedFor)
			newOrgs = lo.Without(merged.CreatedFor, existing.CreatedFor...)
		}
		if req.Name != nil {
			merged.Name = *req.Name
		}
		if req.Description != nil {
			merged.Description = *req.Description
		}
		if req.Mentors != nil {
			merged.Mentors = lo.Uniq(req.Mentors)
		}

		dates, err := batch.ValidateUpdateWindow(existing, change, today)
		if err != nil {
			return err
		}
		merged.StartDate, merged.EndDate, merged.EnrollmentEndDate = dates.Start, dates.End, dates.EnrollmentEnd

		if !existing.IsManagedBy(req.RequestedBy) {
			return batch.ErrUnauthorized
		}

		if err := s.validateOrgs(ctx, newOrgs); err != nil {
			return err
		}
		// kept mentors are re-checked too, they may have left the org since
		if err := s.validateMentors(ctx, existing.CreatedBy, merged.Mentors); err != nil {
			return err
		}

		delta := membership.MentorDelta(existing.Mentors, merged.Mentors)

		b.Snapshot = merged
		if b.Status == batch.StatusNotStarted && b.StartDate == today {
			b.Open(now)
		}
		b.Touch(delta, now)

		if err := actx.BatchStorage.Persist(actx.Context(), b); err != nil {
			return domain.DependencyError(err)
		}
		if err := actx.Commit(); err != nil {
			return domain.DependencyError(err)
		}
		updated = b.Snapshot.Clone()
		return nil
	})
	if err != nil {
		return err
	}

	s.propagate(ctx, updated)
	s.logger.Info("batch updated", "batch_id", updated.BatchID, "requested_by", req.RequestedBy)
	return nil
}

// GetBatch reads the batch from the search index only.
func (s *Service) GetBatch(ctx context.Context, batchID string) (batch.Snapshot, error) {
	ctx, cancel := withTimeout(ctx, s.timeouts.Index)
	defer cancel()
	b, err := s.index.GetBatch(ctx, batchID)
	if err != nil {
		return batch.Snapshot{}, domain.DependencyError(err)
	}
	return b, nil
}

type RolloverResult struct {
	Opened    int
	Completed int
}

// Rollover moves due batches one status forward: not started batches whose
// start date has come are opened, started batches past their end date are completed.
func (s *Service) Rollover(
	ctx context.Context,
	uow *unitofwork.UnitOfWork[*AtomicContext],
) (RolloverResult, error) {
	now := s.now()
	today := batch.Today(now, s.location)

	var (
		result  RolloverResult
		changed []batch.Snapshot
	)
	storeCtx, cancel := withTimeout(ctx, s.timeouts.Store)
	defer cancel()
	err := uow.Atomic(storeCtx, func(actx *AtomicContext) error {
		due, err := actx.BatchStorage.ListDue(actx.Context(), today)
		if err != nil {
			return domain.DependencyError(err)
		}
		for _, b := range due {
			if b.Status == batch.StatusNotStarted && !b.StartDate.After(today) {
				b.Open(now)
				result.Opened++
			}
			if b.Status == batch.StatusStarted && !b.EndDate.IsZero() && b.EndDate.Before(today) {
				b.Complete(now)
				result.Completed++
			}
			if err := actx.BatchStorage.Persist(actx.Context(), b); err != nil {
				return domain.DependencyError(err)
			}
			changed = append(changed, b.Snapshot.Clone())
		}
		return domain.DependencyError(actx.Commit())
	})
	if err != nil {
		return RolloverResult{}, err
	}

	for _, b := range changed {
		s.index.SyncBatch(b)
	}
	if len(changed) > 0 {
		s.logger.Info("batch statuses rolled over",
			"date", today.String(), "opened", result.Opened, "completed", result.Completed)
	}
	return result, nil
}

func (s *Service) propagate(ctx context.Context, b batch.Snapshot) {
	ctx, cancel := withTimeout(context.WithoutCancel(ctx), s.timeouts.Index)
	defer cancel()
	if err := s.index.SaveBatch(ctx, b); err != nil {
		s.logger.Error("failed to propagate batch", "batch_id", b.BatchID, "error", err)
	}
}

func (s *Service) liveCourse(ctx context.Context, courseID string) (*directory.Course, error) {
	if courseID == "" {
		return nil, batch.ErrInvalidCourseID
	}
	ctx, cancel := withTimeout(ctx, s.timeouts.Lookup)
	defer cancel()

	course, err := s.courses.GetCourse(ctx, courseID)
	if errors.Is(err, directory.ErrCourseNotFound) {
		return nil, batch.ErrInvalidCourseID
	}
	if err != nil {
		return nil, domain.DependencyError(err)
	}
	if !course.IsLive() {
		return nil, batch.ErrInvalidCourseID
	}
	return course, nil
}

func (s *Service) validateOrgs(ctx context.Context, orgIDs []string) error {
	if len(orgIDs) == 0 {
		return nil
	}
	ctx, cancel := withTimeout(ctx, s.timeouts.Lookup)
	defer cancel()

	for _, orgID := range orgIDs {
		_, err := s.directory.GetOrgByID(ctx, orgID)
		if errors.Is(err, directory.ErrOrgNotFound) {
			return batch.ErrInvalidOrgID
		}
		if err != nil {
			return domain.DependencyError(err)
		}
	}
	return nil
}

// validateMentors checks mentors in order and stops at the first failure.
func (s *Service) validateMentors(ctx context.Context, creatorID string, mentors []string) error {
	if len(mentors) == 0 {
		return nil
	}
	ctx, cancel := withTimeout(ctx, s.timeouts.Lookup)
	defer cancel()

	creator, err := s.directory.GetUserByID(ctx, creatorID)
	if errors.Is(err, directory.ErrUserNotFound) {
		return batch.ErrInvalidUserID
	}
	if err != nil {
		return domain.DependencyError(err)
	}

	users, err := s.directory.GetUsersByIDs(ctx, mentors)
	if err != nil {
		return domain.DependencyError(err)
	}
	for _, id := range mentors {
		u, ok := users[id]
		if !ok || u.IsDeleted {
			return batch.ErrInvalidUserID
		}
		if u.RootOrgID != creator.RootOrgID {
			return batch.ErrUserNotAssociatedToRootOrg
		}
	}
	return nil
}

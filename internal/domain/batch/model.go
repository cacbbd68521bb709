package batch

import (
	"slices"
	"time"

	"cloud.google.com/go/civil"
	"github.com/burenotti/go_course_backend/internal/domain"
	"github.com/burenotti/go_course_backend/internal/domain/membership"
)

var (
	ErrInvalidParameter = domain.NewError(domain.ErrValidation,
		"INVALID_PARAMETER_VALUE", "participants cannot be set on a batch, use enrollment")
	ErrInvalidOrgID = domain.NewError(domain.ErrValidation,
		"INVALID_ORGANISATION_ID", "organisation does not exist")
	ErrInvalidUserID = domain.NewError(domain.ErrValidation,
		"INVALID_USER_ID", "user does not exist")
	ErrInvalidCourseID = domain.NewError(domain.ErrValidation,
		"INVALID_COURSE_ID", "course does not exist or is not live")
	ErrUserNotAssociatedToRootOrg = domain.NewError(domain.ErrValidation,
		"USER_NOT_ASSOCIATED_TO_ROOT_ORG", "user is not associated with the root organisation of the batch creator")
	ErrInvalidEnrollmentType = domain.NewError(domain.ErrValidation,
		"INVALID_ENROLLMENT_TYPE", "enrollment type must be open or invite-only")

	ErrBatchAlreadyCompleted = domain.NewError(domain.ErrConflict,
		"BATCH_ALREADY_COMPLETED", "batch is completed and can no longer be updated")
	ErrCourseBatchAlreadyCompleted = domain.NewError(domain.ErrConflict,
		"COURSE_BATCH_ALREADY_COMPLETED", "batch is already completed")
	ErrEnrollmentEnded = domain.NewError(domain.ErrConflict,
		"COURSE_BATCH_ENROLLMENT_DATE_ENDED", "enrollment for this batch has ended")
	ErrEnrollmentTypeValidation = domain.NewError(domain.ErrConflict,
		"ENROLLMENT_TYPE_VALIDATION", "operation is not allowed for the enrollment type of this batch")
	ErrBatchExists = domain.NewError(domain.ErrConflict,
		"BATCH_ALREADY_EXISTS", "batch already exists")

	ErrBatchNotFound = domain.NewError(domain.ErrNotFound,
		"INVALID_COURSE_BATCH_ID", "batch does not exist")

	ErrUnauthorized = domain.NewError(domain.ErrUnauthorized,
		"UNAUTHORIZED_USER", "requester is not allowed to perform this action")
)

const (
	EventCreated   = "batch.created"
	EventOpened    = "batch.opened"
	EventUpdated   = "batch.updated"
	EventCompleted = "batch.completed"
)

type Status int

const (
	StatusNotStarted Status = iota
	StatusStarted
	StatusCompleted
)

func (s Status) String() string {
	switch s {
	case StatusNotStarted:
		return "not-started"
	case StatusStarted:
		return "started"
	case StatusCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

type EnrollmentType string

const (
	EnrollmentOpen       EnrollmentType = "open"
	EnrollmentInviteOnly EnrollmentType = "invite-only"
)

func (t EnrollmentType) Valid() bool {
	return t == EnrollmentOpen || t == EnrollmentInviteOnly
}

// Snapshot is the plain data of a batch. It is what the search index and events carry.
type Snapshot struct {
	BatchID           string
	CourseID          string
	CourseName        string
	Name              string
	Description       string
	EnrollmentType    EnrollmentType
	Status            Status
	StartDate         civil.Date
	EndDate           civil.Date
	EnrollmentEndDate civil.Date
	CreatedBy         string
	CreatedFor        []string
	Mentors           []string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (s Snapshot) Clone() Snapshot {
	s.CreatedFor = slices.Clone(s.CreatedFor)
	s.Mentors = slices.Clone(s.Mentors)
	return s
}

func (s Snapshot) Dates() Dates {
	return Dates{Start: s.StartDate, End: s.EndDate, EnrollmentEnd: s.EnrollmentEndDate}
}

// IsManagedBy reports whether userID created the batch or mentors it.
func (s Snapshot) IsManagedBy(userID string) bool {
	return s.CreatedBy == userID || slices.Contains(s.Mentors, userID)
}

type Batch struct {
	domain.Aggregate
	Snapshot
}

func New(s Snapshot, now time.Time) *Batch {
	s = s.Clone()
	s.CreatedAt = now.UTC()
	s.UpdatedAt = now.UTC()
	b := &Batch{Snapshot: s}
	b.PushEvent(Created{BaseEvent: domain.BaseEvent{At: now}, Batch: b.Snapshot.Clone()})
	if s.Status == StatusStarted {
		b.PushEvent(Opened{BaseEvent: domain.BaseEvent{At: now}, Batch: b.Snapshot.Clone()})
	}
	return b
}

// FromSnapshot rebuilds an aggregate from stored state without raising events.
func FromSnapshot(s Snapshot) *Batch {
	return &Batch{Snapshot: s.Clone()}
}

// Open moves a not-started batch to started.
func (b *Batch) Open(now time.Time) {
	if b.Status != StatusNotStarted {
		return
	}
	b.Status = StatusStarted
	b.UpdatedAt = now.UTC()
	b.PushEvent(Opened{BaseEvent: domain.BaseEvent{At: now}, Batch: b.Snapshot.Clone()})
}

// Complete moves a started batch to completed.
func (b *Batch) Complete(now time.Time) {
	if b.Status != StatusStarted {
		return
	}
	b.Status = StatusCompleted
	b.UpdatedAt = now.UTC()
	b.PushEvent(Completed{BaseEvent: domain.BaseEvent{At: now}, Batch: b.Snapshot.Clone()})
}

// Touch records an update together with the mentor delta that notifications fan out on.
func (b *Batch) Touch(delta membership.Delta, now time.Time) {
	b.UpdatedAt = now.UTC()
	b.PushEvent(Updated{BaseEvent: domain.BaseEvent{At: now}, Batch: b.Snapshot.Clone(), Delta: delta})
}

type Created struct {
	domain.BaseEvent
	Batch Snapshot
}

func (Created) Type() string { return EventCreated }

type Opened struct {
	domain.BaseEvent
	Batch Snapshot
}

func (Opened) Type() string { return EventOpened }

type Updated struct {
	domain.BaseEvent
	Batch Snapshot
	Delta membership.Delta
}

func (Updated) Type() string { return EventUpdated }

type Completed struct {
	domain.BaseEvent
	Batch Snapshot
}

func (Completed) Type() string { return EventCompleted }

// Filter selects batch documents in the search index. Zero fields do not filter.
type Filter struct {
	CourseID       string
	BatchIDs       []string
	Statuses       []Status
	EnrollmentType EnrollmentType
}

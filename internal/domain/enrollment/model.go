package enrollment

import (
	"time"

	"github.com/burenotti/go_course_backend/internal/domain"
	"github.com/burenotti/go_course_backend/internal/domain/batch"
)

var (
	ErrUserAlreadyEnrolledCourse = domain.NewError(domain.ErrConflict,
		"USER_ALREADY_ENROLLED_COURSE", "user is already enrolled in this course")
	ErrUserNotEnrolledCourse = domain.NewError(domain.ErrNotFound,
		"USER_NOT_ENROLLED_COURSE", "user is not enrolled in this batch")
	ErrEnrollmentNotFound = domain.NewError(domain.ErrNotFound,
		"ENROLLMENT_NOT_FOUND", "enrollment does not exist")
)

const (
	EventEnrolled   = "enrollment.enrolled"
	EventUnenrolled = "enrollment.unenrolled"
)

// Progress is the learning progress of a participant.
type Progress int

const (
	ProgressNotStarted Progress = iota
	ProgressInProgress
	ProgressCompleted
)

type Snapshot struct {
	BatchID    string
	UserID     string
	CourseID   string
	Active     bool
	Progress   Progress
	AddedBy    string
	EnrolledOn time.Time
	UpdatedAt  time.Time
}

// ID is the identity of an enrollment in the search index.
func (s Snapshot) ID() string {
	return ID(s.BatchID, s.UserID)
}

func ID(batchID, userID string) string {
	return batchID + ":" + userID
}

type Enrollment struct {
	domain.Aggregate
	Snapshot
}

// New creates an active enrollment of userID into b on behalf of addedBy.
func New(b batch.Snapshot, userID, addedBy string, now time.Time) *Enrollment {
	e := &Enrollment{Snapshot: Snapshot{
		BatchID:    b.BatchID,
		UserID:     userID,
		CourseID:   b.CourseID,
		Active:     true,
		Progress:   ProgressNotStarted,
		AddedBy:    addedBy,
		EnrolledOn: now.UTC(),
		UpdatedAt:  now.UTC(),
	}}
	e.PushEvent(Enrolled{BaseEvent: domain.BaseEvent{At: now}, Enrollment: e.Snapshot, Batch: b.Clone()})
	return e
}

func FromSnapshot(s Snapshot) *Enrollment {
	return &Enrollment{Snapshot: s}
}

// Activate reactivates an inactive enrollment, keeping its identity.
func (e *Enrollment) Activate(b batch.Snapshot, addedBy string, now time.Time) error {
	if e.Active {
		return ErrUserAlreadyEnrolledCourse
	}
	e.Active = true
	e.AddedBy = addedBy
	e.UpdatedAt = now.UTC()
	e.PushEvent(Enrolled{BaseEvent: domain.BaseEvent{At: now}, Enrollment: e.Snapshot, Batch: b.Clone()})
	return nil
}

func (e *Enrollment) Deactivate(b batch.Snapshot, removedBy string, now time.Time) error {
	if !e.Active {
		return ErrUserNotEnrolledCourse
	}
	e.Active = false
	e.UpdatedAt = now.UTC()
	e.PushEvent(Unenrolled{
		BaseEvent:  domain.BaseEvent{At: now},
		Enrollment: e.Snapshot,
		Batch:      b.Clone(),
		RemovedBy:  removedBy,
	})
	return nil
}

type Enrolled struct {
	domain.BaseEvent
	Enrollment Snapshot
	Batch      batch.Snapshot
}

func (Enrolled) Type() string { return EventEnrolled }

// SelfService reports whether the user enrolled themselves.
func (e Enrolled) SelfService() bool {
	return e.Enrollment.AddedBy == e.Enrollment.UserID
}

type Unenrolled struct {
	domain.BaseEvent
	Enrollment Snapshot
	Batch      batch.Snapshot
	RemovedBy  string
}

func (Unenrolled) Type() string { return EventUnenrolled }

func (e Unenrolled) SelfService() bool {
	return e.RemovedBy == e.Enrollment.UserID
}

// Filter selects enrollment documents in the search index. Zero fields do not filter.
type Filter struct {
	BatchID  string
	UserID   string
	CourseID string
	Active   *bool
}

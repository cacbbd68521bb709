package batch

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/burenotti/go_course_backend/internal/domain"
)

var (
	ErrInvalidDate = domain.NewError(domain.ErrValidation,
		"INVALID_DATE_FORMAT", "date is missing or not in YYYY-MM-DD format")
	ErrInvalidStartDate = domain.NewError(domain.ErrValidation,
		"INVALID_BATCH_START_DATE_ERROR", "batch start date is invalid or can no longer be changed")
	ErrInvalidEndDate = domain.NewError(domain.ErrValidation,
		"INVALID_BATCH_END_DATE_ERROR", "batch end date must not be before the start date")
	ErrBatchEndDate = domain.NewError(domain.ErrValidation,
		"COURSE_BATCH_END_DATE_ERROR", "batch end date must be after today")
	ErrEnrollmentEndDateBeforeStart = domain.NewError(domain.ErrValidation,
		"ENROLLMENT_END_DATE_START_ERROR", "enrollment end date must not be before the batch start date")
	ErrEnrollmentEndDateAfterEnd = domain.NewError(domain.ErrValidation,
		"ENROLLMENT_END_DATE_END_ERROR", "enrollment end date must not be after the batch end date")
	ErrEnrollmentEndDateInPast = domain.NewError(domain.ErrValidation,
		"ENROLLMENT_END_DATE_UPDATE_ERROR", "enrollment end date must not be in the past")
)

// Dates holds the calendar dates of a batch. A zero date means the date is absent.
type Dates struct {
	Start         civil.Date
	End           civil.Date
	EnrollmentEnd civil.Date
}

// DateChange carries requested date updates; nil fields were not requested.
type DateChange struct {
	Start         *civil.Date
	End           *civil.Date
	EnrollmentEnd *civil.Date
}

// Today returns the calendar date of now in loc.
func Today(now time.Time, loc *time.Location) civil.Date {
	if loc == nil {
		loc = time.UTC
	}
	return civil.DateOf(now.In(loc))
}

// ParseDate parses YYYY-MM-DD. The empty string is an absent date.
func ParseDate(s string) (civil.Date, error) {
	if s == "" {
		return civil.Date{}, nil
	}
	d, err := civil.ParseDate(s)
	if err != nil || !d.IsValid() {
		return civil.Date{}, ErrInvalidDate
	}
	return d, nil
}

// FormatDate is the inverse of ParseDate.
func FormatDate(d civil.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

func DeriveInitialStatus(start, today civil.Date) Status {
	if start == today {
		return StatusStarted
	}
	return StatusNotStarted
}

func ValidateCreateWindow(start string) (civil.Date, error) {
	if start == "" {
		return civil.Date{}, ErrInvalidDate
	}
	return ParseDate(start)
}

// ValidateCreateDates checks the relations between the dates of a new batch.
func ValidateCreateDates(d Dates, today civil.Date) error {
	if d.Start.Before(today) {
		return ErrInvalidStartDate
	}
	if !d.End.IsZero() && d.End.Before(d.Start) {
		return ErrInvalidEndDate
	}
	if !d.EnrollmentEnd.IsZero() {
		if d.EnrollmentEnd.Before(d.Start) {
			return ErrEnrollmentEndDateBeforeStart
		}
		if !d.End.IsZero() && d.EnrollmentEnd.After(d.End) {
			return ErrEnrollmentEndDateAfterEnd
		}
	}
	return nil
}

// ValidateUpdateWindow checks a date change against the stored batch and returns
// the effective dates that would result from applying it.
func ValidateUpdateWindow(existing Snapshot, change DateChange, today civil.Date) (Dates, error) {
	if existing.Status == StatusCompleted {
		return Dates{}, ErrBatchAlreadyCompleted
	}

	eff := existing.Dates()

	if change.Start != nil && *change.Start != existing.StartDate {
		// a batch that has begun cannot be rescheduled
		if !existing.StartDate.After(today) {
			return Dates{}, ErrInvalidStartDate
		}
		if change.Start.Before(today) {
			return Dates{}, ErrInvalidStartDate
		}
		eff.Start = *change.Start
	}

	if change.End != nil {
		eff.End = *change.End
	}

	if !eff.End.IsZero() && eff.End.Before(eff.Start) {
		return Dates{}, ErrInvalidEndDate
	}

	if !existing.EndDate.IsZero() && !existing.EndDate.After(today) {
		return Dates{}, ErrBatchEndDate
	}
	if !eff.End.IsZero() && !eff.End.After(today) {
		return Dates{}, ErrBatchEndDate
	}

	if change.EnrollmentEnd != nil {
		eff.EnrollmentEnd = *change.EnrollmentEnd
	}

	// a kept enrollment end must still fit a moved start or end
	if !eff.EnrollmentEnd.IsZero() {
		if eff.EnrollmentEnd.Before(eff.Start) {
			return Dates{}, ErrEnrollmentEndDateBeforeStart
		}
		if !eff.End.IsZero() && eff.EnrollmentEnd.After(eff.End) {
			return Dates{}, ErrEnrollmentEndDateAfterEnd
		}
		if change.EnrollmentEnd != nil && eff.EnrollmentEnd != existing.EnrollmentEndDate &&
			eff.EnrollmentEnd.Before(today) {
			return Dates{}, ErrEnrollmentEndDateInPast
		}
	}

	return eff, nil
}

// IsEligibleForEnrollment reports whether users may currently join or leave b.
func IsEligibleForEnrollment(b Snapshot, today civil.Date) error {
	if !b.EnrollmentEndDate.IsZero() && b.EnrollmentEndDate.Before(today) {
		return ErrEnrollmentEnded
	}
	if b.Status == StatusCompleted {
		return ErrCourseBatchAlreadyCompleted
	}
	if !b.EndDate.IsZero() && b.EndDate.Before(today) {
		return ErrCourseBatchAlreadyCompleted
	}
	return nil
}

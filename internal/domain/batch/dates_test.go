package batch

import (
	"testing"

	"cloud.google.com/go/civil"
	"github.com/burenotti/go_course_backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = civil.Date{Year: 2024, Month: 5, Day: 10}

func day(offset int) civil.Date {
	return today.AddDays(offset)
}

func ptr(d civil.Date) *civil.Date {
	return &d
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-05-10")
	require.NoError(t, err)
	assert.Equal(t, today, d)

	d, err = ParseDate("")
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	_, err = ParseDate("10/05/2024")
	assert.ErrorIs(t, err, ErrInvalidDate)
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.Equal(t, "", FormatDate(civil.Date{}))
	assert.Equal(t, "2024-05-10", FormatDate(today))
}

func TestDeriveInitialStatus(t *testing.T) {
	assert.Equal(t, StatusStarted, DeriveInitialStatus(today, today))
	assert.Equal(t, StatusNotStarted, DeriveInitialStatus(day(1), today))
	assert.Equal(t, StatusNotStarted, DeriveInitialStatus(day(30), today))
}

func TestValidateCreateWindow(t *testing.T) {
	_, err := ValidateCreateWindow("")
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, err = ValidateCreateWindow("2024-13-01")
	assert.ErrorIs(t, err, ErrInvalidDate)

	d, err := ValidateCreateWindow("2024-05-11")
	require.NoError(t, err)
	assert.Equal(t, day(1), d)
}

func TestValidateCreateDates(t *testing.T) {
	tests := []struct {
		name  string
		dates Dates
		want  error
	}{
		{"start today without end", Dates{Start: today}, nil},
		{"full window", Dates{Start: today, End: day(30), EnrollmentEnd: day(10)}, nil},
		{"start in the past", Dates{Start: day(-1)}, ErrInvalidStartDate},
		{"end before start", Dates{Start: day(5), End: day(4)}, ErrInvalidEndDate},
		{"enrollment end before start", Dates{Start: day(5), End: day(10), EnrollmentEnd: day(4)}, ErrEnrollmentEndDateBeforeStart},
		{"enrollment end after end", Dates{Start: day(5), End: day(10), EnrollmentEnd: day(11)}, ErrEnrollmentEndDateAfterEnd},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCreateDates(tt.dates, today)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestValidateUpdateWindow(t *testing.T) {
	future := Snapshot{Status: StatusNotStarted, StartDate: day(5), EndDate: day(30)}
	running := Snapshot{Status: StatusStarted, StartDate: day(-1), EndDate: day(30)}

	tests := []struct {
		name     string
		existing Snapshot
		change   DateChange
		want     error
		wantEff  Dates
	}{
		{
			name:     "no change",
			existing: future,
			wantEff:  Dates{Start: day(5), End: day(30)},
		},
		{
			name:     "reschedule future batch",
			existing: future,
			change:   DateChange{Start: ptr(day(7)), End: ptr(day(40))},
			wantEff:  Dates{Start: day(7), End: day(40)},
		},
		{
			name:     "move start to today",
			existing: future,
			change:   DateChange{Start: ptr(today)},
			wantEff:  Dates{Start: today, End: day(30)},
		},
		{
			name:     "completed batch",
			existing: Snapshot{Status: StatusCompleted, StartDate: day(5), EndDate: day(30)},
			change:   DateChange{End: ptr(day(50))},
			want:     ErrBatchAlreadyCompleted,
		},
		{
			name:     "started batch cannot be rescheduled",
			existing: running,
			change:   DateChange{Start: ptr(day(2))},
			want:     ErrInvalidStartDate,
		},
		{
			name:     "started batch may resend its own start date",
			existing: running,
			change:   DateChange{Start: ptr(day(-1)), End: ptr(day(20))},
			wantEff:  Dates{Start: day(-1), End: day(20)},
		},
		{
			name:     "new start in the past",
			existing: future,
			change:   DateChange{Start: ptr(day(-2))},
			want:     ErrInvalidStartDate,
		},
		{
			name:     "end before start",
			existing: future,
			change:   DateChange{End: ptr(day(4))},
			want:     ErrInvalidEndDate,
		},
		{
			name:     "end today",
			existing: Snapshot{Status: StatusStarted, StartDate: day(-3), EndDate: day(30)},
			change:   DateChange{End: ptr(today)},
			want:     ErrBatchEndDate,
		},
		{
			name:     "existing end already passed",
			existing: Snapshot{Status: StatusStarted, StartDate: day(-10), EndDate: day(-1)},
			change:   DateChange{End: ptr(day(10))},
			want:     ErrBatchEndDate,
		},
		{
			name:     "enrollment end before start",
			existing: future,
			change:   DateChange{EnrollmentEnd: ptr(day(4))},
			want:     ErrEnrollmentEndDateBeforeStart,
		},
		{
			name:     "enrollment end after end",
			existing: future,
			change:   DateChange{EnrollmentEnd: ptr(day(31))},
			want:     ErrEnrollmentEndDateAfterEnd,
		},
		{
			name:     "enrollment end in the past",
			existing: Snapshot{Status: StatusStarted, StartDate: day(-5), EndDate: day(30), EnrollmentEndDate: day(1)},
			change:   DateChange{EnrollmentEnd: ptr(day(-1))},
			want:     ErrEnrollmentEndDateInPast,
		},
		{
			name:     "unchanged past enrollment end is accepted",
			existing: Snapshot{Status: StatusStarted, StartDate: day(-5), EndDate: day(30), EnrollmentEndDate: day(-1)},
			change:   DateChange{EnrollmentEnd: ptr(day(-1))},
			wantEff:  Dates{Start: day(-5), End: day(30), EnrollmentEnd: day(-1)},
		},
		{
			name:     "start moved past stored enrollment end",
			existing: Snapshot{Status: StatusNotStarted, StartDate: day(5), EndDate: day(30), EnrollmentEndDate: day(7)},
			change:   DateChange{Start: ptr(day(10))},
			want:     ErrEnrollmentEndDateBeforeStart,
		},
		{
			name:     "end moved before stored enrollment end",
			existing: Snapshot{Status: StatusNotStarted, StartDate: day(5), EndDate: day(30), EnrollmentEndDate: day(7)},
			change:   DateChange{End: ptr(day(6))},
			want:     ErrEnrollmentEndDateAfterEnd,
		},
		{
			name:     "moved start and enrollment end together",
			existing: Snapshot{Status: StatusNotStarted, StartDate: day(5), EndDate: day(30), EnrollmentEndDate: day(7)},
			change:   DateChange{Start: ptr(day(10)), EnrollmentEnd: ptr(day(12))},
			wantEff:  Dates{Start: day(10), End: day(30), EnrollmentEnd: day(12)},
		},
		{
			name:     "stored enrollment end still fits",
			existing: Snapshot{Status: StatusNotStarted, StartDate: day(5), EndDate: day(30), EnrollmentEndDate: day(7)},
			change:   DateChange{End: ptr(day(20))},
			wantEff:  Dates{Start: day(5), End: day(20), EnrollmentEnd: day(7)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eff, err := ValidateUpdateWindow(tt.existing, tt.change, today)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantEff, eff)
		})
	}
}

func TestValidateUpdateWindow_CompletedAlwaysFails(t *testing.T) {
	completed := Snapshot{Status: StatusCompleted, StartDate: day(-30), EndDate: day(-1)}
	changes := []DateChange{
		{},
		{Start: ptr(day(10))},
		{End: ptr(day(100))},
		{EnrollmentEnd: ptr(day(3))},
		{Start: ptr(day(-30)), End: ptr(day(-1))},
	}
	for _, c := range changes {
		_, err := ValidateUpdateWindow(completed, c, today)
		assert.ErrorIs(t, err, ErrBatchAlreadyCompleted)
	}
}

func TestIsEligibleForEnrollment(t *testing.T) {
	assert.NoError(t, IsEligibleForEnrollment(Snapshot{Status: StatusNotStarted, StartDate: day(5)}, today))
	assert.NoError(t, IsEligibleForEnrollment(Snapshot{Status: StatusStarted, StartDate: day(-5), EndDate: today}, today))

	assert.ErrorIs(t,
		IsEligibleForEnrollment(Snapshot{Status: StatusStarted, EnrollmentEndDate: day(-1)}, today),
		ErrEnrollmentEnded)
	assert.ErrorIs(t,
		IsEligibleForEnrollment(Snapshot{Status: StatusCompleted}, today),
		ErrCourseBatchAlreadyCompleted)
	assert.ErrorIs(t,
		IsEligibleForEnrollment(Snapshot{Status: StatusStarted, EndDate: day(-1)}, today),
		ErrCourseBatchAlreadyCompleted)
}

package searchindex

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/burenotti/go_course_backend/internal/domain/batch"
	"github.com/burenotti/go_course_backend/internal/domain/enrollment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestBatchFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter batch.Filter
		want   bson.D
	}{
		{name: "empty", filter: batch.Filter{}, want: bson.D{}},
		{
			name: "course and statuses",
			filter: batch.Filter{
				CourseID: "c1",
				Statuses: []batch.Status{batch.StatusNotStarted, batch.StatusStarted},
			},
			want: bson.D{
				{Key: "course_id", Value: "c1"},
				{Key: "status", Value: bson.M{"$in": []int{0, 1}}},
			},
		},
		{
			name:   "ids and enrollment type",
			filter: batch.Filter{BatchIDs: []string{"b1", "b2"}, EnrollmentType: batch.EnrollmentOpen},
			want: bson.D{
				{Key: "_id", Value: bson.M{"$in": []string{"b1", "b2"}}},
				{Key: "enrollment_type", Value: "open"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, batchFilter(tt.filter))
		})
	}
}

func TestEnrollmentFilter(t *testing.T) {
	active := true
	got := enrollmentFilter(enrollment.Filter{UserID: "u1", CourseID: "c1", Active: &active})
	assert.Equal(t, bson.D{
		{Key: "user_id", Value: "u1"},
		{Key: "course_id", Value: "c1"},
		{Key: "active", Value: true},
	}, got)

	assert.Equal(t, bson.D{{Key: "batch_id", Value: "b1"}}, enrollmentFilter(enrollment.Filter{BatchID: "b1"}))
}

func TestBatchDoc_KeepsAbsentDatesAbsent(t *testing.T) {
	s := batch.Snapshot{
		BatchID:   "b1",
		CourseID:  "c1",
		StartDate: civil.Date{Year: 2024, Month: time.May, Day: 10},
		Status:    batch.StatusStarted,
	}

	doc := toBatchDoc(s)
	assert.Equal(t, "2024-05-10", doc.StartDate)
	assert.Empty(t, doc.EndDate)
	assert.Equal(t, []string{}, doc.Mentors)

	back, err := fromBatchDoc(doc)
	require.NoError(t, err)
	assert.True(t, back.EndDate.IsZero())
	assert.Equal(t, s.StartDate, back.StartDate)
	assert.Equal(t, batch.StatusStarted, back.Status)
}

func TestFromBatchDoc_RejectsMalformedDate(t *testing.T) {
	_, err := fromBatchDoc(batchDoc{ID: "b1", StartDate: "10/05/2024"})
	assert.ErrorIs(t, err, batch.ErrInvalidDate)
}

func newMemory() *Memory {
	return NewMemory(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestMemory_SyncIsVisibleAfterWait(t *testing.T) {
	idx := newMemory()
	ctx := context.Background()

	idx.SyncBatch(batch.Snapshot{BatchID: "b1", CourseID: "c1", Mentors: []string{"m1"}})
	idx.Wait()

	got, err := idx.GetBatch(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, got.Mentors)

	_, err = idx.GetBatch(ctx, "missing")
	assert.ErrorIs(t, err, batch.ErrBatchNotFound)
}

func TestMemory_QueryEnrollments(t *testing.T) {
	idx := newMemory()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, idx.SaveEnrollment(ctx, enrollment.Snapshot{BatchID: "b1", UserID: "u1", CourseID: "c1", Active: true, EnrolledOn: now}))
	require.NoError(t, idx.SaveEnrollment(ctx, enrollment.Snapshot{BatchID: "b1", UserID: "u2", CourseID: "c1", Active: false, EnrolledOn: now.Add(time.Second)}))
	require.NoError(t, idx.SaveEnrollment(ctx, enrollment.Snapshot{BatchID: "b2", UserID: "u1", CourseID: "c2", Active: true, EnrolledOn: now}))

	active := true
	got, err := idx.QueryEnrollments(ctx, enrollment.Filter{BatchID: "b1", Active: &active})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "u1", got[0].UserID)

	got, err = idx.QueryEnrollments(ctx, enrollment.Filter{BatchID: "b1"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestMemory_FailWithLogsAsyncFailures(t *testing.T) {
	idx := newMemory()
	down := errors.New("index down")
	idx.FailWith(down)

	idx.SyncEnrollment(enrollment.Snapshot{BatchID: "b1", UserID: "u1"})
	idx.Wait()

	_, err := idx.QueryBatches(context.Background(), batch.Filter{})
	assert.ErrorIs(t, err, down)

	idx.FailWith(nil)
	_, err = idx.GetEnrollment(context.Background(), "b1", "u1")
	assert.ErrorIs(t, err, enrollment.ErrEnrollmentNotFound)
}

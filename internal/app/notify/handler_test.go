package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/burenotti/go_course_backend/internal/app/messagebus"
	"github.com/burenotti/go_course_backend/internal/domain"
	"github.com/burenotti/go_course_backend/internal/domain/batch"
	"github.com/burenotti/go_course_backend/internal/domain/enrollment"
	"github.com/burenotti/go_course_backend/internal/domain/membership"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	userIDs  []string
	template string
	content  Content
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (d *fakeDispatcher) Notify(_ context.Context, userIDs []string, template string, _ batch.Snapshot, content Content) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, call{userIDs: userIDs, template: template, content: content})
	return d.err
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var snapshot = batch.Snapshot{
	BatchID:    "b1",
	CourseID:   "c1",
	CourseName: "Go basics",
	Mentors:    []string{"m1", "m2"},
}

func TestHandler_Templates(t *testing.T) {
	tests := []struct {
		name  string
		event domain.Event
		want  []call
	}{
		{
			name:  "created invites mentors",
			event: batch.Created{Batch: snapshot},
			want:  []call{{userIDs: []string{"m1", "m2"}, template: TemplateMentorInvite}},
		},
		{
			name:  "opened",
			event: batch.Opened{Batch: snapshot},
			want:  []call{{userIDs: []string{"m1", "m2"}, template: TemplateBatchOpened}},
		},
		{
			name: "updated fans out on the mentor delta",
			event: batch.Updated{Batch: snapshot, Delta: membership.Delta{
				AddedMentors: []string{"m2"}, RemovedMentors: []string{"m3"},
			}},
			want: []call{
				{userIDs: []string{"m2"}, template: TemplateMentorAdded},
				{userIDs: []string{"m3"}, template: TemplateMentorRemoved},
			},
		},
		{
			name:  "updated without delta is silent",
			event: batch.Updated{Batch: snapshot, Delta: membership.MentorDelta(nil, nil)},
		},
		{
			name: "self enrollment",
			event: enrollment.Enrolled{Batch: snapshot, Enrollment: enrollment.Snapshot{
				UserID: "u1", AddedBy: "u1",
			}},
			want: []call{{userIDs: []string{"u1"}, template: TemplateUserEnrolled}},
		},
		{
			name: "added by mentor",
			event: enrollment.Enrolled{Batch: snapshot, Enrollment: enrollment.Snapshot{
				UserID: "u1", AddedBy: "m1",
			}},
			want: []call{{userIDs: []string{"u1"}, template: TemplateParticipantAdded}},
		},
		{
			name:  "self unenrollment",
			event: enrollment.Unenrolled{Batch: snapshot, Enrollment: enrollment.Snapshot{UserID: "u1"}, RemovedBy: "u1"},
			want:  []call{{userIDs: []string{"u1"}, template: TemplateUserUnenrolled}},
		},
		{
			name:  "removed by mentor",
			event: enrollment.Unenrolled{Batch: snapshot, Enrollment: enrollment.Snapshot{UserID: "u1"}, RemovedBy: "m1"},
			want:  []call{{userIDs: []string{"u1"}, template: TemplateParticipantRemoved}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDispatcher{}
			h := NewHandler(d, discard())

			require.NoError(t, h.Handle(context.Background(), tt.event))

			for i := range tt.want {
				tt.want[i].content = Content{CourseID: "c1", CourseName: "Go basics"}
			}
			assert.Equal(t, tt.want, d.calls)
		})
	}
}

func TestHandler_DispatchErrorIsReturned(t *testing.T) {
	d := &fakeDispatcher{err: errors.New("smtp down")}
	h := NewHandler(d, discard())

	err := h.Handle(context.Background(), batch.Opened{Batch: snapshot})
	assert.ErrorContains(t, err, TemplateBatchOpened)
}

func TestHandler_ThroughMessageBus(t *testing.T) {
	d := &fakeDispatcher{}
	bus := messagebus.New(discard(), 2, 8, time.Second)
	NewHandler(d, discard()).Register(bus)
	bus.Start(context.Background())

	require.NoError(t, bus.PublishEvents(
		batch.Created{Batch: snapshot},
		enrollment.Enrolled{Batch: snapshot, Enrollment: enrollment.Snapshot{UserID: "u1", AddedBy: "u1"}},
		batch.Completed{Batch: snapshot},
	))
	bus.Close()

	templates := make([]string, 0, len(d.calls))
	for _, c := range d.calls {
		templates = append(templates, c.template)
	}
	assert.ElementsMatch(t, []string{TemplateMentorInvite, TemplateUserEnrolled}, templates)
}

func TestAudit_LogsEveryEvent(t *testing.T) {
	var buf bytes.Buffer
	a := NewAudit(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, a.Handle(context.Background(), batch.Completed{Batch: snapshot}))
	require.NoError(t, a.Handle(context.Background(), enrollment.Unenrolled{
		Batch: snapshot, Enrollment: enrollment.Snapshot{BatchID: "b1", UserID: "u1"}, RemovedBy: "m1",
	}))

	out := buf.String()
	assert.Contains(t, out, `"type":"batch.completed"`)
	assert.Contains(t, out, `"removed_by":"m1"`)
}

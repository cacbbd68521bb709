package notifier

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/burenotti/go_course_backend/internal/app/notify"
	"github.com/burenotti/go_course_backend/internal/domain/batch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWebhook_PostsPayload(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, 0, 1, time.Second, discard())
	b := batch.Snapshot{
		BatchID:   "b1",
		Name:      "Spring",
		Status:    batch.StatusStarted,
		StartDate: civil.Date{Year: 2024, Month: time.May, Day: 10},
		Mentors:   []string{"m1"},
	}

	err := w.Notify(context.Background(), []string{"m1"}, notify.TemplateBatchOpened, b,
		notify.Content{CourseID: "c1", CourseName: "Go basics"})
	require.NoError(t, err)

	assert.Equal(t, notify.TemplateBatchOpened, got.Template)
	assert.Equal(t, []string{"m1"}, got.Recipients)
	assert.Equal(t, "2024-05-10", got.Batch.StartDate)
	assert.Empty(t, got.Batch.EndDate)
	assert.Equal(t, "started", got.Batch.Status)
	assert.Equal(t, "Go basics", got.Content.CourseName)
}

func TestWebhook_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, 0, 1, time.Second, discard())
	err := w.Notify(context.Background(), []string{"u1"}, notify.TemplateUserEnrolled, batch.Snapshot{}, notify.Content{})
	assert.ErrorIs(t, err, ErrDeliveryFailed)
}

func TestWebhook_RateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, 0.001, 1, time.Second, discard())
	require.NoError(t, w.Notify(context.Background(), []string{"u1"}, notify.TemplateUserEnrolled, batch.Snapshot{}, notify.Content{}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := w.Notify(ctx, []string{"u1"}, notify.TemplateUserEnrolled, batch.Snapshot{}, notify.Content{})
	assert.Error(t, err)
}

func TestLog_NeverFails(t *testing.T) {
	l := NewLog(discard())
	assert.NoError(t, l.Notify(context.Background(), []string{"u1"}, notify.TemplateUserEnrolled, batch.Snapshot{}, notify.Content{}))
}

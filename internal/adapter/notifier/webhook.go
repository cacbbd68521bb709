package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/burenotti/go_course_backend/internal/app/notify"
	"github.com/burenotti/go_course_backend/internal/domain/batch"
	"golang.org/x/time/rate"
)

var ErrDeliveryFailed = errors.New("notification delivery failed")

type webhookBatch struct {
	BatchID           string   `json:"batchId"`
	Name              string   `json:"name"`
	EnrollmentType    string   `json:"enrollmentType"`
	Status            string   `json:"status"`
	StartDate         string   `json:"startDate"`
	EndDate           string   `json:"endDate,omitempty"`
	EnrollmentEndDate string   `json:"enrollmentEndDate,omitempty"`
	Mentors           []string `json:"mentors"`
}

type webhookPayload struct {
	Template   string       `json:"template"`
	Recipients []string     `json:"recipients"`
	Batch      webhookBatch `json:"batch"`
	Content    struct {
		CourseID   string `json:"courseId"`
		CourseName string `json:"courseName"`
	} `json:"content"`
}

// Webhook posts each notification as JSON to a fixed URL. Requests are
// throttled so bursts of events do not flood the receiver.
type Webhook struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewWebhook(url string, perSecond float64, burst int, timeout time.Duration, logger *slog.Logger) *Webhook {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Webhook{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

func (w *Webhook) Notify(ctx context.Context, userIDs []string, template string, b batch.Snapshot, content notify.Content) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	payload := webhookPayload{
		Template:   template,
		Recipients: userIDs,
		Batch: webhookBatch{
			BatchID:           b.BatchID,
			Name:              b.Name,
			EnrollmentType:    string(b.EnrollmentType),
			Status:            b.Status.String(),
			StartDate:         batch.FormatDate(b.StartDate),
			EndDate:           batch.FormatDate(b.EndDate),
			EnrollmentEndDate: batch.FormatDate(b.EnrollmentEndDate),
			Mentors:           b.Mentors,
		},
	}
	payload.Content.CourseID = content.CourseID
	payload.Content.CourseName = content.CourseName

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return errors.Join(err, ErrDeliveryFailed)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrDeliveryFailed, resp.StatusCode)
	}
	return nil
}

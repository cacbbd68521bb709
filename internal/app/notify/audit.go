package notify

import (
	"context"
	"log/slog"

	"github.com/burenotti/go_course_backend/internal/domain"
	"github.com/burenotti/go_course_backend/internal/domain/batch"
	"github.com/burenotti/go_course_backend/internal/domain/enrollment"
)

var auditedEvents = []string{
	batch.EventCreated,
	batch.EventOpened,
	batch.EventUpdated,
	batch.EventCompleted,
	enrollment.EventEnrolled,
	enrollment.EventUnenrolled,
}

// Audit writes one structured log record per event. It is registered
// whether or not notifications are enabled.
type Audit struct {
	logger *slog.Logger
}

func NewAudit(logger *slog.Logger) *Audit {
	return &Audit{logger: logger}
}

func (a *Audit) Register(bus Registrar) {
	for _, t := range auditedEvents {
		bus.Register(t, a.Handle)
	}
}

func (a *Audit) Handle(ctx context.Context, event domain.Event) error {
	attrs := []any{"type", event.Type(), "published_at", event.PublishedAt()}

	switch e := event.(type) {
	case batch.Created:
		attrs = append(attrs, "batch_id", e.Batch.BatchID, "course_id", e.Batch.CourseID, "created_by", e.Batch.CreatedBy)
	case batch.Opened:
		attrs = append(attrs, "batch_id", e.Batch.BatchID)
	case batch.Completed:
		attrs = append(attrs, "batch_id", e.Batch.BatchID)
	case batch.Updated:
		attrs = append(attrs,
			"batch_id", e.Batch.BatchID,
			"mentors_added", e.Delta.AddedMentors,
			"mentors_removed", e.Delta.RemovedMentors)
	case enrollment.Enrolled:
		attrs = append(attrs, "batch_id", e.Enrollment.BatchID, "user_id", e.Enrollment.UserID, "added_by", e.Enrollment.AddedBy)
	case enrollment.Unenrolled:
		attrs = append(attrs, "batch_id", e.Enrollment.BatchID, "user_id", e.Enrollment.UserID, "removed_by", e.RemovedBy)
	}

	a.logger.InfoContext(ctx, "audit", attrs...)
	return nil
}

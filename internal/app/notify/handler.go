// Package notify turns domain events into notifications. Handlers run on the
// message bus workers, so dispatch failures never reach the request that raised the event.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/burenotti/go_course_backend/internal/app/messagebus"
	"github.com/burenotti/go_course_backend/internal/domain"
	"github.com/burenotti/go_course_backend/internal/domain/batch"
	"github.com/burenotti/go_course_backend/internal/domain/enrollment"
)

const (
	TemplateMentorInvite       = "batch_mentor_invite"
	TemplateBatchOpened        = "batch_opened"
	TemplateMentorAdded        = "batch_mentor_added"
	TemplateMentorRemoved      = "batch_mentor_removed"
	TemplateUserEnrolled       = "user_enrolled"
	TemplateParticipantAdded   = "participant_added"
	TemplateUserUnenrolled     = "user_unenrolled"
	TemplateParticipantRemoved = "participant_removed"
)

// Content is the course side of a notification.
type Content struct {
	CourseID   string
	CourseName string
}

type Dispatcher interface {
	Notify(ctx context.Context, userIDs []string, template string, b batch.Snapshot, content Content) error
}

type Registrar interface {
	Register(eventType string, handler messagebus.EventHandler)
}

type Handler struct {
	dispatcher Dispatcher
	logger     *slog.Logger
}

func NewHandler(dispatcher Dispatcher, logger *slog.Logger) *Handler {
	return &Handler{dispatcher: dispatcher, logger: logger}
}

func (h *Handler) Register(bus Registrar) {
	bus.Register(batch.EventCreated, h.Handle)
	bus.Register(batch.EventOpened, h.Handle)
	bus.Register(batch.EventUpdated, h.Handle)
	bus.Register(enrollment.EventEnrolled, h.Handle)
	bus.Register(enrollment.EventUnenrolled, h.Handle)
}

func (h *Handler) Handle(ctx context.Context, event domain.Event) error {
	switch e := event.(type) {
	case batch.Created:
		return h.send(ctx, e.Batch.Mentors, TemplateMentorInvite, e.Batch)
	case batch.Opened:
		return h.send(ctx, e.Batch.Mentors, TemplateBatchOpened, e.Batch)
	case batch.Updated:
		if err := h.send(ctx, e.Delta.AddedMentors, TemplateMentorAdded, e.Batch); err != nil {
			return err
		}
		return h.send(ctx, e.Delta.RemovedMentors, TemplateMentorRemoved, e.Batch)
	case enrollment.Enrolled:
		template := TemplateParticipantAdded
		if e.SelfService() {
			template = TemplateUserEnrolled
		}
		return h.send(ctx, []string{e.Enrollment.UserID}, template, e.Batch)
	case enrollment.Unenrolled:
		template := TemplateParticipantRemoved
		if e.SelfService() {
			template = TemplateUserUnenrolled
		}
		return h.send(ctx, []string{e.Enrollment.UserID}, template, e.Batch)
	default:
		return fmt.Errorf("unexpected event %s", event.Type())
	}
}

func (h *Handler) send(ctx context.Context, userIDs []string, template string, b batch.Snapshot) error {
	if len(userIDs) == 0 {
		return nil
	}
	content := Content{CourseID: b.CourseID, CourseName: b.CourseName}
	if err := h.dispatcher.Notify(ctx, userIDs, template, b, content); err != nil {
		return fmt.Errorf("notify %s: %w", template, err)
	}
	h.logger.Debug("notification dispatched", "template", template, "batch_id", b.BatchID, "recipients", len(userIDs))
	return nil
}

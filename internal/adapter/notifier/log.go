// Package notifier delivers notifications produced by the notify handlers.
package notifier

import (
	"context"
	"log/slog"

	"github.com/burenotti/go_course_backend/internal/app/notify"
	"github.com/burenotti/go_course_backend/internal/domain/batch"
)

// Log writes notifications to the log instead of delivering them.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Notify(ctx context.Context, userIDs []string, template string, b batch.Snapshot, content notify.Content) error {
	l.logger.InfoContext(ctx, "notification",
		"template", template,
		"recipients", userIDs,
		"batch_id", b.BatchID,
		"course_id", content.CourseID,
		"course_name", content.CourseName)
	return nil
}

// Package tasks runs periodic background jobs.
package tasks

import (
	"context"
	"log/slog"
	"time"

	batchservice "github.com/burenotti/go_course_backend/internal/app/batch"
	"github.com/burenotti/go_course_backend/internal/app/unitofwork"
)

type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Runner starts every job once immediately and then on its interval until ctx is done.
func Runner(ctx context.Context, logger *slog.Logger, jobs ...Job) error {
	done := make(chan struct{}, len(jobs))
	for _, job := range jobs {
		go func() {
			defer func() { done <- struct{}{} }()
			run(ctx, logger, job)
		}()
	}
	for range jobs {
		<-done
	}
	return nil
}

func run(ctx context.Context, logger *slog.Logger, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		if err := job.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("job failed", "job", job.Name, "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RolloverJob opens and completes batches whose dates have come.
func RolloverJob(
	svc *batchservice.Service,
	newUoW func() *unitofwork.UnitOfWork[*batchservice.AtomicContext],
	interval time.Duration,
) Job {
	return Job{
		Name:     "batch-rollover",
		Interval: interval,
		Run: func(ctx context.Context) error {
			_, err := svc.Rollover(ctx, newUoW())
			return err
		},
	}
}

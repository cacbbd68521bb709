// Package searchindex keeps the denormalized, eventually consistent copy of
// batches and enrollments used for reads and membership lookups.
package searchindex

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	kindBatch      = "batch"
	kindEnrollment = "enrollment"
)

// syncer runs fire-and-forget writes. Writes for the same document issued
// from different requests are not ordered; the last one to land wins.
type syncer struct {
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func (s *syncer) goSave(kind, id string, save func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := save(ctx); err != nil {
			s.logger.Error("failed to sync document", "kind", kind, "id", id, "error", err)
		}
	}()
}

// Wait blocks until every pending sync has finished.
func (s *syncer) Wait() {
	s.wg.Wait()
}

package session

import (
	"context"
	"log/slog"
	"time"
)

// syncInterval is how often the local countdown is reconciled with the
// server while the exam runs.
const syncInterval = 30 * time.Second

// RunClock drives the exam countdown until the context is canceled or time
// runs out. Every second the timer decrements; every thirty seconds the
// remaining time is synced to the server. When the countdown reaches zero the
// clock syncs once more, submits the exam, and marks the session finished
// regardless of the submit outcome, so a candidate can never keep working
// past the deadline on a flaky network.
func (s *Session) RunClock(ctx context.Context) {
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	sync := time.NewTicker(syncInterval)
	defer sync.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if s.DecrementTimer() == 0 {
				s.expire(ctx)
				return
			}
		case <-sync.C:
			s.SyncTimer(ctx)
		}
	}
}

func (s *Session) expire(ctx context.Context) {
	s.SyncTimer(ctx)
	if err := s.Submit(ctx); err != nil {
		slog.Error("auto-submit on timeout failed", "exam_id", s.ExamID(), "error", err)
	}
	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()
}

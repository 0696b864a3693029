package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Sweeper closes the enqueue-then-push gap: a job row can commit while
// its queue push fails, leaving it queued forever. Every minute the
// sweep re-pushes queued jobs that have seen no activity for StaleAfter.
//
// StaleAfter must exceed the backoff cap, otherwise the sweep re-pushes
// delayed retries early and defeats the backoff.
type Sweeper struct {
	Store      Store
	Queue      Queue
	StaleAfter time.Duration
	Log        *logrus.Logger

	cron *cron.Cron
}

func (s *Sweeper) Start(ctx context.Context) {
	s.cron = cron.New()
	_, _ = s.cron.AddFunc("* * * * *", func() {
		n, err := s.Sweep(ctx)
		if err != nil {
			s.Log.WithError(err).Error("stale queued sweep failed")
			return
		}
		if n > 0 {
			s.Log.WithField("repushed", n).Info("stale queued sweep")
		}
	})
	s.cron.Start()
}

func (s *Sweeper) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	stale, err := s.Store.StaleQueued(ctx, time.Now().Add(-s.StaleAfter))
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range stale {
		job := &stale[i]
		if err := s.Queue.Push(ctx, BuildMessage(job)); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

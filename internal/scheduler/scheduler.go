package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/shadowsight/shadowsight/internal/model"
)

// SessionLister pages through session IDs.
type SessionLister interface {
	ListSessionIDs(ctx context.Context, after string, limit int) ([]string, error)
}

// Rescorer recomputes one session and reports whether it was written.
type Rescorer interface {
	Rescore(ctx context.Context, sessionID string) (model.Derived, bool, error)
}

// Result summarizes one reconcile pass.
type Result struct {
	Checked int
	Updated int
	Failed  int
}

// Scheduler periodically rescores every session so stored trust scores
// converge on their events.
type Scheduler struct {
	sessions    SessionLister
	rescorer    Rescorer
	workerCount int
	batchSize   int
	interval    time.Duration
}

// New creates a new scheduler
func New(sessions SessionLister, rescorer Rescorer, workerCount, batchSize int, interval time.Duration) *Scheduler {
	if workerCount < 1 {
		workerCount = 1
	}
	if batchSize < 1 {
		batchSize = 100
	}
	return &Scheduler{
		sessions:    sessions,
		rescorer:    rescorer,
		workerCount: workerCount,
		batchSize:   batchSize,
		interval:    interval,
	}
}

// Start runs a pass immediately and then every interval until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	log.WithFields(log.Fields{"interval": s.interval, "workers": s.workerCount}).Info("scheduler starting")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info("scheduler stopping")
			return nil
		case <-ticker.C:
			s.runLogged(ctx)
		}
	}
}

func (s *Scheduler) runLogged(ctx context.Context) {
	start := time.Now()
	res, err := s.RunOnce(ctx)
	entry := log.WithFields(log.Fields{
		"checked":  res.Checked,
		"updated":  res.Updated,
		"failed":   res.Failed,
		"duration": time.Since(start).Round(time.Millisecond),
	})
	if err != nil {
		entry.WithError(err).Error("rescore pass aborted")
		return
	}
	entry.Info("rescore pass complete")
}

// RunOnce rescores every session, one batch of IDs at a time.
func (s *Scheduler) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		ids, err := s.sessions.ListSessionIDs(ctx, after, s.batchSize)
		if err != nil {
			return res, err
		}
		if len(ids) == 0 {
			return res, nil
		}

		batch := s.runBatch(ctx, ids)
		res.Checked += batch.Checked
		res.Updated += batch.Updated
		res.Failed += batch.Failed

		if len(ids) < s.batchSize {
			return res, nil
		}
		after = ids[len(ids)-1]
	}
}

// runBatch fans ids out to the worker pool.
func (s *Scheduler) runBatch(ctx context.Context, ids []string) Result {
	jobs := make(chan string, len(ids))
	for _, id := range ids {
		jobs <- id
	}
	close(jobs)

	var updated, failed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < s.workerCount; i++ {
		wg.Add(1)
		go s.worker(ctx, &wg, jobs, &updated, &failed)
	}
	wg.Wait()

	return Result{Checked: len(ids), Updated: int(updated.Load()), Failed: int(failed.Load())}
}

// worker processes rescore jobs
func (s *Scheduler) worker(ctx context.Context, wg *sync.WaitGroup, jobs <-chan string, updated, failed *atomic.Int64) {
	defer wg.Done()

	for id := range jobs {
		if ctx.Err() != nil {
			failed.Add(1)
			continue
		}
		d, changed, err := s.rescorer.Rescore(ctx, id)
		if err != nil {
			failed.Add(1)
			log.WithError(err).WithField("session", id).Warn("rescore failed")
			continue
		}
		if changed {
			updated.Add(1)
			log.WithFields(log.Fields{"session": id, "trust_score": d.TrustScore, "flags": d.Flags}).Debug("session rescored")
		}
	}
}

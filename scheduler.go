package particle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// scheduler runs periodic tasks for one endpoint. At most poolSize task runs
// are in flight at once.
type scheduler struct {
	logger Logger
	pool   *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newScheduler(poolSize int, logger Logger) *scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &scheduler{
		logger: logger,
		pool:   semaphore.NewWeighted(int64(poolSize)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// schedule starts t. Scheduling after stop is a no-op.
func (s *scheduler) schedule(t Task) {
	if s.ctx.Err() != nil {
		return
	}
	s.wg.Add(1)
	go s.loop(t)
}

func (s *scheduler) loop(t Task) {
	defer s.wg.Done()

	delay := time.NewTimer(t.InitialDelay)
	defer delay.Stop()

	select {
	case <-s.ctx.Done():
		return
	case <-delay.C:
	}

	ticker := time.NewTicker(t.Period)
	defer ticker.Stop()

	for {
		s.run(t)

		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *scheduler) run(t Task) {
	if s.ctx.Err() != nil {
		return
	}
	if err := s.pool.Acquire(s.ctx, 1); err != nil {
		return
	}
	defer s.pool.Release(1)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("periodic task panicked", "task", t.Name, "panic", fmt.Sprint(r))
		}
	}()

	if err := t.Run(s.ctx); err != nil {
		logSwallowed(s.logger, "periodic task failed", "task", t.Name, "error", err)
	}
}

// stop cancels all tasks without waiting. Tasks may call it.
func (s *scheduler) stop() {
	s.cancel()
}

// close cancels all tasks and waits for running ones to return. It must not
// be called from a task.
func (s *scheduler) close() {
	s.cancel()
	s.wg.Wait()
}

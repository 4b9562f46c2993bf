package tasks

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Loop processes due tasks right away and then once per interval until ctx
// is cancelled. A tick that is still running when the next one fires makes
// that one skip. On shutdown Loop waits up to grace for the running tick and
// returns the activity keys still active when the grace period ran out, or
// nil when the tick finished in time.
func (r *Runner) Loop(ctx context.Context, interval, grace time.Duration) []string {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	busy := make(chan struct{}, 1)
	launch := func() {
		select {
		case busy <- struct{}{}:
		default:
			r.logger.Warn("previous tick still running, skipping", zap.Strings("keys", r.activity.Active()))
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-busy }()
			r.tick(ctx)
		}()
	}

	launch()
	for {
		select {
		case <-ticker.C:
			launch()
		case <-ctx.Done():
			return r.drain(&wg, grace)
		}
	}
}

func (r *Runner) drain(wg *sync.WaitGroup, grace time.Duration) []string {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return r.activity.Active()
	}
}

func (r *Runner) tick(ctx context.Context) {
	n, err := r.ProcessDue(ctx)
	if err != nil {
		if ctx.Err() != nil {
			r.logger.Info("tick interrupted by shutdown", zap.Int("processed", n))
			return
		}
		r.logger.Error("Error processing scheduled tasks", zap.Error(err))
		return
	}
	if n > 0 {
		r.logger.Info("Processed scheduled tasks", zap.Int("count", n))
	}
}

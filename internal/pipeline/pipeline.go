// Package pipeline runs the polling workers that move posts from
// evaluation to on-chain finality. Workers never talk to each other;
// every hand-off goes through the store, with the status column acting
// as the ownership token.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Outcome summarizes what one tick accomplished.
type Outcome struct {
	Succeeded int
	Failed    int
}

// Add folds another outcome into this one.
func (o *Outcome) Add(other Outcome) {
	o.Succeeded += other.Succeeded
	o.Failed += other.Failed
}

// Worker is one polling stage. Process drains the work currently
// available and returns; two ticks of the same worker never overlap.
type Worker interface {
	Name() string
	Interval() time.Duration
	Process(ctx context.Context) (Outcome, error)
}

// Scheduler drives each worker on its own ticker until the context ends.
type Scheduler struct {
	workers []Worker
	logger  *slog.Logger
}

// NewScheduler registers workers in processing order.
func NewScheduler(logger *slog.Logger, workers ...Worker) *Scheduler {
	return &Scheduler{
		workers: workers,
		logger:  logger.With("component", "scheduler"),
	}
}

// Run blocks until ctx is cancelled. Worker errors are logged and the
// loop continues with the next tick.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("pipeline starting", "workers", len(s.workers))

	g, gCtx := errgroup.WithContext(ctx)
	for _, w := range s.workers {
		worker := w
		g.Go(func() error {
			ticker := time.NewTicker(worker.Interval())
			defer ticker.Stop()
			for {
				select {
				case <-gCtx.Done():
					return nil
				case <-ticker.C:
					s.tick(gCtx, worker)
				}
			}
		})
	}
	return g.Wait()
}

// RunOnce executes exactly one tick of every worker in registration
// order and returns the folded outcome.
func (s *Scheduler) RunOnce(ctx context.Context) Outcome {
	var total Outcome
	for _, worker := range s.workers {
		total.Add(s.tick(ctx, worker))
	}
	return total
}

func (s *Scheduler) tick(ctx context.Context, worker Worker) Outcome {
	outcome, err := worker.Process(ctx)
	if err != nil {
		s.logger.Error("tick failed", "worker", worker.Name(), "error", err)
		return outcome
	}
	if outcome.Succeeded > 0 || outcome.Failed > 0 {
		s.logger.Info("tick", "worker", worker.Name(), "succeeded", outcome.Succeeded, "failed", outcome.Failed)
	}
	return outcome
}

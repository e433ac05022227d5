package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/relieftext/drilldial/internal/store"
)

// Runner drains the command queue: it periodically claims queued commands and
// hands them to the dispatcher. Per-phone ordering comes from the queue's
// enqueue-order claim and the engine's sequence gate, not from the runner.
type Runner struct {
	queue          store.CommandQueue
	dispatcher     *Dispatcher
	pollInterval   time.Duration
	staleThreshold time.Duration
	claimLimit     int
}

// NewRunner creates a queue runner.
func NewRunner(queue store.CommandQueue, dispatcher *Dispatcher, pollInterval time.Duration) *Runner {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Runner{
		queue:          queue,
		dispatcher:     dispatcher,
		pollInterval:   pollInterval,
		staleThreshold: 5 * time.Minute,
		claimLimit:     25,
	}
}

// RecoverStaleCommands requeues commands stuck in processing from a previous
// crash. Should be called once at startup.
func (r *Runner) RecoverStaleCommands(ctx context.Context) error {
	staleBefore := time.Now().UTC().Add(-r.staleThreshold)
	n, err := r.queue.RequeueStaleCommands(ctx, staleBefore)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("Runner.RecoverStaleCommands: requeued stale commands", "count", n)
	}
	return nil
}

// Run starts the polling loop. It blocks until the context is cancelled.
func (r *Runner) Run(ctx context.Context) {
	slog.Info("Runner.Run: starting command runner", "pollInterval", r.pollInterval)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Runner.Run: stopping")
			return
		case <-ticker.C:
			r.poll(ctx)
		}
	}
}

func (r *Runner) poll(ctx context.Context) {
	commands, err := r.queue.ClaimQueuedCommands(ctx, r.claimLimit)
	if err != nil {
		slog.Error("Runner.poll: claim failed", "error", err)
		return
	}

	for _, qc := range commands {
		slog.Debug("Runner.poll: dispatching command", "id", qc.ID, "command_type", qc.CommandType, "attempt", qc.Attempts)
		if err := r.dispatcher.Dispatch(ctx, qc); err != nil {
			slog.Error("Runner.poll: dispatch failed", "id", qc.ID, "command_type", qc.CommandType, "error", err)
			if err := r.queue.FailCommand(ctx, qc.ID, err.Error()); err != nil {
				slog.Error("Runner.poll: fail command error", "id", qc.ID, "error", err)
			}
			continue
		}
		if err := r.queue.MarkCommandDone(ctx, qc.ID); err != nil {
			slog.Error("Runner.poll: mark done error", "id", qc.ID, "error", err)
		}
	}
}

package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// MirrorPublisher replicates a committed entry to the external distributed
// ledger. Implementations must be safe for concurrent use.
type MirrorPublisher interface {
	Publish(ctx context.Context, entry Entry) error
}

// MirrorWorker drains the service's mirror queue. Replication is best-effort:
// a failed mirror marks the entry failed and moves on; the local commit is
// already authoritative.
type MirrorWorker struct {
	service   *Service
	publisher MirrorPublisher
	logger    *slog.Logger

	initial     time.Duration
	maxInterval time.Duration
	maxElapsed  time.Duration

	onFailure func()
}

// NewMirrorWorker wires a worker to the service's queue.
func NewMirrorWorker(service *Service, publisher MirrorPublisher, logger *slog.Logger, initial, maxInterval, maxElapsed time.Duration, onFailure func()) *MirrorWorker {
	return &MirrorWorker{
		service:     service,
		publisher:   publisher,
		logger:      logger,
		initial:     initial,
		maxInterval: maxInterval,
		maxElapsed:  maxElapsed,
		onFailure:   onFailure,
	}
}

// Run consumes entries until the context is cancelled.
func (w *MirrorWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry := <-w.service.mirrorQueue:
			w.mirror(ctx, entry)
		}
	}
}

func (w *MirrorWorker) mirror(ctx context.Context, entry Entry) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = w.initial
	policy.MaxInterval = w.maxInterval
	policy.MaxElapsedTime = w.maxElapsed

	err := backoff.Retry(func() error {
		return w.publisher.Publish(ctx, entry)
	}, backoff.WithContext(policy, ctx))

	status := MirrorMirrored
	if err != nil {
		status = MirrorFailed
		w.logger.Warn("ledger mirror failed",
			"seq", entry.Seq,
			"error", err.Error(),
		)
		if w.onFailure != nil {
			w.onFailure()
		}
	}
	if err := w.service.store.SetMirrorStatus(ctx, entry.Seq, status); err != nil {
		w.logger.Error("failed to record mirror status",
			"seq", entry.Seq,
			"error", err.Error(),
		)
	}
}

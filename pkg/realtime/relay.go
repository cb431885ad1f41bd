package realtime

import (
	"context"
	"time"

	"kitchenbot/pkg/logger"
	"kitchenbot/pkg/models"
	"kitchenbot/storage"
)

// Sink receives every change the relay sees, after the hub.
type Sink interface {
	Publish(ctx context.Context, ev models.ChangeEvent) error
}

const (
	minRetry     = time.Second
	maxRetry     = 30 * time.Second
	sinkDeadline = 5 * time.Second
)

// Relay moves events from the store's change feed into the hub and sinks.
// A failed listen is retried with exponential backoff; viewers keep polling
// meanwhile.
type Relay struct {
	feed  storage.IChangeFeed
	hub   *Hub
	sinks []Sink
	log   logger.ILogger
	retry time.Duration
}

func NewRelay(feed storage.IChangeFeed, hub *Hub, log logger.ILogger, sinks ...Sink) *Relay {
	return &Relay{
		feed:  feed,
		hub:   hub,
		sinks: sinks,
		log:   log,
		retry: minRetry,
	}
}

func (r *Relay) Run(ctx context.Context) error {
	wait := r.retry
	for {
		started := time.Now()
		err := r.feed.Listen(ctx, func(ev models.ChangeEvent) {
			r.forward(ctx, ev)
		})
		if ctx.Err() != nil {
			return nil
		}
		if time.Since(started) > maxRetry {
			wait = r.retry
		}
		r.log.Warning("change feed stopped, reconnecting",
			logger.Error(err),
			logger.Duration("retry_in", wait),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
		wait *= 2
		if wait > maxRetry {
			wait = maxRetry
		}
	}
}

func (r *Relay) forward(ctx context.Context, ev models.ChangeEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	r.hub.Publish(ev)

	for _, sink := range r.sinks {
		sctx, cancel := context.WithTimeout(ctx, sinkDeadline)
		if err := sink.Publish(sctx, ev); err != nil {
			r.log.Warning("failed to forward order change", logger.Error(err))
		}
		cancel()
	}
}

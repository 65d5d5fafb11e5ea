// Package outboxrelay moves committed outbox events to the message broker.
package outboxrelay

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/go-petr/pet-wallet/internal/domain"
)

// Repo provides outbox access needed by the relay.
//
// Dispatch hands up to limit pending events to publish and marks the ones it accepted
// as published. It returns how many were published.
type Repo interface {
	Dispatch(ctx context.Context, limit int, publish func(context.Context, domain.OutboxEvent) error) (int, error)
}

// Publisher delivers a single event to the broker.
type Publisher interface {
	Publish(ctx context.Context, e domain.OutboxEvent) error
}

// Relay polls the outbox and publishes pending events. Delivery is at least once.
type Relay struct {
	repo      Repo
	publisher Publisher
	interval  time.Duration
	batchSize int
}

// New returns a relay polling every interval and publishing up to batchSize events per round.
func New(repo Repo, publisher Publisher, interval time.Duration, batchSize int) *Relay {
	if interval <= 0 {
		interval = time.Second
	}

	if batchSize <= 0 {
		batchSize = 100
	}

	return &Relay{
		repo:      repo,
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Run publishes pending events until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	l := zerolog.Ctx(ctx)
	l.Info().Dur("interval", r.interval).Int("batch_size", r.batchSize).Msg("outbox relay started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.Drain(ctx); err != nil && ctx.Err() == nil {
			l.Warn().Err(err).Msg("outbox dispatch failed")
		}

		select {
		case <-ctx.Done():
			l.Info().Msg("outbox relay stopped")
			return
		case <-ticker.C:
		}
	}
}

// Drain publishes batches until the outbox has no pending events or a batch is not
// published in full. It returns the number of published events.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	total := 0

	for {
		n, err := r.repo.Dispatch(ctx, r.batchSize, r.publisher.Publish)
		total += n

		if err != nil {
			return total, err
		}

		if n < r.batchSize {
			return total, nil
		}
	}
}

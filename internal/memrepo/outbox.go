package memrepo

import (
	"context"

	"github.com/go-petr/pet-wallet/internal/domain"
)

// OutboxRepo is the memory outbox repository.
type OutboxRepo struct {
	s *Store
}

// Dispatch hands up to limit pending events to publish in id order and records the outcome
// of each. It returns the number of events published.
func (r *OutboxRepo) Dispatch(ctx context.Context, limit int, publish func(context.Context, domain.OutboxEvent) error) (int, error) {
	r.s.dispatchMu.Lock()
	defer r.s.dispatchMu.Unlock()

	r.s.mu.RLock()
	pending := make([]int, 0, limit)

	for i := range r.s.outbox {
		if len(pending) == limit {
			break
		}

		if r.s.outbox[i].PublishedAt == nil {
			pending = append(pending, i)
		}
	}
	r.s.mu.RUnlock()

	published := 0

	for _, i := range pending {
		if err := ctx.Err(); err != nil {
			return published, err
		}

		r.s.mu.RLock()
		event := r.s.outbox[i]
		r.s.mu.RUnlock()

		err := publish(ctx, event)

		r.s.mu.Lock()
		if err != nil {
			r.s.outbox[i].Attempts++
			r.s.outbox[i].LastError = err.Error()
		} else {
			now := r.s.now().UTC()
			r.s.outbox[i].PublishedAt = &now
			published++
		}
		r.s.mu.Unlock()
	}

	return published, nil
}

// Pending returns events that have not been published yet.
func (r *OutboxRepo) Pending(ctx context.Context) ([]domain.OutboxEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	items := []domain.OutboxEvent{}

	for _, e := range r.s.outbox {
		if e.PublishedAt == nil {
			items = append(items, e)
		}
	}

	return items, nil
}

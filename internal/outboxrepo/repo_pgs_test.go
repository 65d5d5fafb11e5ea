//go:build integration

package outboxrepo_test

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"
	"time"

	"github.com/go-petr/pet-wallet/internal/domain"
	"github.com/go-petr/pet-wallet/internal/integrationtest"
	"github.com/go-petr/pet-wallet/internal/middleware"
	"github.com/go-petr/pet-wallet/internal/outboxrepo"
	"github.com/go-petr/pet-wallet/pkg/configpkg"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

var (
	dbDriver string
	dbSource string
	ctx      context.Context
)

func TestMain(m *testing.M) {
	config, err := configpkg.Load("../../configs")
	if err != nil {
		log.Fatal("cannot load config:", err)
	}

	dbDriver = config.DBDriver
	dbSource = config.DBSource

	logger := middleware.CreateLogger(config)
	ctx = logger.WithContext(context.Background())

	os.Exit(m.Run())
}

func TestDispatch(t *testing.T) {
	db := integrationtest.SetupDB(t, dbDriver, dbSource)
	repo := outboxrepo.NewRepoPGS(db)

	var keys []string

	for i := 0; i < 3; i++ {
		e := domain.OutboxEvent{
			Topic:     domain.TopicTransferCompleted,
			Key:       uuid.NewString(),
			Payload:   []byte(`{"n":1}`),
			CreatedAt: time.Now().UTC(),
		}

		created, err := repo.Create(ctx, e)
		if err != nil {
			t.Fatalf("repo.Create() returned error: %v", err)
		}

		if created.ID == 0 {
			t.Errorf("repo.Create() returned event without id")
		}

		keys = append(keys, e.Key)
	}

	errBroker := errors.New("broker down")

	var seen []string

	n, err := repo.Dispatch(ctx, 10, func(_ context.Context, e domain.OutboxEvent) error {
		seen = append(seen, e.Key)
		if e.Key == keys[1] {
			return errBroker
		}

		return nil
	})
	if err != nil {
		t.Fatalf("repo.Dispatch() returned error: %v", err)
	}

	if n != 2 {
		t.Errorf("repo.Dispatch() published %d events, want 2", n)
	}

	if diff := cmp.Diff(keys, seen); diff != "" {
		t.Errorf("repo.Dispatch() order mismatch (-want +got):\n%s", diff)
	}

	var retried []domain.OutboxEvent

	n, err = repo.Dispatch(ctx, 10, func(_ context.Context, e domain.OutboxEvent) error {
		retried = append(retried, e)
		return nil
	})
	if err != nil {
		t.Fatalf("second repo.Dispatch() returned error: %v", err)
	}

	if n != 1 || len(retried) != 1 {
		t.Fatalf("second repo.Dispatch() published %d of %+v, want only the failed event", n, retried)
	}

	if retried[0].Key != keys[1] || retried[0].Attempts != 1 || retried[0].LastError != errBroker.Error() {
		t.Errorf("retried event = %+v, want key %v with one failed attempt", retried[0], keys[1])
	}
}

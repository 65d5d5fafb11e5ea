// Package main runs the wallet API: accounts, balances, transfers and transaction history.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-petr/pet-wallet/cmd/httpserver"
	"github.com/go-petr/pet-wallet/internal/eventpub"
	"github.com/go-petr/pet-wallet/internal/middleware"
	"github.com/go-petr/pet-wallet/internal/outboxrelay"
	"github.com/go-petr/pet-wallet/pkg/configpkg"
	"github.com/go-petr/pet-wallet/pkg/dbpkg"
	"github.com/go-petr/pet-wallet/pkg/lockpkg"

	_ "github.com/jackc/pgx/v4/stdlib"
	_ "github.com/lib/pq"
)

func main() {
	config, err := configpkg.Load("./configs")
	if err != nil {
		log.Fatal().Err(err).Msg("cannot load config")
	}

	logger := middleware.CreateLogger(config)

	var db *sql.DB

	if config.DBDriver != httpserver.DriverMemory {
		db, err = dbpkg.Setup(config.DBDriver, config.DBSource)
		if err != nil {
			logger.Fatal().Err(err).Msg("cannot connect to database")
		}
		defer db.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx = logger.WithContext(ctx)

	locker := newLocker(ctx, logger, config)

	server, err := httpserver.New(db, logger, config, locker)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot create server")
	}

	var wg sync.WaitGroup

	if brokers := config.Brokers(); len(brokers) > 0 {
		publisher := eventpub.NewPublisher(brokers)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error().Err(err).Msg("cannot close kafka writer")
			}
		}()

		relay := outboxrelay.New(server.Repos.Outbox, publisher, config.OutboxPollInterval, config.OutboxBatchSize)

		wg.Add(1)
		go func() {
			defer wg.Done()
			relay.Run(ctx)
		}()
	} else {
		logger.Warn().Msg("KAFKA_BROKERS is empty, transfer events stay in the outbox")
	}

	srv := &http.Server{
		Addr:    config.ServerAddress,
		Handler: server,
	}

	go func() {
		logger.Info().Str("address", config.ServerAddress).Msg("WALLET API SERVER HAS STARTED")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("cannot start server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	wg.Wait()
	logger.Info().Msg("server stopped")
}

// newLocker returns the redis locker shared by all instances, or an in-process one
// when no redis address is configured.
func newLocker(ctx context.Context, logger zerolog.Logger, config configpkg.Config) lockpkg.Locker {
	if config.RedisAddress == "" {
		logger.Warn().Msg("REDIS_ADDRESS is empty, idempotency locks are local to this instance")
		return lockpkg.NewMemLocker()
	}

	rdb := redis.NewClient(&redis.Options{Addr: config.RedisAddress})

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis is unreachable, idempotency locks fail open until it is back")
	}

	return lockpkg.NewRedisLocker(rdb)
}

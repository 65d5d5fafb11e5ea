// Package httpserver manages server creation and api routing.
package httpserver

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/go-petr/pet-wallet/internal/accountdelivery"
	"github.com/go-petr/pet-wallet/internal/accountrepo"
	"github.com/go-petr/pet-wallet/internal/accountservice"
	"github.com/go-petr/pet-wallet/internal/historydelivery"
	"github.com/go-petr/pet-wallet/internal/historyrepo"
	"github.com/go-petr/pet-wallet/internal/historyservice"
	"github.com/go-petr/pet-wallet/internal/memrepo"
	"github.com/go-petr/pet-wallet/internal/middleware"
	"github.com/go-petr/pet-wallet/internal/outboxrelay"
	"github.com/go-petr/pet-wallet/internal/outboxrepo"
	"github.com/go-petr/pet-wallet/internal/transferdelivery"
	"github.com/go-petr/pet-wallet/internal/transferrepo"
	"github.com/go-petr/pet-wallet/internal/transferservice"
	"github.com/go-petr/pet-wallet/pkg/configpkg"
	"github.com/go-petr/pet-wallet/pkg/lockpkg"
	"github.com/go-petr/pet-wallet/pkg/moneypkg"
	"github.com/go-petr/pet-wallet/pkg/tokenpkg"
)

// DriverMemory selects the in-process store instead of a database.
const DriverMemory = "memory"

// Repos groups the repositories the services run on.
type Repos struct {
	Accounts  accountservice.Repo
	History   historyservice.Repo
	Transfers transferservice.Repo
	Outbox    outboxrelay.Repo
}

// NewRepos returns the PostgreSQL repositories on conn, or a fresh memory store
// for the memory driver.
func NewRepos(conn *sql.DB, driver string) (Repos, error) {
	if driver == DriverMemory {
		store := memrepo.New()

		return Repos{
			Accounts:  store.Accounts(),
			History:   store.History(),
			Transfers: store.Transfers(),
			Outbox:    store.Outbox(),
		}, nil
	}

	if conn == nil {
		return Repos{}, errors.New("database connection is required for driver " + driver)
	}

	return Repos{
		Accounts:  accountrepo.NewRepoPGS(conn),
		History:   historyrepo.NewRepoPGS(conn),
		Transfers: transferrepo.NewRepoPGS(conn),
		Outbox:    outboxrepo.NewRepoPGS(conn),
	}, nil
}

// Server holds db connection, handlers router and configuration.
type Server struct {
	DB      *sql.DB
	Engine  *gin.Engine
	Config  configpkg.Config
	Repos   Repos
	Handler http.Handler
}

// ServeHTTP implements the http.Handler interface for the Server type.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler.ServeHTTP(w, r)
}

// New creates Server type with instantiated domains and routes.
func New(conn *sql.DB, logger zerolog.Logger, config configpkg.Config, locker lockpkg.Locker) (*Server, error) {
	repos, err := NewRepos(conn, config.DBDriver)
	if err != nil {
		return nil, err
	}

	tokenMaker, err := tokenpkg.New(config.TokenType, config.TokenSymmetricKey)
	if err != nil {
		return nil, errors.New("cannot create token maker")
	}

	accountService := accountservice.New(repos.Accounts)
	historyService := historyservice.New(repos.History, accountService)
	transferService := transferservice.New(repos.Transfers, accountService,
		transferservice.WithRetry(config.TransferAttempts, config.TransferBackoff),
		transferservice.WithTopic(config.KafkaTopic),
	)

	accountHandler := accountdelivery.NewHandler(accountService)
	historyHandler := historydelivery.NewHandler(historyService)
	transferHandler := transferdelivery.NewHandler(transferService)

	rateLimiter := middleware.NewRateLimiter(rate.Limit(config.TransferRateLimit), config.TransferRateBurst)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(middleware.RequestLogger(logger))
	engine.Use(gin.Recovery())

	authRoutes := engine.Group("/").Use(middleware.AuthMiddleware(tokenMaker))

	authRoutes.POST("/accounts", accountHandler.Create)
	authRoutes.GET("/balance", accountHandler.Balance)

	authRoutes.POST("/transfers",
		rateLimiter.Middleware(),
		middleware.IdempotencyLock(locker, config.IdempotencyLockTTL),
		transferHandler.Create,
	)

	authRoutes.GET("/history", historyHandler.List)
	authRoutes.GET("/history/:transaction_id", historyHandler.Get)

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		err := v.RegisterValidation("money", moneypkg.ValidAmount)
		if err != nil {
			return nil, errors.New("cannot register money validator")
		}
	}

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", middleware.IdempotencyKeyHeader, middleware.RequestIDHeader},
		ExposedHeaders: []string{transferdelivery.ReplayedHeader, middleware.RequestIDHeader},
		MaxAge:         86400,
	})

	server := &Server{
		DB:      conn,
		Engine:  engine,
		Config:  config,
		Repos:   repos,
		Handler: c.Handler(engine),
	}

	return server, nil
}

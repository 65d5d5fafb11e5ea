package middleware

import (
	"io"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-petr/pet-wallet/pkg/configpkg"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RequestIDHeader carries the id used to correlate log lines of one request.
const RequestIDHeader = "X-Request-ID"

// CreateLogger returns JSON logger, or a verbose console logger in development.
func CreateLogger(config configpkg.Config) zerolog.Logger {
	var output io.Writer = os.Stderr

	logger := zerolog.New(output).
		Level(zerolog.InfoLevel).
		With().
		Timestamp().
		Logger()

	if config.Environement == "development" {
		logger = logger.
			Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			Level(zerolog.TraceLevel).
			With().
			Caller().
			Logger()
	}

	return logger
}

// RequestLogger puts a request scoped logger into the request context and logs the outcome.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		start := time.Now()

		requestID := gctx.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		gctx.Header(RequestIDHeader, requestID)

		l := logger.With().Str("request_id", requestID).Logger()
		gctx.Request = gctx.Request.WithContext(l.WithContext(gctx.Request.Context()))

		gctx.Next()

		status := gctx.Writer.Status()

		event := l.Info()
		if status >= 500 {
			event = l.Error()
		}

		event.
			Str("client_ip", gctx.ClientIP()).
			Str("method", gctx.Request.Method).
			Str("path", gctx.Request.URL.Path).
			Int("status_code", status).
			Dur("latency", time.Since(start)).
			Msg(gctx.Errors.ByType(gin.ErrorTypePrivate).String())
	}
}

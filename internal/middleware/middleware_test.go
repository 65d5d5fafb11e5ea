package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-petr/pet-wallet/pkg/lockpkg"
	"github.com/go-petr/pet-wallet/pkg/randompkg"
	"github.com/go-petr/pet-wallet/pkg/tokenpkg"
	"github.com/go-petr/pet-wallet/pkg/web"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

func newTestMaker(t *testing.T) tokenpkg.Maker {
	t.Helper()

	maker, err := tokenpkg.NewPasetoMaker(randompkg.String(32))
	if err != nil {
		t.Fatalf("tokenpkg.NewPasetoMaker() returned error: %v", err)
	}

	return maker
}

func authorizedRequest(t *testing.T, maker tokenpkg.Maker, userID, key string) *http.Request {
	t.Helper()

	r, err := http.NewRequest(http.MethodPost, "/transfers", nil)
	if err != nil {
		t.Fatalf("http.NewRequest() returned error: %v", err)
	}

	if err := AddAuthorization(r, maker, AuthTypeBearer, userID, time.Minute); err != nil {
		t.Fatalf("AddAuthorization() returned error: %v", err)
	}

	if key != "" {
		r.Header.Set(IdempotencyKeyHeader, key)
	}

	return r
}

func decodeError(t *testing.T, recorder *httptest.ResponseRecorder) string {
	t.Helper()

	var res web.Response
	if err := json.NewDecoder(recorder.Body).Decode(&res); err != nil {
		t.Fatalf("Decoding response body error: %v", err)
	}

	return res.Error
}

type failingLocker struct{}

func (failingLocker) Acquire(context.Context, string, time.Duration) (lockpkg.Lock, error) {
	return lockpkg.Lock{}, errors.New("connection refused")
}

func (failingLocker) Release(context.Context, lockpkg.Lock) error {
	return nil
}

func TestIdempotencyLock(t *testing.T) {
	gin.SetMode(gin.ReleaseMode)

	maker := newTestMaker(t)
	userID := randompkg.UserID()

	testCases := []struct {
		name           string
		locker         lockpkg.Locker
		key            string
		holdBefore     bool
		wantStatusCode int
		wantError      string
	}{
		{
			name:           "NoKey",
			locker:         lockpkg.NewMemLocker(),
			wantStatusCode: http.StatusOK,
		},
		{
			name:           "FreeKey",
			locker:         lockpkg.NewMemLocker(),
			key:            "k1",
			wantStatusCode: http.StatusOK,
		},
		{
			name:           "KeyInFlight",
			locker:         lockpkg.NewMemLocker(),
			key:            "k1",
			holdBefore:     true,
			wantStatusCode: http.StatusConflict,
			wantError:      ErrRequestInFlight.Error(),
		},
		{
			name:           "LockerDown",
			locker:         failingLocker{},
			key:            "k1",
			wantStatusCode: http.StatusOK,
		},
	}

	for i := range testCases {
		tc := testCases[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if tc.holdBefore {
				if _, err := tc.locker.Acquire(context.Background(), "idempotency:"+userID+":"+tc.key, time.Minute); err != nil {
					t.Fatalf("Acquire() returned error: %v", err)
				}
			}

			server := gin.New()
			server.POST("/transfers",
				AuthMiddleware(maker),
				IdempotencyLock(tc.locker, time.Minute),
				func(gctx *gin.Context) { gctx.JSON(http.StatusOK, web.Data(gin.H{})) },
			)

			recorder := httptest.NewRecorder()
			server.ServeHTTP(recorder, authorizedRequest(t, maker, userID, tc.key))

			if recorder.Code != tc.wantStatusCode {
				t.Errorf("recorder.Code = %v, want %v", recorder.Code, tc.wantStatusCode)
			}

			if got := decodeError(t, recorder); got != tc.wantError {
				t.Errorf("res.Error = %q, want %q", got, tc.wantError)
			}
		})
	}
}

func TestIdempotencyLockReleased(t *testing.T) {
	gin.SetMode(gin.ReleaseMode)

	maker := newTestMaker(t)
	userID := randompkg.UserID()

	server := gin.New()
	server.POST("/transfers",
		AuthMiddleware(maker),
		IdempotencyLock(lockpkg.NewMemLocker(), time.Minute),
		func(gctx *gin.Context) { gctx.JSON(http.StatusOK, web.Data(gin.H{})) },
	)

	for i := 0; i < 2; i++ {
		recorder := httptest.NewRecorder()
		server.ServeHTTP(recorder, authorizedRequest(t, maker, userID, "same"))

		if recorder.Code != http.StatusOK {
			t.Errorf("request %d: recorder.Code = %v, want %v", i, recorder.Code, http.StatusOK)
		}
	}
}

func TestRateLimiter(t *testing.T) {
	gin.SetMode(gin.ReleaseMode)

	maker := newTestMaker(t)
	limiter := NewRateLimiter(rate.Every(time.Hour), 2)

	server := gin.New()
	server.POST("/transfers",
		AuthMiddleware(maker),
		limiter.Middleware(),
		func(gctx *gin.Context) { gctx.JSON(http.StatusOK, web.Data(gin.H{})) },
	)

	alice, bob := randompkg.UserID(), randompkg.UserID()

	want := []struct {
		userID string
		code   int
	}{
		{alice, http.StatusOK},
		{alice, http.StatusOK},
		{alice, http.StatusTooManyRequests},
		{bob, http.StatusOK},
	}

	for i, w := range want {
		recorder := httptest.NewRecorder()
		server.ServeHTTP(recorder, authorizedRequest(t, maker, w.userID, ""))

		if recorder.Code != w.code {
			t.Errorf("request %d: recorder.Code = %v, want %v", i, recorder.Code, w.code)
		}
	}
}

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.ReleaseMode)

	var buf bytes.Buffer

	logger := zerolog.New(&buf)

	server := gin.New()
	server.Use(RequestLogger(logger))
	server.GET("/ping", func(gctx *gin.Context) {
		zerolog.Ctx(gctx.Request.Context()).Info().Msg("inside")
		gctx.Status(http.StatusNoContent)
	})

	r, err := http.NewRequest(http.MethodGet, "/ping", nil)
	if err != nil {
		t.Fatalf("http.NewRequest() returned error: %v", err)
	}

	r.Header.Set(RequestIDHeader, "req-1")

	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, r)

	if got := recorder.Header().Get(RequestIDHeader); got != "req-1" {
		t.Errorf("response %s = %q, want %q", RequestIDHeader, got, "req-1")
	}

	dec := json.NewDecoder(&buf)

	for n := 0; dec.More(); n++ {
		var line map[string]any
		if err := dec.Decode(&line); err != nil {
			t.Fatalf("Decoding log line error: %v", err)
		}

		if line["request_id"] != "req-1" {
			t.Errorf("log line %d = %v, want request_id req-1", n, line)
		}
	}
}

package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/go-petr/pet-wallet/internal/domain"
	"github.com/go-petr/pet-wallet/internal/memrepo"
	"github.com/go-petr/pet-wallet/internal/middleware"
	"github.com/go-petr/pet-wallet/internal/transferdelivery"
	"github.com/go-petr/pet-wallet/pkg/configpkg"
	"github.com/go-petr/pet-wallet/pkg/lockpkg"
	"github.com/go-petr/pet-wallet/pkg/randompkg"
	"github.com/go-petr/pet-wallet/pkg/tokenpkg"
	"github.com/go-petr/pet-wallet/pkg/web"
)

type testServer struct {
	*Server
	maker tokenpkg.Maker
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	config := configpkg.Config{
		DBDriver:           DriverMemory,
		TokenType:          tokenpkg.TypePaseto,
		TokenSymmetricKey:  randompkg.String(32),
		IdempotencyLockTTL: 10 * time.Second,
		KafkaTopic:         domain.TopicTransferCompleted,
		TransferAttempts:   3,
		TransferBackoff:    time.Millisecond,
	}

	server, err := New(nil, zerolog.Nop(), config, lockpkg.NewMemLocker())
	require.NoError(t, err)

	maker, err := tokenpkg.New(config.TokenType, config.TokenSymmetricKey)
	require.NoError(t, err)

	return &testServer{Server: server, maker: maker}
}

// do sends an authorized request as userID and decodes the data of the response into data.
func (s *testServer) do(t *testing.T, method, path, userID, key string, body, data any) (*httptest.ResponseRecorder, web.Response) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	require.NoError(t, middleware.AddAuthorization(req, s.maker, middleware.AuthTypeBearer, userID, time.Minute))

	if key != "" {
		req.Header.Set(middleware.IdempotencyKeyHeader, key)
	}

	recorder := httptest.NewRecorder()
	s.ServeHTTP(recorder, req)

	res := web.Response{Data: data}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &res))

	return recorder, res
}

func (s *testServer) register(t *testing.T, balance string) domain.Account {
	t.Helper()

	id := randompkg.UserID()

	var data struct {
		Account domain.Account `json:"account"`
	}

	recorder, _ := s.do(t, http.MethodPost, "/accounts", id, "", map[string]string{"name": randompkg.Name()}, &data)
	require.Equal(t, http.StatusCreated, recorder.Code)

	if balance != "0" {
		repo, ok := s.Repos.Accounts.(*memrepo.AccountRepo)
		require.True(t, ok)

		_, err := repo.AddBalance(context.Background(), id, decimal.RequireFromString(balance))
		require.NoError(t, err)
	}

	return data.Account
}

func (s *testServer) balance(t *testing.T, id string) decimal.Decimal {
	t.Helper()

	var data struct {
		Balance decimal.Decimal `json:"balance"`
	}

	recorder, _ := s.do(t, http.MethodGet, "/balance", id, "", nil, &data)
	require.Equal(t, http.StatusOK, recorder.Code)

	return data.Balance
}

type transferData struct {
	Transfer struct {
		Transfer domain.Transfer          `json:"transfer"`
		Balance  decimal.Decimal          `json:"balance"`
		Record   domain.TransactionRecord `json:"record"`
	} `json:"transfer"`
}

func (s *testServer) transfer(t *testing.T, from, to, amount, key string) (*httptest.ResponseRecorder, transferData, string) {
	t.Helper()

	var data transferData

	recorder, res := s.do(t, http.MethodPost, "/transfers", from, key,
		map[string]string{"recipient_id": to, "amount": amount}, &data)

	return recorder, data, res.Error
}

func TestWalletFlow(t *testing.T) {
	s := newTestServer(t)

	alice := s.register(t, "100")
	bob := s.register(t, "0")

	// Duplicate registration.
	recorder, res := s.do(t, http.MethodPost, "/accounts", alice.ID, "", map[string]string{"name": "again"}, nil)
	require.Equal(t, http.StatusConflict, recorder.Code)
	require.Equal(t, domain.ErrAccountAlreadyExists.Error(), res.Error)

	recorder, first, _ := s.transfer(t, alice.ID, bob.ID, "30.00", "order-1")
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Empty(t, recorder.Header().Get(transferdelivery.ReplayedHeader))
	require.Equal(t, "70", first.Transfer.Balance.String())
	require.Equal(t, domain.DirectionDebit, first.Transfer.Record.Direction)
	require.Equal(t, "-30", first.Transfer.Record.Amount.String())

	// Retried request returns the committed transfer and moves no money.
	recorder, again, _ := s.transfer(t, alice.ID, bob.ID, "30.00", "order-1")
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "true", recorder.Header().Get(transferdelivery.ReplayedHeader))
	require.Equal(t, first.Transfer.Transfer.ID, again.Transfer.Transfer.ID)

	recorder, _, msg := s.transfer(t, alice.ID, bob.ID, "31.00", "order-1")
	require.Equal(t, http.StatusUnprocessableEntity, recorder.Code)
	require.Equal(t, domain.ErrIdempotencyKeyReused.Error(), msg)

	recorder, _, msg = s.transfer(t, alice.ID, bob.ID, "80", "")
	require.Equal(t, http.StatusUnprocessableEntity, recorder.Code)
	require.Equal(t, domain.ErrInsufficientBalance.Error(), msg)

	recorder, _, msg = s.transfer(t, alice.ID, alice.ID, "1", "")
	require.Equal(t, http.StatusBadRequest, recorder.Code)
	require.Equal(t, domain.ErrSelfTransfer.Error(), msg)

	recorder, _, msg = s.transfer(t, alice.ID, randompkg.UserID(), "1", "")
	require.Equal(t, http.StatusNotFound, recorder.Code)
	require.Equal(t, domain.ErrRecipientNotFound.Error(), msg)

	recorder, _, _ = s.transfer(t, alice.ID, bob.ID, "0.001", "")
	require.Equal(t, http.StatusBadRequest, recorder.Code)

	require.Equal(t, "70", s.balance(t, alice.ID).String())
	require.Equal(t, "30", s.balance(t, bob.ID).String())

	var page domain.HistoryPage

	recorder, _ = s.do(t, http.MethodGet, "/history", bob.ID, "", nil, &page)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Len(t, page.Records, 1)
	require.Empty(t, page.NextCursor)

	credit := page.Records[0]
	require.Equal(t, first.Transfer.Transfer.ID, credit.TransactionID)
	require.Equal(t, domain.DirectionCredit, credit.Direction)
	require.Equal(t, alice.ID, credit.CounterpartyID)
	require.Equal(t, alice.Name, credit.CounterpartyName)
	require.Equal(t, "30", credit.Amount.String())

	var record struct {
		Record domain.TransactionRecord `json:"record"`
	}

	recorder, _ = s.do(t, http.MethodGet, "/history/"+credit.TransactionID, alice.ID, "", nil, &record)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, domain.DirectionDebit, record.Record.Direction)

	recorder, _ = s.do(t, http.MethodGet, "/history/"+credit.TransactionID, randompkg.UserID(), "", nil, nil)
	require.Equal(t, http.StatusNotFound, recorder.Code)

	// One event per committed transfer.
	var events []domain.OutboxEvent

	n, err := s.Repos.Outbox.Dispatch(context.Background(), 10, func(_ context.Context, e domain.OutboxEvent) error {
		events = append(events, e)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, first.Transfer.Transfer.ID, events[0].Key)
	require.Equal(t, domain.TopicTransferCompleted, events[0].Topic)
}

func TestHistoryPagination(t *testing.T) {
	s := newTestServer(t)

	alice := s.register(t, "100")
	bob := s.register(t, "0")

	ids := make(map[string]bool)

	for i := 0; i < 5; i++ {
		recorder, data, _ := s.transfer(t, alice.ID, bob.ID, "1.50", "")
		require.Equal(t, http.StatusOK, recorder.Code)

		ids[data.Transfer.Transfer.ID] = true
	}

	var (
		got    []domain.TransactionRecord
		cursor string
	)

	for {
		var page domain.HistoryPage

		recorder, _ := s.do(t, http.MethodGet, "/history?limit=2&cursor="+cursor, alice.ID, "", nil, &page)
		require.Equal(t, http.StatusOK, recorder.Code)
		require.LessOrEqual(t, len(page.Records), 2)

		got = append(got, page.Records...)

		if page.NextCursor == "" {
			break
		}

		cursor = page.NextCursor
	}

	require.Len(t, got, 5)

	for i, r := range got {
		require.True(t, ids[r.TransactionID])

		if i > 0 {
			require.True(t, got[i-1].Before(r))
		}
	}

	recorder, res := s.do(t, http.MethodGet, "/history?cursor=bogus", alice.ID, "", nil, nil)
	require.Equal(t, http.StatusBadRequest, recorder.Code)
	require.Equal(t, domain.ErrInvalidCursor.Error(), res.Error)

	require.Equal(t, "92.5", s.balance(t, alice.ID).String())
}

func TestUnregisteredUser(t *testing.T) {
	s := newTestServer(t)

	stranger := randompkg.UserID()

	recorder, res := s.do(t, http.MethodGet, "/balance", stranger, "", nil, nil)
	require.Equal(t, http.StatusNotFound, recorder.Code)
	require.Equal(t, domain.ErrUserNotFound.Error(), res.Error)

	bob := s.register(t, "0")

	recorder, _, msg := s.transfer(t, stranger, bob.ID, "1", "")
	require.Equal(t, http.StatusNotFound, recorder.Code)
	require.Equal(t, domain.ErrSenderNotFound.Error(), msg)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, "/transfers", nil)
	require.NoError(t, err)

	req.Header.Set("Origin", "https://wallet.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", middleware.IdempotencyKeyHeader)

	recorder := httptest.NewRecorder()
	s.ServeHTTP(recorder, req)

	require.Equal(t, http.StatusNoContent, recorder.Code)
	require.Equal(t, "*", recorder.Header().Get("Access-Control-Allow-Origin"))
}

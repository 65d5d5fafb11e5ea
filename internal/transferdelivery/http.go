// Package transferdelivery manages delivery layer of transfers.
package transferdelivery

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/go-petr/pet-wallet/internal/domain"
	"github.com/go-petr/pet-wallet/internal/middleware"
	"github.com/go-petr/pet-wallet/pkg/errorspkg"
	"github.com/go-petr/pet-wallet/pkg/web"
)

// ReplayedHeader is set on responses that return an already committed transfer.
const ReplayedHeader = "Idempotent-Replayed"

// Service provides service layer interface needed by transfer delivery layer.
//
//go:generate mockgen -source http.go -destination http_mock.go -package transferdelivery
type Service interface {
	Transfer(ctx context.Context, arg domain.CreateTransferParams) (domain.TransferTxResult, error)
}

// Handler facilitates transfer delivery layer logic.
type Handler struct {
	service Service
}

// NewHandler returns transfer handler.
func NewHandler(ts Service) *Handler {
	return &Handler{
		service: ts,
	}
}

type request struct {
	RecipientID string `json:"recipient_id" binding:"required,max=128"`
	Amount      string `json:"amount" binding:"required,money"`
}

// The recipient balance is not disclosed to the sender.
type transferData struct {
	Transfer domain.Transfer          `json:"transfer"`
	Balance  decimal.Decimal          `json:"balance"`
	Record   domain.TransactionRecord `json:"record"`
}

type data struct {
	Transfer transferData `json:"transfer"`
}

var statusCodes = map[error]int{
	domain.ErrInvalidAmount:         http.StatusBadRequest,
	domain.ErrSelfTransfer:          http.StatusBadRequest,
	domain.ErrInvalidIdempotencyKey: http.StatusBadRequest,
	domain.ErrSenderNotFound:        http.StatusNotFound,
	domain.ErrRecipientNotFound:     http.StatusNotFound,
	domain.ErrInsufficientBalance:   http.StatusUnprocessableEntity,
	domain.ErrIdempotencyKeyReused:  http.StatusUnprocessableEntity,
	domain.ErrConcurrentConflict:    http.StatusConflict,
	domain.ErrStoreUnavailable:      http.StatusServiceUnavailable,
	domain.ErrOutcomeUnknown:        http.StatusGatewayTimeout,
}

// Create handles http request to move money from the caller to the recipient.
func (h *Handler) Create(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var req request
	if err := gctx.ShouldBindJSON(&req); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.BindingError(err))

		return
	}

	arg := domain.CreateTransferParams{
		SenderID:       middleware.UserID(gctx),
		RecipientID:    req.RecipientID,
		Amount:         req.Amount,
		IdempotencyKey: gctx.GetHeader(middleware.IdempotencyKeyHeader),
	}

	result, err := h.service.Transfer(ctx, arg)
	if err != nil {
		if code, ok := statusCodes[err]; ok {
			l.Info().Err(err).Send()
			gctx.JSON(code, web.Error(err))

			return
		}

		l.Error().Err(err).Send()
		gctx.JSON(http.StatusInternalServerError, web.Error(errorspkg.ErrInternal))

		return
	}

	if result.Replayed {
		gctx.Header(ReplayedHeader, "true")
	}

	res := transferData{
		Transfer: result.Transfer,
		Balance:  result.Sender.Balance,
		Record:   result.Debit,
	}

	gctx.JSON(http.StatusOK, web.Data(data{res}))
}

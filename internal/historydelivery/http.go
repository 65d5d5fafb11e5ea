// Package historydelivery manages delivery layer of transaction history.
package historydelivery

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/go-petr/pet-wallet/internal/domain"
	"github.com/go-petr/pet-wallet/internal/middleware"
	"github.com/go-petr/pet-wallet/pkg/errorspkg"
	"github.com/go-petr/pet-wallet/pkg/web"
)

// Service provides service layer interface needed by history delivery layer.
//
//go:generate mockgen -source http.go -destination http_mock.go -package historydelivery
type Service interface {
	List(ctx context.Context, userID string, limit int32, cursor string) (domain.HistoryPage, error)
	Get(ctx context.Context, userID, transactionID string) (domain.TransactionRecord, error)
}

// Handler facilitates history delivery layer logic.
type Handler struct {
	service Service
}

// NewHandler returns history handler.
func NewHandler(hs Service) *Handler {
	return &Handler{service: hs}
}

type listRequest struct {
	Limit  int32  `form:"limit" binding:"min=0,max=100"`
	Cursor string `form:"cursor"`
}

type getRequest struct {
	TransactionID string `uri:"transaction_id" binding:"required"`
}

type recordData struct {
	Record domain.TransactionRecord `json:"record"`
}

func respondError(gctx *gin.Context, err error) {
	switch err {
	case domain.ErrInvalidCursor:
		gctx.JSON(http.StatusBadRequest, web.Error(err))
	case domain.ErrUserNotFound, domain.ErrTransactionNotFound:
		gctx.JSON(http.StatusNotFound, web.Error(err))
	case domain.ErrStoreUnavailable:
		gctx.JSON(http.StatusServiceUnavailable, web.Error(err))
	default:
		gctx.JSON(http.StatusInternalServerError, web.Error(errorspkg.ErrInternal))
	}
}

// List handles http request to get a page of the caller's history, most recent first.
func (h *Handler) List(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var req listRequest
	if err := gctx.ShouldBindQuery(&req); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.BindingError(err))

		return
	}

	page, err := h.service.List(ctx, middleware.UserID(gctx), req.Limit, req.Cursor)
	if err != nil {
		l.Info().Err(err).Send()
		respondError(gctx, err)

		return
	}

	if page.Records == nil {
		page.Records = []domain.TransactionRecord{}
	}

	gctx.JSON(http.StatusOK, web.Data(page))
}

// Get handles http request to get the caller's record of one transaction.
func (h *Handler) Get(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var req getRequest
	if err := gctx.ShouldBindUri(&req); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.BindingError(err))

		return
	}

	record, err := h.service.Get(ctx, middleware.UserID(gctx), req.TransactionID)
	if err != nil {
		l.Info().Err(err).Send()
		respondError(gctx, err)

		return
	}

	gctx.JSON(http.StatusOK, web.Data(recordData{record}))
}

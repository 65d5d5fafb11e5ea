// Package accountdelivery manages delivery layer of accounts.
package accountdelivery

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

// Service provides service layer interface needed by account delivery layer.
//
//go:generate mockgen -source http.go -destination http_mock.go -package accountdelivery
type Service interface {
	Create(ctx context.Context, id, name string) (domain.Account, error)
	Balance(ctx context.Context, id string) (decimal.Decimal, error)
}

// Handler facilitates account delivery layer logic.
type Handler struct {
	service Service
}

// NewHandler returns account handler.
func NewHandler(as Service) Handler {
	return Handler{service: as}
}

type createRequest struct {
	Name string `json:"name" binding:"required,max=255"`
}

type accountData struct {
	Account domain.Account `json:"account"`
}

// Create handles http request to register the caller's account.
func (h *Handler) Create(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	var req createRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.BindingError(err))

		return
	}

	account, err := h.service.Create(ctx, middleware.UserID(gctx), req.Name)
	if err != nil {
		l.Info().Err(err).Send()

		switch err {
		case domain.ErrInvalidName:
			gctx.JSON(http.StatusBadRequest, web.Error(err))
			return
		case domain.ErrAccountAlreadyExists:
			gctx.JSON(http.StatusConflict, web.Error(err))
			return
		case domain.ErrStoreUnavailable:
			gctx.JSON(http.StatusServiceUnavailable, web.Error(err))
			return
		}

		gctx.JSON(http.StatusInternalServerError, web.Error(errorspkg.ErrInternal))

		return
	}

	gctx.JSON(http.StatusCreated, web.Data(accountData{account}))
}

type balanceData struct {
	Balance decimal.Decimal `json:"balance"`
}

// Balance handles http request to get the caller's current balance.
func (h *Handler) Balance(gctx *gin.Context) {
	ctx := gctx.Request.Context()
	l := zerolog.Ctx(ctx)

	balance, err := h.service.Balance(ctx, middleware.UserID(gctx))
	if err != nil {
		l.Info().Err(err).Send()

		switch err {
		case domain.ErrUserNotFound:
			gctx.JSON(http.StatusNotFound, web.Error(err))
			return
		case domain.ErrStoreUnavailable:
			gctx.JSON(http.StatusServiceUnavailable, web.Error(err))
			return
		}

		gctx.JSON(http.StatusInternalServerError, web.Error(errorspkg.ErrInternal))

		return
	}

	gctx.JSON(http.StatusOK, web.Data(balanceData{balance}))
}

// Package http 借贷服务 HTTP 接口
package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/amitk-codes/lendity-fi/internal/lending/application"
	"github.com/amitk-codes/lendity-fi/internal/lending/domain"
)

type Handler struct {
	service *application.LendingService
}

func NewHandler(service *application.LendingService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/lending")
	{
		g.POST("/banks", h.InitializeBank)
		g.GET("/banks", h.ListBanks)
		g.GET("/banks/:asset", h.GetBank)
		g.POST("/users", h.InitializeUser)
		g.GET("/positions/:owner", h.GetPosition)
		g.GET("/positions/:owner/health", h.GetHealthFactor)
		g.POST("/deposit", h.Deposit)
		g.POST("/withdraw", h.Withdraw)
		g.POST("/borrow", h.Borrow)
		g.POST("/repay", h.Repay)
		g.POST("/liquidate", h.Liquidate)
	}
}

type InitializeBankReq struct {
	Authority              string  `json:"authority" binding:"required"`
	AssetID                string  `json:"asset_id" binding:"required"`
	LiquidationThreshold   string  `json:"liquidation_threshold" binding:"required"`
	MaxLTV                 string  `json:"max_ltv" binding:"required"`
	LiquidationBonus       string  `json:"liquidation_bonus" binding:"required"`
	LiquidationCloseFactor string  `json:"liquidation_close_factor" binding:"required"`
	InterestRate           float64 `json:"interest_rate"`
}

func (h *Handler) InitializeBank(c *gin.Context) {
	var req InitializeBankReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	threshold, err1 := decimal.NewFromString(req.LiquidationThreshold)
	maxLTV, err2 := decimal.NewFromString(req.MaxLTV)
	bonus, err3 := decimal.NewFromString(req.LiquidationBonus)
	closeFactor, err4 := decimal.NewFromString(req.LiquidationCloseFactor)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid risk parameter"})
		return
	}

	err := h.service.InitializeBank(c.Request.Context(), application.InitializeBankCmd{
		Authority:              req.Authority,
		AssetID:                req.AssetID,
		LiquidationThreshold:   threshold,
		MaxLTV:                 maxLTV,
		LiquidationBonus:       bonus,
		LiquidationCloseFactor: closeFactor,
		InterestRate:           req.InterestRate,
	})
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"asset_id": req.AssetID})
}

type InitializeUserReq struct {
	Owner             string `json:"owner" binding:"required"`
	CollateralAssetID string `json:"collateral_asset_id" binding:"required"`
	StableAssetID     string `json:"stable_asset_id" binding:"required"`
}

func (h *Handler) InitializeUser(c *gin.Context) {
	var req InitializeUserReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.service.InitializeUser(c.Request.Context(), application.InitializeUserCmd{
		Owner:             req.Owner,
		CollateralAssetID: req.CollateralAssetID,
		StableAssetID:     req.StableAssetID,
	})
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"owner": req.Owner})
}

type LedgerReq struct {
	Owner   string `json:"owner" binding:"required"`
	AssetID string `json:"asset_id" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
}

func (h *Handler) Deposit(c *gin.Context) {
	h.handleLedger(c, h.service.Deposit)
}

func (h *Handler) Withdraw(c *gin.Context) {
	h.handleLedger(c, h.service.Withdraw)
}

func (h *Handler) Borrow(c *gin.Context) {
	h.handleLedger(c, h.service.Borrow)
}

func (h *Handler) Repay(c *gin.Context) {
	h.handleLedger(c, h.service.Repay)
}

func (h *Handler) handleLedger(c *gin.Context, op func(ctx context.Context, cmd application.LedgerCmd) error) {
	var req LedgerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}

	err = op(c.Request.Context(), application.LedgerCmd{
		Owner:   req.Owner,
		AssetID: req.AssetID,
		Amount:  amount,
	})
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type LiquidateReq struct {
	Liquidator        string `json:"liquidator" binding:"required"`
	Owner             string `json:"owner" binding:"required"`
	CollateralAssetID string `json:"collateral_asset_id" binding:"required"`
	BorrowedAssetID   string `json:"borrowed_asset_id" binding:"required"`
}

func (h *Handler) Liquidate(c *gin.Context) {
	var req LiquidateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	quote, err := h.service.Liquidate(c.Request.Context(), application.LiquidateCmd{
		Liquidator:        req.Liquidator,
		Owner:             req.Owner,
		CollateralAssetID: req.CollateralAssetID,
		BorrowedAssetID:   req.BorrowedAssetID,
	})
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"health_factor": quote.HealthFactor.String(),
		"repaid_amount": quote.RepayAmount.String(),
		"seized_amount": quote.SeizeAmount.String(),
	})
}

func (h *Handler) GetBank(c *gin.Context) {
	view, err := h.service.GetBank(c.Request.Context(), c.Param("asset"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) ListBanks(c *gin.Context) {
	views, err := h.service.ListBanks(c.Request.Context())
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"banks": views})
}

func (h *Handler) GetPosition(c *gin.Context) {
	view, err := h.service.GetPosition(c.Request.Context(), c.Param("owner"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) GetHealthFactor(c *gin.Context) {
	view, err := h.service.GetHealthFactor(c.Request.Context(), c.Param("owner"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) renderError(c *gin.Context, err error) {
	c.JSON(statusOf(err), gin.H{"error": err.Error()})
}

// statusOf 领域错误到 HTTP 状态码的映射
func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrBankNotFound),
		errors.Is(err, domain.ErrPositionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrBankExists),
		errors.Is(err, domain.ErrPositionExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrZeroAmount),
		errors.Is(err, domain.ErrInvalidRiskParameter),
		errors.Is(err, domain.ErrDuplicateAsset),
		errors.Is(err, domain.ErrUnknownAsset):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInsufficientShares),
		errors.Is(err, domain.ErrInsufficientLiquidity),
		errors.Is(err, domain.ErrInsufficientCollateral),
		errors.Is(err, domain.ErrOverBorrowableAmount),
		errors.Is(err, domain.ErrOverRepayAmount),
		errors.Is(err, domain.ErrHealthyPosition),
		errors.Is(err, domain.ErrTransferFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrStalePrice),
		errors.Is(err, domain.ErrMissingPrice):
		return http.StatusFailedDependency
	default:
		return http.StatusInternalServerError
	}
}

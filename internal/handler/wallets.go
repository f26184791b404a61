package handler

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/Scotty108/Cascadian-sub021/internal/models"
	"github.com/Scotty108/Cascadian-sub021/internal/repository"
)

type WalletsHandler struct {
	Repo repository.Repository
}

func (h *WalletsHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/wallets")
	g.GET("", h.list)
	g.GET("/:address", h.get)
	g.GET("/:address/outcomes", h.outcomes)
}

// @Summary List wallet metrics for a window
// @Tags wallets
// @Router /api/v1/wallets [get]
func (h *WalletsHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	windowStart := timeQueryPtr(c, "window_start")
	if windowStart == nil {
		latest, err := h.Repo.LatestMetricsWindow(c.Request.Context())
		if err != nil {
			Error(c, http.StatusBadGateway, err.Error(), nil)
			return
		}
		if latest == nil {
			Ok(c, []models.WalletMetrics{}, paginationMeta(limit, offset, 0))
			return
		}
		windowStart = latest
	}

	params := repository.ListWalletMetricsParams{
		Limit:       limit,
		Offset:      offset,
		WindowStart: windowStart,
		MinTrades:   intQueryPtr(c, "min_trades"),
		OrderBy: parseOrder(c.Query("order_by"), map[string]string{
			"score":        "score",
			"win_rate":     "win_rate",
			"expectancy":   "expectancy",
			"volume":       "volume_usd",
			"realized_pnl": "realized_pnl",
			"trades":       "trades_total",
			"computed_at":  "computed_at",
		}),
		Asc: boolQueryPtr(c, "asc"),
	}
	items, err := h.Repo.ListWalletMetrics(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountWalletMetrics(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

// @Summary Latest metrics for one wallet
// @Tags wallets
// @Router /api/v1/wallets/{address} [get]
func (h *WalletsHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	address := strings.TrimSpace(c.Param("address"))
	if !common.IsHexAddress(address) {
		Error(c, http.StatusBadRequest, "invalid wallet address", nil)
		return
	}
	item, err := h.Repo.GetLatestWalletMetrics(c.Request.Context(), address)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "no metrics for wallet", nil)
		return
	}
	Ok(c, item, nil)
}

// @Summary Per-trade outcomes for one wallet
// @Tags wallets
// @Router /api/v1/wallets/{address}/outcomes [get]
func (h *WalletsHandler) outcomes(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	address := strings.TrimSpace(c.Param("address"))
	if !common.IsHexAddress(address) {
		Error(c, http.StatusBadRequest, "invalid wallet address", nil)
		return
	}
	limit := intQuery(c, "limit", 100)
	offset := intQuery(c, "offset", 0)

	params := repository.ListTradeOutcomesParams{
		Limit:    limit,
		Offset:   offset,
		Wallet:   &address,
		MarketID: strQueryPtr(c, "market_id"),
		Since:    timeQueryPtr(c, "since"),
		Until:    timeQueryPtr(c, "until"),
		OrderBy: parseOrder(c.Query("order_by"), map[string]string{
			"entry_time": "entry_time",
			"pnl":        "pnl_usd",
			"roi":        "roi",
			"cost":       "cost_usd",
		}),
		Asc: boolQueryPtr(c, "asc"),
	}
	items, err := h.Repo.ListTradeOutcomes(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountTradeOutcomes(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

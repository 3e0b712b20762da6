package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/dushixiang/ladder/internal/service"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// TradingHandler 交易系统HTTP处理器
type TradingHandler struct {
	logger          *zap.Logger
	tradingLoop     *service.TradingLoop
	settingsService *service.SettingsService
	snapshotService *service.SnapshotService

	loopCtx    context.Context
	loopCancel context.CancelFunc
}

// NewTradingHandler 创建交易处理器
func NewTradingHandler(
	tradingLoop *service.TradingLoop,
	settingsService *service.SettingsService,
	snapshotService *service.SnapshotService,
	logger *zap.Logger,
) *TradingHandler {
	return &TradingHandler{
		logger:          logger,
		tradingLoop:     tradingLoop,
		settingsService: settingsService,
		snapshotService: snapshotService,
	}
}

// GetStatus 获取系统状态
// GET /api/trading/status
func (h *TradingHandler) GetStatus(c echo.Context) error {
	ctx := c.Request().Context()

	settings, err := h.settingsService.ListSettings(ctx)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"loop":     h.tradingLoop.GetStatus(),
		"settings": settings,
	})
}

// GetRounds 获取指定策略的回合历史
// GET /api/trading/rounds?settings_id=xxx&limit=50
func (h *TradingHandler) GetRounds(c echo.Context) error {
	ctx := c.Request().Context()

	settingsID := c.QueryParam("settings_id")
	if settingsID == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "settings_id is required",
		})
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	rounds, err := h.settingsService.RecentRounds(ctx, settingsID, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"count":  len(rounds),
		"rounds": rounds,
	})
}

// GetOrders 获取指定策略的订单历史
// GET /api/trading/orders?settings_id=xxx&limit=100
func (h *TradingHandler) GetOrders(c echo.Context) error {
	ctx := c.Request().Context()

	settingsID := c.QueryParam("settings_id")
	if settingsID == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "settings_id is required",
		})
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	orders, err := h.settingsService.RecentOrders(ctx, settingsID, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"count":  len(orders),
		"orders": orders,
	})
}

// GetRateSnapshots 获取行情快照曲线
// GET /api/trading/rate-snapshots?symbol=LTCBTC&limit=288
func (h *TradingHandler) GetRateSnapshots(c echo.Context) error {
	ctx := c.Request().Context()

	symbol := c.QueryParam("symbol")
	if symbol == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "symbol is required",
		})
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	rows, err := h.snapshotService.RecentRates(ctx, symbol, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"count": len(rows),
		"data":  rows,
	})
}

// GetBalanceSnapshots 获取余额快照曲线
// GET /api/trading/balance-snapshots?credential_id=xxx&limit=288
func (h *TradingHandler) GetBalanceSnapshots(c echo.Context) error {
	ctx := c.Request().Context()

	credentialID := c.QueryParam("credential_id")
	if credentialID == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "credential_id is required",
		})
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	rows, err := h.snapshotService.RecentBalances(ctx, credentialID, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"count": len(rows),
		"data":  rows,
	})
}

// Start 启动巡检循环
// POST /api/trading/start
func (h *TradingHandler) Start(c echo.Context) error {
	if h.tradingLoop.IsRunning() {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "trading loop is already running",
		})
	}

	h.loopCtx, h.loopCancel = context.WithCancel(context.Background())

	go func() {
		if err := h.tradingLoop.Start(h.loopCtx); err != nil {
			h.logger.Error("trading loop error", zap.Error(err))
		}
	}()

	h.logger.Info("trading loop started via API")
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "trading loop started",
	})
}

// Stop 停止巡检循环
// POST /api/trading/stop
func (h *TradingHandler) Stop(c echo.Context) error {
	if !h.tradingLoop.IsRunning() {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "trading loop is not running",
		})
	}

	h.tradingLoop.Stop()
	if h.loopCancel != nil {
		h.loopCancel()
	}

	h.logger.Info("trading loop stopped via API")
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "trading loop stopped",
	})
}

// RegisterRoutes 注册路由
func (h *TradingHandler) RegisterRoutes(g *echo.Group) {
	trading := g.Group("/trading")

	// 查询接口
	trading.GET("/status", h.GetStatus)
	trading.GET("/rounds", h.GetRounds)
	trading.GET("/orders", h.GetOrders)
	trading.GET("/rate-snapshots", h.GetRateSnapshots)
	trading.GET("/balance-snapshots", h.GetBalanceSnapshots)

	// 控制接口
	trading.POST("/start", h.Start)
	trading.POST("/stop", h.Stop)
}

package handler

import (
	"net/http"

	"github.com/dushixiang/ladder/internal/service"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// SettingsHandler 策略配置与凭据管理处理器
type SettingsHandler struct {
	logger          *zap.Logger
	settingsService *service.SettingsService
}

// NewSettingsHandler 创建配置管理处理器
func NewSettingsHandler(settingsService *service.SettingsService, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{
		logger:          logger,
		settingsService: settingsService,
	}
}

// ListSettings 全部策略配置
// GET /api/settings
func (h *SettingsHandler) ListSettings(c echo.Context) error {
	items, err := h.settingsService.ListSettings(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"count":    len(items),
		"settings": items,
	})
}

// CreateSettings 新建策略配置
// POST /api/settings
func (h *SettingsHandler) CreateSettings(c echo.Context) error {
	var req service.SettingsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "请求参数错误",
		})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": err.Error(),
		})
	}

	item, err := h.settingsService.CreateSettings(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, item)
}

// UpdateSettings 修改策略配置
// PUT /api/settings/:id
func (h *SettingsHandler) UpdateSettings(c echo.Context) error {
	var req service.SettingsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "请求参数错误",
		})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": err.Error(),
		})
	}

	if err := h.settingsService.UpdateSettings(c.Request().Context(), c.Param("id"), req); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "ok",
	})
}

// EnableSettings 启用策略
// POST /api/settings/:id/enable
func (h *SettingsHandler) EnableSettings(c echo.Context) error {
	if err := h.settingsService.SetEnabled(c.Request().Context(), c.Param("id"), true); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "ok",
	})
}

// DisableSettings 停用策略
// POST /api/settings/:id/disable
func (h *SettingsHandler) DisableSettings(c echo.Context) error {
	if err := h.settingsService.SetEnabled(c.Request().Context(), c.Param("id"), false); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "ok",
	})
}

// DeleteSettings 删除策略配置
// DELETE /api/settings/:id
func (h *SettingsHandler) DeleteSettings(c echo.Context) error {
	if err := h.settingsService.DeleteSettings(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "ok",
	})
}

// ListCredentials 全部凭据
// GET /api/credentials
func (h *SettingsHandler) ListCredentials(c echo.Context) error {
	items, err := h.settingsService.ListCredentials(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"count":       len(items),
		"credentials": items,
	})
}

// CreateCredential 新建凭据
// POST /api/credentials
func (h *SettingsHandler) CreateCredential(c echo.Context) error {
	var req service.CredentialRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "请求参数错误",
		})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": err.Error(),
		})
	}

	item, err := h.settingsService.CreateCredential(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, item)
}

// DeleteCredential 删除凭据
// DELETE /api/credentials/:id
func (h *SettingsHandler) DeleteCredential(c echo.Context) error {
	if err := h.settingsService.DeleteCredential(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "ok",
	})
}

// RegisterRoutes 注册路由
func (h *SettingsHandler) RegisterRoutes(g *echo.Group) {
	settings := g.Group("/settings")
	settings.GET("", h.ListSettings)
	settings.POST("", h.CreateSettings)
	settings.PUT("/:id", h.UpdateSettings)
	settings.POST("/:id/enable", h.EnableSettings)
	settings.POST("/:id/disable", h.DisableSettings)
	settings.DELETE("/:id", h.DeleteSettings)

	credentials := g.Group("/credentials")
	credentials.GET("", h.ListCredentials)
	credentials.POST("", h.CreateCredential)
	credentials.DELETE("/:id", h.DeleteCredential)
}

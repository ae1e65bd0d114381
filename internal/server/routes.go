package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

func (s *Server) registerRoutes() {
	if s.app == nil {
		return
	}
	e := s.app

	e.GET("/health", s.handleHealth)
	e.GET("/diag", s.handleDiag)
	e.GET("/settings/public", s.handlePublicSettings)

	open := []echo.MiddlewareFunc{s.maintenance}
	user := []echo.MiddlewareFunc{s.maintenance, s.identify}

	e.POST("/users/sync", s.handleSyncUser, open...)
	e.PUT("/users/profile", s.handleUpdateProfile, user...)

	e.GET("/bots", s.handleListBots, open...)
	e.GET("/bots/:id", s.handleGetBot, open...)
	e.GET("/bots/:id/ownership", s.handleOwnership, user...)
	e.POST("/bots/:id/acquire", s.handleAcquire, user...)
	e.GET("/bots/:id/quote", s.handleQuote, open...)
	e.POST("/bots/:id/ton_transaction", s.handleTonTransaction, user...)
	e.POST("/payments/stars/confirm", s.handleConfirmStars, user...)
	e.POST("/payments/ton/confirm", s.handleConfirmTon, user...)
	e.GET("/library", s.handleLibrary, user...)

	e.GET("/channels", s.handleListChannels, user...)
	e.POST("/channels", s.handleCreateChannel, user...)

	e.GET("/connections", s.handleListConnections, user...)
	e.POST("/connections", s.handleCreateConnection, user...)
	e.GET("/connections/:id", s.handleGetConnection, user...)
	e.POST("/connections/:id/verify", s.handleVerifyConnection, user...)
	e.POST("/connections/:id/start", s.handleStartConnection, user...)
	e.POST("/connections/:id/stop", s.handleStopConnection, user...)
	e.POST("/connections/:id/restart", s.handleRestartConnection, user...)
	e.POST("/connections/:id/broadcast", s.handleBroadcast, user...)

	e.GET("/logs", s.handleListLogs, user...)

	e.GET("/announcements", s.handleListAnnouncements, open...)
	e.GET("/notifications", s.handleListNotifications, user...)
	e.POST("/notifications/:id/read", s.handleReadNotification, user...)

	admin := e.Group("/admin")
	admin.POST("/login", s.handleAdminLogin)
	guard := s.requireAdmin
	admin.GET("/stats", s.handleAdminStats, guard)
	admin.GET("/users", s.handleAdminUsers, guard)
	admin.PUT("/users/:id/status", s.handleAdminUserStatus, guard)
	admin.GET("/users/:id/assets", s.handleAdminUserAssets, guard)
	admin.GET("/bots", s.handleAdminBots, guard)
	admin.POST("/bots", s.handleAdminSaveBot, guard)
	admin.DELETE("/bots/:id", s.handleAdminDeleteBot, guard)
	admin.POST("/bots/:id/runtime/start", s.handleAdminStartRuntime, guard)
	admin.POST("/bots/:id/runtime/stop", s.handleAdminStopRuntime, guard)
	admin.GET("/logs", s.handleAdminLogs, guard)
	admin.GET("/announcements", s.handleAdminAnnouncements, guard)
	admin.POST("/announcements", s.handleAdminSaveAnnouncement, guard)
	admin.DELETE("/announcements/:id", s.handleAdminDeleteAnnouncement, guard)
	admin.GET("/notifications", s.handleAdminNotifications, guard)
	admin.POST("/notifications", s.handleAdminSendNotification, guard)
	admin.GET("/settings", s.handleAdminSettings, guard)
	admin.PUT("/settings", s.handleAdminSaveSettings, guard)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleDiag(c echo.Context) error {
	ctx := c.Request().Context()
	resp := map[string]any{
		"store_driver": s.opts.Config.StoreDriver,
		"apiKeySet":    s.opts.Config.TonAPIKey != "",
		"initData":     s.opts.InitData != nil,
	}
	if err := s.opts.Store.Ping(ctx); err != nil {
		resp["store"] = err.Error()
	} else {
		resp["store"] = "ok"
	}
	if s.opts.TonClient != nil {
		resp["endpoint"] = s.opts.TonClient.Endpoint()
		if err := s.opts.TonClient.Ping(ctx); err != nil {
			resp["ton"] = err.Error()
		} else {
			resp["ton"] = "ok"
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handlePublicSettings(c echo.Context) error {
	st, err := s.opts.Store.GetSettings(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "fetch_failed")
	}
	return c.JSON(http.StatusOK, st)
}

func pathID(c echo.Context) (int64, error) {
	id, err := parseInt64(c.Param("id"))
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "id required")
	}
	return id, nil
}

func parseInt64(value string) (int64, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return 0, errors.New("empty")
	}
	return strconv.ParseInt(v, 10, 64)
}

func parseBoolFlag(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/qtosh1/botlyhub/internal/activity"
	"github.com/qtosh1/botlyhub/internal/auth"
	"github.com/qtosh1/botlyhub/internal/models"
)

func (s *Server) handleAdminLogin(c echo.Context) error {
	if s.opts.Sessions == nil || !s.opts.Config.AdminLoginEnabled() {
		return echo.NewHTTPError(http.StatusForbidden, "admin_disabled")
	}
	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "bad_request")
	}
	cfg := s.opts.Config
	if err := auth.CheckLogin(cfg.AdminUsername, cfg.AdminPasswordHash, payload.Username, payload.Password); err != nil {
		s.log.WithField("username", payload.Username).Warn("admin login rejected")
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid_credentials")
	}
	token, claims, err := s.opts.Sessions.Issue(payload.Username)
	if err != nil {
		return s.fail(c, err)
	}
	s.log.WithField("session_id", claims.ID).Info("admin session issued")
	return c.JSON(http.StatusOK, map[string]any{
		"token":      token,
		"expires_at": claims.ExpiresAt.Time.UTC(),
	})
}

func (s *Server) handleAdminStats(c echo.Context) error {
	ctx := c.Request().Context()
	stats, err := s.opts.Store.Stats(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "fetch_failed")
	}
	if merchant := s.opts.Config.MerchantWallet; merchant != "" && s.opts.TonClient != nil {
		bal, err := s.opts.TonClient.GetAccountBalance(ctx, merchant)
		if err != nil {
			s.log.WithError(err).Warn("merchant balance lookup failed")
		} else {
			stats.MerchantBalance = bal.Ton
		}
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handleAdminUsers(c echo.Context) error {
	rows, err := s.opts.Store.ListUsers(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "fetch_failed")
	}
	return c.JSON(http.StatusOK, rows)
}

func (s *Server) handleAdminUserStatus(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var payload struct {
		Status models.UserStatus `json:"status"`
	}
	if err := c.Bind(&payload); err != nil || !payload.Status.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
	}
	user, err := s.opts.Store.SetUserStatus(c.Request().Context(), id, payload.Status)
	if err != nil {
		return s.fail(c, err)
	}
	if user == nil {
		return echo.NewHTTPError(http.StatusNotFound, "not_found")
	}
	return c.JSON(http.StatusOK, user)
}

func (s *Server) handleAdminUserAssets(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	user, err := s.opts.Store.GetUser(ctx, id)
	if err != nil {
		return s.fail(c, err)
	}
	if user == nil {
		return echo.NewHTTPError(http.StatusNotFound, "not_found")
	}
	assets := models.UserAssets{User: user}
	if assets.Channels, err = s.opts.Store.ListChannels(ctx, id); err != nil {
		return s.fail(c, err)
	}
	if assets.Bots, err = s.opts.Catalog.Library(ctx, id); err != nil {
		return s.fail(c, err)
	}
	if assets.Logs, err = s.opts.Activity.List(ctx, models.LogFilter{UserID: id, Limit: activity.MaxLimit}); err != nil {
		return s.fail(c, err)
	}
	if assets.Conns, err = s.opts.Registry.List(ctx, id); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, assets)
}

func (s *Server) handleAdminBots(c echo.Context) error {
	rows, err := s.opts.Store.ListAllBots(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "fetch_failed")
	}
	return c.JSON(http.StatusOK, rows)
}

func (s *Server) handleAdminSaveBot(c echo.Context) error {
	var bot models.Bot
	if err := c.Bind(&bot); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "bad_request")
	}
	saved, err := s.opts.Catalog.Save(c.Request().Context(), bot)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, saved)
}

func (s *Server) handleAdminDeleteBot(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := s.opts.Catalog.Delete(c.Request().Context(), id); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleAdminStartRuntime(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	bot, err := s.opts.Catalog.StartRuntime(c.Request().Context(), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, bot)
}

func (s *Server) handleAdminStopRuntime(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	bot, err := s.opts.Catalog.StopRuntime(c.Request().Context(), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, bot)
}

func (s *Server) handleAdminLogs(c echo.Context) error {
	filter := models.LogFilter{Limit: queryLimit(c)}
	if raw := c.QueryParam("bot_id"); raw != "" {
		if id, err := parseInt64(raw); err == nil {
			filter.BotID = id
		}
	}
	if raw := c.QueryParam("user_id"); raw != "" {
		if id, err := parseInt64(raw); err == nil {
			filter.UserID = id
		}
	}
	rows, err := s.opts.Activity.List(c.Request().Context(), filter)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "fetch_failed")
	}
	return c.JSON(http.StatusOK, rows)
}

func (s *Server) handleAdminAnnouncements(c echo.Context) error {
	rows, err := s.opts.Store.ListAnnouncements(c.Request().Context(), false)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "fetch_failed")
	}
	return c.JSON(http.StatusOK, rows)
}

func (s *Server) handleAdminSaveAnnouncement(c echo.Context) error {
	var a models.Announcement
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "bad_request")
	}
	a.Title = strings.TrimSpace(a.Title)
	if a.Title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title required")
	}
	if a.ActionType == "" {
		a.ActionType = models.ActionLink
	}
	if !a.ActionType.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid action_type")
	}
	saved, err := s.opts.Store.UpsertAnnouncement(c.Request().Context(), a)
	if err != nil {
		return s.fail(c, err)
	}
	if saved == nil {
		return echo.NewHTTPError(http.StatusNotFound, "not_found")
	}
	return c.JSON(http.StatusOK, saved)
}

func (s *Server) handleAdminDeleteAnnouncement(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ok, err := s.opts.Store.DeleteAnnouncement(c.Request().Context(), id)
	if err != nil {
		return s.fail(c, err)
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "not_found")
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleAdminNotifications(c echo.Context) error {
	rows, err := s.opts.Store.ListNotifications(c.Request().Context(), 0)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "fetch_failed")
	}
	return c.JSON(http.StatusOK, rows)
}

func (s *Server) handleAdminSendNotification(c echo.Context) error {
	var n models.Notification
	if err := c.Bind(&n); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "bad_request")
	}
	n.Title = strings.TrimSpace(n.Title)
	if n.Title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title required")
	}
	if n.Type == "" {
		n.Type = models.NotificationSystem
	}
	if !n.Type.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid type")
	}
	switch {
	case n.UserID != nil:
		n.TargetType = models.TargetUser
	default:
		n.TargetType = models.TargetGlobal
	}
	saved, err := s.opts.Store.InsertNotification(c.Request().Context(), n)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusCreated, saved)
}

func (s *Server) handleAdminSettings(c echo.Context) error {
	st, err := s.opts.Store.GetSettings(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "fetch_failed")
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) handleAdminSaveSettings(c echo.Context) error {
	var st models.Settings
	if err := c.Bind(&st); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "bad_request")
	}
	if st.CommissionRate.IsNegative() || st.CommissionRate.GreaterThan(decimal.NewFromInt(100)) {
		return echo.NewHTTPError(http.StatusBadRequest, "commission_rate must be between 0 and 100")
	}
	if strings.TrimSpace(st.AppName) == "" {
		st.AppName = models.DefaultSettings().AppName
	}
	saved, err := s.opts.Store.SaveSettings(c.Request().Context(), st)
	if err != nil {
		return s.fail(c, err)
	}
	s.log.WithField("maintenance", saved.MaintenanceMode).Info("platform settings updated")
	return c.JSON(http.StatusOK, saved)
}

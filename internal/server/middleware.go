package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/qtosh1/botlyhub/internal/auth"
	"github.com/qtosh1/botlyhub/internal/models"
)

const (
	ctxUserID  = "user_id"
	ctxAdmin   = "admin"
	initHeader = "X-Telegram-Init-Data"
)

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		req := c.Request()
		status := c.Response().Status
		entry := s.log.WithFields(logrus.Fields{
			"method":  req.Method,
			"path":    c.Path(),
			"status":  status,
			"latency": time.Since(start).String(),
		})
		if uid, ok := c.Get(ctxUserID).(int64); ok {
			entry = entry.WithField("user_id", uid)
		}
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("request failed")
		case status >= http.StatusBadRequest:
			entry.Info("request rejected")
		default:
			entry.Debug("request served")
		}
		return nil
	}
}

// maintenance turns user routes into 503 while the platform is in maintenance mode.
func (s *Server) maintenance(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		st, err := s.opts.Store.GetSettings(c.Request().Context())
		if err != nil {
			s.log.WithError(err).Warn("settings lookup failed")
			return echo.NewHTTPError(http.StatusInternalServerError, "settings_unavailable")
		}
		if st.MaintenanceMode {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "maintenance")
		}
		return next(c)
	}
}

// identify resolves the calling Telegram user. With init-data validation enabled
// the signed init data is required and the user record is refreshed from it.
func (s *Server) identify(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, err := s.resolveUser(c)
		if err != nil {
			return err
		}
		if user.Status == models.UserPassive || user.IsRestricted {
			return echo.NewHTTPError(http.StatusForbidden, "user_restricted")
		}
		c.Set(ctxUserID, user.ID)
		return next(c)
	}
}

func (s *Server) resolveUser(c echo.Context) (*models.User, error) {
	ctx := c.Request().Context()
	if s.opts.InitData != nil {
		tgUser, err := s.opts.InitData.Validate(initDataFrom(c.Request()))
		if err != nil {
			if errors.Is(err, auth.ErrInitDataExpired) {
				return nil, echo.NewHTTPError(http.StatusUnauthorized, "init_data_expired")
			}
			return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid_init_data")
		}
		user, err := s.opts.Store.SyncUser(ctx, models.User{
			ID:       tgUser.ID,
			Name:     tgUser.DisplayName(),
			Username: tgUser.Username,
			Avatar:   tgUser.PhotoURL,
		})
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusInternalServerError, "user_sync_failed")
		}
		return user, nil
	}

	raw := c.Request().Header.Get("X-User-Id")
	if raw == "" {
		raw = c.QueryParam("user_id")
	}
	userID, err := parseInt64(raw)
	if err != nil || userID <= 0 {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "user_id required")
	}
	user, err := s.opts.Store.GetUser(ctx, userID)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "user_lookup_failed")
	}
	if user == nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "unknown_user")
	}
	return user, nil
}

func initDataFrom(r *http.Request) string {
	if v := r.Header.Get(initHeader); v != "" {
		return v
	}
	if scheme, rest, ok := strings.Cut(r.Header.Get(echo.HeaderAuthorization), " "); ok && strings.EqualFold(scheme, "tma") {
		return rest
	}
	return ""
}

func (s *Server) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.opts.Sessions == nil || !s.opts.Config.AdminLoginEnabled() {
			return echo.NewHTTPError(http.StatusForbidden, "admin_disabled")
		}
		scheme, token, ok := strings.Cut(c.Request().Header.Get(echo.HeaderAuthorization), " ")
		if !ok || !strings.EqualFold(scheme, "bearer") {
			return echo.NewHTTPError(http.StatusUnauthorized, "token_required")
		}
		claims, err := s.opts.Sessions.Validate(token)
		if errors.Is(err, auth.ErrExpiredToken) {
			return echo.NewHTTPError(http.StatusUnauthorized, "session_expired")
		}
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid_token")
		}
		c.Set(ctxAdmin, claims.Subject)
		return next(c)
	}
}

func currentUser(c echo.Context) int64 {
	id, _ := c.Get(ctxUserID).(int64)
	return id
}

package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/qtosh1/botlyhub/internal/models"
)

func (s *Server) handleSyncUser(c echo.Context) error {
	if s.opts.InitData != nil {
		user, err := s.resolveUser(c)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, user)
	}
	var payload struct {
		ID       int64  `json:"id" validate:"gt=0"`
		Name     string `json:"name"`
		Username string `json:"username"`
		Avatar   string `json:"avatar"`
	}
	if err := c.Bind(&payload); err != nil || c.Validate(&payload) != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "id required")
	}
	user, err := s.opts.Store.SyncUser(c.Request().Context(), models.User{
		ID:       payload.ID,
		Name:     strings.TrimSpace(payload.Name),
		Username: strings.TrimPrefix(strings.TrimSpace(payload.Username), "@"),
		Avatar:   payload.Avatar,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, user)
}

// handleUpdateProfile validates contact details before they are stored. Empty
// values clear the field.
func (s *Server) handleUpdateProfile(c echo.Context) error {
	var payload struct {
		Email *string `json:"email" validate:"omitempty,email"`
		Phone *string `json:"phone" validate:"omitempty,e164"`
	}
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "bad_request")
	}
	payload.Email = trimmedOrNil(payload.Email)
	payload.Phone = trimmedOrNil(payload.Phone)
	if err := c.Validate(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid_contact")
	}
	user, err := s.opts.Store.UpdateUserProfile(c.Request().Context(), currentUser(c), payload.Email, payload.Phone)
	if err != nil {
		return s.fail(c, err)
	}
	if user == nil {
		return echo.NewHTTPError(http.StatusNotFound, "not_found")
	}
	return c.JSON(http.StatusOK, user)
}

func (s *Server) handleListAnnouncements(c echo.Context) error {
	rows, err := s.opts.Store.ListAnnouncements(c.Request().Context(), true)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "fetch_failed")
	}
	return c.JSON(http.StatusOK, rows)
}

func (s *Server) handleListNotifications(c echo.Context) error {
	rows, err := s.opts.Store.ListNotifications(c.Request().Context(), currentUser(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "fetch_failed")
	}
	return c.JSON(http.StatusOK, rows)
}

func (s *Server) handleReadNotification(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ok, err := s.opts.Store.MarkNotificationRead(c.Request().Context(), id, currentUser(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "update_failed")
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "not_found")
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}

func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

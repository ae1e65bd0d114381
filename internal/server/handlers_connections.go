package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/qtosh1/botlyhub/internal/models"
)

func (s *Server) handleListChannels(c echo.Context) error {
	rows, err := s.opts.Store.ListChannels(c.Request().Context(), currentUser(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "fetch_failed")
	}
	return c.JSON(http.StatusOK, rows)
}

func (s *Server) handleCreateChannel(c echo.Context) error {
	var payload struct {
		Name         string `json:"name" validate:"required"`
		TelegramChat string `json:"telegram_chat" validate:"required"`
		MemberCount  int    `json:"member_count" validate:"gte=0"`
		Icon         string `json:"icon"`
		IsAdEnabled  bool   `json:"is_ad_enabled"`
	}
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "bad_request")
	}
	payload.Name = strings.TrimSpace(payload.Name)
	payload.TelegramChat = strings.TrimSpace(payload.TelegramChat)
	if err := c.Validate(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "name and telegram_chat required")
	}
	ch, err := s.opts.Store.InsertChannel(c.Request().Context(), models.Channel{
		UserID:       currentUser(c),
		Name:         payload.Name,
		TelegramChat: payload.TelegramChat,
		MemberCount:  payload.MemberCount,
		Icon:         payload.Icon,
		IsAdEnabled:  payload.IsAdEnabled,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusCreated, ch)
}

func (s *Server) handleListConnections(c echo.Context) error {
	rows, err := s.opts.Registry.List(c.Request().Context(), currentUser(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "fetch_failed")
	}
	return c.JSON(http.StatusOK, rows)
}

func (s *Server) handleCreateConnection(c echo.Context) error {
	var payload struct {
		BotID     int64 `json:"bot_id" validate:"gt=0"`
		ChannelID int64 `json:"channel_id" validate:"gt=0"`
	}
	if err := c.Bind(&payload); err != nil || c.Validate(&payload) != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "bot_id and channel_id required")
	}
	conn, err := s.opts.Registry.Create(c.Request().Context(), currentUser(c), payload.BotID, payload.ChannelID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusCreated, conn)
}

// ownedConnection loads the connection named in the path and hides other users' rows.
func (s *Server) ownedConnection(c echo.Context) (*models.BotConnection, error) {
	id, err := pathID(c)
	if err != nil {
		return nil, err
	}
	conn, err := s.opts.Registry.Get(c.Request().Context(), id)
	if err != nil {
		return nil, s.fail(c, err)
	}
	if conn.UserID != currentUser(c) {
		return nil, echo.NewHTTPError(http.StatusNotFound, "not_found")
	}
	return conn, nil
}

func (s *Server) handleGetConnection(c echo.Context) error {
	conn, err := s.ownedConnection(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, conn)
}

func (s *Server) handleVerifyConnection(c echo.Context) error {
	conn, err := s.ownedConnection(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	passed, err := s.opts.Registry.Verify(ctx, conn.ID)
	if err != nil {
		return s.fail(c, err)
	}
	updated, err := s.opts.Registry.Get(ctx, conn.ID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"verified": passed, "connection": updated})
}

func (s *Server) handleStartConnection(c echo.Context) error {
	conn, err := s.ownedConnection(c)
	if err != nil {
		return err
	}
	next := models.ConnectionActive
	if parseBoolFlag(c.QueryParam("boot")) {
		next = models.ConnectionBooting
	}
	updated, err := s.opts.Registry.SetRuntimeStatus(c.Request().Context(), conn.ID, next)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (s *Server) handleStopConnection(c echo.Context) error {
	conn, err := s.ownedConnection(c)
	if err != nil {
		return err
	}
	updated, err := s.opts.Registry.Stop(c.Request().Context(), conn.ID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (s *Server) handleRestartConnection(c echo.Context) error {
	conn, err := s.ownedConnection(c)
	if err != nil {
		return err
	}
	updated, err := s.opts.Registry.Restart(c.Request().Context(), conn.ID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (s *Server) handleBroadcast(c echo.Context) error {
	conn, err := s.ownedConnection(c)
	if err != nil {
		return err
	}
	var payload struct {
		Text string `json:"text"`
	}
	if err := c.Bind(&payload); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "bad_request")
	}
	if err := s.opts.Registry.Broadcast(c.Request().Context(), conn.ID, payload.Text); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleListLogs(c echo.Context) error {
	filter := models.LogFilter{UserID: currentUser(c), Limit: queryLimit(c)}
	if raw := c.QueryParam("bot_id"); raw != "" {
		botID, err := parseInt64(raw)
		if err != nil || botID <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid bot_id")
		}
		filter.BotID = botID
	}
	rows, err := s.opts.Activity.List(c.Request().Context(), filter)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "fetch_failed")
	}
	return c.JSON(http.StatusOK, rows)
}

func queryLimit(c echo.Context) int {
	n, err := strconv.Atoi(strings.TrimSpace(c.QueryParam("limit")))
	if err != nil {
		return 0
	}
	return n
}

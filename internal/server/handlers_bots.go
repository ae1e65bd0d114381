package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func (s *Server) handleListBots(c echo.Context) error {
	rows, err := s.opts.Catalog.List(c.Request().Context(), c.QueryParam("category"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "fetch_failed")
	}
	return c.JSON(http.StatusOK, rows)
}

func (s *Server) handleGetBot(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	bot, err := s.opts.Catalog.Get(c.Request().Context(), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, bot)
}

func (s *Server) handleOwnership(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	owned, err := s.opts.Catalog.Owns(c.Request().Context(), currentUser(c), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"bot_id": id, "owned": owned})
}

func (s *Server) handleAcquire(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	bot, err := s.opts.Catalog.Acquire(c.Request().Context(), currentUser(c), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"bot": bot, "owned": true})
}

func (s *Server) handleLibrary(c echo.Context) error {
	rows, err := s.opts.Catalog.Library(c.Request().Context(), currentUser(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "fetch_failed")
	}
	return c.JSON(http.StatusOK, rows)
}

func (s *Server) handleQuote(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	quote, err := s.opts.Payments.Quote(c.Request().Context(), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, quote)
}

func (s *Server) handleTonTransaction(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	tx, err := s.opts.Payments.TonTransaction(c.Request().Context(), id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, tx)
}

// handleConfirmStars grants a paid bot on a charge id reported by the mini app.
// The id is taken on trust, so the route answers 503 unless
// PAYMENTS_TRUST_CLIENT is set.
func (s *Server) handleConfirmStars(c echo.Context) error {
	var payload struct {
		BotID    int64  `json:"bot_id" validate:"gt=0"`
		ChargeID string `json:"telegram_payment_charge_id" validate:"required"`
	}
	if err := c.Bind(&payload); err != nil || c.Validate(&payload) != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "bad_request")
	}
	bot, err := s.opts.Payments.ConfirmStars(c.Request().Context(), currentUser(c), payload.BotID, payload.ChargeID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"bot": bot, "owned": true})
}

// handleConfirmTon is the TON counterpart of handleConfirmStars with the same
// trust boundary: the BOC is decoded but not found on chain.
func (s *Server) handleConfirmTon(c echo.Context) error {
	var payload struct {
		BotID int64  `json:"bot_id" validate:"gt=0"`
		Boc   string `json:"boc" validate:"required"`
	}
	if err := c.Bind(&payload); err != nil || c.Validate(&payload) != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "bad_request")
	}
	bot, err := s.opts.Payments.ConfirmTon(c.Request().Context(), currentUser(c), payload.BotID, payload.Boc)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"bot": bot, "owned": true})
}

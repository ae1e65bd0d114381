package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/qtosh1/botlyhub/internal/catalog"
	"github.com/qtosh1/botlyhub/internal/models"
	"github.com/qtosh1/botlyhub/internal/payments"
	"github.com/qtosh1/botlyhub/internal/registry"
	"github.com/qtosh1/botlyhub/internal/ton"
)

var errorCodes = []struct {
	err    error
	status int
	code   string
}{
	{registry.ErrNotFound, http.StatusNotFound, "not_found"},
	{registry.ErrChannelNotFound, http.StatusNotFound, "channel_not_found"},
	{registry.ErrBotNotFound, http.StatusNotFound, "bot_not_found"},
	{registry.ErrNotOwned, http.StatusForbidden, "bot_not_owned"},
	{registry.ErrDuplicateConnection, http.StatusConflict, "already_connected"},
	{registry.ErrNotVerified, http.StatusConflict, "not_verified"},
	{registry.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{registry.ErrConflict, http.StatusConflict, "conflict"},
	{registry.ErrEmptyMessage, http.StatusBadRequest, "empty_message"},
	{catalog.ErrNotFound, http.StatusNotFound, "bot_not_found"},
	{catalog.ErrPaymentRequired, http.StatusPaymentRequired, "payment_required"},
	{catalog.ErrInvalidBot, http.StatusBadRequest, "invalid_bot"},
	{catalog.ErrNotRunnable, http.StatusConflict, "bot_not_runnable"},
	{payments.ErrFreeBot, http.StatusBadRequest, "bot_is_free"},
	{payments.ErrMerchantMissing, http.StatusServiceUnavailable, "merchant_not_configured"},
	{payments.ErrMissingReference, http.StatusBadRequest, "payment_reference_required"},
	{payments.ErrConfirmationDisabled, http.StatusServiceUnavailable, "payment_confirmation_disabled"},
	{ton.ErrInvalidBoc, http.StatusBadRequest, "invalid_boc"},
	{models.ErrDuplicate, http.StatusConflict, "already_exists"},
}

// fail maps domain errors to HTTP errors. Unknown errors are logged and hidden.
func (s *Server) fail(c echo.Context, err error) error {
	for _, m := range errorCodes {
		if errors.Is(err, m.err) {
			return echo.NewHTTPError(m.status, m.code)
		}
	}
	s.log.WithError(err).WithField("path", c.Path()).Error("request failed")
	return echo.NewHTTPError(http.StatusInternalServerError, "internal_error")
}

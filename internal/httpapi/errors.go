package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/talentroute/assessd/internal/ai"
	"github.com/talentroute/assessd/internal/attempt"
	"github.com/talentroute/assessd/internal/instrument"
)

// httpError translates core errors into HTTP responses carrying enough
// detail for the caller to correct the request.
func httpError(err error) error {
	var incomplete *attempt.IncompleteError
	if errors.As(err, &incomplete) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, map[string]any{
			"error":   "incomplete responses",
			"missing": incomplete.Missing,
		})
	}

	var invalid *instrument.ValidationError
	if errors.As(err, &invalid) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, map[string]any{
			"error":  "invalid response",
			"item":   invalid.Item,
			"reason": invalid.Reason,
		})
	}

	switch {
	case errors.Is(err, instrument.ErrUnknownInstrument),
		errors.Is(err, attempt.ErrAttemptNotFound),
		errors.Is(err, attempt.ErrTaskNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, instrument.ErrUnknownItem):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, attempt.ErrNotOwner),
		errors.Is(err, attempt.ErrNotEntitled):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, attempt.ErrInvalidState),
		errors.Is(err, attempt.ErrAttemptInProgress):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, attempt.ErrNotReady):
		return echo.NewHTTPError(http.StatusAccepted, map[string]string{"status": "not ready"})
	case errors.Is(err, ai.ErrUnknownProvider):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, attempt.ErrScoring):
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"QuantLens/internal/domain/errs"
	xhttp "QuantLens/pkg/http"
	xlogger "QuantLens/pkg/logger"
)

// toAppError maps the domain error taxonomy onto HTTP statuses.
func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	msg := err.Error()
	switch {
	case errors.Is(err, errs.ErrInvalidInput):
		return xhttp.BadRequestError(msg).WithError(err)
	case errors.Is(err, errs.ErrInsufficientData):
		return xhttp.UnprocessableError(msg).WithError(err)
	case errors.Is(err, errs.ErrNotFound):
		return xhttp.NotFoundError(msg).WithError(err)
	case errors.Is(err, errs.ErrBusy):
		return xhttp.ConflictError("a backtest is already running").WithError(err)
	case errors.Is(err, errs.ErrUpstreamUnavailable):
		return xhttp.BadGatewayError(msg).WithError(err)
	case errors.Is(err, errs.ErrCancelled):
		return xhttp.TimeoutError(msg).WithError(err)
	default:
		return xhttp.InternalError("Something went wrong").WithError(err)
	}
}

// fail writes err as an AppError response. Server-side failures are logged.
func fail(c echo.Context, l *xlogger.Logger, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= http.StatusInternalServerError {
		l.Error("request failed", xlogger.String("route", c.Path()), xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

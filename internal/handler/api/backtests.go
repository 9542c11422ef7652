package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"QuantLens/internal/service/metrics"
	"QuantLens/internal/usecase"
	xhttp "QuantLens/pkg/http"
	xlogger "QuantLens/pkg/logger"
	"QuantLens/pkg/util"
)

// BacktestHandler starts, polls and cancels backtest runs. Only one run is
// admitted at a time; a second start answers 409.
type BacktestHandler struct {
	logger *xlogger.Logger
	runner *usecase.BacktestRunner
}

func NewBacktestHandler(logger *xlogger.Logger, runner *usecase.BacktestRunner) *BacktestHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &BacktestHandler{logger: logger.With("api.backtests"), runner: runner}
}

func (h *BacktestHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/backtests")
	g.POST("", h.Start)
	g.GET("/:id", h.Status)
	g.DELETE("/:id", h.Cancel)
}

func (h *BacktestHandler) Start(c echo.Context) error {
	start := time.Now()
	req := &BacktestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	bc, err := req.config()
	if err != nil {
		return fail(c, h.logger, err)
	}
	bc.Symbols = util.NormalizeSymbols(bc.Symbols)
	runID, err := h.runner.Start(c.Request().Context(), bc)
	metrics.Observe("backtest_start", start, err)
	if err != nil {
		return fail(c, h.logger, err)
	}
	h.logger.Info("backtest accepted", xlogger.String("run_id", runID), xlogger.Strings("symbols", bc.Symbols))
	return xhttp.DataResponse(c, http.StatusAccepted, BacktestStarted{RunID: runID})
}

func (h *BacktestHandler) Status(c echo.Context) error {
	run, err := h.runner.Status(c.Param("id"))
	if err != nil {
		return fail(c, h.logger, err)
	}
	return xhttp.SuccessResponse(c, run)
}

func (h *BacktestHandler) Cancel(c echo.Context) error {
	if err := h.runner.Cancel(c.Param("id")); err != nil {
		return fail(c, h.logger, err)
	}
	return xhttp.DataResponse(c, http.StatusAccepted, nil)
}

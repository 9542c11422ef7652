package api

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"QuantLens/internal/domain/models"
	"QuantLens/internal/service/metrics"
	"QuantLens/internal/usecase"
	xhttp "QuantLens/pkg/http"
	xlogger "QuantLens/pkg/logger"
)

// OptionsHandler serves pricing, surface diagnostics and pinning.
type OptionsHandler struct {
	logger *xlogger.Logger
	uc     *usecase.OptionsUseCase
}

func NewOptionsHandler(logger *xlogger.Logger, uc *usecase.OptionsUseCase) *OptionsHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &OptionsHandler{logger: logger.With("api.options"), uc: uc}
}

func (h *OptionsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/options")
	g.POST("/price", h.Price)
	g.POST("/iv", h.ImpliedVol)
	g.POST("/surface", h.Surface)
	g.POST("/surface/batch", h.SurfaceBatch)
	g.GET("/surface/:symbol", h.LatestSurface)
	g.POST("/pinning", h.Pinning)
}

func (h *OptionsHandler) Price(c echo.Context) error {
	start := time.Now()
	req := &PriceRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	p, err := req.params()
	if err != nil {
		return fail(c, h.logger, err)
	}
	res, err := h.uc.Price(p)
	metrics.Observe("price", start, err)
	if err != nil {
		return fail(c, h.logger, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *OptionsHandler) ImpliedVol(c echo.Context) error {
	start := time.Now()
	req := &ImpliedVolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	p, err := req.params()
	if err != nil {
		return fail(c, h.logger, err)
	}
	iv, err := h.uc.ImpliedVol(p, req.MarketPrice)
	metrics.Observe("implied_vol", start, err)
	if err != nil {
		return fail(c, h.logger, err)
	}
	return xhttp.SuccessResponse(c, ImpliedVolResponse{ImpliedVolatility: iv})
}

// Surface analyzes the chain in the request body.
func (h *OptionsHandler) Surface(c echo.Context) error {
	start := time.Now()
	snap := &models.ChainSnapshot{}
	if err := c.Bind(snap); err != nil {
		return xhttp.BadRequestResponse(c, []xhttp.ValidationError{{Code: "ERR_BIND", Message: err.Error()}})
	}
	if snap.AsOf.IsZero() {
		snap.AsOf = time.Now().UTC()
	}
	res, err := h.uc.AnalyzeSurface(c.Request().Context(), *snap)
	metrics.Observe("surface", start, err)
	if err != nil {
		return fail(c, h.logger, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *OptionsHandler) SurfaceBatch(c echo.Context) error {
	start := time.Now()
	req := &SurfaceBatchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	now := time.Now().UTC()
	for i := range req.Snapshots {
		if req.Snapshots[i].AsOf.IsZero() {
			req.Snapshots[i].AsOf = now
		}
	}
	analyses, failures := h.uc.AnalyzeBatch(c.Request().Context(), req.Snapshots)
	metrics.Observe("surface_batch", start, nil)
	return xhttp.SuccessResponse(c, SurfaceBatchResponse{Analyses: analyses, Failures: failures})
}

// LatestSurface analyzes the most recent streamed chain for :symbol.
func (h *OptionsHandler) LatestSurface(c echo.Context) error {
	start := time.Now()
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	res, err := h.uc.LatestSurface(c.Request().Context(), symbol)
	metrics.Observe("surface_latest", start, err)
	if err != nil {
		return fail(c, h.logger, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}

func (h *OptionsHandler) Pinning(c echo.Context) error {
	start := time.Now()
	req := &usecase.PinningParams{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	req.Symbol = strings.ToUpper(req.Symbol)
	res, err := h.uc.PredictPinning(c.Request().Context(), *req)
	metrics.Observe("pinning", start, err)
	if err != nil {
		return fail(c, h.logger, err)
	}
	return xhttp.SuccessResponse(c, res)
}

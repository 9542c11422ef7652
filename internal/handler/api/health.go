package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"

	xhttp "QuantLens/pkg/http"
)

// Check reports the health of one dependency.
type Check func(ctx context.Context) error

// HealthHandler answers /healthz with the state of every registered check.
type HealthHandler struct {
	checks  map[string]Check
	timeout time.Duration
}

func NewHealthHandler(checks map[string]Check) *HealthHandler {
	if checks == nil {
		checks = map[string]Check{}
	}
	return &HealthHandler{checks: checks, timeout: 2 * time.Second}
}

func (h *HealthHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	res := HealthResponse{Status: "ok", Checks: make(map[string]string, len(names))}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			res.Status = "degraded"
			res.Checks[name] = err.Error()
			continue
		}
		res.Checks[name] = "ok"
	}
	if res.Status != "ok" {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, res)
	}
	return xhttp.SuccessResponse(c, res)
}

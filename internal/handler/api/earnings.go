package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"QuantLens/internal/domain/models"
	"QuantLens/internal/service/metrics"
	"QuantLens/internal/usecase"
	xhttp "QuantLens/pkg/http"
	xlogger "QuantLens/pkg/logger"
)

// EarningsHandler serves sentiment scoring, event ingestion and the
// post-earnings movement batch.
type EarningsHandler struct {
	logger *xlogger.Logger
	uc     *usecase.EarningsUseCase
}

func NewEarningsHandler(logger *xlogger.Logger, uc *usecase.EarningsUseCase) *EarningsHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &EarningsHandler{logger: logger.With("api.earnings"), uc: uc}
}

func (h *EarningsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/sentiment/score", h.Score)
	g.POST("/earnings/events", h.Ingest)
	g.GET("/earnings/:symbol/sentiment", h.History)
	g.POST("/earnings/movements", h.Movements)
}

func (h *EarningsHandler) Score(c echo.Context) error {
	start := time.Now()
	req := &TranscriptRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	t := models.Transcript{Symbol: strings.ToUpper(req.Symbol), Quarter: req.Quarter, Text: req.Text}
	if req.EarningsDate != "" {
		d, err := parseDate("earningsDate", req.EarningsDate)
		if err != nil {
			return fail(c, h.logger, err)
		}
		t.EarningsDate = d
	}
	res, err := h.uc.Score(c.Request().Context(), t)
	metrics.Observe("sentiment_score", start, err)
	if err != nil {
		return fail(c, h.logger, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *EarningsHandler) Ingest(c echo.Context) error {
	start := time.Now()
	req := &IngestEventRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	d, err := parseDate("earningsDate", req.EarningsDate)
	if err != nil {
		return fail(c, h.logger, err)
	}
	ev := &models.EarningsEvent{
		Symbol:       strings.ToUpper(req.Symbol),
		EarningsDate: d,
		Quarter:      req.Quarter,
		Transcript:   req.Transcript,
	}
	err = h.uc.Ingest(c.Request().Context(), ev, req.Score)
	metrics.Observe("earnings_ingest", start, err)
	if err != nil {
		return fail(c, h.logger, err)
	}
	ev.Transcript = ""
	return xhttp.DataResponse(c, http.StatusCreated, ev)
}

// History returns scored sentiment for :symbol between ?from and ?to.
func (h *EarningsHandler) History(c echo.Context) error {
	start := time.Now()
	req := &SentimentHistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	now := time.Now().UTC()
	from := xhttp.ParseTimeDefault(req.From, now.AddDate(-2, 0, 0))
	to := xhttp.ParseTimeDefault(req.To, now)
	res, err := h.uc.HistoricalSentiment(c.Request().Context(), strings.ToUpper(req.Symbol), from, to)
	metrics.Observe("sentiment_history", start, err)
	if err != nil {
		return fail(c, h.logger, err)
	}
	return xhttp.ListResponse(c, res, int64(len(res)))
}

func (h *EarningsHandler) Movements(c echo.Context) error {
	start := time.Now()
	req := &MovementsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	events := make([]models.EventRequest, 0, len(req.Events))
	for _, e := range req.Events {
		d, err := parseDate("earningsDate", e.EarningsDate)
		if err != nil {
			return fail(c, h.logger, err)
		}
		events = append(events, models.EventRequest{Symbol: strings.ToUpper(e.Symbol), EarningsDate: d})
	}
	moves, failures, err := h.uc.Movements(c.Request().Context(), events)
	metrics.Observe("movements", start, err)
	if err != nil {
		return fail(c, h.logger, err)
	}
	if moves == nil {
		moves = []models.PriceMovement{}
	}
	return xhttp.SuccessResponse(c, MovementsResponse{Movements: moves, Failures: failures})
}

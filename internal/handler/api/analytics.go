package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"QuantPulse/internal/domain/models"
	drepo "QuantPulse/internal/domain/repository"
	svcmetrics "QuantPulse/internal/service/metrics"
	"QuantPulse/internal/service/ratelimit"
	"QuantPulse/internal/services/analytics"
	"QuantPulse/internal/usecase"
	xhttp "QuantPulse/pkg/http"
	xlogger "QuantPulse/pkg/logger"
)

// AnalyticsDefaults fill parameters a request leaves out.
type AnalyticsDefaults struct {
	Timeframe drepo.Timeframe
	Window    int
	Method    string
}

// AnalyticsHandler exposes pair analytics computed on demand and the
// processor's latest snapshots.
type AnalyticsHandler struct {
	log       *xlogger.Logger
	engine    *analytics.Engine
	processor *usecase.PairProcessor
	limiter   *ratelimit.Limiter
	metrics   *svcmetrics.AnalyticsMetrics
	defaults  AnalyticsDefaults
}

func NewAnalyticsHandler(log *xlogger.Logger, engine *analytics.Engine, processor *usecase.PairProcessor, limiter *ratelimit.Limiter, metrics *svcmetrics.AnalyticsMetrics, defaults AnalyticsDefaults) *AnalyticsHandler {
	if defaults.Timeframe == "" {
		defaults.Timeframe = drepo.TF1m
	}
	if defaults.Window < 2 {
		defaults.Window = 60
	}
	if defaults.Method == "" {
		defaults.Method = analytics.OLS.String()
	}
	return &AnalyticsHandler{log: log, engine: engine, processor: processor, limiter: limiter, metrics: metrics, defaults: defaults}
}

func (h *AnalyticsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/analytics")
	if h.limiter != nil {
		g.Use(RateLimit(h.limiter))
	}
	g.GET("/pair", h.Pair)
	g.GET("/latest", h.Latest)
	g.GET("/adf", h.ADF)
	g.GET("/hedge-ratio", h.series("hedge_ratio", h.engine.HedgeRatio))
	g.GET("/spread", h.series("spread", h.engine.Spread))
	g.GET("/zscore", h.series("zscore", h.engine.ZScore))
	g.GET("/correlation", h.series("correlation", func(ctx context.Context, a, b string, tf drepo.Timeframe, w int, _ analytics.Method) ([]models.MetricPoint, error) {
		return h.engine.RollingCorrelation(ctx, a, b, tf, w)
	}))
}

type pairParams struct {
	pair   string
	symA   string
	symB   string
	tf     drepo.Timeframe
	window int
	method analytics.Method
}

// readPair binds and validates the shared analytics query. The returned
// error is ready for AppErrorResponse; verr for BadRequestResponse.
func (h *AnalyticsHandler) readPair(c echo.Context) (p pairParams, verr []xhttp.ValidationError, err error) {
	req := &models.PairAnalyticsRequest{
		TF:         string(h.defaults.Timeframe),
		Window:     h.defaults.Window,
		Regression: h.defaults.Method,
	}
	if verr = xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return p, verr, nil
	}
	if p.symA, p.symB, err = analytics.SplitPair(req.Pair); err != nil {
		return p, nil, xhttp.NewAppError("ERR_INVALID_PAIR", "pair", "pair must look like SYMBOL_A-SYMBOL_B", http.StatusBadRequest)
	}
	if p.tf, err = drepo.ParseTimeframe(req.TF); err != nil {
		return p, nil, xhttp.NewAppError("ERR_TIMEFRAME", "tf", err.Error(), http.StatusBadRequest)
	}
	if p.method, err = analytics.ParseMethod(req.Regression); err != nil {
		return p, nil, xhttp.NewAppError("ERR_REGRESSION", "regression", err.Error(), http.StatusBadRequest).
			WithParam("options", []string{"OLS", "Huber", "Theil-Sen", "Kalman"})
	}
	p.pair = p.symA + "-" + p.symB
	p.window = req.Window
	return p, nil, nil
}

// Pair computes every statistic for a pair. No data yields an empty 200;
// a computation error yields a 500 carrying the error field.
func (h *AnalyticsHandler) Pair(c echo.Context) error {
	start := time.Now()
	p, verr, err := h.readPair(c)
	if verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}

	res := h.engine.PairAnalytics(c.Request().Context(), p.pair, p.tf, p.window, p.method.String())
	h.metrics.Observe("pair", res.Method, start, res.HasError())
	if res.HasError() {
		return xhttp.DataResponse(c, http.StatusInternalServerError, res)
	}
	return xhttp.SuccessResponse(c, res)
}

// Latest returns the processor's cached snapshot for a pair.
func (h *AnalyticsHandler) Latest(c echo.Context) error {
	req := &models.LatestAnalyticsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	a, b, err := analytics.SplitPair(req.Pair)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_INVALID_PAIR", "pair", "pair must look like SYMBOL_A-SYMBOL_B", http.StatusBadRequest))
	}
	if h.processor == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("analytics processor disabled"))
	}
	res, ok, err := h.processor.Latest(c.Request().Context(), a+"-"+b)
	if err != nil {
		h.log.Error("latest analytics lookup failed", xlogger.String("pair", req.Pair), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("snapshot lookup failed").WithError(err))
	}
	h.metrics.Lookup(ok)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no recent analytics for %s-%s", a, b))
	}
	return xhttp.SuccessResponse(c, res)
}

type adfResponse struct {
	Pair           string  `json:"pair"`
	Stat           float64 `json:"stat"`
	PValue         float64 `json:"pvalue"`
	Stationary     bool    `json:"is_stationary"`
	Interpretation string  `json:"interpretation"`
	Points         int     `json:"points"`
}

// ADF runs the stationarity test on the pair's spread.
func (h *AnalyticsHandler) ADF(c echo.Context) error {
	start := time.Now()
	p, verr, err := h.readPair(c)
	if verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	spread, err := h.engine.Spread(c.Request().Context(), p.symA, p.symB, p.tf, p.window, p.method)
	h.metrics.Observe("adf", p.method.String(), start, err != nil)
	if err != nil {
		return h.computeError(c, p, err)
	}
	res := h.engine.ADFTest(spread)
	out := adfResponse{
		Pair:           p.pair,
		Stat:           res.Stat,
		PValue:         res.PValue,
		Stationary:     res.Stationary(),
		Interpretation: "Spread is non-stationary",
		Points:         len(spread),
	}
	if out.Stationary {
		out.Interpretation = "Spread is stationary (mean-reverting)"
	}
	return xhttp.SuccessResponse(c, out)
}

type seriesFunc func(ctx context.Context, symA, symB string, tf drepo.Timeframe, window int, m analytics.Method) ([]models.MetricPoint, error)

type seriesResponse struct {
	Pair      string               `json:"pair"`
	Timeframe string               `json:"timeframe"`
	Window    int                  `json:"window"`
	Method    string               `json:"method"`
	Data      []models.MetricPoint `json:"data"`
}

func (h *AnalyticsHandler) series(endpoint string, fn seriesFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		p, verr, err := h.readPair(c)
		if verr != nil {
			return xhttp.BadRequestResponse(c, verr)
		}
		if err != nil {
			return xhttp.AppErrorResponse(c, err)
		}
		data, err := fn(c.Request().Context(), p.symA, p.symB, p.tf, p.window, p.method)
		h.metrics.Observe(endpoint, p.method.String(), start, err != nil)
		if err != nil {
			return h.computeError(c, p, err)
		}
		if data == nil {
			data = []models.MetricPoint{}
		}
		return xhttp.SuccessResponse(c, seriesResponse{
			Pair:      p.pair,
			Timeframe: string(p.tf),
			Window:    p.window,
			Method:    p.method.String(),
			Data:      data,
		})
	}
}

func (h *AnalyticsHandler) computeError(c echo.Context, p pairParams, err error) error {
	if errors.Is(err, analytics.ErrInvalidWindow) {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_WINDOW", "window", err.Error(), http.StatusBadRequest))
	}
	h.log.Error("analytics computation failed", xlogger.String("pair", p.pair), xlogger.Error(err))
	return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_COMPUTATION", "", err.Error(), http.StatusInternalServerError))
}

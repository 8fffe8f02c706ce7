package api

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"

	"QuantPulse/internal/domain/models"
	drepo "QuantPulse/internal/domain/repository"
	"QuantPulse/internal/service/buffer"
	"QuantPulse/internal/service/resample"
	"QuantPulse/internal/usecase"
	xhttp "QuantPulse/pkg/http"
	xlogger "QuantPulse/pkg/logger"
)

// DataHandler serves buffered ticks, resampled candles and stored history.
type DataHandler struct {
	log       *xlogger.Logger
	buf       *buffer.TickBuffer
	resampler *resample.Cache
	recorder  *usecase.TickRecorder
	symbols   []string
}

func NewDataHandler(log *xlogger.Logger, buf *buffer.TickBuffer, resampler *resample.Cache, recorder *usecase.TickRecorder, symbols []string) *DataHandler {
	return &DataHandler{log: log, buf: buf, resampler: resampler, recorder: recorder, symbols: symbols}
}

func (h *DataHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/symbols", h.Symbols)
	g.GET("/data/stats", h.Stats)
	g.POST("/data/clear", h.Clear)
	g.GET("/data/:symbol", h.OHLCV)
	g.GET("/data/:symbol/ticks", h.Ticks)
	g.GET("/database/ticks/:symbol", h.StoredTicks)
}

// Symbols lists configured symbols plus any symbol with buffered data.
func (h *DataHandler) Symbols(c echo.Context) error {
	seen := make(map[string]struct{})
	for _, s := range h.symbols {
		seen[normalizeSymbol(s)] = struct{}{}
	}
	for _, s := range h.buf.ActiveSymbols() {
		seen[s] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return xhttp.SuccessResponse(c, out)
}

func (h *DataHandler) OHLCV(c echo.Context) error {
	req := &models.OHLCVRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	tf, err := drepo.ParseTimeframe(req.TF)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_TIMEFRAME", "tf", err.Error(), http.StatusBadRequest))
	}
	from, to, err := xhttp.ParseTimeRange(req.From, req.To)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}

	candles, err := h.resampler.GetOHLCV(req.Symbol, tf, resample.Query{Limit: req.Limit, From: from, To: to}, req.Refresh)
	if err != nil {
		h.log.Error("ohlcv failed", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError(err.Error()))
	}
	if candles == nil {
		candles = []models.Candle{}
	}
	return xhttp.SuccessResponse(c, candles)
}

func (h *DataHandler) Ticks(c echo.Context) error {
	req := &models.TicksRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to, err := xhttp.ParseTimeRange(req.From, req.To)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	ticks := h.buf.GetTicks(req.Symbol, buffer.Query{Limit: req.Limit, From: from, To: to})
	if ticks == nil {
		ticks = []models.Tick{}
	}
	return xhttp.SuccessResponse(c, ticks)
}

func (h *DataHandler) Stats(c echo.Context) error {
	req := &models.SymbolQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	stats := h.buf.Stats(req.Symbol)
	var total int64
	for _, s := range stats {
		total += s.TickCount
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"symbols":     stats,
		"total_ticks": total,
		"capacity":    h.buf.Capacity(),
	})
}

// Clear empties one symbol's buffer, or every buffer when no symbol is
// given. Cached candles for the cleared symbols are dropped too.
func (h *DataHandler) Clear(c echo.Context) error {
	var cleared []string
	if sym := strings.TrimSpace(c.QueryParam("symbol")); sym != "" {
		cleared = h.buf.Clear(sym)
	} else {
		cleared = h.buf.Clear()
	}
	h.log.Info("buffer cleared", xlogger.Strings("symbols", cleared))
	if cleared == nil {
		cleared = []string{}
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{"cleared": cleared})
}

// StoredTicks reads history back from the recording backend.
func (h *DataHandler) StoredTicks(c echo.Context) error {
	req := &models.StoredTicksRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.recorder == nil {
		return xhttp.AppErrorResponse(c, errNoStorage)
	}
	from, to, err := xhttp.ParseTimeRange(req.From, req.To)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	ticks, err := h.recorder.Query(c.Request().Context(), normalizeSymbol(req.Symbol), from, to, req.Limit)
	if err != nil {
		if errors.Is(err, usecase.ErrNotQueryable) {
			return xhttp.AppErrorResponse(c, errNoStorage)
		}
		h.log.Error("stored ticks query failed", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("storage query failed").WithError(err))
	}
	if ticks == nil {
		ticks = []*models.Tick{}
	}
	return xhttp.SuccessResponse(c, ticks)
}

var errNoStorage = xhttp.NewAppError("ERR_NO_STORAGE", "", "no queryable storage backend configured", http.StatusNotImplemented)

func normalizeSymbol(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }

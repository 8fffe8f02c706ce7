package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"QuantPulse/internal/domain/models"
	"QuantPulse/internal/service/binance"
	"QuantPulse/internal/service/buffer"
	"QuantPulse/internal/service/cache"
	"QuantPulse/internal/service/hub"
	"QuantPulse/internal/service/ratelimit"
	"QuantPulse/internal/service/resample"
	"QuantPulse/internal/services/analytics"
	"QuantPulse/internal/usecase"
	"QuantPulse/pkg/logger"
	"QuantPulse/pkg/metrics"
)

var t0 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type fixture struct {
	e        *echo.Echo
	buf      *buffer.TickBuffer
	resample *resample.Cache
	alerts   *usecase.AlertEngine
	hub      *hub.Hub
}

// newFixture fills the buffer with 120 one-minute bars where
// BTCUSDT = 2*ETHUSDT + 5 plus a small wobble.
func newFixture(t *testing.T, limiter *ratelimit.Limiter) *fixture {
	t.Helper()
	log := logger.Nop()
	buf := buffer.New(1000)
	for i := 0; i < 120; i++ {
		eth := 50 + float64(i)*0.25 + math.Sin(float64(i)/3)
		ts := t0.Add(time.Duration(i) * time.Minute)
		buf.AddTick(models.Tick{Symbol: "ETHUSDT", Price: eth, Quantity: 1, Timestamp: ts})
		buf.AddTick(models.Tick{Symbol: "BTCUSDT", Price: 2*eth + 5 + 0.01*math.Cos(float64(i)), Quantity: 1, Timestamp: ts})
	}
	rc := resample.NewCache(buf, resample.Config{}, metrics.Nop{}, log)
	buf.OnClear(rc.Invalidate)
	engine := analytics.NewEngine(rc, metrics.Nop{}, log)
	alerts := usecase.NewAlertEngine(buf, engine, usecase.AlertConfig{}, metrics.Nop{}, log)
	proc := usecase.NewPairProcessor(buf, engine, cache.NewTTLCache(), usecase.PairProcessorConfig{Window: 30}, metrics.Nop{}, log)
	h := hub.New(metrics.Nop{}, log)
	streams := usecase.NewStreamManager(binance.Config{}, nil, metrics.Nop{}, log)
	t.Cleanup(streams.Close)

	e := echo.New()
	for _, r := range []interface{ RegisterRoutes(*echo.Echo) }{
		NewDataHandler(log, buf, rc, nil, []string{"btcusdt", "SOLUSDT"}),
		NewAnalyticsHandler(log, engine, proc, limiter, nil, AnalyticsDefaults{Window: 30}),
		NewAlertsHandler(log, alerts),
		NewStreamHandler(log, streams, h, buf),
		NewHealthHandler(map[string]HealthCheck{
			"buffer": func(context.Context) error { return nil },
		}),
	} {
		r.RegisterRoutes(e)
	}
	return &fixture{e: e, buf: buf, resample: rc, alerts: alerts, hub: h}
}

func (f *fixture) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func TestSymbols_MergesConfiguredAndBuffered(t *testing.T) {
	f := newFixture(t, nil)
	rec, env := f.do(t, http.MethodGet, "/api/symbols", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var syms []string
	require.NoError(t, json.Unmarshal(env.Data, &syms))
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}, syms)
}

func TestTicks_LimitAndRange(t *testing.T) {
	f := newFixture(t, nil)

	rec, env := f.do(t, http.MethodGet, "/api/data/btcusdt/ticks?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var ticks []models.Tick
	require.NoError(t, json.Unmarshal(env.Data, &ticks))
	require.Len(t, ticks, 5)
	assert.Equal(t, t0.Add(119*time.Minute), ticks[4].Timestamp.UTC())

	from := t0.Add(10 * time.Minute).Format(time.RFC3339)
	to := t0.Add(12 * time.Minute).Format(time.RFC3339)
	_, env = f.do(t, http.MethodGet, "/api/data/BTCUSDT/ticks?from="+from+"&to="+to, "")
	require.NoError(t, json.Unmarshal(env.Data, &ticks))
	assert.Len(t, ticks, 3)

	rec, _ = f.do(t, http.MethodGet, "/api/data/BTCUSDT/ticks?from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOHLCV(t *testing.T) {
	f := newFixture(t, nil)

	rec, env := f.do(t, http.MethodGet, "/api/data/ETHUSDT?tf=5m&limit=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var candles []models.Candle
	require.NoError(t, json.Unmarshal(env.Data, &candles))
	assert.Len(t, candles, 3)

	rec, _ = f.do(t, http.MethodGet, "/api/data/ETHUSDT?tf=7m", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = f.do(t, http.MethodGet, "/api/data/XRPUSDT", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestStatsAndClear(t *testing.T) {
	f := newFixture(t, nil)
	_, _ = f.do(t, http.MethodGet, "/api/data/ETHUSDT?tf=1m", "")
	require.Positive(t, f.resample.Len())

	_, env := f.do(t, http.MethodGet, "/api/data/stats", "")
	var stats struct {
		Total    int64 `json:"total_ticks"`
		Capacity int   `json:"capacity"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, int64(240), stats.Total)
	assert.Equal(t, 1000, stats.Capacity)

	rec, env := f.do(t, http.MethodPost, "/api/data/clear?symbol=ethusdt", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cleared":["ETHUSDT"]}`, string(env.Data))
	assert.Zero(t, f.buf.Size("ETHUSDT"))
	assert.Equal(t, 120, f.buf.Size("BTCUSDT"))
	assert.Zero(t, f.resample.Len())
}

func TestStoredTicks_NoBackend(t *testing.T) {
	f := newFixture(t, nil)
	rec, _ := f.do(t, http.MethodGet, "/api/database/ticks/BTCUSDT", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestPairAnalytics(t *testing.T) {
	f := newFixture(t, nil)

	rec, env := f.do(t, http.MethodGet, "/api/analytics/pair?pair=BTCUSDT-ETHUSDT&tf=1m&window=30", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res models.PairAnalytics
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "BTCUSDT-ETHUSDT", res.Pair)
	assert.Equal(t, "OLS", res.Method)
	last, ok := models.Last(res.HedgeRatio)
	require.True(t, ok)
	assert.InDelta(t, 2.0, last.Value, 0.01)
	assert.NotEmpty(t, res.ZScore)
}

func TestPairAnalytics_BadInput(t *testing.T) {
	f := newFixture(t, nil)
	for _, target := range []string{
		"/api/analytics/pair",
		"/api/analytics/pair?pair=BTCUSDT",
		"/api/analytics/pair?pair=BTCUSDT-ETHUSDT&regression=lasso",
		"/api/analytics/pair?pair=BTCUSDT-ETHUSDT&tf=2m",
		"/api/analytics/zscore?pair=BTCUSDT-ETHUSDT&window=1",
	} {
		rec, _ := f.do(t, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestSeriesEndpoints(t *testing.T) {
	f := newFixture(t, nil)
	for _, path := range []string{"hedge-ratio", "spread", "zscore", "correlation"} {
		rec, env := f.do(t, http.MethodGet, "/api/analytics/"+path+"?pair=BTCUSDT-ETHUSDT&window=20&regression=huber", "")
		require.Equal(t, http.StatusOK, rec.Code, path)
		var out struct {
			Pair   string               `json:"pair"`
			Method string               `json:"method"`
			Data   []models.MetricPoint `json:"data"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &out))
		assert.Equal(t, "Huber", out.Method, path)
		assert.NotEmpty(t, out.Data, path)
	}

	rec, env := f.do(t, http.MethodGet, "/api/analytics/adf?pair=BTCUSDT-ETHUSDT&window=20", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"interpretation"`)
}

func TestLatest_NotFoundUntilProcessed(t *testing.T) {
	f := newFixture(t, nil)
	rec, _ := f.do(t, http.MethodGet, "/api/analytics/latest?pair=BTCUSDT-ETHUSDT", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/analytics/latest?pair=nodash", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalytics_RateLimited(t *testing.T) {
	f := newFixture(t, ratelimit.New(0.001, 2))
	target := "/api/analytics/correlation?pair=BTCUSDT-ETHUSDT&window=10"
	for n := 0; n < 2; n++ {
		rec, _ := f.do(t, http.MethodGet, target, "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec, _ := f.do(t, http.MethodGet, target, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestAlerts_Lifecycle(t *testing.T) {
	f := newFixture(t, nil)

	rec, env := f.do(t, http.MethodPost, "/api/alerts", `{"metric":"price","pair":"btcusdt","op":">","value":100}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var rule models.AlertRule
	require.NoError(t, json.Unmarshal(env.Data, &rule))
	assert.Equal(t, "BTCUSDT", rule.Pair)
	assert.True(t, rule.Active)

	rec, _ = f.do(t, http.MethodGet, "/api/alerts/"+rule.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = f.do(t, http.MethodPatch, "/api/alerts/"+rule.ID, `{"active":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &rule))
	assert.False(t, rule.Active)

	rec, env = f.do(t, http.MethodGet, "/api/alerts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"total":1`)

	rec, _ = f.do(t, http.MethodDelete, "/api/alerts/"+rule.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = f.do(t, http.MethodDelete, "/api/alerts/"+rule.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = f.do(t, http.MethodGet, "/api/alerts/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAlerts_Triggered(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.alerts.AddRule("price", "BTCUSDT", ">", 1)
	require.NoError(t, err)
	f.alerts.Evaluate(context.Background())

	rec, env := f.do(t, http.MethodGet, "/api/alerts/active?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Rows  []models.AlertNotification `json:"rows"`
		Total int64                      `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.EqualValues(t, 1, list.Total)
	assert.Equal(t, "BTCUSDT", list.Rows[0].Pair)

	rec, _ = f.do(t, http.MethodPost, "/api/alerts/clear", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.alerts.Notifications(0))
}

func TestAlerts_Validation(t *testing.T) {
	f := newFixture(t, nil)
	for _, body := range []string{
		`{"metric":"volume","pair":"BTCUSDT","op":">","value":1}`,
		`{"metric":"price","pair":"BTCUSDT","op":"!=","value":1}`,
		`{"metric":"price","op":">","value":1}`,
	} {
		rec, _ := f.do(t, http.MethodPost, "/api/alerts", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	rec, _ := f.do(t, http.MethodPatch, "/api/alerts/abc", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStream_StatusAndValidation(t *testing.T) {
	f := newFixture(t, nil)

	rec, env := f.do(t, http.MethodGet, "/api/stream/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st struct {
		Active    bool     `json:"active"`
		Symbols   []string `json:"symbols"`
		Frontends int      `json:"frontend_connections"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.False(t, st.Active)
	assert.Empty(t, st.Symbols)
	assert.Zero(t, st.Frontends)

	rec, _ = f.do(t, http.MethodPost, "/api/stream/start", `{"symbols":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = f.do(t, http.MethodPost, "/api/stream/stop", `{"symbols":["BTCUSDT"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"stopped":[],"active_symbols":[]}`, string(env.Data))
}

func TestWS_PingAndHubRegistration(t *testing.T) {
	f := newFixture(t, nil)
	srv := httptest.NewServer(f.e)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return f.hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"ping"}`)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pong"}`, string(msg))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), `"type":"error"`)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"unsubscribe","symbols":["BTCUSDT"]}`)))
	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"subscription","status":"unsubscribed","symbols":["BTCUSDT"]}`, string(msg))

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return f.hub.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHealth(t *testing.T) {
	e := echo.New()
	NewHealthHandler(map[string]HealthCheck{
		"ok":      func(context.Context) error { return nil },
		"storage": func(context.Context) error { return errors.New("dial tcp: refused") },
	}).RegisterRoutes(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"storage":"dial tcp: refused"`)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
}

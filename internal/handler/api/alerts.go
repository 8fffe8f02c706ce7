package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"QuantPulse/internal/domain/models"
	"QuantPulse/internal/usecase"
	xhttp "QuantPulse/pkg/http"
	xlogger "QuantPulse/pkg/logger"
)

type AlertsHandler struct {
	log    *xlogger.Logger
	alerts *usecase.AlertEngine
}

func NewAlertsHandler(log *xlogger.Logger, alerts *usecase.AlertEngine) *AlertsHandler {
	return &AlertsHandler{log: log, alerts: alerts}
}

func (h *AlertsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/alerts")
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/active", h.Triggered)
	g.POST("/clear", h.ClearTriggered)
	g.GET("/:id", h.Get)
	g.PATCH("/:id", h.SetActive)
	g.DELETE("/:id", h.Delete)
}

func (h *AlertsHandler) Create(c echo.Context) error {
	req := &models.CreateAlertRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rule, err := h.alerts.AddRule(req.Metric, req.Pair, req.Operator, req.Value)
	switch {
	case errors.Is(err, models.ErrUnsupportedMetric):
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_METRIC", "metric", err.Error(), http.StatusBadRequest).
			WithParam("options", []string{"price", "zscore", "spread", "correlation"}))
	case errors.Is(err, models.ErrUnsupportedOperator):
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_OPERATOR", "op", err.Error(), http.StatusBadRequest).
			WithParam("options", []string{">", "<", ">=", "<=", "=="}))
	case errors.Is(err, usecase.ErrEmptyPair):
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_REQUIRED", "pair", err.Error(), http.StatusBadRequest))
	case err != nil:
		h.log.Error("create alert failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError(err.Error()))
	}
	return xhttp.CreatedResponse(c, rule)
}

func (h *AlertsHandler) List(c echo.Context) error {
	rules := h.alerts.ListRules()
	return xhttp.ListResponse(c, rules, int64(len(rules)))
}

func (h *AlertsHandler) Get(c echo.Context) error {
	req := &models.AlertIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rule, err := h.alerts.Rule(req.ID)
	if err != nil {
		return h.notFound(c, req.ID, err)
	}
	return xhttp.SuccessResponse(c, rule)
}

// SetActive pauses or resumes a rule.
func (h *AlertsHandler) SetActive(c echo.Context) error {
	req := &models.SetAlertActiveRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.alerts.SetActive(req.ID, *req.Active); err != nil {
		return h.notFound(c, req.ID, err)
	}
	rule, err := h.alerts.Rule(req.ID)
	if err != nil {
		return h.notFound(c, req.ID, err)
	}
	return xhttp.SuccessResponse(c, rule)
}

func (h *AlertsHandler) Delete(c echo.Context) error {
	req := &models.AlertIDRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.alerts.RemoveRule(req.ID) {
		return h.notFound(c, req.ID, usecase.ErrRuleNotFound)
	}
	return xhttp.SuccessResponse(c, map[string]string{"deleted": req.ID})
}

// Triggered returns the most recent notifications in arrival order.
func (h *AlertsHandler) Triggered(c echo.Context) error {
	req := &models.TriggeredAlertsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ns := h.alerts.Notifications(req.Limit)
	if ns == nil {
		ns = []models.AlertNotification{}
	}
	return xhttp.ListResponse(c, ns, int64(len(ns)))
}

func (h *AlertsHandler) ClearTriggered(c echo.Context) error {
	h.alerts.ClearNotifications()
	return xhttp.SuccessResponse(c, map[string]string{"message": "Cleared triggered alerts"})
}

func (h *AlertsHandler) notFound(c echo.Context, id string, err error) error {
	if errors.Is(err, usecase.ErrRuleNotFound) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("alert %s not found", id))
	}
	h.log.Error("alert lookup failed", xlogger.String("id", id), xlogger.Error(err))
	return xhttp.AppErrorResponse(c, xhttp.InternalError(err.Error()))
}

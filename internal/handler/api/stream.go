package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"QuantPulse/internal/domain/models"
	"QuantPulse/internal/service/buffer"
	"QuantPulse/internal/service/hub"
	"QuantPulse/internal/usecase"
	xhttp "QuantPulse/pkg/http"
	xlogger "QuantPulse/pkg/logger"
)

// StreamHandler controls upstream subscriptions and serves the /ws feed.
type StreamHandler struct {
	log      *xlogger.Logger
	streams  *usecase.StreamManager
	hub      *hub.Hub
	buf      *buffer.TickBuffer
	upgrader websocket.Upgrader
}

func NewStreamHandler(log *xlogger.Logger, streams *usecase.StreamManager, h *hub.Hub, buf *buffer.TickBuffer) *StreamHandler {
	return &StreamHandler{
		log:     log,
		streams: streams,
		hub:     h,
		buf:     buf,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
	}
}

func (h *StreamHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/stream")
	g.POST("/start", h.Start)
	g.POST("/stop", h.Stop)
	g.GET("/status", h.Status)
	e.GET("/ws", h.WS)
}

func (h *StreamHandler) Start(c echo.Context) error {
	req := &models.StreamRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	started, err := h.streams.SubscribeMany(c.Request().Context(), req.Symbols)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	if started == nil {
		started = []string{}
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"started":        started,
		"active_symbols": h.streams.ActiveSymbols(),
	})
}

func (h *StreamHandler) Stop(c echo.Context) error {
	req := &models.StreamRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	stopped := h.streams.UnsubscribeMany(c.Request().Context(), req.Symbols)
	if stopped == nil {
		stopped = []string{}
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"stopped":        stopped,
		"active_symbols": h.streams.ActiveSymbols(),
	})
}

func (h *StreamHandler) Status(c echo.Context) error {
	active := h.streams.ActiveSymbols()
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"active":               len(active) > 0,
		"symbols":              active,
		"connections":          h.streams.States(),
		"frontend_connections": h.hub.Len(),
		"buffer_stats":         h.buf.Stats(""),
	})
}

// WS upgrades the request and registers the client with the hub until it
// disconnects.
func (h *StreamHandler) WS(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}
	sub := hub.NewWSSubscriber(conn)
	h.hub.Subscribe(sub)
	sub.ReadPump(h.clientMessage)
	h.hub.Unsubscribe(sub.ID())
	return nil
}

type clientMessage struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

type subscriptionReply struct {
	Type    string   `json:"type"`
	Status  string   `json:"status,omitempty"`
	Symbols []string `json:"symbols,omitempty"`
	Message string   `json:"message,omitempty"`
}

// clientMessage handles subscribe, unsubscribe and ping requests sent over
// the feed socket.
func (h *StreamHandler) clientMessage(b []byte) []byte {
	var msg clientMessage
	if err := json.Unmarshal(b, &msg); err != nil {
		return mustJSON(subscriptionReply{Type: "error", Message: "invalid json"})
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch msg.Action {
	case "ping":
		return mustJSON(subscriptionReply{Type: "pong"})
	case "subscribe":
		if _, err := h.streams.SubscribeMany(ctx, msg.Symbols); err != nil {
			return mustJSON(subscriptionReply{Type: "error", Message: err.Error()})
		}
		return mustJSON(subscriptionReply{Type: "subscription", Status: "subscribed", Symbols: msg.Symbols})
	case "unsubscribe":
		h.streams.UnsubscribeMany(ctx, msg.Symbols)
		return mustJSON(subscriptionReply{Type: "subscription", Status: "unsubscribed", Symbols: msg.Symbols})
	}
	return mustJSON(subscriptionReply{Type: "error", Message: "unknown action"})
}

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"QuantPulse/internal/domain/models"
	drepo "QuantPulse/internal/domain/repository"
	"QuantPulse/pkg/logger"
)

// State is the lifecycle state of one upstream connection.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBackoff:
		return "backoff"
	}
	return "unknown"
}

type (
	TickHandler   func(models.Tick)
	TickerHandler func(models.Ticker)
)

// Dialer opens websocket connections. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Config controls connection behaviour. Zero values fall back to defaults.
type Config struct {
	BaseURL          string
	PingInterval     time.Duration
	HandshakeTimeout time.Duration
	BackoffInitial   time.Duration
	BackoffMax       time.Duration
}

const (
	DefaultBaseURL        = "wss://fstream.binance.com"
	defaultPingInterval   = 20 * time.Second
	defaultHandshake      = 10 * time.Second
	defaultBackoffInitial = time.Second
	defaultBackoffMax     = 60 * time.Second
	pongWait              = 60 * time.Second
	writeWait             = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshake
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = defaultBackoffInitial
	}
	if c.BackoffMax < c.BackoffInitial {
		c.BackoffMax = defaultBackoffMax
	}
	return c
}

// Client maintains one logical connection to the combined trade + ticker
// stream of a single symbol, reconnecting with exponential backoff until
// stopped. Handlers are invoked synchronously from the read loop so ticks
// reach them in arrival order.
type Client struct {
	symbol   string
	cfg      Config
	dialer   Dialer
	onTick   TickHandler
	onTicker TickerHandler
	log      *logger.Logger
	metrics  drepo.Metrics

	state atomic.Int32

	mu       sync.Mutex
	conn     *websocket.Conn
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

type Option func(*Client)

// WithDialer overrides the websocket dialer.
func WithDialer(d Dialer) Option { return func(c *Client) { c.dialer = d } }

// WithMetrics sets the metrics recorder.
func WithMetrics(m drepo.Metrics) Option { return func(c *Client) { c.metrics = m } }

// NewClient creates a stream client for symbol. Start must be called to
// connect.
func NewClient(symbol string, cfg Config, onTick TickHandler, onTicker TickerHandler, log *logger.Logger, opts ...Option) *Client {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logger.Nop()
	}
	c := &Client{
		symbol:   strings.ToUpper(strings.TrimSpace(symbol)),
		cfg:      cfg,
		onTick:   onTick,
		onTicker: onTicker,
		log:      log,
	}
	for _, o := range opts {
		o(c)
	}
	if c.dialer == nil {
		c.dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		}
	}
	return c
}

func (c *Client) Symbol() string { return c.symbol }

func (c *Client) State() State { return State(c.state.Load()) }

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
	if c.metrics != nil {
		c.metrics.SetConnectionState(c.symbol, int(s))
	}
}

// Start launches the connection loop. Calling Start more than once is a no-op.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx)
}

// Stop cancels the loop, closes the live connection and waits for the read
// loop to exit. Safe to call multiple times.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		// cancel under the lock so attach cannot publish a fresh conn after
		// we read it
		c.mu.Lock()
		cancel, done := c.cancel, c.done
		if cancel != nil {
			cancel()
		}
		conn := c.conn
		c.mu.Unlock()
		if cancel == nil {
			c.setState(StateDisconnected)
			return
		}
		if conn != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		}
		<-done
		c.log.Info("binance: stream stopped", logger.String("symbol", c.symbol))
	})
}

func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.BackoffInitial
	b.MaxInterval = c.cfg.BackoffMax
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0 // v4 only: disable the elapsed-time cap to match v5 (never returns Stop)
	b.Reset()
	return b
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)
	defer c.setState(StateDisconnected)

	url := StreamURL(c.cfg.BaseURL, c.symbol)
	bo := c.newBackOff()

	for ctx.Err() == nil {
		c.setState(StateConnecting)
		conn, _, err := c.dialer.DialContext(ctx, url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.recordError("stream_connect")
			c.log.Warn("binance: connect failed",
				logger.String("symbol", c.symbol), logger.Error(err))
			if !c.wait(ctx, bo.NextBackOff()) {
				return
			}
			continue
		}

		if !c.attach(ctx, conn) {
			_ = conn.Close()
			return
		}
		bo.Reset()
		c.setState(StateConnected)
		c.log.Info("binance: connected", logger.String("symbol", c.symbol))

		err = c.readLoop(ctx, conn)
		c.detach()
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		c.recordError("stream_read")
		c.log.Warn("binance: connection lost",
			logger.String("symbol", c.symbol), logger.Error(err))
		if !c.wait(ctx, bo.NextBackOff()) {
			return
		}
	}
}

// attach publishes conn for Stop. It reports false when the client was
// stopped while dialing.
func (c *Client) attach(ctx context.Context, conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	c.conn = conn
	return true
}

func (c *Client) detach() {
	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
}

func (c *Client) wait(ctx context.Context, d time.Duration) bool {
	c.setState(StateBackoff)
	if c.metrics != nil {
		c.metrics.RecordReconnect(c.symbol)
	}
	c.log.Info("binance: reconnecting",
		logger.String("symbol", c.symbol), logger.Duration("delay_ms", d))
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	// upstream pings are answered by gorilla's default handler; refresh the
	// deadline there too
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go c.pingLoop(conn, pingDone)

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		c.dispatch(b)
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.log.Debug("binance: ping failed", logger.String("symbol", c.symbol), logger.Error(err))
				return
			}
		}
	}
}

func (c *Client) dispatch(b []byte) {
	tick, ticker, err := decodeMessage(b)
	switch {
	case errors.Is(err, ErrIgnored):
		return
	case err != nil:
		c.recordError("stream_decode")
		c.log.Warn("binance: dropping malformed message",
			logger.String("symbol", c.symbol), logger.Error(err))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.recordError("stream_handler")
			c.log.Error("binance: handler panic",
				logger.String("symbol", c.symbol), logger.Any("panic", r))
		}
	}()
	if tick != nil && c.onTick != nil {
		c.onTick(*tick)
	}
	if ticker != nil && c.onTicker != nil {
		c.onTicker(*ticker)
	}
}

func (c *Client) recordError(kind string) {
	if c.metrics != nil {
		c.metrics.RecordError(kind)
	}
}

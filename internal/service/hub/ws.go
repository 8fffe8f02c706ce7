package hub

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WSSubscriber delivers events to one websocket client.
type WSSubscriber struct {
	id   string
	conn *websocket.Conn

	mu        sync.Mutex // serializes writes
	closeOnce sync.Once
	closed    chan struct{}
}

func NewWSSubscriber(conn *websocket.Conn) *WSSubscriber {
	// clear any deadline left on the hijacked connection
	_ = conn.SetReadDeadline(time.Time{})
	return &WSSubscriber{id: "ws:" + uuid.NewString(), conn: conn, closed: make(chan struct{})}
}

func (s *WSSubscriber) ID() string { return s.id }

func (s *WSSubscriber) Send(ctx context.Context, msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultSendTimeout)
	}
	_ = s.conn.SetWriteDeadline(deadline)
	return s.conn.WriteMessage(websocket.TextMessage, msg)
}

// MessageHandler answers one client frame. A nil reply sends nothing.
type MessageHandler func(msg []byte) (reply []byte)

// ReadPump consumes client frames until the connection fails or is closed,
// writing each non-nil reply from handle. It returns when the client is
// gone.
func (s *WSSubscriber) ReadPump(handle MessageHandler) {
	for {
		_, b, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if handle == nil {
			continue
		}
		reply := handle(b)
		if reply == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), defaultSendTimeout)
		err = s.Send(ctx, reply)
		cancel()
		if err != nil {
			return
		}
	}
}

func (s *WSSubscriber) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.conn.Close()
	})
	return err
}

// Done is closed once the subscriber has been closed.
func (s *WSSubscriber) Done() <-chan struct{} { return s.closed }

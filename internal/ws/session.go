package ws

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
	pingPeriod   = 25 * time.Second
)

// Session is one live transport connection. It may exist unbound (before the
// setup event); only bound sessions are visible to presence routing. All
// mutable routing state (bound user, joined rooms) lives in the hub loop,
// not here.
type Session struct {
	ID   string
	conn *websocket.Conn
	send chan ServerEvent

	closeOnce sync.Once
	done      chan struct{}

	// owned by the hub loop
	userID uint64
	rooms  map[string]struct{}
}

func NewSession(conn *websocket.Conn) *Session {
	return &Session{
		ID:    uuid.NewString(),
		conn:  conn,
		send:  make(chan ServerEvent, sendBuffer),
		done:  make(chan struct{}),
		rooms: map[string]struct{}{},
	}
}

// Push queues an event for the client. A slow consumer with a full buffer
// drops the event; durable state is reconciled over the REST history fetch,
// so a lost live event is never an error.
func (s *Session) Push(ev ServerEvent) {
	select {
	case s.send <- ev:
	case <-s.done:
	default:
	}
}

func (s *Session) Close(status websocket.StatusCode, reason string) {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.conn != nil {
			_ = s.conn.Close(status, reason)
		}
	})
}

func (s *Session) Done() <-chan struct{} { return s.done }

// WritePump drains the send queue to the socket in queue order, which keeps
// per-room broadcast ordering intact on the wire.
func (s *Session) WritePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case ev := <-s.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, s.conn, ev)
			cancel()
			if err != nil {
				s.Close(websocket.StatusAbnormalClosure, "write failed")
				return
			}
		}
	}
}

func (s *Session) KeepAlive(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := s.conn.Ping(pctx)
			cancel()
			if err != nil {
				s.Close(websocket.StatusAbnormalClosure, "ping failed")
				return
			}
		}
	}
}

// ReadEvent blocks for the next client event.
func (s *Session) ReadEvent(ctx context.Context) (ClientEvent, error) {
	var ev ClientEvent
	err := wsjson.Read(ctx, s.conn, &ev)
	return ev, err
}

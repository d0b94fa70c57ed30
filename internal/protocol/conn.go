package protocol

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// Conn is the interface for the session transport connection.
type Conn interface {
	io.Closer
	WriteJSON(v any) error
	ReadJSON(v any) error
}

// Dialer opens a session transport connection to the interview service.
type Dialer func(ctx context.Context, url string) (Conn, error)

// DialWebSocket is the production Dialer over gorilla/websocket.
func DialWebSocket(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// sendBufferSize bounds outbound messages queued for the writer goroutine.
const sendBufferSize = 16

// link owns one live connection's channels and goroutine lifecycle.
// Only the writer goroutine writes to the connection.
type link struct {
	conn Conn
	send chan any
	done chan struct{}

	closeSend sync.Once
	closeDone sync.Once
}

func newLink(conn Conn) *link {
	return &link{
		conn: conn,
		send: make(chan any, sendBufferSize),
		done: make(chan struct{}),
	}
}

// runWriter drains the send channel into the connection. Sole writer.
func (l *link) runWriter() {
	defer func() {
		if err := l.conn.Close(); err != nil {
			slog.Debug("connection close error", "error", err)
		}
	}()
	for msg := range l.send {
		if err := l.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// trySend queues a message without blocking, dropping it if the buffer is
// full or the link is shutting down.
func (l *link) trySend(msg any) {
	select {
	case <-l.done:
	case l.send <- msg:
	default:
		slog.Warn("outbound message dropped: send buffer full")
	}
}

// shutdown closes the link exactly once and unblocks the writer.
func (l *link) shutdown() {
	l.closeDone.Do(func() { close(l.done) })
	l.closeSend.Do(func() { close(l.send) })
}

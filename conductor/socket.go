package conductor

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Cara-Framework/core-sub002/auth"
	"github.com/Cara-Framework/core-sub002/middleware"
	"github.com/Cara-Framework/core-sub002/pipeline"
)

// SocketHandler runs the conversation on an upgraded connection.
type SocketHandler func(ctx context.Context, s *Socket) error

// SocketUnit is the WebSocket middleware shape. Socket pipelines carry
// no result value; units act by side effect or by returning an error.
type SocketUnit = pipeline.Unit[*Socket, struct{}]

// SocketNext continues the socket pipeline.
type SocketNext = pipeline.Next[*Socket, struct{}]

// SocketRegistry is the WebSocket middleware registry shape.
type SocketRegistry = middleware.Registry[*Socket, struct{}]

// Socket is the payload flowing through the WebSocket pipeline: the
// upgraded connection plus the handshake's auth session and params.
type Socket struct {
	Conn    *websocket.Conn
	Session *auth.Session
	Params  map[string]string

	// Headers is the handshake header set; the connection itself has
	// no headers after the upgrade.
	Headers auth.HeaderSource

	closeOnce sync.Once
}

// Close sends a close frame with code and reason, then closes the
// connection. Safe to call more than once; only the first wins.
func (s *Socket) Close(code int, reason string) {
	s.closeOnce.Do(func() {
		deadline := time.Now().Add(time.Second)
		_ = s.Conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason), deadline)
		_ = s.Conn.Close()
	})
}

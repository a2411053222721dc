package server

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NicolasHaas/roomspeak/pkg/protocol"
)

// wsConn carries control messages as WebSocket text frames, one JSON
// message per frame.
type wsConn struct {
	conn   *websocket.Conn
	remote string
}

func newWSConn(conn *websocket.Conn, remote string) *wsConn {
	conn.SetReadLimit(protocol.MaxControlMessage)
	return &wsConn{conn: conn, remote: remote}
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *wsConn) WriteMessage(msg []byte) error {
	if len(msg) > protocol.MaxControlMessage {
		return fmt.Errorf("%w: %d bytes", protocol.ErrFrameTooLarge, len(msg))
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

func (c *wsConn) RemoteAddr() string {
	return c.remote
}

// originPolicy decides which browser origins may open a WebSocket.
// Requests without an Origin header come from non-browser clients and are
// always accepted.
type originPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
}

func newOriginPolicy(origins []string) *originPolicy {
	p := &originPolicy{allowed: make(map[string]struct{})}
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			p.allowAll = true
			continue
		}
		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			slog.Warn("ignoring invalid origin in configuration", "origin", origin)
			continue
		}
		p.allowed[normalized] = struct{}{}
	}
	return p
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

func (p *originPolicy) check(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if header == "" || p.allowAll {
		return true
	}
	normalized, ok := normalizeOrigin(header)
	if ok {
		if _, exists := p.allowed[normalized]; exists {
			return true
		}
	}
	slog.Warn("blocked WebSocket connection from disallowed origin", "origin", header)
	return false
}

// websocketHandler upgrades requests and serves them with the chat hub.
func (s *Server) websocketHandler() http.Handler {
	policy := newOriginPolicy(s.cfg.WSOrigins)
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     policy.check,
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "websocket endpoint only accepts GET", http.StatusMethodNotAllowed)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
			return
		}
		s.hub.Serve(s.ctx, newWSConn(conn, r.RemoteAddr))
	})
}

// StartWebSocket starts the WebSocket gateway on Config.WebSocketAddr.
// Browser clients speak the same JSON messages as framed TCP clients.
func (s *Server) StartWebSocket() error {
	if s.cfg.WebSocketAddr == "" {
		return nil // gateway disabled
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", s.websocketHandler())

	srv := &http.Server{
		Addr:              s.cfg.WebSocketAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	ln, err := net.Listen("tcp", s.cfg.WebSocketAddr)
	if err != nil {
		return fmt.Errorf("server: listen websocket: %w", err)
	}
	s.wsAddr = ln.Addr()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		slog.Info("websocket gateway listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("websocket gateway error", "err", err)
		}
	}()

	go func() {
		<-s.ctx.Done()
		_ = srv.Close()
	}()
	return nil
}

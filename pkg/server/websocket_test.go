package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"

	pb "github.com/NicolasHaas/roomspeak/pkg/protocol/pb"
)

func newWSTestServer(t *testing.T, origins ...string) (*Server, string) {
	t.Helper()
	srv := newTestServer(t)
	srv.cfg.WSOrigins = origins
	ts := httptest.NewServer(srv.websocketHandler())
	t.Cleanup(ts.Close)
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dialWS(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func wsSend(t *testing.T, conn *websocket.Conn, req pb.Request) {
	t.Helper()
	data, err := pb.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("ws write: %v", err)
	}
}

func wsNext(t *testing.T, conn *websocket.Conn) pb.Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	mt, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ws read: %v", err)
	}
	if mt != websocket.TextMessage {
		t.Fatalf("want text frame, got type %d", mt)
	}
	ev, err := pb.DecodeEvent(data)
	if err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return ev
}

func TestWebSocketSharesHubWithTCP(t *testing.T) {
	srv, url := newWSTestServer(t)

	tcp := srv.connect(t)
	tcp.register("alice", "pw")
	tcp.login("alice", "pw")

	ws := dialWS(t, url, nil)
	wsSend(t, ws, &pb.Register{Username: "webby", Password: "pw"})
	if _, ok := wsNext(t, ws).(*pb.RegisterSuccess); !ok {
		t.Fatalf("expected register_success")
	}
	wsSend(t, ws, &pb.Login{Username: "webby", Password: "pw"})
	ok, isLogin := wsNext(t, ws).(*pb.LoginSuccess)
	if !isLogin || ok.Room != "general" || ok.IsAdmin {
		t.Fatalf("login over websocket: %+v", ok)
	}
	wsNext(t, ws) // own user_joined

	joined := expectEvent[*pb.UserJoined](tcp)
	if joined.Username != "webby" {
		t.Fatalf("tcp client saw join of %q", joined.Username)
	}

	wsSend(t, ws, &pb.Chat{Message: "from the browser"})
	want := &pb.ChatMessage{Username: "webby", Message: "from the browser", Timestamp: fixedStamp, Room: "general"}
	if diff := cmp.Diff(want, expectEvent[*pb.ChatMessage](tcp)); diff != "" {
		t.Fatalf("chat over tcp mismatch (-want +got):\n%s", diff)
	}

	_ = ws.Close()
	if left := expectEvent[*pb.UserLeft](tcp); left.Username != "webby" {
		t.Fatalf("user_left for %q", left.Username)
	}
}

func TestWebSocketMalformedKeepsConnection(t *testing.T) {
	_, url := newWSTestServer(t)
	ws := dialWS(t, url, nil)

	if err := ws.WriteMessage(websocket.TextMessage, []byte("{{{")); err != nil {
		t.Fatalf("ws write: %v", err)
	}
	ev, ok := wsNext(t, ws).(*pb.Error)
	if !ok || ev.Code != "malformed_message" {
		t.Fatalf("want malformed_message, got %+v", ev)
	}
	wsSend(t, ws, &pb.Ping{Timestamp: 5})
	if pong, ok := wsNext(t, ws).(*pb.Pong); !ok || pong.Timestamp != 5 {
		t.Fatalf("want pong 5, got %+v", pong)
	}
}

func TestWebSocketOriginPolicy(t *testing.T) {
	_, url := newWSTestServer(t, "https://app.example.com")

	tcases := map[string]struct {
		origin string
		allow  bool
	}{
		"no origin":         {origin: "", allow: true},
		"allowed":           {origin: "https://app.example.com", allow: true},
		"allowed mixedcase": {origin: "HTTPS://App.Example.com", allow: true},
		"other host":        {origin: "https://evil.example.com", allow: false},
		"other scheme":      {origin: "http://app.example.com", allow: false},
	}
	for name, tc := range tcases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			header := http.Header{}
			if tc.origin != "" {
				header.Set("Origin", tc.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(url, header)
			if resp != nil {
				_ = resp.Body.Close()
			}
			if tc.allow {
				if err != nil {
					t.Fatalf("dial rejected: %v", err)
				}
				_ = conn.Close()
				return
			}
			if err == nil {
				_ = conn.Close()
				t.Fatalf("dial from %q accepted", tc.origin)
			}
			if resp == nil || resp.StatusCode != http.StatusForbidden {
				t.Fatalf("want 403, got resp %v err %v", resp, err)
			}
		})
	}
}

func TestOriginPolicyWildcard(t *testing.T) {
	t.Parallel()
	p := newOriginPolicy([]string{" * "})
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Origin", "https://anything.test")
	if !p.check(r) {
		t.Errorf("wildcard policy rejected origin")
	}
}

func TestWebSocketRejectsNonGet(t *testing.T) {
	srv := newTestServer(t)
	rec := httptest.NewRecorder()
	srv.websocketHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ws", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want 405", rec.Code)
	}
}

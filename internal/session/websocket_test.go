package session

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"github.com/ashureev/alexi/internal/agent"
	"github.com/ashureev/alexi/internal/catalog"
	"github.com/ashureev/alexi/internal/history"
	"github.com/ashureev/alexi/internal/identity"
	"github.com/ashureev/alexi/internal/progression"
	"github.com/ashureev/alexi/internal/store"
)

func startServer(t *testing.T) (*httptest.Server, *Manager) {
	t.Helper()
	c, err := catalog.New([]catalog.Theme{
		{Name: "A", Questions: []catalog.Question{{Text: "q0"}}},
		{Name: "B", Questions: []catalog.Question{{Text: "q1"}}},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := store.NewMemory()
	engine := progression.NewEngine(c, repo, logger)
	svc := agent.NewService(nil, engine, history.NewReader(repo, 1, logger), logger)
	sm := NewManager(logger)

	r := chi.NewRouter()
	r.Route("/ws/users/{userID}", func(r chi.Router) {
		r.Use(identity.Middleware)
		r.Get("/session", NewHandler(svc, engine, sm, []string{"https://app.example.com"}, false, logger).ServeHTTP)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, sm
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close(websocket.StatusNormalClosure, "") })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) ServerFrame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var f ServerFrame
	if err := wsjson.Read(ctx, ws, &f); err != nil {
		t.Fatalf("read: %v", err)
	}
	return f
}

func send(t *testing.T, ws *websocket.Conn, f ClientFrame) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, ws, f); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestSessionConversation(t *testing.T) {
	srv, sm := startServer(t)
	ws := dial(t, srv, "/ws/users/u1/session")

	hello := readFrame(t, ws)
	if hello.Type != FrameSession || hello.SessionID == "" {
		t.Fatalf("first frame = %+v, want session with generated id", hello)
	}

	send(t, ws, ClientFrame{Type: FrameCurrent})
	if f := readFrame(t, ws); f.Type != FrameError || f.Error != "not_started" {
		t.Errorf("current before start = %+v", f)
	}

	send(t, ws, ClientFrame{Type: FrameAnswer, Content: "hi"})
	f := readFrame(t, ws)
	if f.Type != FrameQuestion || f.Question == nil || f.Question.Text != "q0" {
		t.Fatalf("first answer = %+v", f)
	}

	send(t, ws, ClientFrame{Type: FrameAnswer, Content: "fine"})
	if f := readFrame(t, ws); f.Type != FrameQuestion || f.Question.Theme != "B" {
		t.Fatalf("second answer = %+v", f)
	}

	send(t, ws, ClientFrame{Type: FrameAnswer, Content: "ok"})
	if f := readFrame(t, ws); f.Type != FrameExhausted {
		t.Errorf("third answer = %+v", f)
	}

	send(t, ws, ClientFrame{Type: FramePing})
	if f := readFrame(t, ws); f.Type != FramePong {
		t.Errorf("ping = %+v", f)
	}

	send(t, ws, ClientFrame{Type: "bogus"})
	if f := readFrame(t, ws); f.Type != FrameError || f.Error != "unknown_frame_type" {
		t.Errorf("bogus = %+v", f)
	}

	if sm.GetActive("u1", hello.SessionID) == nil {
		t.Error("session should be registered")
	}
}

func TestSessionResumeSendsCurrentQuestion(t *testing.T) {
	srv, _ := startServer(t)

	first := dial(t, srv, "/ws/users/u1/session?session_id=tab-1")
	if f := readFrame(t, first); f.SessionID != "tab-1" {
		t.Fatalf("session id = %q, want tab-1", f.SessionID)
	}
	send(t, first, ClientFrame{Type: FrameAnswer})
	readFrame(t, first)

	second := dial(t, srv, "/ws/users/u1/session?session_id=tab-1")
	readFrame(t, second)
	if f := readFrame(t, second); f.Type != FrameQuestion || f.Question.Text != "q0" {
		t.Fatalf("resume frame = %+v", f)
	}

	// The first connection was replaced and closed by the server.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var f ServerFrame
	if err := wsjson.Read(ctx, first, &f); websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		t.Errorf("replaced connection read err = %v", err)
	}
}

func TestSessionRejectsForeignOrigin(t *testing.T) {
	srv, _ := startServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/ws/users/u1/session", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Origin", "https://evil.example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/huddle-server/internal/auth"
	"github.com/vovakirdan/huddle-server/internal/config"
	"github.com/vovakirdan/huddle-server/internal/core"
	"github.com/vovakirdan/huddle-server/internal/log"
	"github.com/vovakirdan/huddle-server/internal/service/rooms"
	"github.com/vovakirdan/huddle-server/internal/store/sqlite"
)

type testEnv struct {
	ts   *httptest.Server
	hub  *core.Hub
	auth *auth.Service
	st   *sqlite.SQLiteStore
}

func newTestEnv(t *testing.T, tweak func(*config.Config)) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Default()
	cfg.JWTSecret = "test-secret"
	cfg.PingInterval = 0
	if tweak != nil {
		tweak(&cfg)
	}

	logger := log.Nop()
	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	})
	hub := core.NewHub(st, authService, core.Options{
		SendBuffer:    cfg.SendBuffer,
		TypingTTL:     cfg.TypingTTL,
		PresenceScope: cfg.PresenceScope,
	}, logger)
	roomService := rooms.New(st, hub.Sessions, hub.Ingest, logger, rooms.Options{
		DefaultPageSize: cfg.DefaultPageSize,
		MaxPageSize:     cfg.MaxPageSize,
	})

	ts := httptest.NewServer(NewRouter(hub, authService, roomService, &cfg, logger))
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, hub: hub, auth: authService, st: st}
}

// do sends a JSON request and returns the status and raw body.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, raw
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return out
}

// register creates an account and returns its token and user ID.
func (e *testEnv) register(t *testing.T, name string) (string, string) {
	t.Helper()

	status, raw := e.do(t, http.MethodPost, "/api/auth/register", "", RegisterRequest{
		Email:    strings.ToLower(name) + "@example.com",
		Password: "secret123",
		Name:     name,
	})
	if status != http.StatusCreated {
		t.Fatalf("register %s: status %d: %s", name, status, raw)
	}
	resp := decode[AuthResponse](t, raw)
	return resp.Token, resp.User.ID
}

func (e *testEnv) createRoom(t *testing.T, token string, req CreateRoomRequest) RoomResponse {
	t.Helper()

	status, raw := e.do(t, http.MethodPost, "/api/chat/rooms", token, req)
	if status != http.StatusCreated && status != http.StatusOK {
		t.Fatalf("create room: status %d: %s", status, raw)
	}
	return decode[RoomResponse](t, raw)
}

type wireFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (e *testEnv) dial(t *testing.T, ctx context.Context, token string) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string, data any) {
	t.Helper()

	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", typ, err)
	}
	if err := wsjson.Write(ctx, conn, wireFrame{Type: typ, Data: raw}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// readUntil skips frames until one of type typ arrives.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string) json.RawMessage {
	t.Helper()

	for {
		var frame wireFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		if frame.Type == typ {
			return frame.Data
		}
	}
}

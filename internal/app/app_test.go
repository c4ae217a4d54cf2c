package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"arena-rooms/server/internal/config"
	"arena-rooms/server/internal/net/proto"
	"arena-rooms/server/internal/telemetry"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *httptest.Server) {
	t.Helper()
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Journal.SQLitePath = filepath.Join(t.TempDir(), "matches.db")
	if mutate != nil {
		mutate(&cfg)
	}

	srv, err := New(context.Background(), cfg, telemetry.NopLogger())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.loop.Run(ctx)
	}()

	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.sockets.Registry().CloseAll("test done")
		httpSrv.Close()
		cancel()
		<-done
		srv.close()
	})
	return srv, httpSrv
}

func dialArena(t *testing.T, base string) *websocket.Conn {
	t.Helper()
	parsed, err := url.Parse(base)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	parsed.Scheme = "ws"
	parsed.Path = "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(parsed.String(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func request(t *testing.T, conn *websocket.Conn, op proto.OpCode, seq uint32, payload any) {
	t.Helper()
	frame, err := proto.EncodeRequest(op, seq, payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// awaitOp reads frames until one with op arrives.
func awaitOp(t *testing.T, conn *websocket.Conn, op proto.OpCode) proto.Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", op, err)
		}
		env, err := proto.Decode(data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if env.Op == op {
			return env
		}
	}
}

func TestServerPlayAndCountdown(t *testing.T) {
	_, httpSrv := newTestServer(t, func(cfg *config.Config) {
		cfg.Session.Countdown = 100 * time.Millisecond
	})
	alice := dialArena(t, httpSrv.URL)
	bob := dialArena(t, httpSrv.URL)

	request(t, alice, proto.OpPlay, 1, nil)
	resp := awaitOp(t, alice, proto.OpPlay)
	if resp.Status != proto.StatusSuccess || resp.Seq != 1 {
		t.Fatalf("unexpected play response %+v", resp)
	}
	var play proto.PlayResponse
	if err := resp.DecodePayload(&play); err != nil {
		t.Fatalf("decode play: %v", err)
	}
	if play.RoomID != 1 {
		t.Fatalf("expected room 1, got %d", play.RoomID)
	}

	request(t, bob, proto.OpPlay, 1, nil)
	if resp := awaitOp(t, bob, proto.OpPlay); resp.Status != proto.StatusSuccess {
		t.Fatalf("bob failed to join: %+v", resp)
	}

	timer := awaitOp(t, alice, proto.OpStartTimer)
	var start proto.StartTimer
	if err := timer.DecodePayload(&start); err != nil {
		t.Fatalf("decode timer: %v", err)
	}
	if start.Seconds != 0.1 {
		t.Fatalf("expected 0.1s countdown, got %v", start.Seconds)
	}

	request(t, bob, proto.OpLeaveGame, 2, nil)
	if removed := awaitOp(t, bob, proto.OpRemovedFromRoom); removed.Status != proto.StatusNone {
		t.Fatalf("unexpected removed frame %+v", removed)
	}
}

func TestServerDiagnosticsAndMatches(t *testing.T) {
	_, httpSrv := newTestServer(t, nil)
	alice := dialArena(t, httpSrv.URL)
	request(t, alice, proto.OpPlay, 1, nil)
	awaitOp(t, alice, proto.OpPlay)

	resp, err := http.Get(httpSrv.URL + "/diagnostics")
	if err != nil {
		t.Fatalf("diagnostics: %v", err)
	}
	defer resp.Body.Close()
	var payload struct {
		Sessions int `json:"sessions"`
		Pool     struct {
			Connected int `json:"connected"`
			Rooms     []struct {
				ID      uint64   `json:"id"`
				Members []string `json:"members"`
			} `json:"rooms"`
		} `json:"pool"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode diagnostics: %v", err)
	}
	if payload.Sessions != 1 || payload.Pool.Connected != 1 {
		t.Fatalf("unexpected diagnostics %+v", payload)
	}
	if len(payload.Pool.Rooms) != 1 || len(payload.Pool.Rooms[0].Members) != 1 {
		t.Fatalf("expected one room with one member, got %+v", payload.Pool.Rooms)
	}

	request(t, alice, proto.OpLeaveGame, 2, nil)
	awaitOp(t, alice, proto.OpRemovedFromRoom)

	deadline := time.Now().Add(2 * time.Second)
	for {
		matchesResp, err := http.Get(httpSrv.URL + "/matches")
		if err != nil {
			t.Fatalf("matches: %v", err)
		}
		var history struct {
			Matches []struct {
				RoomID       uint64   `json:"roomId"`
				Participants []string `json:"participants"`
			} `json:"matches"`
		}
		err = json.NewDecoder(matchesResp.Body).Decode(&history)
		matchesResp.Body.Close()
		if err != nil {
			t.Fatalf("decode matches: %v", err)
		}
		if len(history.Matches) == 1 && history.Matches[0].RoomID == 1 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected the abandoned room in history, got %+v", history.Matches)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

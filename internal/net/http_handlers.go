package net

import (
	"context"
	"encoding/json"
	"log"
	nethttp "net/http"
	"strconv"
	"time"

	"arena-rooms/server/internal/journal"
	"arena-rooms/server/internal/matchmaking"
	"arena-rooms/server/internal/net/proto"
	"arena-rooms/server/logging"
)

const (
	defaultMatchesLimit = 20
	maxMatchesLimit     = 200
)

// MatchHistory serves /matches.
type MatchHistory interface {
	History(ctx context.Context, limit int) ([]journal.Match, error)
}

type HTTPHandlerConfig struct {
	Logger *log.Logger

	// WebSocket upgrades /ws requests.
	WebSocket nethttp.HandlerFunc

	// Snapshot reads the room pool on the session loop.
	Snapshot func(ctx context.Context) (matchmaking.Snapshot, error)

	// Sessions reports open websocket sessions.
	Sessions func() int

	Stats    func() logging.RouterStats
	Matches  MatchHistory
	TickRate int
}

func NewHTTPHandler(cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		payload := struct {
			Status     string                `json:"status"`
			ServerTime int64                 `json:"serverTime"`
			TickRate   int                   `json:"tickRate"`
			Sessions   int                   `json:"sessions"`
			Pool       *matchmaking.Snapshot `json:"pool,omitempty"`
			Telemetry  *logging.RouterStats  `json:"telemetry,omitempty"`
		}{
			Status:     "ok",
			ServerTime: time.Now().UnixMilli(),
			TickRate:   cfg.TickRate,
		}
		if cfg.Sessions != nil {
			payload.Sessions = cfg.Sessions()
		}
		if cfg.Snapshot != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			snapshot, err := cfg.Snapshot(ctx)
			if err != nil {
				logger.Printf("[diagnostics] snapshot failed: %v", err)
				httpError(w, "session loop unavailable", nethttp.StatusServiceUnavailable)
				return
			}
			payload.Pool = &snapshot
		}
		if cfg.Stats != nil {
			stats := cfg.Stats()
			payload.Telemetry = &stats
		}
		writeJSON(w, logger, payload)
	})

	mux.HandleFunc("/matches", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		if cfg.Matches == nil {
			httpError(w, "match history disabled", nethttp.StatusNotFound)
			return
		}
		limit := defaultMatchesLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				httpError(w, "invalid limit", nethttp.StatusBadRequest)
				return
			}
			limit = min(parsed, maxMatchesLimit)
		}
		matches, err := cfg.Matches.History(r.Context(), limit)
		if err != nil {
			logger.Printf("[matches] history failed: %v", err)
			httpError(w, "failed to load matches", nethttp.StatusInternalServerError)
			return
		}
		if matches == nil {
			matches = []journal.Match{}
		}
		writeJSON(w, logger, struct {
			Matches []journal.Match `json:"matches"`
		}{Matches: matches})
	})

	mux.HandleFunc("/protocol/schema", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		schema, err := proto.Schema()
		if err != nil {
			logger.Printf("[schema] reflect failed: %v", err)
			httpError(w, "failed to build schema", nethttp.StatusInternalServerError)
			return
		}
		writeJSON(w, logger, schema)
	})

	if cfg.WebSocket != nil {
		mux.HandleFunc("/ws", cfg.WebSocket)
	}

	return mux
}

func writeJSON(w nethttp.ResponseWriter, logger *log.Logger, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Printf("failed to encode response: %v", err)
		httpError(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}

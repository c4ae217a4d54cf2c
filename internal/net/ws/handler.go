package ws

import (
	"context"
	"errors"
	"fmt"
	"log"
	nethttp "net/http"
	"time"

	"github.com/gorilla/websocket"

	"arena-rooms/server/internal/player"
)

// Dispatcher receives connection lifecycle and inbound frames.
type Dispatcher interface {
	Connected(ctx context.Context, conn player.Conn) error
	Disconnected(ctx context.Context, id, reason string) error
	Dispatch(ctx context.Context, conn player.Conn, data []byte) error
}

type HandlerConfig struct {
	Logger         *log.Logger
	MaxConnections int
	ReadLimit      int64
	WriteTimeout   time.Duration

	// DisconnectTimeout bounds how long a closing session waits for the
	// loop to accept its cleanup.
	DisconnectTimeout time.Duration
}

type Handler struct {
	dispatcher Dispatcher
	registry   *Registry
	logger     *log.Logger
	cfg        HandlerConfig
	upgrader   websocket.Upgrader
}

func NewHandler(dispatcher Dispatcher, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 2000
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 4096
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.DisconnectTimeout <= 0 {
		cfg.DisconnectTimeout = 5 * time.Second
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	return &Handler{
		dispatcher: dispatcher,
		registry:   NewRegistry(cfg.MaxConnections),
		logger:     logger,
		cfg:        cfg,
		upgrader:   upgrader,
	}
}

// Registry exposes the open sessions.
func (h *Handler) Registry() *Registry {
	return h.registry
}

func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	if h.registry.Full() {
		nethttp.Error(w, "server full", nethttp.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed from %s: %v", r.RemoteAddr, err)
		return
	}
	conn.SetReadLimit(h.cfg.ReadLimit)

	session := newSession(conn, h.cfg.WriteTimeout)
	if !h.registry.Add(session) {
		session.Close(websocket.ClosePolicyViolation, "server full")
		return
	}

	ctx := context.WithoutCancel(r.Context())
	if err := h.dispatcher.Connected(ctx, session); err != nil {
		h.logger.Printf("register session %s failed: %v", session.ID(), err)
		h.registry.Remove(session.ID())
		session.Close(websocket.CloseTryAgainLater, "server busy")
		return
	}

	h.serve(ctx, session)
}

func (h *Handler) serve(ctx context.Context, session *Session) {
	for {
		_, payload, err := session.conn.ReadMessage()
		if err != nil {
			h.disconnect(ctx, session, closeReason(err))
			return
		}
		if err := h.dispatcher.Dispatch(ctx, session, payload); err != nil {
			h.logger.Printf("discarding malformed frame from %s: %v", session.ID(), err)
		}
	}
}

func (h *Handler) disconnect(ctx context.Context, session *Session, reason string) {
	h.registry.Remove(session.ID())
	session.Close(websocket.CloseNormalClosure, "")

	ctx, cancel := context.WithTimeout(ctx, h.cfg.DisconnectTimeout)
	defer cancel()
	if err := h.dispatcher.Disconnected(ctx, session.ID(), reason); err != nil {
		h.logger.Printf("disconnect cleanup for %s failed: %v", session.ID(), err)
	}
}

func closeReason(err error) string {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		if closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway {
			return "closed"
		}
		return fmt.Sprintf("close %d", closeErr.Code)
	}
	return "read error"
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/huddle-server/internal/config"
	"github.com/vovakirdan/huddle-server/internal/core"
	"github.com/vovakirdan/huddle-server/internal/proto"
)

// WSHandler upgrades HTTP connections and bridges them to core.Conn.
type WSHandler struct {
	hub   *core.Hub
	cfg   *config.Config
	clock clock.Clock
	log   *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, cfg: cfg, clock: clock.New(), log: logger}
}

// tokenFromRequest reads ?token= first, then the Authorization header.
func tokenFromRequest(r *stdhttp.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return ""
	}
	return token
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	ctx := r.Context()

	client, err := h.hub.Sessions.Admit(ctx, tokenFromRequest(r))
	if err != nil {
		h.log.Debug().Err(err).Msg("ws admission rejected")
		ce := core.NewError(core.ErrCodeUnauthorized, "unauthorized")
		writeCtx, cancel := context.WithTimeout(ctx, h.writeTimeout())
		_ = wsjson.Write(writeCtx, conn, outboundFromEvent(core.ErrorEvent(ce)))
		cancel()
		conn.Close(websocket.StatusPolicyViolation, ce.Message)
		return
	}
	defer h.hub.Sessions.Release(client)

	logger := h.log.With().Str("conn_id", client.ID).Str("user_id", client.Identity.ID).Logger()
	logger.Debug().Msg("ws session admitted")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.readLoop(gctx, conn, client, &logger) })
	g.Go(func() error { return h.writeLoop(gctx, conn, client, &logger) })
	if h.cfg.PingInterval > 0 {
		g.Go(func() error { return h.heartbeat(gctx, conn) })
	}
	err = g.Wait()

	status := websocket.StatusNormalClosure
	reason := "closing"
	if errors.Is(err, errReleased) {
		// The hub dropped this connection, usually because it fell behind.
		conn.Close(websocket.StatusTryAgainLater, "connection released")
		return
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			logger.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

var errReleased = errors.New("connection released")

func (h *WSHandler) writeTimeout() time.Duration {
	if h.cfg.WriteTimeout > 0 {
		return h.cfg.WriteTimeout
	}
	return 5 * time.Second
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Conn, logger *zerolog.Logger) error {
	limiter := newRateLimiter(h.cfg.RateLimitPerMinute, h.clock)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			logger.Debug().Err(err).Msg("read ws inbound")
			return err
		}

		if !limiter.allow() {
			client.TrySend(core.ErrorEvent(core.NewError(core.ErrCodeBadRequest, "rate limit exceeded")))
			continue
		}

		// A malformed frame is answered, the connection stays up.
		var inbound proto.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			logger.Debug().Err(err).Msg("decode ws inbound")
			client.TrySend(core.ErrorEvent(core.NewError(core.ErrCodeBadRequest, "invalid JSON")))
			continue
		}

		cmd, protoErr := inboundToCommand(inbound)
		if protoErr != nil {
			client.TrySend(core.ErrorEvent(protoErr))
			continue
		}
		h.hub.Sessions.Dispatch(ctx, client, *cmd)
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Conn, logger *zerolog.Logger) error {
	for {
		select {
		case event := <-client.Events:
			writeCtx, cancel := context.WithTimeout(ctx, h.writeTimeout())
			err := wsjson.Write(writeCtx, conn, outboundFromEvent(event))
			cancel()
			if err != nil {
				logger.Debug().Err(err).Msg("write ws event")
				return err
			}
		case <-client.Done():
			return errReleased
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) heartbeat(ctx context.Context, conn *websocket.Conn) error {
	ticker := h.clock.Ticker(h.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			timeout := h.cfg.PongTimeout
			if timeout <= 0 {
				timeout = h.cfg.PingInterval
			}
			pingCtx, cancel := context.WithTimeout(ctx, timeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

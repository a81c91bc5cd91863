package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/time/rate"
)

const (
	wsMaxMessageBytes = 1 << 10
	wsMaxPingFailures = 3
)

// handleKeepalive upgrades to a WebSocket on which every client message
// counts as activity: the session is touched and a pong with the new
// last-access time is returned. The socket is closed with policy violation
// once the session is gone.
func (h *Handler) handleKeepalive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	tok := bearerToken(r)
	if tok == "" {
		tok = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if tok == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing token")
		return
	}
	sess, ok := h.sessions.Get(tok)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired session")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.cfg.WSAllowedOrigins,
	})
	if err != nil {
		h.log.Info("auth.ws.accept.fail", "session_id", sess.ID(), "err", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	conn.SetReadLimit(wsMaxMessageBytes)

	h.metrics.wsDelta(1)
	defer h.metrics.wsDelta(-1)
	h.log.Debug("auth.ws.open", "session_id", sess.ID())

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.wsHeartbeat(ctx, cancel, conn, sess.ID())

	lim := rate.NewLimiter(rate.Limit(h.cfg.WSMessageRate), h.cfg.WSMessageBurst)
	idle := nonZero(h.cfg.WSReadIdle, DefaultConfig().WSReadIdle)
	writeTimeout := nonZero(h.cfg.WSWriteTimeout, DefaultConfig().WSWriteTimeout)

	for {
		readCtx, readCancel := context.WithTimeout(ctx, idle)
		_, _, err := conn.Read(readCtx)
		readCancel()
		if err != nil {
			if websocket.CloseStatus(err) == -1 {
				h.log.Debug("auth.ws.read.end", "session_id", sess.ID(), "err", err)
			}
			return
		}

		if !lim.Allow() {
			_ = conn.Close(websocket.StatusPolicyViolation, "rate limited")
			return
		}

		cur, ok := h.sessions.Get(tok)
		if !ok {
			h.log.Info("auth.ws.session_gone", "session_id", sess.ID())
			_ = conn.Close(websocket.StatusPolicyViolation, "session expired")
			return
		}

		writeCtx, writeCancel := context.WithTimeout(ctx, writeTimeout)
		err = wsjson.Write(writeCtx, conn, keepaliveMessage{
			Type:               "pong",
			LastAccess:         cur.LastAccess(),
			IdleTimeoutSeconds: int64(h.sessions.IdleTimeout().Seconds()),
		})
		writeCancel()
		if err != nil {
			h.log.Info("auth.ws.write.fail", "session_id", sess.ID(), "err", err)
			return
		}
	}
}

// wsHeartbeat pings the peer so dead connections are reclaimed. Pings do
// not count as session activity.
func (h *Handler) wsHeartbeat(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sessionID string) {
	every := nonZero(h.cfg.WSPingInterval, DefaultConfig().WSPingInterval)
	timeout := nonZero(h.cfg.WSWriteTimeout, DefaultConfig().WSWriteTimeout)

	t := time.NewTicker(every)
	defer t.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, timeout)
			err := conn.Ping(pingCtx)
			pingCancel()

			if err != nil {
				failures++
				h.log.Debug("auth.ws.ping.fail", "session_id", sessionID, "failures", failures, "err", err)
				if failures >= wsMaxPingFailures {
					cancel()
					return
				}
				continue
			}
			failures = 0
		}
	}
}

func nonZero(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

// Package main provides a CI-friendly smoke test for the libra auth surface.
//
// It validates:
//   - login returns a token and the principal
//   - /me resolves the session
//   - the keepalive socket answers each message with a pong
//   - logout ends the session and the socket is closed with policy violation
//   - the token is rejected afterwards
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

type loginResponse struct {
	Token              string `json:"token"`
	SessionID          string `json:"session_id"`
	IdleTimeoutSeconds int64  `json:"idle_timeout_seconds"`
	User               struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
		Role     string `json:"role"`
	} `json:"user"`
}

type pong struct {
	Type       string    `json:"type"`
	LastAccess time.Time `json:"last_access"`
}

func main() {
	var (
		baseURL  = flag.String("url", "http://127.0.0.1:8080", "HTTP base URL")
		origin   = flag.String("origin", "http://localhost", "Origin header for the WebSocket handshake")
		username = flag.String("user", "admin", "Username to log in with")
		pings    = flag.Int("pings", 2, "Keepalive messages to send before logout")
		timeout  = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	// Read from env so the secret does not land in shell history.
	pass := os.Getenv("LIBRA_SMOKE_PASSWORD")
	if pass == "" {
		fatalf("LIBRA_SMOKE_PASSWORD is required")
	}

	base, err := validateBaseURL(*baseURL)
	if err != nil {
		fatalf("invalid -url: %v", err)
	}

	root := context.Background()
	client := &http.Client{Timeout: *timeout}

	login := mustLogin(root, client, base, *username, pass)
	if *verbose {
		fmt.Printf("login: user=%s role=%s session_id=%s idle=%ds\n",
			login.User.Username, login.User.Role, login.SessionID, login.IdleTimeoutSeconds)
	}

	mustStatus(root, client, http.MethodGet, base+"/me", login.Token, http.StatusOK)

	conn := mustDialKeepalive(root, wsURL(base), *origin, login.Token, *timeout)
	defer func() { _ = conn.CloseNow() }()

	var last time.Time
	for i := 0; i < *pings; i++ {
		p := mustPing(root, conn, *timeout)
		if p.LastAccess.Before(last) {
			fatalf("last_access moved backwards: %s < %s", p.LastAccess, last)
		}
		last = p.LastAccess
		if *verbose {
			fmt.Printf("pong %d: last_access=%s\n", i+1, p.LastAccess.Format(time.RFC3339Nano))
		}
	}

	mustStatus(root, client, http.MethodPost, base+"/auth/logout", login.Token, http.StatusNoContent)

	mustAssertClosed(root, conn, *timeout)
	mustStatus(root, client, http.MethodGet, base+"/me", login.Token, http.StatusUnauthorized)

	fmt.Printf("OK: user=%s session_id=%s pings=%d\n", login.User.Username, login.SessionID, *pings)
}

func validateBaseURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(raw), "/"))
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", errors.New("missing host")
	}
	return u.String(), nil
}

func wsURL(base string) string {
	if rest, ok := strings.CutPrefix(base, "https://"); ok {
		return "wss://" + rest + "/auth/ws"
	}
	return "ws://" + strings.TrimPrefix(base, "http://") + "/auth/ws"
}

func mustLogin(parent context.Context, client *http.Client, base, username, pass string) loginResponse {
	body, err := json.Marshal(map[string]string{"username": username, "password": pass})
	if err != nil {
		fatalf("marshal login: %v", err)
	}

	req, err := http.NewRequestWithContext(parent, http.MethodPost, base+"/auth/login", bytes.NewReader(body))
	if err != nil {
		fatalf("login request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	if err != nil {
		fatalf("login: %v", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		fatalf("login status=%d", res.StatusCode)
	}

	var out loginResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		fatalf("decode login: %v", err)
	}
	if strings.TrimSpace(out.Token) == "" {
		fatalf("login response missing token")
	}
	if strings.TrimSpace(out.SessionID) == "" {
		fatalf("login response missing session_id")
	}
	return out
}

func mustStatus(parent context.Context, client *http.Client, method, target, tok string, want int) {
	req, err := http.NewRequestWithContext(parent, method, target, nil)
	if err != nil {
		fatalf("%s %s: %v", method, target, err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)

	res, err := client.Do(req)
	if err != nil {
		fatalf("%s %s: %v", method, target, err)
	}
	_ = res.Body.Close()

	if res.StatusCode != want {
		fatalf("%s %s status=%d want=%d", method, target, res.StatusCode, want)
	}
}

func mustDialKeepalive(parent context.Context, target, origin, tok string, stepTimeout time.Duration) *websocket.Conn {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	h.Set("Authorization", "Bearer "+tok)
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, target, &websocket.DialOptions{HTTPHeader: h})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("dial keepalive: %v", err)
	}
	return conn
}

func mustPing(parent context.Context, conn *websocket.Conn, stepTimeout time.Duration) pong {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	if err := wsjson.Write(ctx, conn, map[string]string{"type": "ping"}); err != nil {
		fatalf("write ping: %v", err)
	}

	var p pong
	if err := wsjson.Read(ctx, conn, &p); err != nil {
		fatalf("read pong: %v", err)
	}
	if p.Type != "pong" {
		fatalf("unexpected message type: %q", p.Type)
	}
	if p.LastAccess.IsZero() {
		fatalf("pong missing last_access")
	}
	return p
}

// mustAssertClosed sends one more message; a dead session must close the socket.
func mustAssertClosed(parent context.Context, conn *websocket.Conn, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	if err := wsjson.Write(ctx, conn, map[string]string{"type": "ping"}); err != nil {
		return
	}

	var p pong
	err := wsjson.Read(ctx, conn, &p)
	if err == nil {
		fatalf("socket still answering after logout")
	}
	if status := websocket.CloseStatus(err); status != websocket.StatusPolicyViolation {
		fatalf("close status=%v want=%v (err=%v)", status, websocket.StatusPolicyViolation, err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}

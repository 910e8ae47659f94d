package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/golang-jwt/jwt/v5"

	"linkup/cmd/identity"
	v1 "linkup/shared/contracts/realtime/v1"
)

var testSecret = []byte("gateway-test-secret")

func TestGateway_MissingTokenRejected(t *testing.T) {
	t.Setenv("LINKUP_WS_ORIGIN_REQUIRED", "false")

	gw, _ := newTestGateway(t)
	ts := startTestServer(t, gw)
	defer ts.Close()

	_, resp, err := dialWS(t, ts.URL, "")
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil {
		t.Fatalf("expected unauthorized handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("expected 401, got status=%d err=%v", status, err)
	}
}

func TestGateway_InvalidTokenRejected(t *testing.T) {
	t.Setenv("LINKUP_WS_ORIGIN_REQUIRED", "false")

	gw, _ := newTestGateway(t)
	ts := startTestServer(t, gw)
	defer ts.Close()

	_, resp, err := dialWS(t, ts.URL, "not-a-valid-token")
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil {
		t.Fatalf("expected unauthorized handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("expected 401, got status=%d err=%v", status, err)
	}
}

func TestGateway_UnknownSubjectRejected(t *testing.T) {
	t.Setenv("LINKUP_WS_ORIGIN_REQUIRED", "false")

	gw, _ := newTestGateway(t)
	ts := startTestServer(t, gw)
	defer ts.Close()

	_, resp, err := dialWS(t, ts.URL, mintToken(t, "ghost"))
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil {
		t.Fatalf("expected unauthorized handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("expected 401, got status=%d err=%v", status, err)
	}
}

func TestGateway_TypingRelayBetweenParticipants(t *testing.T) {
	t.Setenv("LINKUP_WS_ORIGIN_REQUIRED", "false")

	gw, presence := newTestGateway(t)
	ts := startTestServer(t, gw)
	defer ts.Close()

	sender, respA, err := dialWS(t, ts.URL, mintToken(t, "user-a"))
	if respA != nil && respA.Body != nil {
		_ = respA.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial user-a: %v", err)
	}
	defer func() { _ = sender.Close(websocket.StatusNormalClosure, "bye") }()

	receiver, respB, err := dialWS(t, ts.URL, mintToken(t, "user-b"))
	if respB != nil && respB.Body != nil {
		_ = respB.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial user-b: %v", err)
	}
	defer func() { _ = receiver.Close(websocket.StatusNormalClosure, "bye") }()

	waitForOnline(t, presence, "user-a")
	waitForOnline(t, presence, "user-b")

	writeTestEnvelope(t, sender, v1.Envelope{
		V:    v1.Version,
		Type: v1.TypeTypingStart,
		ID:   "typing-1",
		TS:   time.Now().UTC(),
		Payload: mustJSONRaw(t, v1.TypingRequestPayload{
			ConversationID: "conv-1",
			ToUserID:       "user-b",
		}),
	})

	env := readUntilType(t, receiver, v1.TypeTypingStart, 4)
	var p v1.TypingEventPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("decode typing event: %v", err)
	}
	if p.ConversationID != "conv-1" {
		t.Fatalf("conversation_id=%q, want conv-1", p.ConversationID)
	}
	if p.FromUserID != "user-a" {
		t.Fatalf("from_user_id=%q, want user-a", p.FromUserID)
	}
}

func TestGateway_UnsupportedTypeGetsErrorEnvelope(t *testing.T) {
	t.Setenv("LINKUP_WS_ORIGIN_REQUIRED", "false")

	gw, _ := newTestGateway(t)
	ts := startTestServer(t, gw)
	defer ts.Close()

	conn, resp, err := dialWS(t, ts.URL, mintToken(t, "user-a"))
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	writeTestEnvelope(t, conn, v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeMessage,
		ID:      "send-1",
		TS:      time.Now().UTC(),
		Payload: mustJSONRaw(t, map[string]string{"text": "hi"}),
	})

	env := readUntilType(t, conn, v1.TypeError, 4)
	var p v1.ErrorPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if p.Code != "unsupported" {
		t.Fatalf("error code=%q, want unsupported", p.Code)
	}
}

func TestGateway_ReconnectReplacesOlderConnection(t *testing.T) {
	t.Setenv("LINKUP_WS_ORIGIN_REQUIRED", "false")

	gw, presence := newTestGateway(t)
	ts := startTestServer(t, gw)
	defer ts.Close()

	first, resp1, err := dialWS(t, ts.URL, mintToken(t, "user-a"))
	if resp1 != nil && resp1.Body != nil {
		_ = resp1.Body.Close()
	}
	if err != nil {
		t.Fatalf("first dial: %v", err)
	}
	defer func() { _ = first.Close(websocket.StatusNormalClosure, "bye") }()

	waitForOnline(t, presence, "user-a")
	firstConn := presence.Lookup("user-a").ConnID

	second, resp2, err := dialWS(t, ts.URL, mintToken(t, "user-a"))
	if resp2 != nil && resp2.Body != nil {
		_ = resp2.Body.Close()
	}
	if err != nil {
		t.Fatalf("second dial: %v", err)
	}
	defer func() { _ = second.Close(websocket.StatusNormalClosure, "bye") }()

	deadline := time.Now().Add(3 * time.Second)
	for {
		cur := presence.Lookup("user-a")
		if cur != nil && cur.ConnID != firstConn {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("registry never switched to the newer connection")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if n := presence.Count(); n != 1 {
		t.Fatalf("online count=%d, want 1", n)
	}
}

// ---- helpers ----

func newTestGateway(t *testing.T) (*Gateway, *Presence) {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	users := identity.NewMemoryStore()
	users.Put(identity.User{ID: "user-a", Username: "alice"})
	users.Put(identity.User{ID: "user-b", Username: "bob"})

	auth := NewAuthenticator(log, testSecret, users)
	presence := NewPresence(log, nil)
	router := NewRouter(log, presence, nil)
	return NewGateway(log, auth, presence, router), presence
}

func startTestServer(t *testing.T, gw *Gateway) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle("/ws", gw)
	return httptest.NewServer(mux)
}

func mintToken(t *testing.T, userID string) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func dialWS(t *testing.T, baseHTTPURL string, bearerToken string) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	u, err := url.Parse(baseHTTPURL)
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"

	h := http.Header{}
	if strings.TrimSpace(bearerToken) != "" {
		h.Set("Authorization", "Bearer "+bearerToken)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		Subprotocols: []string{wsSubprotocolV1},
		HTTPHeader:   h,
	})
}

func waitForOnline(t *testing.T, presence *Presence, userID string) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for !presence.Online(userID) {
		if time.Now().After(deadline) {
			t.Fatalf("user %s never came online", userID)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func writeTestEnvelope(t *testing.T, conn *websocket.Conn, env v1.Envelope) {
	t.Helper()
	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		t.Fatalf("conn.Write: %v", err)
	}
}

func readUntilType(t *testing.T, conn *websocket.Conn, typ string, maxReads int) v1.Envelope {
	t.Helper()
	if maxReads <= 0 {
		maxReads = 1
	}
	for i := 0; i < maxReads; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, b, err := conn.Read(ctx)
		cancel()
		if err != nil {
			t.Fatalf("conn.Read: %v", err)
		}
		var env v1.Envelope
		if err := json.Unmarshal(b, &env); err != nil {
			t.Fatalf("unmarshal envelope: %v", err)
		}
		if env.Type == typ {
			return env
		}
	}
	t.Fatalf("did not receive envelope type %q", typ)
	return v1.Envelope{}
}

func mustJSONRaw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	return b
}

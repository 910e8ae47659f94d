// Package main provides a CI-friendly smoke test for LinkUp realtime.
//
// It validates, against a running server:
//   - WebSocket handshake + subprotocol selection with bearer auth
//   - conversation resolution over the REST API
//   - typing_start relay between two live connections
//   - REST send -> "message" envelope pushed to the receiver
//   - REST mark-read -> "message_read" envelope pushed to the sender
//
// It needs two pre-minted JWTs for two distinct users (-token-a/-token-b).
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "linkup/shared/contracts/realtime/v1"

	"github.com/coder/websocket"
)

const (
	defaultSubprotocol = "linkup.realtime.v1"
	maxReadBytes       = 1 << 20 // 1MiB
)

type smokeClient struct {
	name   string
	userID string
	token  string
	conn   *websocket.Conn

	inbox chan v1.Envelope
	errCh chan error
}

func main() {
	var (
		wsURL   = flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL")
		apiURL  = flag.String("api", "http://127.0.0.1:8080", "REST API base URL")
		origin  = flag.String("origin", "http://localhost", "Origin header to send (browser-like handshake)")
		tokenA  = flag.String("token-a", os.Getenv("LINKUP_SMOKE_TOKEN_A"), "JWT for user A")
		tokenB  = flag.String("token-b", os.Getenv("LINKUP_SMOKE_TOKEN_B"), "JWT for user B")
		userA   = flag.String("user-a", "", "User ID behind token A")
		userB   = flag.String("user-b", "", "User ID behind token B")
		text    = flag.String("text", "hello linkup 👋", "Message text to send")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}
	if strings.TrimSpace(*tokenA) == "" || strings.TrimSpace(*tokenB) == "" {
		fatalf("both -token-a and -token-b are required")
	}
	if strings.TrimSpace(*userA) == "" || strings.TrimSpace(*userB) == "" {
		fatalf("both -user-a and -user-b are required")
	}

	root := context.Background()

	a := mustConnect(root, "A", *wsURL, *origin, *tokenA, *userA, *timeout)
	defer closeWS(a.conn)

	b := mustConnect(root, "B", *wsURL, *origin, *tokenB, *userB, *timeout)
	defer closeWS(b.conn)

	convID := mustResolveConversation(root, *apiURL, a, b.userID, *timeout)
	if *verbose {
		fmt.Printf("connected: A=%s B=%s conv_id=%s\n", a.userID, b.userID, convID)
	}

	mustRelayTyping(root, a, b, convID, *timeout)

	msgID := mustSendAndAssertPush(root, *apiURL, a, b, convID, *text, *timeout)

	mustMarkReadAndAssertReceipt(root, *apiURL, b, a, convID, *timeout)

	fmt.Printf("OK: A=%s B=%s conv_id=%s message_id=%s\n", a.userID, b.userID, convID, msgID)
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	if strings.TrimSpace(u.Path) == "" {
		return errors.New("missing path")
	}
	return nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustConnect(parent context.Context, name, wsURL, origin, token, userID string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{defaultSubprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		fatalf("connect %s: %v", name, err)
	}

	assertSubprotocol(resp, defaultSubprotocol)

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		name:   name,
		userID: userID,
		token:  token,
		conn:   conn,
		inbox:  make(chan v1.Envelope, 512),
		errCh:  make(chan error, 1),
	}
	c.startReadLoop()
	return c
}

func assertSubprotocol(resp *http.Response, want string) {
	if resp == nil {
		return
	}
	got := strings.TrimSpace(resp.Header.Get("Sec-WebSocket-Protocol"))
	if got == "" {
		return
	}
	if got != want {
		fatalf("subprotocol mismatch: got=%q want=%q", got, want)
	}
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}

			if mt != websocket.MessageText && mt != websocket.MessageBinary {
				select {
				case c.errCh <- fmt.Errorf("unsupported message type: %v", mt):
				default:
				}
				return
			}

			var env v1.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad json: %w", err):
				default:
				}
				return
			}
			if err := env.Validate(); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad envelope: %w", err):
				default:
				}
				return
			}

			select {
			case c.inbox <- env:
			default:
				select {
				case c.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

func mustResolveConversation(parent context.Context, apiURL string, c *smokeClient, otherUserID string, stepTimeout time.Duration) string {
	var out struct {
		ID string `json:"id"`
	}
	mustAPI(parent, http.MethodGet, apiURL+"/conversations/resolve/"+url.PathEscape(otherUserID), c.token, nil, &out, stepTimeout)
	if strings.TrimSpace(out.ID) == "" {
		fatalf("resolve returned empty conversation id (%s)", c.name)
	}
	return out.ID
}

func mustRelayTyping(parent context.Context, from, to *smokeClient, convID string, stepTimeout time.Duration) {
	env := v1.Envelope{
		V:    v1.Version,
		Type: v1.TypeTypingStart,
		ID:   fmt.Sprintf("%s-typing", from.name),
		TS:   time.Now().UTC(),
		Payload: mustJSON(v1.TypingRequestPayload{
			ConversationID: convID,
			ToUserID:       to.userID,
		}),
	}
	mustWriteWithTimeout(parent, from.conn, env, stepTimeout)

	got := to.mustReadUntilType(parent, v1.TypeTypingStart, stepTimeout)

	var p v1.TypingEventPayload
	if err := json.Unmarshal(got.Payload, &p); err != nil {
		fatalf("unmarshal typing payload (%s): %v", to.name, err)
	}
	if p.ConversationID != convID {
		fatalf("typing conv_id mismatch (%s): got=%q want=%q", to.name, p.ConversationID, convID)
	}
	if p.FromUserID != from.userID {
		fatalf("typing from_user_id mismatch (%s): got=%q want=%q", to.name, p.FromUserID, from.userID)
	}
}

func mustSendAndAssertPush(parent context.Context, apiURL string, from, to *smokeClient, convID, text string, stepTimeout time.Duration) string {
	req := map[string]string{
		"receiver_id": to.userID,
		"text":        text,
	}
	var out struct {
		Conversation struct {
			ID string `json:"id"`
		} `json:"conversation"`
		Message struct {
			ID string `json:"id"`
		} `json:"message"`
	}
	mustAPI(parent, http.MethodPost, apiURL+"/messages/send", from.token, req, &out, stepTimeout)
	if out.Conversation.ID != convID {
		fatalf("send conv_id mismatch: got=%q want=%q", out.Conversation.ID, convID)
	}
	if strings.TrimSpace(out.Message.ID) == "" {
		fatalf("send returned empty message id")
	}

	got := to.mustReadUntilType(parent, v1.TypeMessage, stepTimeout)

	var p v1.MessagePayload
	if err := json.Unmarshal(got.Payload, &p); err != nil {
		fatalf("unmarshal message payload (%s): %v", to.name, err)
	}
	if p.ConversationID != convID {
		fatalf("push conv_id mismatch (%s): got=%q want=%q", to.name, p.ConversationID, convID)
	}
	if p.Message.ID != out.Message.ID {
		fatalf("push message id mismatch (%s): got=%q want=%q", to.name, p.Message.ID, out.Message.ID)
	}
	if p.Message.Sender != from.userID {
		fatalf("push sender mismatch (%s): got=%q want=%q", to.name, p.Message.Sender, from.userID)
	}
	if p.Message.Text != text {
		fatalf("push text mismatch (%s): got=%q want=%q", to.name, p.Message.Text, text)
	}
	return out.Message.ID
}

func mustMarkReadAndAssertReceipt(parent context.Context, apiURL string, reader, sender *smokeClient, convID string, stepTimeout time.Duration) {
	var out struct {
		Updated int64 `json:"updated"`
	}
	mustAPI(parent, http.MethodPost, apiURL+"/conversations/"+url.PathEscape(convID)+"/read", reader.token, nil, &out, stepTimeout)
	if out.Updated < 1 {
		fatalf("mark-read updated=%d, want >= 1", out.Updated)
	}

	got := sender.mustReadUntilType(parent, v1.TypeMessageRead, stepTimeout)

	var p v1.MessageReadPayload
	if err := json.Unmarshal(got.Payload, &p); err != nil {
		fatalf("unmarshal message_read payload (%s): %v", sender.name, err)
	}
	if p.ConversationID != convID {
		fatalf("read receipt conv_id mismatch (%s): got=%q want=%q", sender.name, p.ConversationID, convID)
	}
	if p.ReaderID != reader.userID {
		fatalf("read receipt reader mismatch (%s): got=%q want=%q", sender.name, p.ReaderID, reader.userID)
	}
}

func mustAPI(parent context.Context, method, rawURL, token string, in, out any, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			fatalf("marshal request body: %v", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		fatalf("build request %s %s: %v", method, rawURL, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("%s %s: %v", method, rawURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReadBytes))
	if err != nil {
		fatalf("%s %s: read body: %v", method, rawURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		fatalf("%s %s: status=%d body=%s", method, rawURL, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			fatalf("%s %s: decode body: %v", method, rawURL, err)
		}
	}
}

func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration) v1.Envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q (%s): %v", wantType, c.name, ctx.Err())
		case err := <-c.errCh:
			if err == nil {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			fatalf("connection error while waiting for %q (%s): %v", wantType, c.name, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q (%s)", wantType, c.name)
			}
			if env.Type == wantType {
				return env
			}
			if env.Type == v1.TypeError {
				var ep v1.ErrorPayload
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error (%s): code=%q msg=%q", c.name, ep.Code, ep.Message)
			}
			// Unrelated traffic (notifications, stray typing_stop) is skipped.
		}
	}
}

func mustWriteWithTimeout(parent context.Context, conn *websocket.Conn, env v1.Envelope, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed: %v", err)
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}

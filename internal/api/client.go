// Package api is the client for the contract backend. Every operation is a
// POST to one endpoint, dispatched on the event_type field of the body.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fakeyudi/contractdesk/internal/compare"
)

// Op is a backend operation, sent as event_type.
type Op string

const (
	OpLogin        Op = "login"
	OpGetUploadURL Op = "getUploadUrl"
	OpContractQA   Op = "contractQA"
	OpCompare      Op = "compareContracts"
	OpClearSession Op = "clearSession"
	OpExportPDF    Op = "exportPDF"
	OpChatHistory  Op = "getChatHistory"
)

// DefaultTimeout bounds one backend call. Comparisons of large contracts run
// for minutes.
const DefaultTimeout = 180 * time.Second

// BeaconTimeout bounds the detached clear-session request sent on shutdown.
const BeaconTimeout = 5 * time.Second

// RequestIDHeader carries a per-call correlation id.
const RequestIDHeader = "X-Request-ID"

const fallbackReply = "I received your message."

// Client talks to the backend endpoint.
type Client struct {
	endpoint       string
	http           *http.Client
	token          func() string
	onUnauthorized func()
	log            *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client (which has DefaultTimeout).
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithToken supplies the bearer token read before every call. An empty token
// sends no Authorization header.
func WithToken(fn func() string) Option {
	return func(cl *Client) { cl.token = fn }
}

// WithUnauthorizedHandler installs the global 401 policy. It runs once per
// 401 response, before the error is returned.
func WithUnauthorizedHandler(fn func()) Option {
	return func(cl *Client) { cl.onUnauthorized = fn }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) { cl.log = l }
}

// New returns a Client for endpoint.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: DefaultTimeout},
		token:    func() string { return "" },
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the configured backend URL.
func (c *Client) Endpoint() string { return c.endpoint }

type response struct {
	body   []byte
	header http.Header
}

// call posts fields plus event_type and returns the 2xx body. Non-2xx answers
// become *RequestError; for authenticated operations a 401 also triggers the
// unauthorized handler.
func (c *Client) call(ctx context.Context, op Op, fields map[string]any) (*response, error) {
	payload := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		payload[k] = v
	}
	payload["event_type"] = op
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", op, err)
	}
	return c.post(ctx, op, body)
}

func (c *Client) post(ctx context.Context, op Op, body []byte) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	reqID := uuid.New().String()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, reqID)
	if op != OpLogin {
		if tok := c.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("backend call failed", zap.String("op", string(op)), zap.String("request_id", reqID), zap.Error(err))
		return nil, fmt.Errorf("%s: %w: %w", op, ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: read body: %w", op, ErrRequestFailed, err)
	}
	c.log.Info("backend call",
		zap.String("op", string(op)),
		zap.String("request_id", reqID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rerr := &RequestError{Op: op, Status: resp.StatusCode}
		if resp.StatusCode == http.StatusUnauthorized && op != OpLogin && c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		if op == OpLogin {
			rerr.Message = loginMessage(data)
		}
		return nil, rerr
	}
	return &response{body: data, header: resp.Header}, nil
}

func loginMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil && e.Message != "" {
		return e.Message
	}
	return "Invalid credentials"
}

// LoginResult is the backend's answer to a successful login.
type LoginResult struct {
	Token string `json:"token"`
	Role  string `json:"role,omitempty"`
	User  struct {
		Email string `json:"email"`
		Name  string `json:"name,omitempty"`
		Role  string `json:"role,omitempty"`
	} `json:"user"`
}

// Login exchanges email and password for a token. A 401 here never triggers
// the unauthorized handler.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	resp, err := c.call(ctx, OpLogin, map[string]any{"email": email, "password": password})
	if err != nil {
		return nil, err
	}
	var out LoginResult
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return nil, fmt.Errorf("decode login response: %w", err)
	}
	if out.Token == "" {
		return nil, &RequestError{Op: OpLogin, Status: http.StatusOK, Message: "no token in response"}
	}
	if out.User.Email == "" {
		out.User.Email = email
	}
	if out.Role == "" {
		out.Role = out.User.Role
	}
	return &out, nil
}

// GetUploadURL asks for a signed write URL for objectName.
func (c *Client) GetUploadURL(ctx context.Context, objectName, contentType string) (string, error) {
	resp, err := c.call(ctx, OpGetUploadURL, map[string]any{"fileName": objectName, "contentType": contentType})
	if err != nil {
		return "", err
	}
	// A login page served with 200 means the gateway dropped our session.
	if strings.Contains(resp.header.Get("Content-Type"), "text/html") {
		return "", fmt.Errorf("%s: authentication failed, please log in again: %w", OpGetUploadURL, ErrUnauthorized)
	}
	var out struct {
		UploadURL string `json:"uploadUrl"`
	}
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return "", fmt.Errorf("%s: %w: decode response: %w", OpGetUploadURL, ErrRequestFailed, err)
	}
	if out.UploadURL == "" {
		return "", fmt.Errorf("%s: %w: response has no uploadUrl", OpGetUploadURL, ErrRequestFailed)
	}
	return out.UploadURL, nil
}

// Chat sends a question about the session's documents and returns the reply.
func (c *Client) Chat(ctx context.Context, message, sessionID string, fileURLs []string) (string, error) {
	if fileURLs == nil {
		fileURLs = []string{}
	}
	resp, err := c.call(ctx, OpContractQA, map[string]any{
		"message":   message,
		"unique_id": sessionID,
		"fileUrls":  fileURLs,
	})
	if err != nil {
		return "", err
	}
	return chatReply(resp.body), nil
}

// chatReply picks the first reply field the backend filled in.
func chatReply(body []byte) string {
	var out struct {
		LLMResponse string `json:"llm_response"`
		Message     string `json:"message"`
		Response    string `json:"response"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return fallbackReply
	}
	for _, s := range []string{out.LLMResponse, out.Message, out.Response} {
		if s != "" {
			return s
		}
	}
	return fallbackReply
}

// Compare requests the comparison of the session's two documents and
// normalizes the answer.
func (c *Client) Compare(ctx context.Context, sessionID string, category compare.Category) (*compare.Result, error) {
	resp, err := c.call(ctx, OpCompare, map[string]any{"unique_id": sessionID, "doc_type": category})
	if err != nil {
		return nil, err
	}
	return compare.Normalize(resp.body)
}

// ClearSession deletes the session's stored files and chat context.
func (c *Client) ClearSession(ctx context.Context, sessionID string) error {
	_, err := c.call(ctx, OpClearSession, map[string]any{"unique_id": sessionID})
	return err
}

// Beacon sends clearSession on a context detached from any caller, so it is
// attempted even while the process shuts down. done closes once the attempt
// finished.
func (c *Client) Beacon(sessionID string) (done <-chan struct{}) {
	ch := make(chan struct{})
	go func() {
		defer close(ch)
		ctx, cancel := context.WithTimeout(context.Background(), BeaconTimeout)
		defer cancel()
		if err := c.ClearSession(ctx, sessionID); err != nil {
			c.log.Warn("clear-session beacon failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}()
	return ch
}

// ExportPDF posts the raw comparison payload back for rendering and returns
// the PDF bytes.
func (c *Client) ExportPDF(ctx context.Context, raw json.RawMessage) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("encode %s request: %w", OpExportPDF, err)
		}
	}
	fields["event_type"] = json.RawMessage(`"` + OpExportPDF + `"`)
	body, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", OpExportPDF, err)
	}
	resp, err := c.post(ctx, OpExportPDF, body)
	if err != nil {
		return nil, err
	}
	return resp.body, nil
}

// HistoryMessage is one turn of a stored conversation.
type HistoryMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

// ChatHistory returns the backend's stored conversation for sessionID. The
// backend answers either with a bare list or with one wrapped in "messages"
// or "history".
func (c *Client) ChatHistory(ctx context.Context, sessionID string) ([]HistoryMessage, error) {
	resp, err := c.call(ctx, OpChatHistory, map[string]any{"session_id": sessionID})
	if err != nil {
		return nil, err
	}
	var list []HistoryMessage
	if err := json.Unmarshal(resp.body, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Messages []HistoryMessage `json:"messages"`
		History  []HistoryMessage `json:"history"`
	}
	if err := json.Unmarshal(resp.body, &wrapped); err != nil {
		return nil, fmt.Errorf("%s: %w: decode response: %w", OpChatHistory, ErrRequestFailed, err)
	}
	if wrapped.Messages != nil {
		return wrapped.Messages, nil
	}
	if wrapped.History == nil {
		return []HistoryMessage{}, nil
	}
	return wrapped.History, nil
}

// IsUnauthorized reports whether err asks the user to log in again.
func IsUnauthorized(err error) bool { return errors.Is(err, ErrUnauthorized) }

// ABOUTME: HTTP client for the assistant backend: conversation list, history, chat and ingest
// ABOUTME: Non-2xx responses become *StatusError; nothing is retried

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/2389/coven-chat/internal/history"
)

const (
	defaultTimeout = 60 * time.Second
	maxErrorBody   = 4096
)

// Reply is the assistant's answer to a text turn.
type Reply struct {
	Text           string
	ConversationID string
}

// MultiModalReply is the assistant's answer to a question with an attachment.
type MultiModalReply struct {
	Answer         string
	ConversationID string
}

// File is an uploaded attachment.
type File struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Size returns the attachment size in bytes. A nil file has size zero.
func (f *File) Size() int {
	if f == nil {
		return 0
	}
	return len(f.Data)
}

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: backend returned status %d: %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: backend returned status %d", e.Op, e.StatusCode)
}

type idempotencyKey struct{}

// WithIdempotencyKey attaches a key that the client sends with chat requests.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKey{}, key)
}

// Client talks to the assistant backend over JSON/HTTP.
type Client struct {
	baseURL    string
	userID     string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// WithUserID sets the user id injected into chat requests.
func WithUserID(id string) Option {
	return func(c *Client) { c.userID = id }
}

// WithToken sets a bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "backend")
	return c
}

// ListConversations fetches the conversation directory.
func (c *Client) ListConversations(ctx context.Context) ([]history.Conversation, error) {
	var resp ConversationsResponse
	if err := c.do(ctx, "list conversations", http.MethodGet, PathConversations, nil, nil, &resp); err != nil {
		return nil, err
	}

	convs := make([]history.Conversation, len(resp.Conversations))
	for i, cj := range resp.Conversations {
		convs[i] = cj.ToConversation()
	}
	return convs, nil
}

// GetHistory fetches one conversation's messages in backend order.
func (c *Client) GetHistory(ctx context.Context, conversationID string) ([]history.Message, error) {
	q := url.Values{}
	q.Set("conversationId", conversationID)

	var resp HistoryResponse
	if err := c.do(ctx, "get history", http.MethodGet, PathHistory, q, nil, &resp); err != nil {
		return nil, err
	}

	msgs := make([]history.Message, len(resp.Messages))
	for i, mj := range resp.Messages {
		msgs[i] = mj.ToMessage()
	}
	return msgs, nil
}

// SendTurn sends a text turn. An empty conversationID lets the backend
// start a new conversation; the reply carries the id that was used.
func (c *Client) SendTurn(ctx context.Context, text, conversationID string) (Reply, error) {
	req := ChatRequest{
		Text:           text,
		ConversationID: conversationID,
		UserID:         c.userID,
	}

	var resp ChatResponse
	if err := c.do(ctx, "send turn", http.MethodPost, PathChat, nil, req, &resp); err != nil {
		return Reply{}, err
	}

	if resp.ConversationID == "" {
		resp.ConversationID = conversationID
	}
	return Reply{Text: resp.Text, ConversationID: resp.ConversationID}, nil
}

// Ingest adds document text to the backend's knowledge base.
func (c *Client) Ingest(ctx context.Context, text, conversationID string) error {
	req := IngestRequest{Text: text, ConversationID: conversationID}
	return c.do(ctx, "ingest", http.MethodPost, PathIngest, nil, req, nil)
}

// Health checks that the backend is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, "health", http.MethodGet, PathHealth, nil, nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshaling request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("%s: creating request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if key, ok := ctx.Value(idempotencyKey{}).(string); ok && key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("backend request",
		"op", op,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: readErrorBody(resp)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: parsing response: %w", op, err)
	}
	return nil
}

// readErrorBody extracts a short error description from a failed response.
func readErrorBody(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var er ErrorResponse
		if err := json.Unmarshal(data, &er); err == nil && er.Error != "" {
			return er.Error
		}
	}
	return strings.TrimSpace(string(data))
}

// Package api is the client for the collaborating request/response API:
// chat list, paged message history and message submission. Profile,
// recommendation and connection endpoints are not part of the sync core and
// have no client here.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrUnauthorized is returned when the server rejects the session token.
var ErrUnauthorized = errors.New("unauthorized")

// Client issues authenticated requests against the backend REST API.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
	logger  *zap.Logger
}

// New creates a client for the given base URL. token may be empty for
// unauthenticated calls (Login). logger may be nil.
func New(baseURL, token string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

// Login exchanges credentials for a session token via the external auth
// collaborator.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, body, &out); err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	if out.Token == "" {
		return "", fmt.Errorf("login: empty token in response")
	}
	return out.Token, nil
}

// Me returns the authenticated user's id.
func (c *Client) Me(ctx context.Context) (int64, error) {
	var out struct {
		ID int64 `json:"id"`
	}
	if err := c.do(ctx, http.MethodGet, "/me", nil, nil, &out); err != nil {
		return 0, fmt.Errorf("fetch me: %w", err)
	}
	return out.ID, nil
}

// Chats fetches the chat-preview list, ordered by the server.
func (c *Client) Chats(ctx context.Context) ([]ChatPreview, error) {
	var out struct {
		Chats []ChatPreview `json:"chats"`
	}
	if err := c.do(ctx, http.MethodGet, "/chats", nil, nil, &out); err != nil {
		return nil, fmt.Errorf("fetch chats: %w", err)
	}
	return out.Chats, nil
}

// Messages fetches up to limit messages for a chat, strictly older than
// before when it is non-nil (exclusive bound). The server returns them
// together with a flag indicating whether older history remains.
func (c *Client) Messages(ctx context.Context, chatID int64, limit int, before *time.Time) (*MessagePage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if before != nil {
		q.Set("before", before.Format(time.RFC3339Nano))
	}
	var out MessagePage
	path := fmt.Sprintf("/chats/%d/messages", chatID)
	if err := c.do(ctx, http.MethodGet, path, q, nil, &out); err != nil {
		return nil, fmt.Errorf("fetch messages for chat %d: %w", chatID, err)
	}
	return &out, nil
}

// SendMessage submits a new outgoing message and returns the server's
// authoritative persisted copy (id and timestamp assigned by the server).
func (c *Client) SendMessage(ctx context.Context, chatID int64, content string) (*ChatMessage, error) {
	var out ChatMessage
	path := fmt.Sprintf("/chats/%d/messages", chatID)
	body := map[string]string{"content": content}
	if err := c.do(ctx, http.MethodPost, path, nil, body, &out); err != nil {
		return nil, fmt.Errorf("send message to chat %d: %w", chatID, err)
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("api request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.String("request_id", reqID),
			zap.Int("status", resp.StatusCode))
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Package api is the HTTP client of the chat server.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zhouzirui/gemchat/backend/internal/model/user"
)

// Error is a non-2xx answer from the server.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

// Health is the /health body. Database is empty when the server does not
// report it.
type Health struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
}

// Session is returned by signup and signin.
type Session struct {
	Message string       `json:"message"`
	Token   string       `json:"token"`
	User    user.Profile `json:"user"`
}

// HistoryMessage is one entry of a transcript.
type HistoryMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Client calls the chat server at BaseURL.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client. A nil httpClient uses http.DefaultClient.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) Signup(ctx context.Context, name, email, password string) (Session, error) {
	var out Session
	err := c.do(ctx, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"name": name, "email": email, "password": password,
	}, &out)
	return out, err
}

func (c *Client) Signin(ctx context.Context, email, password string) (Session, error) {
	var out Session
	err := c.do(ctx, http.MethodPost, "/api/auth/signin", "", map[string]string{
		"email": email, "password": password,
	}, &out)
	return out, err
}

// Me validates token and returns its user.
func (c *Client) Me(ctx context.Context, token string) (user.Profile, error) {
	var out struct {
		User user.Profile `json:"user"`
	}
	err := c.do(ctx, http.MethodGet, "/api/auth/me", token, nil, &out)
	return out.User, err
}

// Chat sends one message and returns the reply.
func (c *Client) Chat(ctx context.Context, token, sessionID, message string) (string, error) {
	var out struct {
		Reply string `json:"reply"`
	}
	err := c.do(ctx, http.MethodPost, "/api/chat", token, map[string]string{
		"sessionId": sessionID, "message": message,
	}, &out)
	return out.Reply, err
}

// History returns the transcript of sessionID, oldest first.
func (c *Client) History(ctx context.Context, token, sessionID string) ([]HistoryMessage, error) {
	var out struct {
		Messages []HistoryMessage `json:"messages"`
	}
	err := c.do(ctx, http.MethodGet, "/api/history/"+url.PathEscape(sessionID), token, nil, &out)
	return out.Messages, err
}

// Recent returns session ids, most recently active first.
func (c *Client) Recent(ctx context.Context, token string) ([]string, error) {
	var out struct {
		Sessions []string `json:"sessions"`
	}
	err := c.do(ctx, http.MethodGet, "/api/recent", token, nil, &out)
	return out.Sessions, err
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	if err := c.do(ctx, http.MethodGet, "/health", "", nil, &out); err != nil {
		return Health{}, err
	}
	if out.Status != "ok" {
		return out, fmt.Errorf("unexpected health status %q", out.Status)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode)
		}
		return &Error{Status: resp.StatusCode, Message: apiErr.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

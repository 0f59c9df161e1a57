// Package api is the REST client for the chat server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/omochice/toy-chat-client/pkg/protocol"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const defaultTimeout = 10 * time.Second

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method   string
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Endpoint, e.Code, e.Body)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Endpoint, e.Code)
}

// Message returns the server's error text, or a generic one when the body is empty.
func (e *StatusError) Message() string {
	if e.Body != "" {
		return e.Body
	}
	return fmt.Sprintf("HTTP error! Status: %d", e.Code)
}

func statusCode(err error) (int, string, bool) {
	var se *StatusError
	if !errors.As(err, &se) {
		return 0, "", false
	}
	return se.Code, se.Body, true
}

// IsUnauthorized reports whether err is an authentication failure.
func IsUnauthorized(err error) bool {
	code, body, ok := statusCode(err)
	return ok && (code == fasthttp.StatusUnauthorized || strings.Contains(body, "Unauthorized"))
}

// IsForbidden reports whether err is a 403 response.
func IsForbidden(err error) bool {
	code, _, ok := statusCode(err)
	return ok && code == fasthttp.StatusForbidden
}

// IsNotFound reports whether err means the resource does not exist. The
// server answers a lookup of a missing user with 500, so that counts too.
func IsNotFound(err error) bool {
	code, _, ok := statusCode(err)
	return ok && (code == fasthttp.StatusNotFound || code == fasthttp.StatusInternalServerError)
}

// TokenFunc returns the current bearer token, or "" when logged out.
type TokenFunc func() string

// Client performs JSON requests against the chat server.
type Client struct {
	baseURL string
	timeout time.Duration
	token   TokenFunc
	http    *fasthttp.Client
	logger  *zap.SugaredLogger
}

// New creates a Client for baseURL, e.g. http://localhost:8080.
func New(baseURL string, timeout time.Duration, token TokenFunc, logger *zap.SugaredLogger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		token:   token,
		http: &fasthttp.Client{
			Name:         "toy-chat-client",
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
		logger: logger,
	}
}

// Do sends body as JSON to endpoint and decodes the response into out.
// JSON responses are unmarshalled; any other response is stored raw when
// out is a *string and ignored otherwise. out may be nil.
func (c *Client) Do(ctx context.Context, endpoint, method string, body any, authRequired bool, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + endpoint)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	if authRequired && c.token != nil {
		if token := c.token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		req.SetBody(data)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		c.logger.Errorw("API request error", "method", method, "endpoint", endpoint, "error", err)
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}

	code := resp.StatusCode()
	if code < 200 || code > 299 {
		err := &StatusError{
			Method:   method,
			Endpoint: endpoint,
			Code:     code,
			Body:     strings.TrimSpace(string(resp.Body())),
		}
		c.logger.Debugw("API request failed", "method", method, "endpoint", endpoint, "status", code)
		return err
	}

	if out == nil {
		return nil
	}
	if strings.Contains(string(resp.Header.ContentType()), "application/json") {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
		}
		return nil
	}
	if s, ok := out.(*string); ok {
		*s = string(resp.Body())
	}
	return nil
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var token string
	err := c.Do(ctx, "/login", fasthttp.MethodPost, protocol.Credentials{Username: username, Password: password}, false, &token)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", errors.New("invalid response format from server")
	}
	return token, nil
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, username, password string) error {
	return c.Do(ctx, "/register", fasthttp.MethodPost, protocol.Credentials{Username: username, Password: password}, false, nil)
}

// GetUser looks a user up by name.
func (c *Client) GetUser(ctx context.Context, username string) (protocol.User, error) {
	var user protocol.User
	err := c.Do(ctx, "/user/"+url.PathEscape(username), fasthttp.MethodGet, nil, false, &user)
	return user, err
}

// GetChats lists the conversations username is a member of.
func (c *Client) GetChats(ctx context.Context, username string) ([]protocol.Chat, error) {
	var chats []protocol.Chat
	err := c.Do(ctx, "/chats/"+url.PathEscape(username), fasthttp.MethodGet, nil, true, &chats)
	return chats, err
}

// NewChat creates a conversation and returns its id.
func (c *Client) NewChat(ctx context.Context, req protocol.NewChatRequest) (string, error) {
	var id string
	if err := c.Do(ctx, "/newChat", fasthttp.MethodPost, req, true, &id); err != nil {
		return "", err
	}
	if id == "" {
		return "", errors.New("server returned an empty chat id")
	}
	return id, nil
}

// GetMessages returns the stored history of a conversation.
func (c *Client) GetMessages(ctx context.Context, chatID string) ([]protocol.Message, error) {
	var msgs []protocol.Message
	err := c.Do(ctx, "/messages/"+url.PathEscape(chatID), fasthttp.MethodGet, nil, true, &msgs)
	return msgs, err
}

// Package chatclient speaks the web chat protocol from Go: submit a message,
// poll for a late answer and load the history.
package chatclient

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

	"github.com/rs/zerolog"

	"github.com/bezpauzy/eva-bot/internal/webchat"
)

const (
	DefaultMaxAttempts  = 30
	DefaultPollInterval = 2 * time.Second
)

// Identity is who the client talks as. InitData takes precedence when set;
// otherwise reads carry the ids in the session cookie, as the website does.
type Identity struct {
	UserID     string
	TelegramID int64
	InitData   string
}

type Client struct {
	baseURL      *url.URL
	identity     Identity
	httpClient   *http.Client
	log          zerolog.Logger
	maxAttempts  int
	pollInterval time.Duration
	wait         func(ctx context.Context, d time.Duration) error
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

func WithLogger(log zerolog.Logger) Option {
	return func(cl *Client) { cl.log = log }
}

// WithPolling overrides the attempt budget and the delay between polls.
func WithPolling(maxAttempts int, interval time.Duration) Option {
	return func(cl *Client) {
		cl.maxAttempts = maxAttempts
		cl.pollInterval = interval
	}
}

func New(baseURL string, identity Identity, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	c := &Client{
		baseURL:      base,
		identity:     identity,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		log:          zerolog.Nop(),
		maxAttempts:  DefaultMaxAttempts,
		pollInterval: DefaultPollInterval,
		wait:         sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Submit posts a message. A non-success answer is returned as an error
// carrying the server's message.
func (c *Client) Submit(ctx context.Context, text string) (webchat.SendMessageResponse, error) {
	body := webchat.SendMessageRequest{
		Message:    text,
		UserID:     c.identity.UserID,
		TelegramID: webchat.TelegramID(c.identity.TelegramID),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return webchat.SendMessageResponse{}, fmt.Errorf("marshal message: %w", err)
	}

	var resp webchat.SendMessageResponse
	if err := c.do(ctx, http.MethodPost, "send-message", nil, payload, &resp); err != nil {
		return webchat.SendMessageResponse{}, err
	}
	if !resp.Success {
		return resp, fmt.Errorf("send message: %s", orUnknown(resp.Error))
	}
	return resp, nil
}

// Poll asks once whether queryID has an answer newer than since. A zero since
// asks for the answer regardless of when it was written.
func (c *Client) Poll(ctx context.Context, queryID string, since time.Time) (webchat.PollResponse, error) {
	params := url.Values{}
	params.Set("lastQueryId", queryID)
	if !since.IsZero() {
		params.Set("lastTimestamp", since.UTC().Format(time.RFC3339Nano))
	}

	var resp webchat.PollResponse
	if err := c.do(ctx, http.MethodGet, "poll", params, nil, &resp); err != nil {
		return webchat.PollResponse{}, err
	}
	return resp, nil
}

func (c *Client) History(ctx context.Context) (webchat.HistoryResponse, error) {
	var resp webchat.HistoryResponse
	if err := c.do(ctx, http.MethodGet, "history", nil, nil, &resp); err != nil {
		return webchat.HistoryResponse{}, err
	}
	return resp, nil
}

func (c *Client) anonymous() bool {
	return c.identity.UserID == "" && c.identity.TelegramID == 0 && c.identity.InitData == ""
}

func (c *Client) authenticate(req *http.Request) {
	if c.identity.InitData != "" {
		req.Header.Set("Authorization", "tma "+c.identity.InitData)
		return
	}
	if c.identity.UserID == "" && c.identity.TelegramID == 0 {
		return
	}
	session := webchat.Session{UserID: c.identity.UserID, TelegramID: webchat.TelegramID(c.identity.TelegramID)}
	req.AddCookie(&http.Cookie{Name: webchat.SessionCookie, Value: session.Encode()})
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body []byte, out any) error {
	endpoint, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}
	if len(params) > 0 {
		endpoint.RawQuery = params.Encode()
	}
	fullURL := c.baseURL.ResolveReference(endpoint).String()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authenticate(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	// Error statuses still carry a JSON body with the reason.
	if err := json.Unmarshal(rawBody, out); err != nil {
		if resp.StatusCode >= 300 {
			return fmt.Errorf("chat error: status=%d url=%s body=%s", resp.StatusCode, fullURL, truncateBody(rawBody))
		}
		return fmt.Errorf("decode %s response: %w (body=%s)", path, err, truncateBody(rawBody))
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown error"
	}
	return s
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}

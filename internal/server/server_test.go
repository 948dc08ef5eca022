package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bezpauzy/eva-bot/internal/cache"
	"github.com/bezpauzy/eva-bot/internal/config"
	"github.com/bezpauzy/eva-bot/internal/database/dbtest"
)

type recordingHandler struct {
	mu      sync.Mutex
	updates []tgbotapi.Update
	ctxErr  []error
}

func (h *recordingHandler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updates = append(h.updates, update)
	h.ctxErr = append(h.ctxErr, ctx.Err())
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

func newTestServer(t *testing.T, secret string, dedupe cache.Deduper, db Pinger) (*Server, *recordingHandler) {
	t.Helper()
	h := &recordingHandler{}
	if db == nil {
		db = dbtest.New(t)
	}
	return New(config.HTTPConfig{ListenAddr: ":0"}, secret, h, nil, dedupe, db, zerolog.Nop()), h
}

func post(s *Server, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

const textUpdate = `{"update_id":501,"message":{"message_id":7,"date":0,"from":{"id":42,"is_bot":false,"first_name":"A"},"chat":{"id":42,"type":"private"},"text":"/start"}}`

func TestWebhookDispatchesUpdate(t *testing.T) {
	s, h := newTestServer(t, "", nil, nil)

	rec := post(s, textUpdate, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	require.Len(t, h.updates, 1)
	assert.Equal(t, 501, h.updates[0].UpdateID)
	require.NotNil(t, h.updates[0].Message)
	assert.Equal(t, "/start", h.updates[0].Message.Text)
	assert.EqualValues(t, 42, h.updates[0].Message.Chat.ID)
	assert.NoError(t, h.ctxErr[0])
}

func TestWebhookSecret(t *testing.T) {
	s, h := newTestServer(t, "s3cret", nil, nil)

	rec := post(s, textUpdate, map[string]string{secretHeader: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = post(s, textUpdate, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, h.updates)

	rec = post(s, textUpdate, map[string]string{secretHeader: "s3cret"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, h.updates, 1)
}

func TestWebhookAcknowledgesGarbage(t *testing.T) {
	s, h := newTestServer(t, "", nil, nil)

	rec := post(s, "{not json", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	assert.Empty(t, h.updates)
}

func TestWebhookDeduplicatesRedeliveries(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	s, h := newTestServer(t, "", cache.NewDeduper(client, "tg:update:", time.Hour), nil)

	for i := 0; i < 3; i++ {
		rec := post(s, textUpdate, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Len(t, h.updates, 1)
	assert.True(t, mr.Exists("tg:update:501"))

	// Without redis the update is still processed.
	mr.Close()
	post(s, strings.Replace(textUpdate, "501", "502", 1), nil)
	assert.Len(t, h.updates, 2)
}

func TestWebhookStatus(t *testing.T) {
	s, _ := newTestServer(t, "", nil, nil)
	s.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, WebhookPath, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"active","message":"Telegram webhook endpoint is ready","timestamp":"2026-01-02T03:04:05Z"}`, rec.Body.String())
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, "", nil, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	down, _ := newTestServer(t, "", nil, pingFunc(func(context.Context) error { return errors.New("gone") }))
	rec = httptest.NewRecorder()
	down.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRunStopsOnCancel(t *testing.T) {
	s, _ := newTestServer(t, "", nil, nil)
	s.cfg.ListenAddr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

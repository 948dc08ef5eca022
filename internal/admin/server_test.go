package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bezpauzy/eva-bot/internal/config"
	"github.com/bezpauzy/eva-bot/internal/database/dbtest"
	"github.com/bezpauzy/eva-bot/internal/models"
	"github.com/bezpauzy/eva-bot/internal/repository"
	"github.com/bezpauzy/eva-bot/internal/service"
	"github.com/bezpauzy/eva-bot/internal/telegram"
)

type post struct {
	target string
	text   string
	opts   telegram.SendOptions
}

type recordingSender struct {
	mu     sync.Mutex
	posts  []post
	failTo map[int64]bool
}

func (r *recordingSender) SendMessage(chatID int64, text string, opts telegram.SendOptions) telegram.SendResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts = append(r.posts, post{target: fmt.Sprint(chatID), text: text, opts: opts})
	if r.failTo[chatID] {
		return telegram.SendResult{Error: "Forbidden: bot was blocked by the user"}
	}
	return telegram.SendResult{Success: true, MessageID: len(r.posts)}
}

func (r *recordingSender) SendToChannel(channel, text string, opts telegram.SendOptions) telegram.SendResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts = append(r.posts, post{target: channel, text: text, opts: opts})
	return telegram.SendResult{Success: true, MessageID: 77}
}

func (r *recordingSender) AnswerCallback(string, string) telegram.SendResult {
	return telegram.SendResult{Success: true}
}

func (r *recordingSender) SendTyping(int64) telegram.SendResult {
	return telegram.SendResult{Success: true}
}

type fixture struct {
	handler http.Handler
	sender  *recordingSender
	users   *service.UserService
	videos  *service.VideoService
}

func newFixture(t *testing.T, channel string) fixture {
	t.Helper()
	db := dbtest.New(t)
	userRepo := repository.NewUserRepository(db, nil)
	users := service.NewUserService(userRepo, repository.NewQueryRepository(db, nil), nil)
	videos := service.NewVideoService(repository.NewVideoRepository(db, nil), nil, zerolog.Nop())
	sender := &recordingSender{failTo: map[int64]bool{}}

	srv := NewServer(config.AdminConfig{ListenAddr: ":0", Username: "admin", Password: "secret"}, channel, zerolog.Nop(), users, videos, sender)
	return fixture{handler: srv.Handler(), sender: sender, users: users, videos: videos}
}

func (f fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.SetBasicAuth("admin", "secret")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestBasicAuth(t *testing.T) {
	f := newFixture(t, "")

	for _, creds := range [][2]string{{"", ""}, {"admin", "wrong"}, {"root", "secret"}} {
		req := httptest.NewRequest(http.MethodGet, "/videos", nil)
		if creds[0] != "" {
			req.SetBasicAuth(creds[0], creds[1])
		}
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "eva-admin")
	}

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/videos", nil).Code)
}

func TestBroadcast(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")
	for _, id := range []int64{1, 2, 3} {
		_, err := f.users.GiveConsent(ctx, id)
		require.NoError(t, err)
	}
	f.sender.failTo[2] = true

	rec := f.do(t, http.MethodPost, "/broadcast", map[string]string{"message": "<b>Новое видео</b>", "parse_mode": "HTML"})
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct{ Sent, Total int }
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, 2, got.Sent)
	assert.Equal(t, 3, got.Total)
	require.Len(t, f.sender.posts, 3)
	assert.Equal(t, "HTML", f.sender.posts[0].opts.ParseMode)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/broadcast", map[string]string{}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/broadcast", map[string]string{"message": "x", "parse_mode": "BBCode"}).Code)
}

func TestChannelPost(t *testing.T) {
	f := newFixture(t, "@bezpauzy")

	rec := f.do(t, http.MethodPost, "/channel-posts", map[string]any{
		"text":            "Эфир в четверг",
		"disable_preview": true,
		"buttons": [][]map[string]string{
			{{"text": "Открыть", "url": "https://bez-pauzy.ru/live"}},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"ok":true,"message_id":77}`, rec.Body.String())

	require.Len(t, f.sender.posts, 1)
	p := f.sender.posts[0]
	assert.Equal(t, "@bezpauzy", p.target)
	assert.True(t, p.opts.DisablePreview)
	require.Len(t, p.opts.Buttons, 1)
	assert.Equal(t, "https://bez-pauzy.ru/live", p.opts.Buttons[0][0].URL)

	rec = f.do(t, http.MethodPost, "/channel-posts", map[string]any{
		"text":    "x",
		"buttons": [][]map[string]string{{{"text": "bad", "url": "not a url"}}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChannelPostWithoutChannel(t *testing.T) {
	f := newFixture(t, "")
	rec := f.do(t, http.MethodPost, "/channel-posts", map[string]string{"text": "x"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, f.sender.posts)
}

func TestVideoCRUD(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(t, http.MethodPost, "/videos", map[string]any{
		"slug":             "hot-flashes",
		"title":            "Приливы",
		"doctor_name":      "Анна",
		"duration_seconds": 900,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Video
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, models.ContentDoctorsExplain, created.ContentType)
	assert.Equal(t, models.AccessPaid1, created.AccessLevel)
	assert.False(t, created.Published)

	rec = f.do(t, http.MethodPut, "/videos/"+created.ID, map[string]any{"published": true, "title": "Приливы и сон"})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated models.Video
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&updated))
	assert.Equal(t, "hot-flashes", updated.Slug)
	assert.Equal(t, "Приливы и сон", updated.Title)
	assert.Equal(t, 900, updated.DurationSeconds)
	assert.True(t, updated.Published)
	assert.NotNil(t, updated.PublishedAt)

	rec = f.do(t, http.MethodGet, "/videos/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/videos", nil)
	var list []models.Video
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Len(t, list, 1)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/videos/"+created.ID, map[string]any{"title": " "}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/videos", map[string]any{"slug": "x"}).Code)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/videos/"+created.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/videos/"+created.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/videos/"+created.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPut, "/videos/"+created.ID, map[string]any{"title": "y"}).Code)
}

func TestUpdateSubscription(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")
	user, err := f.users.GiveConsent(ctx, 42)
	require.NoError(t, err)

	rec := f.do(t, http.MethodPut, "/users/"+user.ID+"/subscription", map[string]any{
		"status":        "active",
		"plan":          "monthly",
		"is_subscribed": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := f.users.FindByTelegramID(ctx, 42)
	require.NoError(t, err)
	assert.True(t, got.HasActiveSubscription())
	assert.Equal(t, "monthly", got.SubscriptionPlan)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/users/"+user.ID+"/subscription", map[string]any{"status": "gold", "plan": "x"}).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPut, "/users/missing/subscription", map[string]any{"status": "active", "plan": "x"}).Code)
}

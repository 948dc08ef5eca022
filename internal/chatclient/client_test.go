package chatclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bezpauzy/eva-bot/internal/database/dbtest"
	"github.com/bezpauzy/eva-bot/internal/models"
	"github.com/bezpauzy/eva-bot/internal/repository"
	"github.com/bezpauzy/eva-bot/internal/responder"
	"github.com/bezpauzy/eva-bot/internal/service"
	"github.com/bezpauzy/eva-bot/internal/webchat"
)

// fakeChat is a scripted web chat server.
type fakeChat struct {
	t       *testing.T
	submit  func(req webchat.SendMessageRequest) (int, any)
	poll    func(n int, r *http.Request) (int, any)
	history func(r *http.Request) (int, any)

	polls    atomic.Int32
	mu       sync.Mutex
	requests []*http.Request
}

func (f *fakeChat) server() *httptest.Server {
	r := chi.NewRouter()
	r.Route("/api/chat", func(r chi.Router) {
		r.Post("/send-message", func(w http.ResponseWriter, r *http.Request) {
			f.record(r)
			var req webchat.SendMessageRequest
			require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
			status, body := f.submit(req)
			reply(w, status, body)
		})
		r.Get("/poll", func(w http.ResponseWriter, r *http.Request) {
			f.record(r)
			status, body := f.poll(int(f.polls.Add(1)), r)
			reply(w, status, body)
		})
		r.Get("/history", func(w http.ResponseWriter, r *http.Request) {
			f.record(r)
			status, body := f.history(r)
			reply(w, status, body)
		})
	})
	srv := httptest.NewServer(r)
	f.t.Cleanup(srv.Close)
	return srv
}

func (f *fakeChat) record(r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Clone(context.Background()))
}

func reply(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if s, ok := body.(string); ok {
		_, _ = w.Write([]byte(s))
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

func sessionOf(t *testing.T, r *http.Request) webchat.Session {
	t.Helper()
	c, err := r.Cookie(webchat.SessionCookie)
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(c.Value)
	require.NoError(t, err)
	var s webchat.Session
	require.NoError(t, json.Unmarshal(raw, &s))
	return s
}

func pendingSubmit(webchat.SendMessageRequest) (int, any) {
	return http.StatusOK, webchat.SendMessageResponse{Success: true, MessageID: "q1"}
}

func newConversation(t *testing.T, f *fakeChat, id Identity, attempts int) (*Conversation, *[]time.Duration) {
	t.Helper()
	srv := f.server()
	client, err := New(srv.URL+"/api/chat", id, WithPolling(attempts, 2*time.Second))
	require.NoError(t, err)
	var waits []time.Duration
	client.wait = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	conv := NewConversation(client)
	conv.now = func() time.Time { return time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC) }
	return conv, &waits
}

func TestSendAnsweredInline(t *testing.T) {
	f := &fakeChat{t: t, submit: func(req webchat.SendMessageRequest) (int, any) {
		assert.Equal(t, "привет", req.Message)
		assert.Equal(t, "u1", req.UserID)
		return http.StatusOK, webchat.SendMessageResponse{Success: true, MessageID: "q1", Response: "здравствуйте"}
	}}
	conv, _ := newConversation(t, f, Identity{UserID: "u1"}, DefaultMaxAttempts)

	pending, err := conv.Send(context.Background(), "привет")
	require.NoError(t, err)
	assert.Nil(t, pending)

	msgs := conv.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, SenderUser, msgs[0].Sender)
	assert.Equal(t, Message{ID: "q1", Text: "здравствуйте", Sender: SenderBot, Timestamp: conv.now()}, msgs[1])
}

func TestAwaitReceivesLateAnswer(t *testing.T) {
	updated := time.Date(2026, 5, 1, 10, 0, 5, 0, time.UTC)
	f := &fakeChat{t: t, submit: pendingSubmit, poll: func(n int, r *http.Request) (int, any) {
		assert.Equal(t, "q1", r.URL.Query().Get("lastQueryId"))
		assert.False(t, r.URL.Query().Has("lastTimestamp"))
		assert.False(t, r.URL.Query().Has("telegramId"))
		assert.EqualValues(t, 7, sessionOf(t, r).TelegramID)
		switch n {
		case 1:
			return http.StatusOK, webchat.PollResponse{Success: true, Status: "processing"}
		case 2:
			return http.StatusBadGateway, "<html>bad gateway</html>"
		default:
			return http.StatusOK, webchat.PollResponse{Success: true, HasUpdate: true, Response: "hello", UpdatedAt: &updated}
		}
	}}
	conv, waits := newConversation(t, f, Identity{TelegramID: 7}, DefaultMaxAttempts)

	pending, err := conv.Send(context.Background(), "test")
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, "q1", pending.QueryID)
	require.True(t, conv.Messages()[1].Loading)

	outcome, err := conv.Await(context.Background(), pending)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAnswered, outcome)
	assert.EqualValues(t, 3, f.polls.Load())
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second}, *waits)

	msgs := conv.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, Message{ID: "q1", Text: "hello", Sender: SenderBot, Timestamp: updated}, msgs[1])
}

func TestAwaitTimesOutAfterBudget(t *testing.T) {
	f := &fakeChat{t: t, submit: pendingSubmit, poll: func(int, *http.Request) (int, any) {
		return http.StatusOK, webchat.PollResponse{Success: true, Status: "processing"}
	}}
	conv, waits := newConversation(t, f, Identity{UserID: "u1"}, DefaultMaxAttempts)

	pending, err := conv.Send(context.Background(), "test")
	require.NoError(t, err)
	outcome, err := conv.Await(context.Background(), pending)
	require.NoError(t, err)

	assert.Equal(t, OutcomeTimedOut, outcome)
	assert.EqualValues(t, 30, f.polls.Load())
	assert.Len(t, *waits, 30)
	msgs := conv.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, TextTimeout, msgs[1].Text)
	assert.False(t, msgs[1].Loading)
}

func TestAwaitAlreadyDeliveredLeavesViewUntouched(t *testing.T) {
	f := &fakeChat{t: t, submit: pendingSubmit, poll: func(int, *http.Request) (int, any) {
		return http.StatusOK, webchat.PollResponse{Success: true, Status: "completed"}
	}}
	conv, _ := newConversation(t, f, Identity{UserID: "u1"}, DefaultMaxAttempts)

	pending, err := conv.Send(context.Background(), "test")
	require.NoError(t, err)
	before := conv.Messages()

	outcome, err := conv.Await(context.Background(), pending)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyDelivered, outcome)
	assert.Equal(t, before, conv.Messages())
	assert.EqualValues(t, 1, f.polls.Load())
}

func TestAwaitStopsOnCancel(t *testing.T) {
	f := &fakeChat{t: t, submit: pendingSubmit}
	srv := f.server()
	client, err := New(srv.URL+"/api/chat", Identity{UserID: "u1"})
	require.NoError(t, err)
	conv := NewConversation(client)

	pending, err := conv.Send(context.Background(), "test")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcome, err := conv.Await(ctx, pending)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Zero(t, f.polls.Load())
}

func TestSendFailure(t *testing.T) {
	f := &fakeChat{t: t, submit: func(webchat.SendMessageRequest) (int, any) {
		return http.StatusForbidden, webchat.SendMessageResponse{Error: "Для общения с Евой необходима активная подписка"}
	}}
	conv, _ := newConversation(t, f, Identity{UserID: "u1"}, DefaultMaxAttempts)

	pending, err := conv.Send(context.Background(), "test")
	assert.ErrorContains(t, err, "активная подписка")
	assert.Nil(t, pending)
	msgs := conv.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, TextFailure, msgs[1].Text)
}

func TestInitDataHeader(t *testing.T) {
	f := &fakeChat{t: t, submit: func(webchat.SendMessageRequest) (int, any) {
		return http.StatusOK, webchat.SendMessageResponse{Success: true, MessageID: "q", Response: "ok"}
	}}
	conv, _ := newConversation(t, f, Identity{InitData: "query_id=1&hash=abc"}, 1)

	_, err := conv.Send(context.Background(), "hi")
	require.NoError(t, err)
	require.Len(t, f.requests, 1)
	assert.Equal(t, "tma query_id=1&hash=abc", f.requests[0].Header.Get("Authorization"))
	_, err = f.requests[0].Cookie(webchat.SessionCookie)
	assert.ErrorIs(t, err, http.ErrNoCookie)
}

func TestAwaitKeepsInterleavedExchangesInOrder(t *testing.T) {
	var submits atomic.Int32
	f := &fakeChat{t: t,
		submit: func(webchat.SendMessageRequest) (int, any) {
			id := "q" + strconv.Itoa(int(submits.Add(1)))
			return http.StatusOK, webchat.SendMessageResponse{Success: true, MessageID: id}
		},
		poll: func(_ int, r *http.Request) (int, any) {
			id := r.URL.Query().Get("lastQueryId")
			return http.StatusOK, webchat.PollResponse{Success: true, HasUpdate: true, Response: "answer " + id}
		},
	}
	conv, _ := newConversation(t, f, Identity{UserID: "u1"}, DefaultMaxAttempts)
	ctx := context.Background()

	first, err := conv.Send(ctx, "A")
	require.NoError(t, err)
	second, err := conv.Send(ctx, "B")
	require.NoError(t, err)

	outcome, err := conv.Await(ctx, first)
	require.NoError(t, err)
	require.Equal(t, OutcomeAnswered, outcome)

	texts := func() []string {
		var out []string
		for _, m := range conv.Messages() {
			if m.Loading {
				out = append(out, "…")
				continue
			}
			out = append(out, m.Text)
		}
		return out
	}
	assert.Equal(t, []string{"A", "answer q1", "B", "…"}, texts())

	_, err = conv.Await(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "answer q1", "B", "answer q2"}, texts())
}

func TestAwaitIgnoresClientClockSkew(t *testing.T) {
	ctx := context.Background()
	db := dbtest.New(t)
	queryRepo := repository.NewQueryRepository(db, nil)
	users := service.NewUserService(repository.NewUserRepository(db, nil), queryRepo, nil)

	release := make(chan struct{})
	chat := service.NewChatService(queryRepo, responder.Func(func(context.Context, responder.Request) (string, error) {
		<-release
		return "hello", nil
	}), service.ChatOptions{InlineWait: 10 * time.Millisecond, MaxInFlight: 1}, zerolog.Nop())
	t.Cleanup(chat.Wait)
	var releaseOnce sync.Once
	unblock := func() { releaseOnce.Do(func() { close(release) }) }
	t.Cleanup(unblock)

	user, err := users.GiveConsent(ctx, 99)
	require.NoError(t, err)
	require.NoError(t, users.UpdateSubscription(ctx, user.ID, models.SubscriptionActive, "monthly", true))

	r := chi.NewRouter()
	r.Route("/api/chat", webchat.NewHandler(users, chat, nil, webchat.Options{}, zerolog.Nop()).Routes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	client, err := New(srv.URL+"/api/chat", Identity{TelegramID: 99}, WithPolling(3, time.Second))
	require.NoError(t, err)
	client.wait = func(context.Context, time.Duration) error {
		unblock()
		chat.Wait()
		return nil
	}
	conv := NewConversation(client)
	conv.now = func() time.Time { return time.Now().Add(5 * time.Second) }

	pending, err := conv.Send(ctx, "test")
	require.NoError(t, err)
	require.NotNil(t, pending)

	outcome, err := conv.Await(ctx, pending)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAnswered, outcome)
	msgs := conv.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[1].Text)
	assert.False(t, msgs[1].Loading)
}

func TestLoadHistory(t *testing.T) {
	created := time.Date(2026, 4, 30, 9, 0, 0, 0, time.UTC)
	f := &fakeChat{t: t, history: func(r *http.Request) (int, any) {
		assert.Empty(t, r.URL.RawQuery)
		assert.Equal(t, "u1", sessionOf(t, r).UserID)
		return http.StatusOK, webchat.HistoryResponse{Success: true, Messages: []webchat.HistoryMessage{
			{ID: "a-query", QueryText: "вопрос", CreatedAt: created, Type: "user"},
			{ID: "a-response", ResponseText: "ответ", CreatedAt: created.Add(time.Minute), Type: "bot"},
			{ID: "b-query", QueryText: "без типа", CreatedAt: created.Add(2 * time.Minute)},
		}}
	}}
	conv, _ := newConversation(t, f, Identity{UserID: "u1"}, 1)

	conv.Load(context.Background(), WelcomeContext{})
	assert.Equal(t, []Message{
		{ID: "a-query", Text: "вопрос", Sender: SenderUser, Timestamp: created},
		{ID: "a-response", Text: "ответ", Sender: SenderBot, Timestamp: created.Add(time.Minute)},
		{ID: "b-query", Text: "без типа", Sender: SenderUser, Timestamp: created.Add(2 * time.Minute)},
	}, conv.Messages())
}

func TestLoadHistoryWelcomeVariants(t *testing.T) {
	quiz := WelcomeContext{Quiz: &QuizContext{Type: QuizInflammation, Level: "средний"}}

	t.Run("anonymous", func(t *testing.T) {
		f := &fakeChat{t: t}
		conv, _ := newConversation(t, f, Identity{}, 1)
		conv.Load(context.Background(), quiz)
		msgs := conv.Messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, WelcomeText(quiz, false), msgs[0].Text)
		assert.Empty(t, f.requests)
	})

	t.Run("empty history", func(t *testing.T) {
		f := &fakeChat{t: t, history: func(*http.Request) (int, any) {
			return http.StatusOK, webchat.HistoryResponse{Success: true, Messages: []webchat.HistoryMessage{}}
		}}
		conv, _ := newConversation(t, f, Identity{UserID: "u1"}, 1)
		conv.Load(context.Background(), WelcomeContext{ArticleSlug: "sleep"})
		assert.Equal(t, WelcomeText(WelcomeContext{ArticleSlug: "sleep"}, false), conv.Messages()[0].Text)
	})

	t.Run("history error", func(t *testing.T) {
		f := &fakeChat{t: t, history: func(*http.Request) (int, any) {
			return http.StatusInternalServerError, "oops"
		}}
		conv, _ := newConversation(t, f, Identity{UserID: "u1"}, 1)
		conv.Load(context.Background(), quiz)
		assert.Equal(t, WelcomeText(quiz, true), conv.Messages()[0].Text)
	})
}

func TestWelcomeText(t *testing.T) {
	tests := []struct {
		name  string
		wc    WelcomeContext
		short bool
		want  string
	}{
		{"default", WelcomeContext{}, false, textWelcomeDefault},
		{"default short", WelcomeContext{}, true, textWelcomeDefault},
		{
			"inflammation", WelcomeContext{Quiz: &QuizContext{Type: QuizInflammation, Level: "высокий"}}, false,
			`Привет! Я вижу, что вы только что прошли квиз "Индекс воспаления". Ваш результат: высокий. Чем могу помочь? ` +
				"Могу ответить на вопросы о результатах, дать рекомендации или объяснить, что означают ваши баллы.",
		},
		{
			"mrs short", WelcomeContext{Quiz: &QuizContext{Type: QuizMRS}}, true,
			`Привет! Я вижу, что вы только что прошли квиз "Шкала MRS".  Чем могу помочь?`,
		},
		{
			"article", WelcomeContext{ArticleSlug: "hot-flashes"}, false,
			"Привет! Я вижу, что вы читали статью. Есть вопросы по этой теме? Я могу помочь разобраться и дать персональные рекомендации.",
		},
		{
			"quiz wins over article", WelcomeContext{Quiz: &QuizContext{Type: QuizMRS}, ArticleSlug: "x"}, true,
			`Привет! Я вижу, что вы только что прошли квиз "Шкала MRS".  Чем могу помочь?`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WelcomeText(tt.wc, tt.short))
		})
	}
}

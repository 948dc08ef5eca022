package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bezpauzy/eva-bot/internal/database/dbtest"
	"github.com/bezpauzy/eva-bot/internal/models"
	"github.com/bezpauzy/eva-bot/internal/repository"
	"github.com/bezpauzy/eva-bot/internal/responder"
)

type env struct {
	users   *UserService
	chat    *ChatService
	videos  *VideoService
	queries *repository.QueryRepository
	calls   *atomic.Int32
}

func newEnv(t *testing.T, resp responder.Func, opts ChatOptions) env {
	t.Helper()
	db := dbtest.New(t)
	clock := repository.SystemClock
	userRepo := repository.NewUserRepository(db, clock)
	queryRepo := repository.NewQueryRepository(db, clock)
	videoRepo := repository.NewVideoRepository(db, clock)

	calls := &atomic.Int32{}
	counted := responder.Func(func(ctx context.Context, req responder.Request) (string, error) {
		calls.Add(1)
		return resp(ctx, req)
	})
	chat := NewChatService(queryRepo, counted, opts, zerolog.Nop())
	t.Cleanup(chat.Wait)

	return env{
		users:   NewUserService(userRepo, queryRepo, clock),
		chat:    chat,
		videos:  NewVideoService(videoRepo, clock, zerolog.Nop()),
		queries: queryRepo,
		calls:   calls,
	}
}

func echo(_ context.Context, req responder.Request) (string, error) {
	return "answer: " + req.Message, nil
}

func (e env) subscriber(t *testing.T, telegramID int64) *models.User {
	t.Helper()
	ctx := context.Background()
	user, err := e.users.GiveConsent(ctx, telegramID)
	require.NoError(t, err)
	require.NoError(t, e.users.UpdateSubscription(ctx, user.ID, models.SubscriptionActive, "monthly", true))
	user, err = e.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	return user
}

func TestGiveConsentCreatesThenUpdates(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, echo, ChatOptions{})

	first, err := e.users.GiveConsent(ctx, 100)
	require.NoError(t, err)
	require.True(t, first.HasConsent())

	second, err := e.users.GiveConsent(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	_, err = e.users.SetAgeRange(ctx, 100, models.Age50Plus)
	require.NoError(t, err)
	stored, err := e.users.FindByTelegramID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, models.Age50Plus, *stored.AgeRange)

	_, err = e.users.SetAgeRange(ctx, 999, models.Age50Plus)
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.ErrorIs(t, e.users.CancelSubscription(ctx, 999), ErrUserNotFound)
}

func TestDeleteAllDataLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, echo, ChatOptions{})
	user := e.subscriber(t, 5)

	for _, text := range []string{"a", "b", "c"} {
		q, err := e.chat.Begin(ctx, user, text, models.SourceTelegram, nil)
		require.NoError(t, err)
		_, err = e.chat.Resolve(ctx, user, q)
		require.NoError(t, err)
	}

	n, err := e.users.DeleteAllData(ctx, 5)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	_, _, err = e.users.Export(ctx, 5)
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = e.users.History(ctx, 5, 10)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestBeginGates(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, echo, ChatOptions{})

	noConsent := &models.User{ID: "u0", SubscriptionStatus: models.SubscriptionActive}
	consented, err := e.users.GiveConsent(ctx, 1)
	require.NoError(t, err)

	tests := []struct {
		name string
		user *models.User
		text string
		want error
	}{
		{"empty", consented, "   ", ErrEmptyMessage},
		{"no user", nil, "hi", ErrUserNotFound},
		{"no consent", noConsent, "hi", ErrConsentRequired},
		{"inactive", consented, "hi", ErrSubscriptionRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.chat.Begin(ctx, tt.user, tt.text, models.SourceTelegram, nil)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Zero(t, e.calls.Load())
}

func TestResolvePassesHistoryAndCity(t *testing.T) {
	ctx := context.Background()
	var seen responder.Request
	e := newEnv(t, func(_ context.Context, req responder.Request) (string, error) {
		seen = req
		return "ok " + req.Message, nil
	}, ChatOptions{})
	user := e.subscriber(t, 1)
	city := "Самара"
	user.City = &city

	for _, text := range []string{"first", "second"} {
		q, err := e.chat.Begin(ctx, user, text, models.SourceTelegram, nil)
		require.NoError(t, err)
		_, err = e.chat.Resolve(ctx, user, q)
		require.NoError(t, err)
	}

	assert.Equal(t, "second", seen.Message)
	assert.Equal(t, "Самара", seen.City)
	require.Len(t, seen.History, 1)
	assert.Equal(t, responder.Turn{Question: "first", Answer: "ok first"}, seen.History[0])
}

func TestResolveFailureMarksQueryFailed(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, func(context.Context, responder.Request) (string, error) {
		return "", errors.New("boom")
	}, ChatOptions{})
	user := e.subscriber(t, 1)

	q, err := e.chat.Begin(ctx, user, "hi", models.SourceTelegram, nil)
	require.NoError(t, err)
	_, err = e.chat.Resolve(ctx, user, q)
	assert.ErrorIs(t, err, ErrGenerationFailed)

	stored, err := e.queries.FindByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueryFailed, stored.Status)
	assert.Equal(t, FailureResponse, stored.ResponseText)
}

func TestResolveBoundsGenerationWithoutDeadline(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, func(ctx context.Context, _ responder.Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}, ChatOptions{GenerateTimeout: 100 * time.Millisecond})
	user := e.subscriber(t, 1)

	q, err := e.chat.Begin(ctx, user, "hi", models.SourceTelegram, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		// The webhook dispatch context never expires on its own.
		_, err := e.chat.Resolve(context.WithoutCancel(ctx), user, q)
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrGenerationFailed)
		assert.ErrorContains(t, err, context.DeadlineExceeded.Error())
	case <-time.After(5 * time.Second):
		t.Fatal("Resolve did not honour the generate timeout")
	}

	stored, err := e.queries.FindByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueryFailed, stored.Status)
}

func TestResolveAfterSweepKeepsFirstOutcome(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, echo, ChatOptions{})
	user := e.subscriber(t, 1)

	q, err := e.chat.Begin(ctx, user, "slow", models.SourceWeb, nil)
	require.NoError(t, err)

	n, err := e.chat.FailStale(ctx, time.Now().Add(time.Hour), time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = e.chat.Resolve(ctx, user, q)
	assert.ErrorIs(t, err, ErrQueryResolved)
	assert.Equal(t, models.QueryFailed, q.Status)
	assert.Equal(t, FailureResponse, q.ResponseText)

	stored, err := e.queries.FindByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueryFailed, stored.Status)
	assert.Equal(t, FailureResponse, stored.ResponseText)
}

func TestSubmitWebAnswersInline(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, echo, ChatOptions{InlineWait: 2 * time.Second, MaxInFlight: 2})
	user := e.subscriber(t, 1)

	res, err := e.chat.SubmitWeb(ctx, user, "  test  ")
	require.NoError(t, err)
	assert.True(t, res.Answered)
	assert.Equal(t, "answer: test", res.Response)
	assert.NotEmpty(t, res.QueryID)
}

func TestSubmitWebThenPoll(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	e := newEnv(t, func(context.Context, responder.Request) (string, error) {
		<-release
		return "hello", nil
	}, ChatOptions{InlineWait: 20 * time.Millisecond, MaxInFlight: 1})
	user := e.subscriber(t, 1)

	res, err := e.chat.SubmitWeb(ctx, user, "test")
	require.NoError(t, err)
	assert.False(t, res.Answered)

	poll, err := e.chat.Poll(ctx, user, res.QueryID, nil)
	require.NoError(t, err)
	assert.False(t, poll.HasUpdate)
	assert.Equal(t, models.QueryProcessing, poll.Status)

	close(release)
	e.chat.Wait()

	poll, err = e.chat.Poll(ctx, user, res.QueryID, nil)
	require.NoError(t, err)
	assert.True(t, poll.HasUpdate)
	assert.Equal(t, "hello", poll.Response)

	later := poll.UpdatedAt.Add(time.Second)
	poll, err = e.chat.Poll(ctx, user, res.QueryID, &later)
	require.NoError(t, err)
	assert.False(t, poll.HasUpdate)
	assert.Equal(t, models.QueryCompleted, poll.Status)

	stranger := e.subscriber(t, 2)
	poll, err = e.chat.Poll(ctx, stranger, res.QueryID, nil)
	require.NoError(t, err)
	assert.Equal(t, PollResult{}, poll)
}

func TestVideoCatalogGate(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, echo, ChatOptions{})

	free := &models.User{IsSubscribed: true, SubscriptionPlan: models.PlanFree}
	_, err := e.videos.Catalog(ctx, free)
	assert.ErrorIs(t, err, ErrSubscriptionRequired)
	_, err = e.videos.Watch(ctx, free, "x")
	assert.ErrorIs(t, err, ErrSubscriptionRequired)

	paid := &models.User{IsSubscribed: true, SubscriptionPlan: "monthly"}
	video, err := e.videos.Create(ctx, VideoInput{Slug: "hrt", Title: "HRT", DurationSeconds: 300, Published: true})
	require.NoError(t, err)
	require.NotNil(t, video.PublishedAt)

	items, err := e.videos.Catalog(ctx, paid)
	require.NoError(t, err)
	require.Len(t, items, 1)

	watched, err := e.videos.Watch(ctx, paid, video.ID)
	require.NoError(t, err)
	assert.Equal(t, "HRT", watched.Title)
	stored, err := e.videos.Get(ctx, video.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Views)

	_, err = e.videos.Watch(ctx, paid, "missing")
	assert.ErrorIs(t, err, ErrVideoNotFound)
}

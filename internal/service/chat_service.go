package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/bezpauzy/eva-bot/internal/models"
	"github.com/bezpauzy/eva-bot/internal/repository"
	"github.com/bezpauzy/eva-bot/internal/responder"
)

// FailureResponse is stored as the answer of a query that could not be answered.
const FailureResponse = "Произошла ошибка при обработке запроса."

// HistoryTurns is how many completed exchanges the responder sees.
const HistoryTurns = 10

type ChatOptions struct {
	// InlineWait is how long a web submit waits for an immediate answer.
	InlineWait      time.Duration
	MaxInFlight     int64
	GenerateTimeout time.Duration
}

// ChatService owns the query lifecycle shared by the Telegram and web channels.
type ChatService struct {
	queries   *repository.QueryRepository
	responder responder.Responder
	log       zerolog.Logger
	opts      ChatOptions
	sem       *semaphore.Weighted
	wg        sync.WaitGroup
}

func NewChatService(queries *repository.QueryRepository, resp responder.Responder, opts ChatOptions, log zerolog.Logger) *ChatService {
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 1
	}
	if opts.GenerateTimeout <= 0 {
		opts.GenerateTimeout = 90 * time.Second
	}
	return &ChatService{
		queries:   queries,
		responder: resp,
		log:       log.With().Str("component", "chat").Logger(),
		opts:      opts,
		sem:       semaphore.NewWeighted(opts.MaxInFlight),
	}
}

// Begin checks the gates for user and stores text as a processing query.
func (s *ChatService) Begin(ctx context.Context, user *models.User, text string, source models.Source, channelMessageID *int64) (*models.Query, error) {
	text = strings.TrimSpace(text)
	switch {
	case text == "":
		return nil, ErrEmptyMessage
	case user == nil:
		return nil, ErrUserNotFound
	case !user.HasConsent():
		return nil, ErrConsentRequired
	case !user.HasActiveSubscription():
		return nil, ErrSubscriptionRequired
	}

	q := &models.Query{
		UserID:            user.ID,
		QueryText:         text,
		Source:            source,
		TelegramMessageID: channelMessageID,
	}
	if err := s.queries.Create(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

// Resolve asks the responder for an answer to q and records the outcome.
// Generation is bounded by the generate timeout whatever ctx carries.
// Generator failures mark the query failed and return ErrGenerationFailed.
func (s *ChatService) Resolve(ctx context.Context, user *models.User, q *models.Query) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.GenerateTimeout)
	defer cancel()

	req := responder.Request{
		UserID:  user.ID,
		QueryID: q.ID,
		Message: q.QueryText,
		Source:  q.Source,
	}
	if user.City != nil {
		req.City = *user.City
	}
	history, err := s.queries.RecentCompleted(ctx, user.ID, HistoryTurns)
	if err != nil {
		s.log.Warn().Err(err).Str("query_id", q.ID).Msg("load conversation history")
	}
	for _, h := range history {
		req.History = append(req.History, responder.Turn{Question: h.QueryText, Answer: h.ResponseText})
	}

	answer, genErr := s.responder.Respond(ctx, req)
	if genErr != nil {
		s.log.Error().Err(genErr).Str("query_id", q.ID).Str("source", string(q.Source)).Msg("generate response")
		if _, err := s.finish(ctx, q, models.QueryFailed, FailureResponse); err != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, genErr)
	}

	ok, err := s.finish(ctx, q, models.QueryCompleted, answer)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrQueryResolved
	}
	return answer, nil
}

func (s *ChatService) finish(ctx context.Context, q *models.Query, status models.QueryStatus, response string) (bool, error) {
	// The generation may have used up ctx; the write must still land.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	ok, err := s.queries.Resolve(wctx, q.ID, status, response)
	if err != nil {
		return false, err
	}
	if ok {
		q.Status = status
		q.ResponseText = response
		return true, nil
	}

	s.log.Warn().Str("query_id", q.ID).Str("status", string(status)).Msg("query was already resolved")
	stored, err := s.queries.FindByID(wctx, q.ID)
	if err != nil {
		return false, err
	}
	if stored != nil {
		q.Status = stored.Status
		q.ResponseText = stored.ResponseText
		q.UpdatedAt = stored.UpdatedAt
	}
	return false, nil
}

type SubmitResult struct {
	QueryID string
	// Response is set when the answer was ready within the inline wait.
	Response string
	Answered bool
}

type resolution struct {
	answer string
	err    error
}

// SubmitWeb stores a web message and resolves it in the background. It waits
// up to the inline wait for the answer; otherwise the caller polls.
func (s *ChatService) SubmitWeb(ctx context.Context, user *models.User, text string) (SubmitResult, error) {
	q, err := s.Begin(ctx, user, text, models.SourceWeb, nil)
	if err != nil {
		return SubmitResult{}, err
	}

	done := make(chan resolution, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		bg := context.WithoutCancel(ctx)
		if err := s.sem.Acquire(bg, 1); err != nil {
			done <- resolution{err: err}
			return
		}
		defer s.sem.Release(1)

		answer, err := s.Resolve(bg, user, q)
		done <- resolution{answer: answer, err: err}
	}()

	result := SubmitResult{QueryID: q.ID}
	if s.opts.InlineWait <= 0 {
		return result, nil
	}
	timer := time.NewTimer(s.opts.InlineWait)
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err == nil {
			result.Response = r.answer
			result.Answered = true
		}
	case <-timer.C:
	case <-ctx.Done():
	}
	return result, nil
}

// Wait blocks until background generations have finished.
func (s *ChatService) Wait() {
	s.wg.Wait()
}

type PollResult struct {
	HasUpdate bool
	Response  string
	Status    models.QueryStatus
	UpdatedAt *time.Time
}

// Poll reports whether the query queryID of user has a new answer since the
// given time. Unknown and foreign queries produce an empty result.
func (s *ChatService) Poll(ctx context.Context, user *models.User, queryID string, since *time.Time) (PollResult, error) {
	q, err := s.queries.FindForUser(ctx, queryID, user.ID)
	if err != nil {
		return PollResult{}, err
	}
	if q == nil {
		return PollResult{}, nil
	}

	result := PollResult{Status: q.Status, UpdatedAt: &q.UpdatedAt}
	switch q.Status {
	case models.QueryCompleted:
		fresh := since == nil || q.UpdatedAt.After(*since)
		if q.ResponseText != "" && q.ResponseText != models.ResponsePlaceholder && fresh {
			result.HasUpdate = true
			result.Response = q.ResponseText
		}
	case models.QueryFailed:
		result.HasUpdate = true
		result.Response = q.ResponseText
	}
	return result, nil
}

// History returns up to limit of the user's queries oldest first.
func (s *ChatService) History(ctx context.Context, user *models.User, limit int) ([]models.Query, error) {
	if user == nil {
		return nil, nil
	}
	return s.queries.ListOldest(ctx, user.ID, limit)
}

// FailStale fails queries left processing for longer than olderThan.
func (s *ChatService) FailStale(ctx context.Context, now time.Time, olderThan time.Duration) (int64, error) {
	n, err := s.queries.FailStale(ctx, now.Add(-olderThan), FailureResponse)
	if err != nil {
		return 0, err
	}
	return n, nil
}

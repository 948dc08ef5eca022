// Package webchat serves the website chat: a submit endpoint that answers
// inline when it can, a poll endpoint for late answers and the history.
package webchat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/bezpauzy/eva-bot/internal/cache"
	"github.com/bezpauzy/eva-bot/internal/models"
	"github.com/bezpauzy/eva-bot/internal/service"
)

// HistoryLimit caps the queries returned by the history endpoint.
const HistoryLimit = 50

const (
	errTextInvalidBody  = "Некорректный запрос"
	errTextEmptyMessage = "Сообщение не может быть пустым"
	errTextTooLong      = "Сообщение слишком длинное (максимум 4000 символов)"
	errTextUnauthorized = "Не удалось определить пользователя"
	errTextUserNotFound = "Пользователь не найден"
	errTextConsent      = "Необходимо согласие на обработку персональных данных"
	errTextSubscription = "Для общения с Евой необходима активная подписка"
	errTextRateLimited  = "Слишком много сообщений. Попробуйте через минуту"
	errTextInternal     = "Произошла ошибка. Попробуйте позже"
	errTextMissingQuery = "Не указан lastQueryId"
	errTextBadTimestamp = "Некорректный lastTimestamp"
)

type Options struct {
	// BotToken validates Mini App init data; without it "tma" auth is rejected.
	BotToken    string
	InitDataTTL time.Duration
}

type Handler struct {
	users    *service.UserService
	chat     *service.ChatService
	limiter  cache.RateLimiter
	opts     Options
	validate *validator.Validate
	log      zerolog.Logger
}

func NewHandler(users *service.UserService, chat *service.ChatService, limiter cache.RateLimiter, opts Options, log zerolog.Logger) *Handler {
	if limiter == nil {
		limiter = cache.Noop
	}
	return &Handler{
		users:    users,
		chat:     chat,
		limiter:  limiter,
		opts:     opts,
		validate: validator.New(),
		log:      log.With().Str("component", "webchat").Logger(),
	}
}

// Routes mounts the chat endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/send-message", h.handleSendMessage)
	r.Get("/poll", h.handlePoll)
	r.Get("/history", h.handleHistory)
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, SendMessageResponse{Error: errTextInvalidBody})
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, SendMessageResponse{Error: messageError(err)})
		return
	}

	user, status, errText := h.resolveUser(r, identity{userID: req.UserID, telegramID: int64(req.TelegramID)})
	if user == nil {
		writeJSON(w, status, SendMessageResponse{Error: errText})
		return
	}

	allowed, err := h.limiter.Allow(r.Context(), user.ID)
	if err != nil {
		h.log.Warn().Err(err).Str("user_id", user.ID).Msg("rate limiter unavailable")
	} else if !allowed {
		writeJSON(w, http.StatusTooManyRequests, SendMessageResponse{Error: errTextRateLimited})
		return
	}

	result, err := h.chat.SubmitWeb(r.Context(), user, req.Message)
	switch {
	case errors.Is(err, service.ErrEmptyMessage):
		writeJSON(w, http.StatusBadRequest, SendMessageResponse{Error: errTextEmptyMessage})
		return
	case errors.Is(err, service.ErrConsentRequired):
		writeJSON(w, http.StatusForbidden, SendMessageResponse{Error: errTextConsent})
		return
	case errors.Is(err, service.ErrSubscriptionRequired):
		writeJSON(w, http.StatusForbidden, SendMessageResponse{Error: errTextSubscription})
		return
	case err != nil:
		h.internalError(w, err, SendMessageResponse{Error: errTextInternal})
		return
	}

	resp := SendMessageResponse{Success: true, MessageID: result.QueryID}
	if result.Answered {
		resp.Response = result.Response
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handlePoll(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	queryID := strings.TrimSpace(q.Get("lastQueryId"))
	if queryID == "" {
		writeJSON(w, http.StatusBadRequest, PollResponse{Error: errTextMissingQuery})
		return
	}
	since, err := parseTimestamp(q.Get("lastTimestamp"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, PollResponse{Error: errTextBadTimestamp})
		return
	}

	// Ids in the query string are public (deep links carry them), so reads
	// only trust init data and the session cookie.
	user, status, errText := h.resolveUser(r, identity{})
	if user == nil {
		writeJSON(w, status, PollResponse{Error: errText})
		return
	}

	result, err := h.chat.Poll(r.Context(), user, queryID, since)
	if err != nil {
		h.internalError(w, err, PollResponse{Error: errTextInternal})
		return
	}

	resp := PollResponse{Success: true, HasUpdate: result.HasUpdate}
	switch {
	case result.HasUpdate:
		resp.Response = result.Response
		resp.Status = string(result.Status)
		resp.UpdatedAt = result.UpdatedAt
	case result.Status == models.QueryCompleted:
		// Already delivered by another path; the client must leave its view alone.
		resp.Status = string(models.QueryCompleted)
	case result.Status != "":
		resp.Status = string(result.Status)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	empty := HistoryResponse{Success: true, Messages: []HistoryMessage{}}

	id, err := identify(r, identity{}, h.opts.BotToken, h.opts.InitDataTTL)
	if err != nil {
		writeJSON(w, http.StatusOK, empty)
		return
	}
	user, err := h.lookup(r.Context(), id)
	if err != nil {
		h.internalError(w, err, HistoryResponse{Error: errTextInternal})
		return
	}
	if user == nil {
		writeJSON(w, http.StatusOK, empty)
		return
	}

	queries, err := h.chat.History(r.Context(), user, HistoryLimit)
	if err != nil {
		h.internalError(w, err, HistoryResponse{Error: errTextInternal})
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Success: true, Messages: historyMessages(queries)})
}

// messageError picks the user-facing text for a rejected send request.
func messageError(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Field() == "Message" && fe.Tag() == "max" {
				return errTextTooLong
			}
		}
	}
	return errTextEmptyMessage
}

// historyMessages flattens queries into chat bubbles, oldest first.
func historyMessages(queries []models.Query) []HistoryMessage {
	out := make([]HistoryMessage, 0, 2*len(queries))
	for _, q := range queries {
		out = append(out, HistoryMessage{
			ID:        q.ID + "-query",
			QueryText: q.QueryText,
			CreatedAt: q.CreatedAt,
			Type:      MessageTypeUser,
			Source:    string(q.Source),
		})
		if q.Status == models.QueryCompleted {
			out = append(out, HistoryMessage{
				ID:           q.ID + "-response",
				ResponseText: q.ResponseText,
				CreatedAt:    q.UpdatedAt,
				Type:         MessageTypeBot,
				Source:       string(q.Source),
			})
		}
	}
	return out
}

// resolveUser returns the caller or the status and message to fail with.
func (h *Handler) resolveUser(r *http.Request, explicit identity) (*models.User, int, string) {
	id, err := identify(r, explicit, h.opts.BotToken, h.opts.InitDataTTL)
	if err != nil {
		return nil, http.StatusUnauthorized, errTextUnauthorized
	}
	user, err := h.lookup(r.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Msg("resolve web chat user")
		return nil, http.StatusInternalServerError, errTextInternal
	}
	if user == nil {
		return nil, http.StatusNotFound, errTextUserNotFound
	}
	return user, http.StatusOK, ""
}

func (h *Handler) lookup(ctx context.Context, id identity) (*models.User, error) {
	if id.userID != "" {
		user, err := h.users.FindByID(ctx, id.userID)
		if err != nil || user != nil {
			return user, err
		}
	}
	if id.telegramID != 0 {
		return h.users.FindByTelegramID(ctx, id.telegramID)
	}
	return nil, nil
}

func (h *Handler) internalError(w http.ResponseWriter, err error, body any) {
	h.log.Error().Err(err).Msg("web chat handler error")
	writeJSON(w, http.StatusInternalServerError, body)
}

// parseTimestamp accepts RFC 3339 or Unix milliseconds; empty means no lower bound.
func parseTimestamp(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		t := time.UnixMilli(ms).UTC()
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package admin

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/bezpauzy/eva-bot/internal/config"
	"github.com/bezpauzy/eva-bot/internal/service"
	"github.com/bezpauzy/eva-bot/internal/telegram"
)

type Server struct {
	cfg      config.AdminConfig
	channel  string
	log      zerolog.Logger
	users    *service.UserService
	videos   *service.VideoService
	sender   telegram.Sender
	validate *validator.Validate
	router   *chi.Mux
}

func NewServer(cfg config.AdminConfig, channel string, log zerolog.Logger, users *service.UserService, videos *service.VideoService, sender telegram.Sender) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		cfg:      cfg,
		channel:  channel,
		log:      log.With().Str("component", "admin").Logger(),
		users:    users,
		videos:   videos,
		sender:   sender,
		validate: validator.New(),
		router:   r,
	}
	r.Group(func(protected chi.Router) {
		protected.Use(s.basicAuthMiddleware())
		protected.Post("/broadcast", s.handleBroadcast)
		protected.Post("/channel-posts", s.handleChannelPost)
		protected.Route("/videos", func(r chi.Router) {
			r.Get("/", s.handleListVideos)
			r.Post("/", s.handleCreateVideo)
			r.Get("/{id}", s.handleGetVideo)
			r.Put("/{id}", s.handleUpdateVideo)
			r.Delete("/{id}", s.handleDeleteVideo)
		})
		protected.Put("/users/{id}/subscription", s.handleUpdateSubscription)
	})
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error().Err(err).Msg("admin shutdown error")
		}
	}()

	s.log.Info().Str("addr", s.cfg.ListenAddr).Msg("admin api listening")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin listen: %w", err)
	}
	return nil
}

type broadcastRequest struct {
	Message   string `json:"message" validate:"required"`
	ParseMode string `json:"parse_mode" validate:"omitempty,oneof=HTML Markdown MarkdownV2"`
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if !s.decode(w, r, &req) {
		return
	}

	ids, err := s.users.ListTelegramIDs(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}

	count := 0
	for _, id := range ids {
		res := s.sender.SendMessage(id, req.Message, telegram.SendOptions{ParseMode: req.ParseMode})
		if !res.Success {
			s.log.Error().Int64("telegram_id", id).Str("error", res.Error).Msg("send broadcast")
			continue
		}
		count++
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"sent":  count,
		"total": len(ids),
	})
}

type buttonRequest struct {
	Text         string `json:"text" validate:"required"`
	URL          string `json:"url" validate:"omitempty,url"`
	CallbackData string `json:"callback_data" validate:"max=64"`
}

type channelPostRequest struct {
	Text           string            `json:"text" validate:"required"`
	ParseMode      string            `json:"parse_mode" validate:"omitempty,oneof=HTML Markdown MarkdownV2"`
	DisablePreview bool              `json:"disable_preview"`
	Silent         bool              `json:"silent"`
	Buttons        [][]buttonRequest `json:"buttons" validate:"dive,dive"`
}

func (s *Server) handleChannelPost(w http.ResponseWriter, r *http.Request) {
	if s.channel == "" {
		http.Error(w, "TELEGRAM_CHANNEL is not configured", http.StatusConflict)
		return
	}
	var req channelPostRequest
	if !s.decode(w, r, &req) {
		return
	}

	kb := make(telegram.Keyboard, 0, len(req.Buttons))
	for _, row := range req.Buttons {
		buttons := make([]telegram.Button, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, telegram.Button{Text: b.Text, URL: b.URL, CallbackData: b.CallbackData})
		}
		kb = append(kb, buttons)
	}

	res := s.sender.SendToChannel(s.channel, req.Text, telegram.SendOptions{
		ParseMode:           req.ParseMode,
		DisablePreview:      req.DisablePreview,
		DisableNotification: req.Silent,
		Buttons:             kb,
	})
	if !res.Success {
		s.log.Error().Str("channel", s.channel).Str("error", res.Error).Msg("channel post failed")
		s.writeJSON(w, http.StatusBadGateway, map[string]any{"ok": false, "error": res.Error})
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "message_id": res.MessageID})
}

func (s *Server) handleListVideos(w http.ResponseWriter, r *http.Request) {
	videos, err := s.videos.List(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, videos)
}

func (s *Server) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	video, err := s.videos.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, service.ErrVideoNotFound) {
		http.Error(w, "video not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, video)
}

func (s *Server) handleCreateVideo(w http.ResponseWriter, r *http.Request) {
	var req videoRequest
	if !s.decode(w, r, &req) {
		return
	}
	video, err := s.videos.Create(r.Context(), req.input())
	if err != nil {
		s.badRequest(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, video)
}

func (s *Server) handleUpdateVideo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req videoUpdateRequest
	if !s.decode(w, r, &req) {
		return
	}
	existing, err := s.videos.Get(r.Context(), id)
	if errors.Is(err, service.ErrVideoNotFound) {
		http.Error(w, "video not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}

	in := service.VideoInput{
		Slug:              pick(req.Slug, existing.Slug),
		Title:             pick(req.Title, existing.Title),
		Description:       pick(req.Description, existing.Description),
		DoctorName:        pick(req.DoctorName, existing.DoctorName),
		DoctorSpecialty:   pick(req.DoctorSpecialty, existing.DoctorSpecialty),
		DoctorCredentials: existing.DoctorCredentials,
		DurationSeconds:   pick(req.DurationSeconds, existing.DurationSeconds),
		ContentType:       pick(req.ContentType, existing.ContentType),
		AccessLevel:       pick(req.AccessLevel, existing.AccessLevel),
		Published:         pick(req.Published, existing.Published),
	}
	if req.DoctorCredentials != nil {
		in.DoctorCredentials = req.DoctorCredentials
	}

	video, err := s.videos.Update(r.Context(), id, in)
	if errors.Is(err, service.ErrVideoNotFound) {
		http.Error(w, "video not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.badRequest(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, video)
}

func (s *Server) handleDeleteVideo(w http.ResponseWriter, r *http.Request) {
	err := s.videos.Delete(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, service.ErrVideoNotFound) {
		http.Error(w, "video not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type subscriptionRequest struct {
	Status       string `json:"status" validate:"required,oneof=active inactive cancelled"`
	Plan         string `json:"plan" validate:"required"`
	IsSubscribed bool   `json:"is_subscribed"`
}

func (s *Server) handleUpdateSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if !s.decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	err := s.users.UpdateSubscription(r.Context(), id, req.Status, strings.TrimSpace(req.Plan), req.IsSubscribed)
	if errors.Is(err, service.ErrUserNotFound) {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}
	user, err := s.users.FindByID(r.Context(), id)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || !equal(user, s.cfg.Username) || !equal(pass, s.cfg.Password) {
				w.Header().Set("WWW-Authenticate", `Basic realm="eva-admin"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// decode reads a JSON body into v and validates it, answering 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		s.badRequest(w, err)
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error().Err(err).Msg("admin handler error")
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func pick[T any](v *T, fallback T) T {
	if v != nil {
		return *v
	}
	return fallback
}

type videoRequest struct {
	Slug              string  `json:"slug" validate:"required"`
	Title             string  `json:"title" validate:"required"`
	Description       string  `json:"description"`
	DoctorName        string  `json:"doctor_name"`
	DoctorSpecialty   string  `json:"doctor_specialty"`
	DoctorCredentials *string `json:"doctor_credentials"`
	DurationSeconds   int     `json:"duration_seconds" validate:"gte=0"`
	ContentType       string  `json:"content_type"`
	AccessLevel       string  `json:"access_level"`
	Published         bool    `json:"published"`
}

func (r videoRequest) input() service.VideoInput {
	return service.VideoInput{
		Slug:              r.Slug,
		Title:             r.Title,
		Description:       r.Description,
		DoctorName:        r.DoctorName,
		DoctorSpecialty:   r.DoctorSpecialty,
		DoctorCredentials: r.DoctorCredentials,
		DurationSeconds:   r.DurationSeconds,
		ContentType:       r.ContentType,
		AccessLevel:       r.AccessLevel,
		Published:         r.Published,
	}
}

type videoUpdateRequest struct {
	Slug              *string `json:"slug"`
	Title             *string `json:"title"`
	Description       *string `json:"description"`
	DoctorName        *string `json:"doctor_name"`
	DoctorSpecialty   *string `json:"doctor_specialty"`
	DoctorCredentials *string `json:"doctor_credentials"`
	DurationSeconds   *int    `json:"duration_seconds" validate:"omitempty,gte=0"`
	ContentType       *string `json:"content_type"`
	AccessLevel       *string `json:"access_level"`
	Published         *bool   `json:"published"`
}

// Package server is the public HTTP surface: the Telegram webhook, the web
// chat API and a health check.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/bezpauzy/eva-bot/internal/cache"
	"github.com/bezpauzy/eva-bot/internal/config"
	"github.com/bezpauzy/eva-bot/internal/webchat"
)

const (
	WebhookPath  = "/api/telegram/webhook"
	secretHeader = "X-Telegram-Bot-Api-Secret-Token"
	maxBodyBytes = 1 << 20
)

type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update)
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

type Server struct {
	cfg           config.HTTPConfig
	webhookSecret string
	updates       UpdateHandler
	dedupe        cache.Deduper
	db            Pinger
	log           zerolog.Logger
	router        *chi.Mux
	now           func() time.Time
}

func New(cfg config.HTTPConfig, webhookSecret string, updates UpdateHandler, chat *webchat.Handler, dedupe cache.Deduper, db Pinger, log zerolog.Logger) *Server {
	if dedupe == nil {
		dedupe = cache.Noop
	}
	s := &Server{
		cfg:           cfg,
		webhookSecret: webhookSecret,
		updates:       updates,
		dedupe:        dedupe,
		db:            db,
		log:           log.With().Str("component", "http").Logger(),
		router:        chi.NewRouter(),
		now:           func() time.Time { return time.Now().UTC() },
	}

	r := s.router
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(s.log))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Post(WebhookPath, s.handleWebhook)
	r.Get(WebhookPath, s.handleWebhookStatus)
	if chat != nil {
		r.Route("/api/chat", chat.Routes)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error().Err(err).Msg("http shutdown error")
		}
	}()

	s.log.Info().Str("addr", s.cfg.ListenAddr).Msg("http server listening")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

// handleWebhook always acknowledges an authentic delivery, also when the
// update cannot be decoded, so Telegram does not redeliver it.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.webhookSecret != "" {
		got := r.Header.Get(secretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.webhookSecret)) != 1 {
			s.log.Warn().Str("remote", r.RemoteAddr).Msg("webhook secret mismatch")
			writeJSON(w, http.StatusUnauthorized, map[string]any{"ok": false})
			return
		}
	}

	var update tgbotapi.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&update); err != nil {
		s.log.Error().Err(err).Str("event", "webhook_handler_error").Msg("decode update")
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	ctx := r.Context()
	first, err := s.dedupe.FirstSeen(ctx, strconv.Itoa(update.UpdateID))
	if err != nil {
		s.log.Warn().Err(err).Int("update_id", update.UpdateID).Msg("update dedupe unavailable")
		first = true
	}
	if !first {
		s.log.Info().Int("update_id", update.UpdateID).Msg("duplicate update skipped")
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	// A dropped connection must not abort an update half way.
	s.updates.HandleUpdate(context.WithoutCancel(ctx), update)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleWebhookStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "active",
		"message":   "Telegram webhook endpoint is ready",
		"timestamp": s.now().Format(time.RFC3339),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		s.log.Error().Err(err).Msg("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

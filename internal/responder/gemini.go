package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/bezpauzy/eva-bot/internal/config"
)

const assistantInstruction = `Ты Ева, ассистент проекта «Без паузы» для женщин в период менопаузы.
Отвечай на русском, тепло и по существу. Опирайся на доказательную медицину, не ставь диагнозы
и не назначай лечение, при тревожных симптомах советуй обратиться к врачу.
Вопросы вне темы женского здоровья 40+ мягко возвращай к теме.`

const doctorSearchInstruction = `Ты Ева, ассистент проекта «Без паузы». Пользовательница ищет врача или клинику.
Подскажи, к какому специалисту обратиться (гинеколог-эндокринолог, эндокринолог, маммолог и т.п.),
какие вопросы задать на приёме и как выбрать клинику. Если известен город, учитывай его.
Не придумывай конкретные фамилии и адреса.`

type Gemini struct {
	client      *genai.Client
	log         zerolog.Logger
	model       string
	temperature float32
	maxRetries  int
	retryDelay  time.Duration
}

func NewGemini(ctx context.Context, cfg config.GeminiConfig, log zerolog.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	logger := log.With().Str("component", "gemini").Logger()
	logger.Info().Str("model", cfg.Model).Msg("gemini responder initialized")
	return &Gemini{
		client:      client,
		log:         logger,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxRetries:  cfg.MaxRetries,
		retryDelay:  cfg.RetryDelay,
	}, nil
}

func (g *Gemini) Respond(ctx context.Context, req Request) (string, error) {
	instruction := assistantInstruction
	if IsDoctorSearch(req.Message) {
		instruction = doctorSearchInstruction
	}
	temperature := g.temperature
	cfg := &genai.GenerateContentConfig{
		Temperature:       &temperature,
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: instruction}}},
	}

	resp, err := g.generate(ctx, buildContents(req), cfg)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini returned an empty answer")
	}
	return text, nil
}

// buildContents turns the history and the new message into alternating turns.
func buildContents(req Request) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.History)*2+1)
	for _, turn := range req.History {
		if turn.Question != "" {
			contents = append(contents, genai.NewContentFromText(turn.Question, genai.RoleUser))
		}
		if turn.Answer != "" {
			contents = append(contents, genai.NewContentFromText(turn.Answer, genai.RoleModel))
		}
	}
	message := req.Message
	if req.City != "" {
		message = fmt.Sprintf("[Город пользователя: %s]\n%s", req.City, message)
	}
	return append(contents, genai.NewContentFromText(message, genai.RoleUser))
}

func (g *Gemini) generate(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	for attempt := 0; ; attempt++ {
		resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
		if err == nil {
			return resp, nil
		}

		var apiErr *genai.APIError
		retriable := errors.As(err, &apiErr) && (apiErr.Code == 500 || apiErr.Code == 503)
		if !retriable || attempt >= g.maxRetries {
			g.log.Error().Err(err).Int("attempt", attempt+1).Msg("gemini call failed")
			return nil, fmt.Errorf("gemini generate: %w", err)
		}

		g.log.Warn().Err(err).Int("attempt", attempt+1).Dur("delay", g.retryDelay).Msg("retrying gemini call")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(g.retryDelay):
		}
	}
}

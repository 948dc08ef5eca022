package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/bezpauzy/eva-bot/internal/service"
)

// ExportArchive keeps data exports that do not fit into a chat message.
type ExportArchive interface {
	Archive(ctx context.Context, telegramID int64, report []byte) (string, error)
}

type Settings struct {
	SiteBaseURL  string
	SupportEmail string
}

// Bot routes Telegram updates to the command, callback and message handlers.
// All conversation state lives in the user row.
type Bot struct {
	sender   Sender
	users    *service.UserService
	chat     *service.ChatService
	videos   *service.VideoService
	topics   TopicContent
	archive  ExportArchive
	settings Settings
	log      zerolog.Logger
	now      func() time.Time
}

type Option func(*Bot)

func WithTopics(t TopicContent) Option {
	return func(b *Bot) { b.topics = t }
}

func WithExportArchive(a ExportArchive) Option {
	return func(b *Bot) { b.archive = a }
}

func WithClock(now func() time.Time) Option {
	return func(b *Bot) { b.now = now }
}

func NewBot(sender Sender, users *service.UserService, chat *service.ChatService, videos *service.VideoService, settings Settings, log zerolog.Logger, opts ...Option) *Bot {
	settings.SiteBaseURL = strings.TrimRight(settings.SiteBaseURL, "/")
	b := &Bot{
		sender:   sender,
		users:    users,
		chat:     chat,
		videos:   videos,
		topics:   DefaultTopics{},
		settings: settings,
		log:      log.With().Str("component", "telegram").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// HandleUpdate processes one update. It never fails: handler errors and panics
// are logged here so the webhook still acknowledges the update.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	kind := updateKind(update)
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Str("event", "webhook_handler_error").
				Int("update_id", update.UpdateID).
				Str("kind", kind).
				Str("panic", fmt.Sprint(r)).
				Msg("update handler panicked")
		}
	}()

	var err error
	switch kind {
	case "callback_query":
		err = b.handleCallback(ctx, update.CallbackQuery)
	case "message":
		err = b.handleMessage(ctx, update.Message)
	case "edited_message":
		b.log.Info().Int("message_id", update.EditedMessage.MessageID).Msg("edited message ignored")
	default:
		b.log.Warn().Int("update_id", update.UpdateID).Msg("unhandled update type")
	}
	if err != nil {
		b.log.Error().
			Err(err).
			Str("event", "webhook_handler_error").
			Int("update_id", update.UpdateID).
			Str("kind", kind).
			Msg("update handler failed")
	}
}

func updateKind(update tgbotapi.Update) string {
	switch {
	case update.CallbackQuery != nil:
		return "callback_query"
	case update.Message != nil:
		return "message"
	case update.EditedMessage != nil:
		return "edited_message"
	default:
		return "unknown"
	}
}

// Run feeds the bot from getUpdates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context, api *tgbotapi.BotAPI) error {
	if api == nil {
		return fmt.Errorf("polling requires %s", errTokenMissing)
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := api.GetUpdatesChan(u)
	b.log.Info().Str("bot", api.Self.UserName).Msg("telegram long polling started")

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.HandleUpdate(ctx, update)
		case <-ctx.Done():
			api.StopReceivingUpdates()
			return ctx.Err()
		}
	}
}

func (b *Bot) sendText(chatID int64, text string) SendResult {
	return b.sender.SendMessage(chatID, text, SendOptions{})
}

func (b *Bot) sendHTML(chatID int64, text string, kb Keyboard) SendResult {
	return b.sender.SendMessage(chatID, text, SendOptions{ParseMode: tgbotapi.ModeHTML, Buttons: kb})
}

func (b *Bot) sendConsentPrompt(chatID int64) SendResult {
	text := fmt.Sprintf(textConsentTemplate, consentDocURL, b.settings.SupportEmail)
	return b.sender.SendMessage(chatID, text, SendOptions{Buttons: consentKeyboard(), DisablePreview: true})
}

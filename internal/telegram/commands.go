package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/bezpauzy/eva-bot/internal/models"
	"github.com/bezpauzy/eva-bot/internal/service"
)

const (
	// messageBudget is the longest text sent inline, below Telegram's 4096 limit.
	messageBudget = 4000
	historyLimit  = 10
	historyShort  = 5
)

// parseCommand splits "/cmd@bot payload" into a lower-cased command and payload.
func parseCommand(text string) (string, string) {
	text = strings.TrimPrefix(strings.TrimSpace(text), "/")
	token, payload, _ := strings.Cut(text, " ")
	token, _, _ = strings.Cut(token, "@")
	return strings.ToLower(token), strings.TrimSpace(payload)
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	switch {
	case strings.HasPrefix(msg.Text, "/"):
		command, payload := parseCommand(msg.Text)
		return b.handleCommand(ctx, msg, command, payload)
	case strings.TrimSpace(msg.Text) != "":
		return b.handleText(ctx, msg)
	default:
		return nil
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, command, payload string) error {
	chatID := msg.Chat.ID
	telegramID := senderID(msg.From, chatID)

	switch command {
	case "start":
		if payload != "" {
			b.log.Info().Int64("telegram_id", telegramID).Str("start_param", payload).Msg("start with payload")
		}
		b.sendConsentPrompt(chatID)
		return nil
	case "export_my_data":
		return b.handleExport(ctx, chatID, telegramID)
	case "delete_my_data":
		return b.handleDelete(ctx, chatID, telegramID)
	case "cancel_subscription":
		return b.handleCancel(ctx, chatID, telegramID)
	case "history":
		return b.handleHistory(ctx, chatID, telegramID)
	default:
		b.sendText(chatID, textUnknownCommand)
		return nil
	}
}

func (b *Bot) handleExport(ctx context.Context, chatID, telegramID int64) error {
	user, queries, err := b.users.Export(ctx, telegramID)
	if errors.Is(err, service.ErrUserNotFound) {
		b.sendText(chatID, textUserNotFound)
		return nil
	}
	if err != nil {
		b.sendText(chatID, textGenericFailure)
		return fmt.Errorf("export data: %w", err)
	}

	report := renderExport(user, queries, b.now())
	if utf8.RuneCountInString(report) < messageBudget {
		b.sendText(chatID, report)
		return nil
	}

	// TODO: deliver oversized exports as a document instead of archiving them.
	b.sendText(chatID, textExportTooLong)
	if b.archive == nil {
		b.log.Warn().Int64("telegram_id", telegramID).Int("size", len(report)).Msg("export too long, archive disabled")
		return nil
	}
	key, err := b.archive.Archive(ctx, telegramID, []byte(report))
	if err != nil {
		return fmt.Errorf("archive export: %w", err)
	}
	b.log.Info().Int64("telegram_id", telegramID).Str("key", key).Msg("export archived")
	return nil
}

func (b *Bot) handleDelete(ctx context.Context, chatID, telegramID int64) error {
	deleted, err := b.users.DeleteAllData(ctx, telegramID)
	if errors.Is(err, service.ErrUserNotFound) {
		b.sendText(chatID, textDeleteNotFound)
		return nil
	}
	if err != nil {
		b.sendText(chatID, textGenericFailure)
		return fmt.Errorf("delete user data: %w", err)
	}
	b.log.Info().Int64("telegram_id", telegramID).Int64("queries", deleted).Msg("user data deleted")
	b.sendText(chatID, textDeleted)
	return nil
}

func (b *Bot) handleCancel(ctx context.Context, chatID, telegramID int64) error {
	err := b.users.CancelSubscription(ctx, telegramID)
	if errors.Is(err, service.ErrUserNotFound) {
		b.sendText(chatID, textUserNotFound)
		return nil
	}
	if err != nil {
		b.sendText(chatID, textCancelFailed)
		return fmt.Errorf("cancel subscription: %w", err)
	}
	b.sendText(chatID, textCancelled)
	return nil
}

func (b *Bot) handleHistory(ctx context.Context, chatID, telegramID int64) error {
	queries, err := b.users.History(ctx, telegramID, historyLimit)
	if errors.Is(err, service.ErrUserNotFound) {
		b.sendText(chatID, textUserNotFound)
		return nil
	}
	if err != nil {
		b.sendText(chatID, textGenericFailure)
		return fmt.Errorf("load history: %w", err)
	}
	if len(queries) == 0 {
		b.sendText(chatID, textHistoryEmpty)
		return nil
	}
	b.sendText(chatID, renderHistory(queries))
	return nil
}

func renderExport(user *models.User, queries []models.Query, now time.Time) string {
	var sb strings.Builder
	sb.WriteString("Экспорт данных пользователя\n")
	fmt.Fprintf(&sb, "Дата экспорта: %s\n", formatDateTime(now))
	sb.WriteString("\n=== ДАННЫЕ ПОЛЬЗОВАТЕЛЯ ===\n")
	if user.TelegramID != nil {
		fmt.Fprintf(&sb, "Telegram ID: %d\n", *user.TelegramID)
	}
	fmt.Fprintf(&sb, "Дата регистрации: %s\n", formatDateTime(user.CreatedAt))
	fmt.Fprintf(&sb, "Статус подписки: %s\n", orDefault(user.SubscriptionStatus, "нет"))
	age := ""
	if user.AgeRange != nil {
		age = string(*user.AgeRange)
	}
	fmt.Fprintf(&sb, "Возрастная группа: %s\n", orDefault(age, "не указана"))
	city := ""
	if user.City != nil {
		city = *user.City
	}
	fmt.Fprintf(&sb, "Город: %s\n", orDefault(city, "не указан"))

	if len(queries) == 0 {
		sb.WriteString("\n=== ИСТОРИЯ ЗАПРОСОВ ===\nЗапросов пока нет.\n")
		return sb.String()
	}
	fmt.Fprintf(&sb, "\n=== ИСТОРИЯ ЗАПРОСОВ (%d) ===\n\n", len(queries))
	for i, q := range queries {
		fmt.Fprintf(&sb, "Запрос #%d\n", i+1)
		fmt.Fprintf(&sb, "Дата: %s\n", formatDateTime(q.CreatedAt))
		fmt.Fprintf(&sb, "Вопрос: %s\n", q.QueryText)
		fmt.Fprintf(&sb, "Ответ: %s\n", q.ResponseText)
		fmt.Fprintf(&sb, "Статус: %s\n", q.Status)
		sb.WriteString("------------------------\n\n")
	}
	return sb.String()
}

// renderHistory lists queries newest first, falling back to a shorter digest
// when the full one would not fit into a message.
func renderHistory(queries []models.Query) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📝 История ваших запросов (последние %d):\n\n", len(queries))
	for i, q := range queries {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, formatDate(q.CreatedAt))
		fmt.Fprintf(&sb, "   В: %s\n", truncate(q.QueryText, 50))
		fmt.Fprintf(&sb, "   О: %s\n\n", truncate(q.ResponseText, 50))
	}
	if full := sb.String(); utf8.RuneCountInString(full) < messageBudget {
		return full
	}

	short := queries
	if len(short) > historyShort {
		short = short[:historyShort]
	}
	items := make([]string, 0, len(short))
	for i, q := range short {
		items = append(items, fmt.Sprintf("%d. %s\n   %s", i+1, formatDate(q.CreatedAt), truncate(q.QueryText, 40)))
	}
	return "📝 Последние 5 запросов:\n\n" + strings.Join(items, "\n\n")
}

func formatDateTime(t time.Time) string {
	return t.UTC().Format("02.01.2006, 15:04:05")
}

func formatDate(t time.Time) string {
	return t.UTC().Format("02.01.2006")
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func senderID(from *tgbotapi.User, chatID int64) int64 {
	if from != nil {
		return from.ID
	}
	return chatID
}

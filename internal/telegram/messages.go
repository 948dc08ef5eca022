package telegram

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/bezpauzy/eva-bot/internal/models"
	"github.com/bezpauzy/eva-bot/internal/service"
)

// handleText answers a free-form question: consent and subscription gates,
// then a processing query, the responder and delivery of the answer.
func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) error {
	chatID := msg.Chat.ID
	telegramID := senderID(msg.From, chatID)

	user, err := b.users.FindByTelegramID(ctx, telegramID)
	if err != nil {
		b.sendText(chatID, textSaveFailed)
		return err
	}
	switch DeriveState(user) {
	case StateUnregistered:
		b.sendText(chatID, textWelcomeStart)
		return nil
	case StateNoConsent:
		b.sendConsentPrompt(chatID)
		return nil
	}
	if !user.HasActiveSubscription() {
		b.sendText(chatID, textNeedSubscription)
		return nil
	}

	if res := b.sender.SendTyping(chatID); !res.Success {
		b.log.Debug().Str("error", res.Error).Msg("typing indicator")
	}

	messageID := int64(msg.MessageID)
	q, err := b.chat.Begin(ctx, user, msg.Text, models.SourceTelegram, &messageID)
	if err != nil {
		b.sendText(chatID, textSaveFailed)
		return fmt.Errorf("store query: %w", err)
	}

	answer, err := b.chat.Resolve(ctx, user, q)
	if err != nil {
		b.sendText(chatID, textProcessFailed)
		if errors.Is(err, service.ErrGenerationFailed) {
			return nil
		}
		return fmt.Errorf("resolve query %s: %w", q.ID, err)
	}

	res := b.sender.SendMessage(chatID, answer, SendOptions{ParseMode: tgbotapi.ModeHTML})
	if !res.Success {
		// Model output is not always valid HTML.
		b.log.Warn().Str("query_id", q.ID).Str("error", res.Error).Msg("html delivery failed, resending as plain text")
		b.sendText(chatID, answer)
	}
	return nil
}

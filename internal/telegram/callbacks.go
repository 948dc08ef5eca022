package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/bezpauzy/eva-bot/internal/models"
	"github.com/bezpauzy/eva-bot/internal/service"
)

// handleCallback acknowledges the press first so the button never stays in
// the loading state, whatever the branch does afterwards.
func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) (err error) {
	b.sender.AnswerCallback(cb.ID, "")

	if cb.Message == nil || cb.Message.Chat == nil {
		return fmt.Errorf("callback %q without chat", cb.Data)
	}
	chatID := cb.Message.Chat.ID
	telegramID := senderID(cb.From, chatID)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback %q panicked: %v", cb.Data, r)
		}
		if err != nil {
			b.sendText(chatID, textCallbackFailed)
		}
	}()

	intent := ParseCallbackData(cb.Data)
	switch intent.Kind {
	case CallbackConsentAgree:
		return b.onConsentAgree(ctx, chatID, telegramID)
	case CallbackConsentDecline:
		b.sendText(chatID, textConsentDeclined)
		return nil
	case CallbackAge:
		return b.onAge(ctx, chatID, telegramID, intent.Age)
	case CallbackFreeTopic:
		return b.onFreeTopic(ctx, chatID, telegramID, intent.Topic)
	case CallbackDoctorThanks:
		b.sender.SendMessage(chatID, textDoctorThanks, SendOptions{Buttons: doctorThanksKeyboard()})
		return nil
	case CallbackAskAnother:
		b.sendText(chatID, textSelectAnotherTopic)
		return nil
	case CallbackThankYou:
		b.sendHTML(chatID, textThankYou, Keyboard{{{Text: "🌐 Перейти на сайт", URL: b.siteLink(telegramID)}}})
		return nil
	case CallbackPayment:
		text := fmt.Sprintf(textPaymentTemplate, b.pricingURL(), b.settings.SupportEmail)
		b.sendHTML(chatID, text, b.paymentKeyboard())
		return nil
	case CallbackVideoList:
		return b.onVideoList(ctx, chatID, telegramID)
	case CallbackVideo:
		return b.onVideo(ctx, chatID, telegramID, intent.VideoID)
	default:
		b.log.Warn().Str("data", cb.Data).Msg("unknown callback data")
		return nil
	}
}

func (b *Bot) onConsentAgree(ctx context.Context, chatID, telegramID int64) error {
	if _, err := b.users.GiveConsent(ctx, telegramID); err != nil {
		b.sendText(chatID, fmt.Sprintf(textRegisterFailed, b.settings.SupportEmail))
		b.log.Error().Err(err).Int64("telegram_id", telegramID).Msg("record consent")
		return nil
	}
	b.sender.SendMessage(chatID, textAskAge, SendOptions{Buttons: ageKeyboard()})
	return nil
}

func (b *Bot) onAge(ctx context.Context, chatID, telegramID int64, age models.AgeRange) error {
	user, err := b.users.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return err
	}
	switch DeriveState(user) {
	case StateUnregistered:
		b.sendText(chatID, textUserNotFound)
		return nil
	case StateNoConsent:
		b.sendConsentPrompt(chatID)
		return nil
	}

	if _, err := b.users.SetAgeRange(ctx, telegramID, age); err != nil {
		return fmt.Errorf("save age range: %w", err)
	}
	b.sender.SendMessage(chatID, textFreeTopics, SendOptions{Buttons: b.freeTopicKeyboard(telegramID)})
	return nil
}

func (b *Bot) onFreeTopic(ctx context.Context, chatID, telegramID int64, topic Topic) error {
	user, err := b.users.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return err
	}
	var age *models.AgeRange
	if user != nil {
		age = user.AgeRange
	}
	b.sendHTML(chatID, b.topics.Template(topic, age), afterTopicKeyboard())
	return nil
}

func (b *Bot) onVideoList(ctx context.Context, chatID, telegramID int64) error {
	user, err := b.users.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return err
	}
	videos, err := b.videos.Catalog(ctx, user)
	if errors.Is(err, service.ErrSubscriptionRequired) {
		b.sendHTML(chatID, textVideosUpsell, videoUpsellKeyboard())
		return nil
	}
	if err != nil {
		return fmt.Errorf("list videos: %w", err)
	}
	if len(videos) == 0 {
		b.sendText(chatID, textVideosSoon)
		return nil
	}
	b.sendHTML(chatID, renderVideoList(videos), videoListKeyboard(videos))
	return nil
}

// onVideo re-checks access because the list may have been shown before the
// subscription ended.
func (b *Bot) onVideo(ctx context.Context, chatID, telegramID int64, videoID string) error {
	user, err := b.users.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return err
	}
	video, err := b.videos.Watch(ctx, user, videoID)
	switch {
	case errors.Is(err, service.ErrSubscriptionRequired):
		b.sender.SendMessage(chatID, textVideoDenied, SendOptions{Buttons: Keyboard{{{Text: "💳 Оформить подписку", CallbackData: dataPay}}}})
		return nil
	case errors.Is(err, service.ErrVideoNotFound):
		b.sendText(chatID, textVideoNotFound)
		return nil
	case err != nil:
		return fmt.Errorf("load video: %w", err)
	}
	b.sendHTML(chatID, renderVideoCard(video), b.videoCardKeyboard(video))
	return nil
}

func renderVideoList(videos []models.Video) string {
	var sb strings.Builder
	sb.WriteString("🎥 <b>Видео \"Врачи Объясняют\"</b>\n\nВыберите видео для просмотра:\n\n")
	for i, v := range videos {
		fmt.Fprintf(&sb, "%d. <b>%s</b>\n", i+1, html.EscapeString(v.Title))
		fmt.Fprintf(&sb, "   %s • %s\n", html.EscapeString(v.DoctorName), html.EscapeString(v.DoctorSpecialty))
		fmt.Fprintf(&sb, "   ⏱ %d мин\n\n", v.Minutes())
	}
	return sb.String()
}

func renderVideoCard(v *models.Video) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🎥 <b>%s</b>\n\n", html.EscapeString(v.Title))
	fmt.Fprintf(&sb, "👨‍⚕️ <b>%s</b>\n", html.EscapeString(v.DoctorName))
	fmt.Fprintf(&sb, "%s\n", html.EscapeString(v.DoctorSpecialty))
	if v.DoctorCredentials != nil && *v.DoctorCredentials != "" {
		fmt.Fprintf(&sb, "%s\n", html.EscapeString(*v.DoctorCredentials))
	}
	fmt.Fprintf(&sb, "\n⏱ Длительность: %d мин\n\n", v.Minutes())
	fmt.Fprintf(&sb, "📝 %s\n", html.EscapeString(v.Description))
	return sb.String()
}

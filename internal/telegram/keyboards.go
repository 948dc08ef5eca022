package telegram

import (
	"fmt"
	"net/url"
	"unicode/utf8"

	"github.com/bezpauzy/eva-bot/internal/models"
)

const videoButtonTitleLimit = 30

func consentKeyboard() Keyboard {
	return Keyboard{{
		{Text: "Согласен", CallbackData: dataConsentAgree},
		{Text: "Отказаться", CallbackData: dataConsentDecline},
	}}
}

func ageKeyboard() Keyboard {
	return Keyboard{
		{
			{Text: "40-45 лет", CallbackData: string(models.Age40to45)},
			{Text: "46-50 лет", CallbackData: string(models.Age46to50)},
		},
		{{Text: "50+ лет", CallbackData: string(models.Age50Plus)}},
	}
}

func (b *Bot) freeTopicKeyboard(telegramID int64) Keyboard {
	return Keyboard{
		{
			{Text: "🌡️ Приливы", CallbackData: dataTopicPrefix + string(TopicHotFlashes)},
			{Text: "😴 Сон", CallbackData: dataTopicPrefix + string(TopicSleep)},
		},
		{
			{Text: "🌈 Настроение", CallbackData: dataTopicPrefix + string(TopicMood)},
			{Text: "⚖️ Вес", CallbackData: dataTopicPrefix + string(TopicWeight)},
		},
		{{Text: "💬 Задать свой вопрос", CallbackData: dataAskAnother}},
		{{Text: "🌐 Перейти на сайт", URL: b.siteLink(telegramID)}},
	}
}

func afterTopicKeyboard() Keyboard {
	return Keyboard{
		{{Text: "💬 Задать свой вопрос", CallbackData: dataAskAnother}},
		{{Text: "🎥 Видео врачей", CallbackData: dataVideoList}},
		{{Text: "💳 Подписка", CallbackData: dataPay}},
	}
}

func doctorThanksKeyboard() Keyboard {
	return Keyboard{{
		{Text: "Задать еще вопрос", CallbackData: dataAskAnother},
		{Text: "👍 Спасибо", CallbackData: dataThankYou},
	}}
}

func (b *Bot) paymentKeyboard() Keyboard {
	return Keyboard{
		{{Text: "💳 Оформить подписку", URL: b.pricingURL()}},
		{{Text: "← Назад", CallbackData: dataAskAnother}},
	}
}

func videoUpsellKeyboard() Keyboard {
	return Keyboard{
		{{Text: "💳 Оформить подписку", CallbackData: dataPay}},
		{{Text: "← Назад", CallbackData: dataAskAnother}},
	}
}

func videoListKeyboard(videos []models.Video) Keyboard {
	kb := make(Keyboard, 0, len(videos)+1)
	for i, v := range videos {
		kb = append(kb, []Button{{
			Text:         fmt.Sprintf("▶️ %d. %s", i+1, truncate(v.Title, videoButtonTitleLimit)),
			CallbackData: dataVideoPrefix + v.ID,
		}})
	}
	return append(kb, []Button{{Text: "← Назад", CallbackData: dataAskAnother}})
}

func (b *Bot) videoCardKeyboard(v *models.Video) Keyboard {
	return Keyboard{
		{{Text: "▶️ Смотреть видео", URL: b.settings.SiteBaseURL + "/videos/doctors-explain/" + url.PathEscape(v.Slug)}},
		{
			{Text: "← К списку", CallbackData: dataVideoList},
			{Text: "💬 Задать вопрос", CallbackData: dataAskAnother},
		},
	}
}

// siteLink carries the Telegram id so the site can link the visitor to the bot user.
func (b *Bot) siteLink(telegramID int64) string {
	return fmt.Sprintf("%s?tg_id=%d", b.settings.SiteBaseURL, telegramID)
}

func (b *Bot) pricingURL() string {
	return b.settings.SiteBaseURL + "/pricing"
}

// truncate cuts s to limit runes and appends "..." when something was cut.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "..."
}

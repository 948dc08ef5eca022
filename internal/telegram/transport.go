package telegram

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/bezpauzy/eva-bot/internal/config"
)

const errTokenMissing = "TELEGRAM_BOT_TOKEN is not set"

// Button is an inline keyboard button. Exactly one of URL and CallbackData is used.
type Button struct {
	Text         string
	URL          string
	CallbackData string
}

// Keyboard is a row-major grid of buttons.
type Keyboard [][]Button

type SendOptions struct {
	ParseMode           string
	DisablePreview      bool
	DisableNotification bool
	Buttons             Keyboard
}

type SendResult struct {
	Success   bool
	MessageID int
	Error     string
}

// Sender is the outbound side of the Bot API. Failures are reported in the
// result, never returned as errors.
type Sender interface {
	SendMessage(chatID int64, text string, opts SendOptions) SendResult
	// SendToChannel posts to "@name" or a numeric chat id.
	SendToChannel(channel, text string, opts SendOptions) SendResult
	AnswerCallback(callbackID, text string) SendResult
	SendTyping(chatID int64) SendResult
}

// NewAPI connects to the Bot API. It returns a nil client without a token so
// the transport can report the missing configuration per call.
func NewAPI(cfg config.TelegramConfig, client *http.Client) (*tgbotapi.BotAPI, error) {
	if cfg.BotToken == "" {
		return nil, nil
	}
	if client == nil {
		client = &http.Client{Timeout: 75 * time.Second}
	}
	api, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, cfg.APIEndpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return api, nil
}

type Transport struct {
	api *tgbotapi.BotAPI
	log zerolog.Logger
}

func NewTransport(api *tgbotapi.BotAPI, log zerolog.Logger) *Transport {
	return &Transport{api: api, log: log.With().Str("component", "telegram_transport").Logger()}
}

func (t *Transport) SendMessage(chatID int64, text string, opts SendOptions) SendResult {
	msg := tgbotapi.NewMessage(chatID, text)
	return t.send(msg, opts, strconv.FormatInt(chatID, 10))
}

func (t *Transport) SendToChannel(channel, text string, opts SendOptions) SendResult {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return SendResult{Error: "channel is not set"}
	}
	var msg tgbotapi.MessageConfig
	if id, err := strconv.ParseInt(channel, 10, 64); err == nil {
		msg = tgbotapi.NewMessage(id, text)
	} else {
		msg = tgbotapi.NewMessageToChannel("@"+strings.TrimPrefix(channel, "@"), text)
	}
	return t.send(msg, opts, channel)
}

func (t *Transport) send(msg tgbotapi.MessageConfig, opts SendOptions, target string) SendResult {
	if t.api == nil {
		t.log.Error().Str("chat", target).Msg(errTokenMissing)
		return SendResult{Error: errTokenMissing}
	}
	msg.ParseMode = opts.ParseMode
	msg.DisableWebPagePreview = opts.DisablePreview
	msg.DisableNotification = opts.DisableNotification
	if markup, ok := inlineMarkup(opts.Buttons); ok {
		msg.ReplyMarkup = markup
	}

	sent, err := t.api.Send(msg)
	if err != nil {
		t.log.Error().Err(err).Str("chat", target).Msg("send message")
		return SendResult{Error: err.Error()}
	}
	return SendResult{Success: true, MessageID: sent.MessageID}
}

func (t *Transport) AnswerCallback(callbackID, text string) SendResult {
	return t.request(tgbotapi.NewCallback(callbackID, text), "answer callback")
}

func (t *Transport) SendTyping(chatID int64) SendResult {
	return t.request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping), "send chat action")
}

func (t *Transport) request(c tgbotapi.Chattable, what string) SendResult {
	if t.api == nil {
		return SendResult{Error: errTokenMissing}
	}
	if _, err := t.api.Request(c); err != nil {
		t.log.Warn().Err(err).Msg(what)
		return SendResult{Error: err.Error()}
	}
	return SendResult{Success: true}
}

func inlineMarkup(kb Keyboard) (tgbotapi.InlineKeyboardMarkup, bool) {
	if len(kb) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			if btn.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(btn.Text, btn.URL))
			} else {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(btn.Text, btn.CallbackData))
			}
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), true
}

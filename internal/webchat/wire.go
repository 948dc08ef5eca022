package webchat

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// TelegramID accepts both a JSON number and a numeric string.
type TelegramID int64

func (id *TelegramID) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(bytes.TrimSpace(data), `"`)
	if len(data) == 0 || string(data) == "null" {
		*id = 0
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return err
	}
	*id = TelegramID(n)
	return nil
}

type SendMessageRequest struct {
	Message    string     `json:"message" validate:"required,max=4000"`
	UserID     string     `json:"userId,omitempty"`
	TelegramID TelegramID `json:"telegramId,omitempty"`
}

// SendMessageResponse carries Response only when the answer was ready inline.
type SendMessageResponse struct {
	Success   bool   `json:"success"`
	Response  string `json:"response,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

type PollResponse struct {
	Success   bool       `json:"success"`
	HasUpdate bool       `json:"hasUpdate"`
	Response  string     `json:"response,omitempty"`
	Status    string     `json:"status,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	Error     string     `json:"error,omitempty"`
}

const (
	MessageTypeUser = "user"
	MessageTypeBot  = "bot"
)

type HistoryMessage struct {
	ID           string    `json:"id"`
	QueryText    string    `json:"query_text,omitempty"`
	ResponseText string    `json:"response_text,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	Type         string    `json:"type"`
	Source       string    `json:"source"`
}

type HistoryResponse struct {
	Success  bool             `json:"success"`
	Messages []HistoryMessage `json:"messages"`
	Error    string           `json:"error,omitempty"`
}

// Session is the payload of the telegram_session cookie, base64 encoded JSON.
type Session struct {
	UserID     string     `json:"userId,omitempty"`
	TelegramID TelegramID `json:"telegramId,omitempty"`
}

func (s Session) Encode() string {
	raw, _ := json.Marshal(s)
	return encodeCookie(raw)
}

package chatclient

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/bezpauzy/eva-bot/internal/webchat"
)

const (
	TextTimeout = "Извините, ответ занимает больше времени, чем ожидалось. Пожалуйста, проверьте ответ в Telegram боте или попробуйте позже."
	TextFailure = "Извините, произошла ошибка. Пожалуйста, попробуйте еще раз или обратитесь в поддержку."
)

type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

type Message struct {
	ID        string
	Text      string
	Sender    Sender
	Timestamp time.Time
	Loading   bool
}

// PendingChatExchange is a submitted message whose answer has not arrived yet.
// SubmittedAt is the local clock and only orders the view; polls identify the
// exchange by QueryID alone.
type PendingChatExchange struct {
	QueryID       string
	PlaceholderID string
	SubmittedAt   time.Time
}

type Outcome int

const (
	// OutcomeAnswered replaced the placeholder with the answer.
	OutcomeAnswered Outcome = iota
	// OutcomeAlreadyDelivered left the view untouched: another path showed the answer.
	OutcomeAlreadyDelivered
	// OutcomeTimedOut replaced the placeholder with the timeout notice.
	OutcomeTimedOut
	// OutcomeFailed replaced the placeholder with the failure notice.
	OutcomeFailed
)

// Conversation is the client-side message list of one chat window.
type Conversation struct {
	client *Client
	now    func() time.Time

	mu       sync.Mutex
	messages []Message
	seq      int
}

func NewConversation(client *Client) *Conversation {
	return &Conversation{client: client, now: time.Now}
}

// Messages returns a snapshot of the rendered messages.
func (c *Conversation) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

// Load fills the conversation from the server history or, when there is
// none, with a welcome message matching ctx.
func (c *Conversation) Load(ctx context.Context, welcome WelcomeContext) {
	messages := c.loadHistory(ctx, welcome)
	c.mu.Lock()
	c.messages = messages
	c.mu.Unlock()
}

func (c *Conversation) loadHistory(ctx context.Context, welcome WelcomeContext) []Message {
	if c.client.anonymous() {
		return []Message{c.welcome(WelcomeText(welcome, false))}
	}
	resp, err := c.client.History(ctx)
	if err != nil {
		c.client.log.Warn().Err(err).Msg("load chat history")
		return []Message{c.welcome(WelcomeText(welcome, true))}
	}
	if !resp.Success || len(resp.Messages) == 0 {
		return []Message{c.welcome(WelcomeText(welcome, false))}
	}
	out := make([]Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		out = append(out, fromHistory(m))
	}
	return out
}

// fromHistory infers the sender from the type or from which text is set.
func fromHistory(m webchat.HistoryMessage) Message {
	text := m.ResponseText
	if text == "" {
		text = m.QueryText
	}
	sender := SenderBot
	if m.Type == webchat.MessageTypeUser || m.QueryText != "" {
		sender = SenderUser
	}
	return Message{ID: m.ID, Text: text, Sender: sender, Timestamp: m.CreatedAt}
}

func (c *Conversation) welcome(text string) Message {
	return Message{ID: "welcome", Text: text, Sender: SenderBot, Timestamp: c.now()}
}

// Send submits text and returns the pending exchange when the answer was not
// ready inline. A nil exchange means the conversation is already up to date.
func (c *Conversation) Send(ctx context.Context, text string) (*PendingChatExchange, error) {
	now := c.now()
	c.mu.Lock()
	c.seq++
	stamp := strconv.FormatInt(now.UnixMilli(), 10) + "-" + strconv.Itoa(c.seq)
	placeholderID := "loading-" + stamp
	c.messages = append(c.messages,
		Message{ID: stamp, Text: text, Sender: SenderUser, Timestamp: now},
		Message{ID: placeholderID, Sender: SenderBot, Timestamp: now, Loading: true},
	)
	c.mu.Unlock()

	resp, err := c.client.Submit(ctx, text)
	if err != nil {
		c.replace(placeholderID, Message{ID: "error-" + stamp, Text: TextFailure, Sender: SenderBot, Timestamp: c.now()})
		return nil, err
	}
	queryID := resp.MessageID
	if queryID == "" {
		queryID = stamp
	}
	if resp.Response != "" {
		c.replace(placeholderID, Message{ID: queryID, Text: resp.Response, Sender: SenderBot, Timestamp: c.now()})
		return nil, nil
	}
	return &PendingChatExchange{QueryID: queryID, PlaceholderID: placeholderID, SubmittedAt: now}, nil
}

// Await polls for the answer of p at the client's interval until it arrives,
// another path has delivered it, or the attempt budget runs out. Poll errors
// are transient and only cost an attempt.
func (c *Conversation) Await(ctx context.Context, p *PendingChatExchange) (Outcome, error) {
	cl := c.client
	for attempt := 0; attempt < cl.maxAttempts; attempt++ {
		if err := cl.wait(ctx, cl.pollInterval); err != nil {
			return OutcomeFailed, err
		}

		resp, err := cl.Poll(ctx, p.QueryID, time.Time{})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return OutcomeFailed, err
			}
			cl.log.Debug().Err(err).Str("query_id", p.QueryID).Int("attempt", attempt+1).Msg("poll failed, retrying")
			continue
		}

		switch {
		case resp.Success && resp.HasUpdate && resp.Response != "":
			ts := c.now()
			if resp.UpdatedAt != nil {
				ts = *resp.UpdatedAt
			}
			c.replace(p.PlaceholderID, Message{ID: p.QueryID, Text: resp.Response, Sender: SenderBot, Timestamp: ts})
			return OutcomeAnswered, nil
		case resp.Status == "completed" && !resp.HasUpdate:
			return OutcomeAlreadyDelivered, nil
		}

		if attempt%10 == 0 {
			cl.log.Debug().Str("query_id", p.QueryID).Int("attempt", attempt+1).Int("max_attempts", cl.maxAttempts).Msg("answer pending")
		}
	}

	c.replace(p.PlaceholderID, Message{ID: "timeout-" + p.QueryID, Text: TextTimeout, Sender: SenderBot, Timestamp: c.now()})
	return OutcomeTimedOut, nil
}

// replace swaps the message with id for m in place, appending m if id is gone.
func (c *Conversation) replace(id string, m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.messages {
		if c.messages[i].ID == id {
			c.messages[i] = m
			return
		}
	}
	c.messages = append(c.messages, m)
}

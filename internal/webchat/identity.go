package webchat

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	initdata "github.com/telegram-mini-apps/init-data-golang"
)

const SessionCookie = "telegram_session"

var (
	errNoIdentity      = errors.New("no identity")
	errInvalidInitData = errors.New("invalid init data")
)

type identity struct {
	userID     string
	telegramID int64
}

func (id identity) empty() bool {
	return id.userID == "" && id.telegramID == 0
}

// identify resolves the caller in order: Mini App init data, explicit ids,
// then the session cookie.
func identify(r *http.Request, explicit identity, botToken string, ttl time.Duration) (identity, error) {
	if raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "tma "); ok {
		if botToken == "" {
			return identity{}, errInvalidInitData
		}
		if err := initdata.Validate(raw, botToken, ttl); err != nil {
			return identity{}, errInvalidInitData
		}
		parsed, err := initdata.Parse(raw)
		if err != nil || parsed.User.ID == 0 {
			return identity{}, errInvalidInitData
		}
		return identity{telegramID: parsed.User.ID}, nil
	}
	if !explicit.empty() {
		return explicit, nil
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		if id, ok := decodeSession(c.Value); ok {
			return id, nil
		}
	}
	return identity{}, errNoIdentity
}

func decodeSession(value string) (identity, bool) {
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		raw, err = base64.URLEncoding.DecodeString(value)
		if err != nil {
			return identity{}, false
		}
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return identity{}, false
	}
	id := identity{userID: s.UserID, telegramID: int64(s.TelegramID)}
	return id, !id.empty()
}

func encodeCookie(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

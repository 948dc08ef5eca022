// Package responder produces assistant answers for user questions.
package responder

import (
	"context"
	"errors"
	"strings"

	"github.com/bezpauzy/eva-bot/internal/models"
)

// ErrNotConfigured is returned by Unconfigured for every request.
var ErrNotConfigured = errors.New("responder is not configured")

// Turn is one completed exchange of the conversation history.
type Turn struct {
	Question string
	Answer   string
}

type Request struct {
	UserID  string
	QueryID string
	Message string
	Source  models.Source
	City    string
	// History holds previous completed exchanges, oldest first.
	History []Turn
}

type Responder interface {
	Respond(ctx context.Context, req Request) (string, error)
}

// Func adapts a plain function to Responder.
type Func func(ctx context.Context, req Request) (string, error)

func (f Func) Respond(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Unconfigured fails every request, so queries end up failed instead of hanging.
var Unconfigured = Func(func(context.Context, Request) (string, error) {
	return "", ErrNotConfigured
})

var doctorSearchKeywords = []string{
	"найди врача",
	"найти врача",
	"поиск врача",
	"рекомендуй врача",
	"специалист",
	"клиника",
	"записаться к врачу",
	"врач в городе",
	"нужен врач",
	"хочу к врачу",
}

// IsDoctorSearch reports whether message asks to find a doctor or clinic.
func IsDoctorSearch(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range doctorSearchKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

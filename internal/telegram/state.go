package telegram

import "github.com/bezpauzy/eva-bot/internal/models"

// OnboardingState is the position of a user in the guided flow. It is never
// stored; DeriveState reconstructs it from the user row on every update.
type OnboardingState int

const (
	StateUnregistered OnboardingState = iota
	StateNoConsent
	StateNeedsAge
	StateReady
)

func (s OnboardingState) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateNoConsent:
		return "no_consent"
	case StateNeedsAge:
		return "needs_age"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

func DeriveState(user *models.User) OnboardingState {
	switch {
	case user == nil:
		return StateUnregistered
	case !user.HasConsent():
		return StateNoConsent
	case user.AgeRange == nil:
		return StateNeedsAge
	default:
		return StateReady
	}
}

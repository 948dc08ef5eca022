package service

import "errors"

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrConsentRequired      = errors.New("consent required")
	ErrSubscriptionRequired = errors.New("active subscription required")
	ErrEmptyMessage         = errors.New("message is empty")
	ErrGenerationFailed     = errors.New("response generation failed")
	ErrVideoNotFound        = errors.New("video not found")

	// ErrQueryResolved means a terminal transition hit an already terminal query.
	ErrQueryResolved = errors.New("query already resolved")
)

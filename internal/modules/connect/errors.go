package connect

import "errors"

var (
	ErrNoAccount          = errors.New("no connected account for user")
	ErrAccountNotFound    = errors.New("connected account not found")
	ErrOnboardingRequired = errors.New("onboarding not complete")
	ErrAlreadyOnboarded   = errors.New("account already fully onboarded")
)

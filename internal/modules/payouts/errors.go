package payouts

import "errors"

var (
	ErrPayoutNotFound   = errors.New("payout not found")
	ErrNotRetryable     = errors.New("only failed stripe payouts can be retried")
	ErrNotManualPending = errors.New("only pending manual payouts can be marked paid")
	ErrAlreadyClaimed   = errors.New("payout already claimed by another run")
	ErrMissingAccount   = errors.New("stripe payout has no connected account")
)

package payments

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type CreateIntentRequest struct {
	Amount    int64
	Currency  string
	PaymentID string
	EventID   string
	UserID    string
	Quantity  int64

	// On Stripe this must NOT use transfer_data: funds stay on the platform
	// account because payouts are gated on the event ending, not the sale.
	OrganizerHasStripe bool
}

type CreateIntentResponse struct {
	IntentID     string
	ClientSecret string
}

type IntentStatus struct {
	Status         string // provider-side status, "succeeded" when complete
	LatestChargeID string
}

type RefundIntentRequest struct {
	PaymentIntentID string
	Amount          int64
}

type RefundIntentResponse struct {
	RefundID string
	Amount   int64
}

// IntentGateway is the slice of the payment provider this module talks to.
type IntentGateway interface {
	CreateIntent(ctx context.Context, req CreateIntentRequest) (CreateIntentResponse, error)
	RetrieveIntent(ctx context.Context, intentID string) (IntentStatus, error)
	CancelIntent(ctx context.Context, intentID string) error
	RefundIntent(ctx context.Context, req RefundIntentRequest) (RefundIntentResponse, error)
}

type SchedulePayoutInput struct {
	OrganizerID     string
	PaymentID       string
	EventID         string
	StripeAccountID *string // nil routes the payout to the manual method
	Amount          int64
	Currency        string
	ScheduledFor    time.Time
}

// PayoutScheduler is implemented by the payouts module. Both calls run inside
// the caller's reconciliation transaction so payout state can never diverge
// from payment state.
type PayoutScheduler interface {
	ScheduleInTx(ctx context.Context, tx *gorm.DB, in SchedulePayoutInput) error
	CancelPendingInTx(ctx context.Context, tx *gorm.DB, paymentID string) error
}

// AccountDirectory answers the intent-time question "does this organizer have
// a fully enabled connected account right now". Implemented by the connect
// module.
type AccountDirectory interface {
	FullyEnabledAccountRef(ctx context.Context, organizerID string) (*string, error)
}

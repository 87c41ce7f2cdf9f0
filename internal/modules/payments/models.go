package payments

import (
	"time"

	"gorm.io/datatypes"
)

const (
	StatusPending           = "pending"
	StatusSucceeded         = "succeeded"
	StatusFailed            = "failed"
	StatusRefunded          = "refunded"
	StatusPartiallyRefunded = "partially_refunded"
)

const (
	TicketConfirmed = "confirmed"
	TicketUsed      = "used"
	TicketRefunded  = "refunded"
)

// Payment is one buyer transaction for N tickets to one event. All money
// fields are cents.
//
// StripePaymentIntentID starts as a local "pending_<uuid>" placeholder and is
// swapped for the real intent id once Stripe has created it; the unique index
// is what guarantees exactly one Payment per intent.
//
// OrganizerStripeAccountID captures whether the organizer had a fully enabled
// connected account at intent time. The decision is baked in here and not
// re-derived later; account.updated webhooks backfill it when an organizer
// onboards after the sale.
type Payment struct {
	ID                    string `gorm:"type:char(36);primaryKey"`
	StripePaymentIntentID string `gorm:"type:varchar(128);not null;uniqueIndex:ux_payments_intent"`
	UserID                string `gorm:"type:char(36);not null;index:ix_payments_user_id"`
	EventID               string `gorm:"type:char(36);not null;index:ix_payments_event_id"`

	Subtotal        int64 `gorm:"not null"`
	PlatformFee     int64 `gorm:"not null"`
	ProcessingFee   int64 `gorm:"not null"`
	TotalAmount     int64 `gorm:"not null"`
	OrganizerAmount int64 `gorm:"not null"`

	OrganizerStripeAccountID *string `gorm:"type:varchar(128)"`
	StripeChargeID           *string `gorm:"type:varchar(128);index:ix_payments_charge"`

	Status        string  `gorm:"type:varchar(32);not null"`
	FailureReason *string `gorm:"type:varchar(255)"`

	// Buyer contact and quantity snapshot from intent time; ticket rows are
	// created lazily on confirmation, so this is their only source.
	Metadata datatypes.JSON `gorm:"type:json;not null"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

// IntentMetadata is the shape stored in Payment.Metadata.
type IntentMetadata struct {
	Quantity           int64  `json:"quantity"`
	FirstName          string `json:"firstName"`
	LastName           string `json:"lastName"`
	Email              string `json:"email"`
	Phone              string `json:"phone"`
	EventTitle         string `json:"eventTitle"`
	OrganizerID        string `json:"organizerId"`
	OrganizerHasStripe bool   `json:"organizerHasStripe"`
}

// Ticket is one unit of admission. A succeeded Payment for quantity N yields
// exactly N rows; refunds flip status, rows are never deleted.
type Ticket struct {
	ID         string `gorm:"type:char(36);primaryKey"`
	TicketCode string `gorm:"type:varchar(32);not null;uniqueIndex:ux_tickets_code"`
	EventID    string `gorm:"type:char(36);not null;index:ix_tickets_event_id"`
	UserID     string `gorm:"type:char(36);not null;index:ix_tickets_user_id"`
	PaymentID  string `gorm:"type:char(36);not null;index:ix_tickets_payment_id"`

	FirstName string `gorm:"type:varchar(100);not null"`
	LastName  string `gorm:"type:varchar(100);not null"`
	Email     string `gorm:"type:varchar(255);not null"`
	Phone     string `gorm:"type:varchar(32)"`

	// Even shares of the payment aggregates, in cents. The shares sum back to
	// the payment's fields exactly.
	UnitPrice     int64 `gorm:"not null"`
	TotalPrice    int64 `gorm:"not null"`
	PlatformFee   int64 `gorm:"not null"`
	ProcessingFee int64 `gorm:"not null"`

	Status      string    `gorm:"type:varchar(32);not null"`
	PurchasedAt time.Time `gorm:"not null"`
	UsedAt      *time.Time

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (Ticket) TableName() string { return "tickets" }

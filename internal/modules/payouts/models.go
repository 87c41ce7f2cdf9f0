package payouts

import "time"

const (
	StatusPending = "pending"
	// StatusProcessing is an internal claim state: a conditional update into
	// it is what guarantees a payout is never executed twice concurrently.
	StatusProcessing = "processing"
	StatusPaid       = "paid"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

const (
	MethodStripe = "stripe"
	MethodManual = "manual"
)

// Payout is this platform's own record of an obligation to pay an organizer
// for one payment, regardless of whether a Stripe transfer or an off-platform
// manual payment fulfils it. Method and account-ref nullability are coupled:
// stripe payouts always carry an account reference, manual payouts never do.
type Payout struct {
	ID        string `gorm:"type:char(36);primaryKey"`
	UserID    string `gorm:"type:char(36);not null;index:ix_payouts_user_id"`
	PaymentID string `gorm:"type:char(36);not null;uniqueIndex:ux_payouts_payment"`
	EventID   string `gorm:"type:char(36);not null;index:ix_payouts_event_id"`

	Amount   int64  `gorm:"not null"`
	Currency string `gorm:"type:char(3);not null;default:'usd'"`

	Status string `gorm:"type:varchar(32);not null;index:ix_payouts_status"`
	Method string `gorm:"type:varchar(32);not null"`

	StripeAccountID  *string `gorm:"type:varchar(128)"`
	StripeTransferID *string `gorm:"type:varchar(128)"`

	ScheduledFor  time.Time  `gorm:"not null;index:ix_payouts_scheduled_for"`
	ProcessedAt   *time.Time
	FailureReason *string    `gorm:"type:varchar(255)"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (Payout) TableName() string { return "payouts" }

package connect

import "time"

// Account mirrors the lifecycle of an organizer's Stripe Express account.
// Capability flags are only ever written from provider state (account
// retrieval or account.updated webhooks), never guessed locally.
type Account struct {
	ID                 string `gorm:"primaryKey;size:36"`
	UserID             string `gorm:"size:36;not null;uniqueIndex:ux_connect_user"`
	StripeAccountID    string `gorm:"size:64;not null;uniqueIndex:ux_connect_account"`
	OnboardingComplete bool   `gorm:"not null;default:false"`
	ChargesEnabled     bool   `gorm:"not null;default:false"`
	PayoutsEnabled     bool   `gorm:"not null;default:false"`

	BusinessName *string `gorm:"size:255"`
	BusinessType *string `gorm:"size:32"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Account) TableName() string { return "connect_accounts" }

// FullyEnabled reports whether the account can both take charges and
// receive transfers. Payout routing keys off this, not off mere existence.
func (a Account) FullyEnabled() bool {
	return a.OnboardingComplete && a.ChargesEnabled && a.PayoutsEnabled
}

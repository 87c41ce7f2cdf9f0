package webhooks

import "time"

// ProviderEvent is the dedupe ledger for incoming webhook events. A row is
// created on first sight; ProcessedAt is only set once every side effect of
// the event has been applied, so a redelivery after a partial failure runs
// the handler again.
type ProviderEvent struct {
	ID          string `gorm:"primaryKey;size:36"`
	Provider    string `gorm:"size:32;not null;uniqueIndex:ux_provider_event,priority:1"`
	EventID     string `gorm:"size:128;not null;uniqueIndex:ux_provider_event,priority:2"`
	Type        string `gorm:"size:64;not null"`
	Attempts    int    `gorm:"not null;default:0"`
	LastError   *string
	ReceivedAt  time.Time
	ProcessedAt *time.Time
}

func (ProviderEvent) TableName() string { return "provider_events" }

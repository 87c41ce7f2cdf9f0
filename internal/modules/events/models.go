package events

import "time"

const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusCancelled = "cancelled"
)

// Event is the ticketed-event record this subsystem reads. The social side of
// the platform owns creation and editing; payments only needs pricing,
// inventory and scheduling fields.
type Event struct {
	ID          string `gorm:"type:char(36);primaryKey"`
	Title       string `gorm:"type:varchar(255);not null"`
	OrganizerID string `gorm:"type:char(36);not null;index:ix_events_organizer_id"`

	TicketPrice int64 `gorm:"not null"` // cents
	IsFree      bool  `gorm:"not null;default:false"`

	// AvailableTickets is nil for events without a finite inventory.
	AvailableTickets *int64 `gorm:"column:available_tickets"`

	StartDate time.Time  `gorm:"not null"`
	EndDate   *time.Time

	Status    string    `gorm:"type:varchar(32);not null;default:'published'"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (Event) TableName() string { return "events" }

// PayoutDue is when organizer proceeds for this event become transferable.
func (e *Event) PayoutDue() time.Time {
	if e.EndDate != nil {
		return *e.EndDate
	}
	return e.StartDate
}

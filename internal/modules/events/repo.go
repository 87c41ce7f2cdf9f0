package events

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var ErrInsufficientTickets = errors.New("insufficient tickets available")

// ReserveInTx atomically takes qty tickets from a finite inventory. The floor
// check lives in the WHERE clause so concurrent buyers of the last tickets
// cannot both pass; the loser sees ErrInsufficientTickets. Events with a nil
// inventory are unlimited and never reserved.
func ReserveInTx(ctx context.Context, tx *gorm.DB, eventID string, qty int64) error {
	if qty < 1 {
		return ErrInsufficientTickets
	}
	res := tx.WithContext(ctx).
		Model(&Event{}).
		Where("id = ? AND available_tickets IS NOT NULL AND available_tickets >= ?", eventID, qty).
		UpdateColumn("available_tickets", gorm.Expr("available_tickets - ?", qty))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return ErrInsufficientTickets
	}
	return nil
}

// ReleaseInTx returns qty tickets to a finite inventory (failed payment,
// expired intent, refund). No-op for unlimited events.
func ReleaseInTx(ctx context.Context, tx *gorm.DB, eventID string, qty int64) error {
	if qty < 1 {
		return nil
	}
	return tx.WithContext(ctx).
		Model(&Event{}).
		Where("id = ? AND available_tickets IS NOT NULL", eventID).
		UpdateColumn("available_tickets", gorm.Expr("available_tickets + ?", qty)).Error
}

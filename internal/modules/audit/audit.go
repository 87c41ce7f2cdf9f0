package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Entry records an admin action against a payout or connected account.
// Rows are append-only.
type Entry struct {
	ID          string  `gorm:"type:char(36);primaryKey"`
	ActorUserID string  `gorm:"type:char(36);not null;index:ix_audit_logs_actor"`
	Action      string  `gorm:"type:varchar(64);not null"`
	TargetType  string  `gorm:"type:varchar(32);not null"`
	TargetID    string  `gorm:"type:char(36);not null;index:ix_audit_logs_target"`
	Note        *string `gorm:"type:varchar(255)"`

	CreatedAt time.Time `gorm:"not null"`
}

func (Entry) TableName() string { return "audit_logs" }

func RecordInTx(ctx context.Context, tx *gorm.DB, actorID, action, targetType, targetID, note string) error {
	var notePtr *string
	if note != "" {
		n := note
		notePtr = &n
	}
	e := Entry{
		ID:          uuid.NewString(),
		ActorUserID: actorID,
		Action:      action,
		TargetType:  targetType,
		TargetID:    targetID,
		Note:        notePtr,
		CreatedAt:   time.Now(),
	}
	return tx.WithContext(ctx).Create(&e).Error
}

type ListParams struct {
	Action   string
	Page     int
	PageSize int
}

type ListResult struct {
	Items []Entry
	Total int64
}

func List(ctx context.Context, db *gorm.DB, in ListParams) (ListResult, error) {
	page := in.Page
	if page < 1 {
		page = 1
	}
	size := in.PageSize
	if size < 1 || size > 100 {
		size = 30
	}

	base := db.WithContext(ctx).Model(&Entry{})
	if in.Action != "" {
		base = base.Where("action = ?", in.Action)
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return ListResult{}, err
	}

	var items []Entry
	if err := base.
		Order("created_at DESC").
		Limit(size).
		Offset((page - 1) * size).
		Find(&items).Error; err != nil {
		return ListResult{}, err
	}

	return ListResult{Items: items, Total: total}, nil
}

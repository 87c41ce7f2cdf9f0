package payouts

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/audit"
	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/payments"
)

type Service struct {
	db      *gorm.DB
	gateway TransferGateway
	logger  *slog.Logger
}

func NewService(db *gorm.DB, gw TransferGateway) *Service {
	return &Service{db: db, gateway: gw, logger: slog.Default()}
}

func (s *Service) SetLogger(logger *slog.Logger) { s.logger = logger }

// ScheduleInTx creates the payout row for a just-succeeded payment, inside
// the reconciliation transaction. The method is decided by the payment's
// captured account reference, not by the organizer's current state. Replays
// are absorbed here (and by the unique payment index underneath).
func (s *Service) ScheduleInTx(ctx context.Context, tx *gorm.DB, in payments.SchedulePayoutInput) error {
	var cnt int64
	if err := tx.WithContext(ctx).Model(&Payout{}).
		Where("payment_id = ?", in.PaymentID).
		Count(&cnt).Error; err != nil {
		return err
	}
	if cnt > 0 {
		return nil
	}

	method := MethodManual
	if in.StripeAccountID != nil {
		method = MethodStripe
	}

	now := time.Now()
	p := Payout{
		ID:              uuid.NewString(),
		UserID:          in.OrganizerID,
		PaymentID:       in.PaymentID,
		EventID:         in.EventID,
		Amount:          in.Amount,
		Currency:        in.Currency,
		Status:          StatusPending,
		Method:          method,
		StripeAccountID: in.StripeAccountID,
		ScheduledFor:    in.ScheduledFor,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return tx.WithContext(ctx).Create(&p).Error
}

// CancelPendingInTx voids the not-yet-executed payout for a refunded payment.
// Paid/failed payouts are left alone: money already moved is an accounting
// problem, not a state transition.
func (s *Service) CancelPendingInTx(ctx context.Context, tx *gorm.DB, paymentID string) error {
	return tx.WithContext(ctx).Model(&Payout{}).
		Where("payment_id = ? AND status = ?", paymentID, StatusPending).
		Updates(map[string]any{
			"status":     StatusCancelled,
			"updated_at": time.Now(),
		}).Error
}

// DueStripe returns payouts eligible for automatic execution: pending stripe
// payouts whose event has ended.
func (s *Service) DueStripe(ctx context.Context, now time.Time) ([]Payout, error) {
	var due []Payout
	err := s.db.WithContext(ctx).
		Where("status = ? AND method = ? AND stripe_account_id IS NOT NULL AND scheduled_for <= ?",
			StatusPending, MethodStripe, now).
		Order("scheduled_for ASC").
		Find(&due).Error
	return due, err
}

type ExecuteOutcome struct {
	PayoutID   string
	Status     string
	TransferID string
	Error      string
}

// Execute runs one stripe payout: claim it, create the transfer, finalize.
// The claim is a conditional update out of pending/failed, so an admin retry
// racing a scheduled batch run settles on exactly one caller; the transfer's
// idempotency key covers the provider side of the same race.
func (s *Service) Execute(ctx context.Context, payoutID string) (ExecuteOutcome, error) {
	res := s.db.WithContext(ctx).Model(&Payout{}).
		Where("id = ? AND method = ? AND status IN ?",
			payoutID, MethodStripe, []string{StatusPending, StatusFailed}).
		Updates(map[string]any{
			"status":     StatusProcessing,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return ExecuteOutcome{}, res.Error
	}
	if res.RowsAffected == 0 {
		return ExecuteOutcome{}, ErrAlreadyClaimed
	}

	var p Payout
	if err := s.db.WithContext(ctx).First(&p, "id = ?", payoutID).Error; err != nil {
		return ExecuteOutcome{}, err
	}

	if p.StripeAccountID == nil {
		s.finalizeFailed(ctx, p.ID, ErrMissingAccount.Error())
		return ExecuteOutcome{PayoutID: p.ID, Status: StatusFailed, Error: ErrMissingAccount.Error()}, nil
	}

	resp, terr := s.gateway.CreateTransfer(ctx, TransferRequest{
		Amount:         p.Amount,
		Currency:       p.Currency,
		Destination:    *p.StripeAccountID,
		TransferGroup:  "event_" + p.EventID,
		IdempotencyKey: "payout-" + p.ID,
		PayoutID:       p.ID,
		EventID:        p.EventID,
		PaymentID:      p.PaymentID,
	})
	if terr != nil {
		msg := truncate(terr.Error(), 250)
		s.finalizeFailed(ctx, p.ID, msg)
		return ExecuteOutcome{PayoutID: p.ID, Status: StatusFailed, Error: msg}, nil
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&Payout{}).
		Where("id = ? AND status = ?", p.ID, StatusProcessing).
		Updates(map[string]any{
			"status":             StatusPaid,
			"stripe_transfer_id": resp.TransferID,
			"processed_at":       &now,
			"failure_reason":     nil,
			"updated_at":         now,
		}).Error; err != nil {
		// Transfer went through; the transfer.created webhook will finish the
		// bookkeeping if this update was lost.
		s.logger.ErrorContext(ctx, "transfer created but payout update failed",
			"payout_id", p.ID, "transfer_id", resp.TransferID, "err", err)
		return ExecuteOutcome{}, err
	}

	s.logger.InfoContext(ctx, "payout executed",
		"payout_id", p.ID, "transfer_id", resp.TransferID, "amount", p.Amount)
	return ExecuteOutcome{PayoutID: p.ID, Status: StatusPaid, TransferID: resp.TransferID}, nil
}

func (s *Service) finalizeFailed(ctx context.Context, payoutID, reason string) {
	if err := s.db.WithContext(ctx).Model(&Payout{}).
		Where("id = ? AND status = ?", payoutID, StatusProcessing).
		Updates(map[string]any{
			"status":         StatusFailed,
			"failure_reason": reason,
			"updated_at":     time.Now(),
		}).Error; err != nil {
		s.logger.ErrorContext(ctx, "failed to record payout failure",
			"payout_id", payoutID, "err", err)
	}
}

// ProcessDue executes every due stripe payout. Outcomes are independent:
// one provider failure is captured into that payout and the loop moves on.
func (s *Service) ProcessDue(ctx context.Context, now time.Time) ([]ExecuteOutcome, error) {
	due, err := s.DueStripe(ctx, now)
	if err != nil {
		return nil, err
	}
	return s.executeBatch(ctx, due), nil
}

// ProcessForEvent executes due stripe payouts for a single event.
func (s *Service) ProcessForEvent(ctx context.Context, eventID string, now time.Time) ([]ExecuteOutcome, error) {
	var due []Payout
	if err := s.db.WithContext(ctx).
		Where("event_id = ? AND status = ? AND method = ? AND stripe_account_id IS NOT NULL AND scheduled_for <= ?",
			eventID, StatusPending, MethodStripe, now).
		Order("scheduled_for ASC").
		Find(&due).Error; err != nil {
		return nil, err
	}
	return s.executeBatch(ctx, due), nil
}

func (s *Service) executeBatch(ctx context.Context, due []Payout) []ExecuteOutcome {
	outcomes := make([]ExecuteOutcome, 0, len(due))
	for _, p := range due {
		out, err := s.Execute(ctx, p.ID)
		if err != nil {
			if errors.Is(err, ErrAlreadyClaimed) {
				continue
			}
			s.logger.ErrorContext(ctx, "payout execution error",
				"payout_id", p.ID, "err", err)
			outcomes = append(outcomes, ExecuteOutcome{
				PayoutID: p.ID, Status: StatusFailed, Error: err.Error(),
			})
			continue
		}
		outcomes = append(outcomes, out)
	}
	return outcomes
}

// Retry re-attempts a failed stripe payout. Manual payouts are never retried;
// they need an explicit mark-paid by an operator.
func (s *Service) Retry(ctx context.Context, payoutID string) (ExecuteOutcome, error) {
	var p Payout
	if err := s.db.WithContext(ctx).First(&p, "id = ?", payoutID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ExecuteOutcome{}, ErrPayoutNotFound
		}
		return ExecuteOutcome{}, err
	}
	if p.Status != StatusFailed || p.Method != MethodStripe {
		return ExecuteOutcome{}, ErrNotRetryable
	}
	return s.Execute(ctx, p.ID)
}

// MarkManualPaid records that an operator settled a manual payout off
// platform. The action is audited with who did it and why.
func (s *Service) MarkManualPaid(ctx context.Context, payoutID, operatorID, note string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p Payout
		if err := tx.WithContext(ctx).First(&p, "id = ?", payoutID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPayoutNotFound
			}
			return err
		}

		now := time.Now()
		res := tx.WithContext(ctx).Model(&Payout{}).
			Where("id = ? AND status = ? AND method = ?", payoutID, StatusPending, MethodManual).
			Updates(map[string]any{
				"status":       StatusPaid,
				"processed_at": &now,
				"updated_at":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotManualPending
		}

		return audit.RecordInTx(ctx, tx, operatorID, "payout.mark_manual_paid", "payout", payoutID, note)
	})
}

// MigrateOrganizerToStripe flips all of an organizer's pending manual payouts
// to the stripe method once their connected account is fully enabled.
// Non-pending payouts (already paid manually, cancelled) are untouched.
func (s *Service) MigrateOrganizerToStripe(ctx context.Context, organizerID, accountRef string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&Payout{}).
		Where("user_id = ? AND method = ? AND status = ?", organizerID, MethodManual, StatusPending).
		Updates(map[string]any{
			"method":            MethodStripe,
			"stripe_account_id": accountRef,
			"updated_at":        time.Now(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		s.logger.InfoContext(ctx, "migrated manual payouts to stripe",
			"organizer_id", organizerID, "count", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

// MarkTransferPaid is the webhook confirmation path for transfer.created:
// a defensive second write alongside Execute's own, in case the process died
// between the transfer call and the finalizing update.
func (s *Service) MarkTransferPaid(ctx context.Context, payoutID, transferID string) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&Payout{}).
		Where("id = ? AND status IN ?", payoutID,
			[]string{StatusPending, StatusProcessing, StatusFailed}).
		Updates(map[string]any{
			"status":             StatusPaid,
			"stripe_transfer_id": transferID,
			"processed_at":       &now,
			"failure_reason":     nil,
			"updated_at":         now,
		}).Error
}

type AdminListParams struct {
	Status   string
	Method   string
	EventID  string
	Page     int
	PageSize int
}

type AdminListResult struct {
	Items []Payout
	Total int64
}

func (s *Service) AdminList(ctx context.Context, in AdminListParams) (AdminListResult, error) {
	page := in.Page
	if page < 1 {
		page = 1
	}
	size := in.PageSize
	if size < 1 || size > 100 {
		size = 30
	}

	base := s.db.WithContext(ctx).Model(&Payout{})
	if in.Status != "" {
		base = base.Where("status = ?", in.Status)
	}
	if in.Method != "" {
		base = base.Where("method = ?", in.Method)
	}
	if in.EventID != "" {
		base = base.Where("event_id = ?", in.EventID)
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return AdminListResult{}, err
	}

	var items []Payout
	if err := base.
		Order("scheduled_for ASC, created_at ASC").
		Limit(size).
		Offset((page - 1) * size).
		Find(&items).Error; err != nil {
		return AdminListResult{}, err
	}

	return AdminListResult{Items: items, Total: total}, nil
}

type SummaryRow struct {
	Status string
	Method string
	Count  int64
	Amount int64
}

type Summary struct {
	PendingAmount int64
	PaidAmount    int64
	FailedAmount  int64
	Rows          []SummaryRow
}

// Summary aggregates payout amounts for the admin dashboard.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	var rows []SummaryRow
	if err := s.db.WithContext(ctx).Model(&Payout{}).
		Select("status, method, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount").
		Group("status, method").
		Scan(&rows).Error; err != nil {
		return Summary{}, err
	}

	var sum Summary
	sum.Rows = rows
	for _, r := range rows {
		switch r.Status {
		case StatusPending, StatusProcessing:
			sum.PendingAmount += r.Amount
		case StatusPaid:
			sum.PaidAmount += r.Amount
		case StatusFailed:
			sum.FailedAmount += r.Amount
		}
	}
	return sum, nil
}

type Earnings struct {
	TotalEarnings    int64
	PendingPayouts   int64
	CompletedPayouts int64
	History          []Payout
}

// EarningsSummary is the organizer-facing view of their payouts.
func (s *Service) EarningsSummary(ctx context.Context, organizerID string) (Earnings, error) {
	var list []Payout
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", organizerID).
		Order("scheduled_for DESC").
		Find(&list).Error; err != nil {
		return Earnings{}, err
	}

	var e Earnings
	e.History = list
	for _, p := range list {
		e.TotalEarnings += p.Amount
		switch p.Status {
		case StatusPaid:
			e.CompletedPayouts += p.Amount
		case StatusPending, StatusProcessing:
			e.PendingPayouts += p.Amount
		}
	}
	return e, nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}

var _ payments.PayoutScheduler = (*Service)(nil)

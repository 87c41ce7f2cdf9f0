package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"

	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/connect"
	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/payments"
	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/payouts"
)

const providerStripe = "stripe"

type Service struct {
	db       *gorm.DB
	payments *payments.Service
	payouts  *payouts.Service
	connect  *connect.Service
	logger   *slog.Logger
}

func NewService(db *gorm.DB, pay *payments.Service, po *payouts.Service, conn *connect.Service) *Service {
	return &Service{db: db, payments: pay, payouts: po, connect: conn, logger: slog.Default()}
}

func (s *Service) SetLogger(logger *slog.Logger) { s.logger = logger }

// Handle applies one verified provider event. Events already fully processed
// are skipped; events that previously failed run again on redelivery. The
// returned error is for logging only, the transport layer acks regardless.
func (s *Service) Handle(ctx context.Context, event stripe.Event) error {
	rec, skip, err := s.claim(ctx, event)
	if err != nil {
		return err
	}
	if skip {
		s.logger.InfoContext(ctx, "webhook event already processed",
			"event_id", event.ID, "type", event.Type)
		return nil
	}

	herr := s.dispatch(ctx, event)
	if herr != nil {
		msg := herr.Error()
		if len(msg) > 250 {
			msg = msg[:250]
		}
		if uerr := s.db.WithContext(ctx).Model(&ProviderEvent{}).
			Where("id = ?", rec.ID).
			Updates(map[string]any{
				"attempts":   gorm.Expr("attempts + 1"),
				"last_error": msg,
			}).Error; uerr != nil {
			s.logger.ErrorContext(ctx, "failed to record webhook error",
				"event_id", event.ID, "err", uerr)
		}
		return herr
	}

	now := time.Now()
	return s.db.WithContext(ctx).Model(&ProviderEvent{}).
		Where("id = ?", rec.ID).
		Updates(map[string]any{
			"attempts":     gorm.Expr("attempts + 1"),
			"last_error":   nil,
			"processed_at": &now,
		}).Error
}

// claim finds or creates the dedupe row. skip is true only when a previous
// delivery finished all side effects.
func (s *Service) claim(ctx context.Context, event stripe.Event) (ProviderEvent, bool, error) {
	var rec ProviderEvent
	err := s.db.WithContext(ctx).
		First(&rec, "provider = ? AND event_id = ?", providerStripe, event.ID).Error
	if err == nil {
		return rec, rec.ProcessedAt != nil, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return ProviderEvent{}, false, err
	}

	rec = ProviderEvent{
		ID:         uuid.NewString(),
		Provider:   providerStripe,
		EventID:    event.ID,
		Type:       string(event.Type),
		ReceivedAt: time.Now(),
	}
	if cerr := s.db.WithContext(ctx).Create(&rec).Error; cerr != nil {
		if isDuplicate(cerr) {
			// Concurrent delivery of the same event; let that one win.
			return rec, true, nil
		}
		return ProviderEvent{}, false, cerr
	}
	return rec, false, nil
}

func (s *Service) dispatch(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		return s.handleIntentSucceeded(ctx, event)
	case stripe.EventTypePaymentIntentPaymentFailed:
		return s.handleIntentFailed(ctx, event)
	case stripe.EventTypeAccountUpdated:
		return s.handleAccountUpdated(ctx, event)
	case stripe.EventTypeTransferCreated:
		return s.handleTransferCreated(ctx, event)
	case stripe.EventTypeChargeRefunded:
		return s.handleChargeRefunded(ctx, event)
	default:
		s.logger.InfoContext(ctx, "ignoring webhook event",
			"event_id", event.ID, "type", event.Type)
		return nil
	}
}

func (s *Service) handleIntentSucceeded(ctx context.Context, event stripe.Event) error {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return err
	}
	chargeID := ""
	if pi.LatestCharge != nil {
		chargeID = pi.LatestCharge.ID
	}
	_, err := s.payments.ReconcileSucceeded(ctx, pi.ID, chargeID)
	if errors.Is(err, payments.ErrPaymentNotFound) {
		// Not one of ours (or created by another environment); nothing to do.
		s.logger.WarnContext(ctx, "payment_intent.succeeded for unknown intent",
			"intent_id", pi.ID)
		return nil
	}
	return err
}

func (s *Service) handleIntentFailed(ctx context.Context, event stripe.Event) error {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return err
	}
	reason := "payment failed"
	if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
		reason = pi.LastPaymentError.Msg
	}
	err := s.payments.ReconcileFailed(ctx, pi.ID, reason)
	if errors.Is(err, payments.ErrPaymentNotFound) {
		s.logger.WarnContext(ctx, "payment_intent.payment_failed for unknown intent",
			"intent_id", pi.ID)
		return nil
	}
	return err
}

func (s *Service) handleAccountUpdated(ctx context.Context, event stripe.Event) error {
	var acc stripe.Account
	if err := json.Unmarshal(event.Data.Raw, &acc); err != nil {
		return err
	}

	state := connect.AccountState{
		AccountID:        acc.ID,
		DetailsSubmitted: acc.DetailsSubmitted,
		ChargesEnabled:   acc.ChargesEnabled,
		PayoutsEnabled:   acc.PayoutsEnabled,
	}
	userID, becameEnabled, err := s.connect.SyncFromWebhook(ctx, state)
	if errors.Is(err, connect.ErrAccountNotFound) {
		s.logger.WarnContext(ctx, "account.updated for unknown account",
			"account_id", acc.ID)
		return nil
	}
	if err != nil {
		return err
	}
	if !becameEnabled {
		return nil
	}

	// First time fully enabled: move the organizer's queued manual payouts
	// onto stripe and stamp the account onto their succeeded payments.
	migrated, err := s.payouts.MigrateOrganizerToStripe(ctx, userID, acc.ID)
	if err != nil {
		return err
	}
	backfilled, err := s.payments.BackfillOrganizerAccount(ctx, userID, acc.ID)
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "organizer enabled for stripe payouts",
		"organizer_id", userID, "account_id", acc.ID,
		"payouts_migrated", migrated, "payments_backfilled", backfilled)
	return nil
}

func (s *Service) handleTransferCreated(ctx context.Context, event stripe.Event) error {
	var tr stripe.Transfer
	if err := json.Unmarshal(event.Data.Raw, &tr); err != nil {
		return err
	}
	payoutID := tr.Metadata["payout_id"]
	if payoutID == "" {
		// Transfer created outside this system; ignore.
		return nil
	}
	return s.payouts.MarkTransferPaid(ctx, payoutID, tr.ID)
}

func (s *Service) handleChargeRefunded(ctx context.Context, event stripe.Event) error {
	var ch stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
		return err
	}

	payment, err := s.payments.FindByChargeID(ctx, ch.ID)
	if errors.Is(err, payments.ErrPaymentNotFound) {
		s.logger.WarnContext(ctx, "charge.refunded for unknown charge", "charge_id", ch.ID)
		return nil
	}
	if err != nil {
		return err
	}

	full := ch.AmountRefunded >= ch.Amount
	if err := s.payments.MarkRefunded(ctx, payment.ID, full); err != nil {
		return err
	}
	if full {
		return s.payouts.CancelPendingInTx(ctx, s.db, payment.ID)
	}
	return nil
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/events"
)

const (
	intentPlaceholderPrefix = "pending_"
	currencyUSD             = "usd"
)

type Service struct {
	db        *gorm.DB
	gateway   IntentGateway
	accounts  AccountDirectory
	scheduler PayoutScheduler
	logger    *slog.Logger
}

func NewService(db *gorm.DB, gw IntentGateway, accounts AccountDirectory, scheduler PayoutScheduler) *Service {
	return &Service{db: db, gateway: gw, accounts: accounts, scheduler: scheduler, logger: slog.Default()}
}

func (s *Service) SetLogger(logger *slog.Logger) { s.logger = logger }

type Quote struct {
	IsFree        bool
	TicketPrice   int64
	Quantity      int64
	Subtotal      int64
	ProcessingFee int64
	Total         int64
}

// Quote prices a prospective purchase for display. Free events quote all
// zeros; paid events delegate to the fee calculator.
func (s *Service) Quote(ctx context.Context, eventID string, qty int64) (Quote, error) {
	if qty < 1 {
		return Quote{}, ErrInvalidQuantity
	}

	ev, err := s.findEvent(ctx, s.db, eventID)
	if err != nil {
		return Quote{}, err
	}

	if ev.IsFree {
		return Quote{IsFree: true, Quantity: qty}, nil
	}

	bt := CalculateBuyerTotal(ev.TicketPrice, qty)
	return Quote{
		TicketPrice:   ev.TicketPrice,
		Quantity:      qty,
		Subtotal:      bt.Subtotal,
		ProcessingFee: bt.ProcessingFee,
		Total:         bt.Total,
	}, nil
}

type CreateIntentInput struct {
	UserID    string
	EventID   string
	Quantity  int64
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

type CreateIntentResult struct {
	ClientSecret       string
	PaymentID          string
	Breakdown          BuyerTotal
	OrganizerHasStripe bool
}

// CreateIntent reserves inventory, creates the pending Payment row, then the
// Stripe payment intent. Inventory is taken here, at intent time; only
// ReconcileFailed and ExpireStaleIntents give it back. The organizer's
// connected-account state is snapshotted into the row and never re-evaluated
// for this payment.
func (s *Service) CreateIntent(ctx context.Context, in CreateIntentInput) (CreateIntentResult, error) {
	if in.Quantity < 1 {
		return CreateIntentResult{}, ErrInvalidQuantity
	}

	ev, err := s.findEvent(ctx, s.db, in.EventID)
	if err != nil {
		return CreateIntentResult{}, err
	}
	if ev.IsFree {
		return CreateIntentResult{}, ErrFreeEvent
	}

	accountRef, err := s.accounts.FullyEnabledAccountRef(ctx, ev.OrganizerID)
	if err != nil {
		return CreateIntentResult{}, err
	}

	bt := CalculateBuyerTotal(ev.TicketPrice, in.Quantity)
	op := CalculateOrganizerPayout(ev.TicketPrice, in.Quantity)

	meta, err := json.Marshal(IntentMetadata{
		Quantity:           in.Quantity,
		FirstName:          in.FirstName,
		LastName:           in.LastName,
		Email:              in.Email,
		Phone:              in.Phone,
		EventTitle:         ev.Title,
		OrganizerID:        ev.OrganizerID,
		OrganizerHasStripe: accountRef != nil,
	})
	if err != nil {
		return CreateIntentResult{}, err
	}

	// Phase-1: reserve inventory + create the pending payment with a local
	// placeholder reference.
	now := time.Now()
	payment := Payment{
		ID:                       uuid.NewString(),
		StripePaymentIntentID:    intentPlaceholderPrefix + uuid.NewString(),
		UserID:                   in.UserID,
		EventID:                  ev.ID,
		Subtotal:                 bt.Subtotal,
		PlatformFee:              op.PlatformFee,
		ProcessingFee:            bt.ProcessingFee,
		TotalAmount:              bt.Total,
		OrganizerAmount:          op.Payout,
		OrganizerStripeAccountID: accountRef,
		Status:                   StatusPending,
		Metadata:                 meta,
		CreatedAt:                now,
		UpdatedAt:                now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if ev.AvailableTickets != nil {
			if err := events.ReserveInTx(ctx, tx, ev.ID, in.Quantity); err != nil {
				if errors.Is(err, events.ErrInsufficientTickets) {
					return ErrInsufficientTickets
				}
				return err
			}
		}
		return tx.WithContext(ctx).Create(&payment).Error
	})
	if err != nil {
		return CreateIntentResult{}, err
	}

	// Phase-2: provider call (outside tx).
	resp, perr := s.gateway.CreateIntent(ctx, CreateIntentRequest{
		Amount:             bt.Total,
		Currency:           currencyUSD,
		PaymentID:          payment.ID,
		EventID:            ev.ID,
		UserID:             in.UserID,
		Quantity:           in.Quantity,
		OrganizerHasStripe: accountRef != nil,
	})

	// Phase-3: finalize.
	if perr != nil {
		ferr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			msg := truncate(perr.Error(), 250)
			res := tx.WithContext(ctx).Model(&Payment{}).
				Where("id = ? AND status = ?", payment.ID, StatusPending).
				Updates(map[string]any{
					"status":         StatusFailed,
					"failure_reason": msg,
					"updated_at":     time.Now(),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 && ev.AvailableTickets != nil {
				return events.ReleaseInTx(ctx, tx, ev.ID, in.Quantity)
			}
			return nil
		})
		if ferr != nil {
			s.logger.ErrorContext(ctx, "failed to mark payment failed after provider error",
				"payment_id", payment.ID, "err", ferr)
		}
		return CreateIntentResult{}, fmt.Errorf("%w: %s", ErrProviderUnavailable, perr.Error())
	}

	if err := s.db.WithContext(ctx).Model(&Payment{}).
		Where("id = ?", payment.ID).
		Updates(map[string]any{
			"stripe_payment_intent_id": resp.IntentID,
			"updated_at":               time.Now(),
		}).Error; err != nil {
		return CreateIntentResult{}, err
	}

	return CreateIntentResult{
		ClientSecret:       resp.ClientSecret,
		PaymentID:          payment.ID,
		Breakdown:          bt,
		OrganizerHasStripe: accountRef != nil,
	}, nil
}

// ConfirmPayment is the synchronous confirmation path: the buyer's client
// says "I paid", we verify with Stripe and reconcile. It races the webhook;
// both funnel into the same idempotent transition.
func (s *Service) ConfirmPayment(ctx context.Context, intentID string) ([]Ticket, error) {
	st, err := s.gateway.RetrieveIntent(ctx, intentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, err.Error())
	}
	if st.Status != "succeeded" {
		return nil, ErrPaymentNotSucceeded
	}
	return s.ReconcileSucceeded(ctx, intentID, st.LatestChargeID)
}

// ReconcileSucceeded flips the Payment to succeeded at most once and, only
// when this call wins the transition, issues tickets and schedules the
// payout — all in one transaction. A losing concurrent caller (or a webhook
// redelivery) just gets the already-issued tickets back.
func (s *Service) ReconcileSucceeded(ctx context.Context, intentID, chargeID string) ([]Ticket, error) {
	var tickets []Ticket

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p Payment
		if err := tx.WithContext(ctx).First(&p, "stripe_payment_intent_id = ?", intentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPaymentNotFound
			}
			return err
		}

		if p.Status != StatusPending && p.Status != StatusFailed {
			// succeeded (or refunded later): replay-safe no-op.
			return s.loadTickets(ctx, tx, p.ID, &tickets)
		}

		fromFailed := p.Status == StatusFailed

		updates := map[string]any{
			"status":         StatusSucceeded,
			"failure_reason": nil,
			"updated_at":     time.Now(),
		}
		if chargeID != "" {
			updates["stripe_charge_id"] = chargeID
		}
		res := tx.WithContext(ctx).Model(&Payment{}).
			Where("id = ? AND status IN ?", p.ID, []string{StatusPending, StatusFailed}).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// A concurrent reconciliation won the race.
			return s.loadTickets(ctx, tx, p.ID, &tickets)
		}

		var meta IntentMetadata
		if err := json.Unmarshal(p.Metadata, &meta); err != nil {
			return fmt.Errorf("payment %s: bad metadata: %w", p.ID, err)
		}
		qty := meta.Quantity
		if qty < 1 {
			qty = 1
		}

		var ev events.Event
		if err := tx.WithContext(ctx).First(&ev, "id = ?", p.EventID).Error; err != nil {
			return err
		}

		// A success arriving after a failure signal had its reservation
		// released; take it back, or concede if the event sold out meanwhile.
		if fromFailed && ev.AvailableTickets != nil {
			if err := events.ReserveInTx(ctx, tx, ev.ID, qty); err != nil {
				if errors.Is(err, events.ErrInsufficientTickets) {
					reason := "sold out before delayed confirmation"
					if uerr := tx.WithContext(ctx).Model(&Payment{}).
						Where("id = ?", p.ID).
						Updates(map[string]any{
							"status":         StatusFailed,
							"failure_reason": reason,
							"updated_at":     time.Now(),
						}).Error; uerr != nil {
						return uerr
					}
					return ErrInsufficientTickets
				}
				return err
			}
		}

		unitShares := splitEvenly(p.Subtotal, qty)
		totalShares := splitEvenly(p.TotalAmount, qty)
		platformShares := splitEvenly(p.PlatformFee, qty)
		processingShares := splitEvenly(p.ProcessingFee, qty)

		now := time.Now()
		tickets = make([]Ticket, 0, qty)
		for i := int64(0); i < qty; i++ {
			t := Ticket{
				ID:            uuid.NewString(),
				TicketCode:    newTicketCode(),
				EventID:       p.EventID,
				UserID:        p.UserID,
				PaymentID:     p.ID,
				FirstName:     meta.FirstName,
				LastName:      meta.LastName,
				Email:         meta.Email,
				Phone:         meta.Phone,
				UnitPrice:     unitShares[i],
				TotalPrice:    totalShares[i],
				PlatformFee:   platformShares[i],
				ProcessingFee: processingShares[i],
				Status:        TicketConfirmed,
				PurchasedAt:   now,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := tx.WithContext(ctx).Create(&t).Error; err != nil {
				return err
			}
			tickets = append(tickets, t)
		}

		return s.scheduler.ScheduleInTx(ctx, tx, SchedulePayoutInput{
			OrganizerID:     ev.OrganizerID,
			PaymentID:       p.ID,
			EventID:         ev.ID,
			StripeAccountID: p.OrganizerStripeAccountID,
			Amount:          p.OrganizerAmount,
			Currency:        currencyUSD,
			ScheduledFor:    ev.PayoutDue(),
		})
	})
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// ReconcileFailed marks a pending Payment failed and releases its inventory
// reservation. Succeeded is sticky: a late failure notification against a
// succeeded (or refunded) payment is a no-op.
func (s *Service) ReconcileFailed(ctx context.Context, intentID, reason string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p Payment
		if err := tx.WithContext(ctx).First(&p, "stripe_payment_intent_id = ?", intentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPaymentNotFound
			}
			return err
		}
		if p.Status != StatusPending {
			return nil
		}

		if reason == "" {
			reason = "payment failed"
		}
		res := tx.WithContext(ctx).Model(&Payment{}).
			Where("id = ? AND status = ?", p.ID, StatusPending).
			Updates(map[string]any{
				"status":         StatusFailed,
				"failure_reason": truncate(reason, 250),
				"updated_at":     time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		var meta IntentMetadata
		if err := json.Unmarshal(p.Metadata, &meta); err != nil {
			return nil
		}
		qty := meta.Quantity
		if qty < 1 {
			qty = 1
		}
		return events.ReleaseInTx(ctx, tx, p.EventID, qty)
	})
}

type RefundResult struct {
	RefundID string
	Amount   int64
}

// RefundTicket refunds one ticket's full price (processing fee included)
// against the original charge. Only the owner may refund, only before the
// event starts, and only tickets that are still confirmed. The payment's
// pending payout, if any, is cancelled — the organizer is never paid for
// refunded admission.
//
// Phase 1 claims the ticket row before any provider call: the conditional
// confirmed→refunded flip is what stops two concurrent requests from both
// reaching Stripe for the same ticket. If the provider then refuses, the
// claim is rolled back.
func (s *Service) RefundTicket(ctx context.Context, ticketID, requesterID string) (RefundResult, error) {
	var t Ticket
	if err := s.db.WithContext(ctx).First(&t, "id = ?", ticketID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RefundResult{}, ErrTicketNotFound
		}
		return RefundResult{}, err
	}

	if t.UserID != requesterID {
		return RefundResult{}, ErrNotTicketOwner
	}
	if t.Status != TicketConfirmed {
		return RefundResult{}, ErrTicketNotRefundable
	}

	var p Payment
	if err := s.db.WithContext(ctx).First(&p, "id = ?", t.PaymentID).Error; err != nil {
		return RefundResult{}, err
	}

	ev, err := s.findEvent(ctx, s.db, t.EventID)
	if err != nil {
		return RefundResult{}, err
	}
	if !ev.StartDate.After(time.Now()) {
		return RefundResult{}, ErrEventAlreadyStarted
	}

	res := s.db.WithContext(ctx).Model(&Ticket{}).
		Where("id = ? AND status = ?", t.ID, TicketConfirmed).
		Updates(map[string]any{
			"status":     TicketRefunded,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return RefundResult{}, res.Error
	}
	if res.RowsAffected == 0 {
		return RefundResult{}, ErrTicketNotRefundable
	}

	resp, perr := s.gateway.RefundIntent(ctx, RefundIntentRequest{
		PaymentIntentID: p.StripePaymentIntentID,
		Amount:          t.TotalPrice,
	})
	if perr != nil {
		if rerr := s.db.WithContext(ctx).Model(&Ticket{}).
			Where("id = ? AND status = ?", t.ID, TicketRefunded).
			Updates(map[string]any{
				"status":     TicketConfirmed,
				"updated_at": time.Now(),
			}).Error; rerr != nil {
			s.logger.ErrorContext(ctx, "failed to release refund claim",
				"ticket_id", t.ID, "error", rerr)
		}
		return RefundResult{}, fmt.Errorf("%w: %s", ErrProviderUnavailable, perr.Error())
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := events.ReleaseInTx(ctx, tx, t.EventID, 1); err != nil {
			return err
		}
		return s.scheduler.CancelPendingInTx(ctx, tx, t.PaymentID)
	})
	if err != nil {
		return RefundResult{}, err
	}

	return RefundResult{RefundID: resp.RefundID, Amount: resp.Amount}, nil
}

// FindByChargeID locates a payment for charge-level webhook events.
func (s *Service) FindByChargeID(ctx context.Context, chargeID string) (Payment, error) {
	var p Payment
	err := s.db.WithContext(ctx).First(&p, "stripe_charge_id = ?", chargeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Payment{}, ErrPaymentNotFound
	}
	return p, err
}

// MarkRefunded records a provider-side refund (full or partial) against a
// succeeded payment; cancelling the payout on full refunds is the caller's
// job since it owns the cross-module flow.
func (s *Service) MarkRefunded(ctx context.Context, paymentID string, full bool) error {
	status := StatusPartiallyRefunded
	if full {
		status = StatusRefunded
	}
	return s.db.WithContext(ctx).Model(&Payment{}).
		Where("id = ? AND status IN ?", paymentID,
			[]string{StatusSucceeded, StatusPartiallyRefunded}).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}

// BackfillOrganizerAccount attaches a newly-onboarded organizer's account
// reference to succeeded payments that captured a null decision at intent
// time, so their still-unsettled payouts can route automatically.
func (s *Service) BackfillOrganizerAccount(ctx context.Context, organizerID, accountRef string) (int64, error) {
	eventIDs := s.db.Model(&events.Event{}).Select("id").Where("organizer_id = ?", organizerID)
	res := s.db.WithContext(ctx).Model(&Payment{}).
		Where("organizer_stripe_account_id IS NULL AND status = ? AND event_id IN (?)",
			StatusSucceeded, eventIDs).
		Updates(map[string]any{
			"organizer_stripe_account_id": accountRef,
			"updated_at":                  time.Now(),
		})
	return res.RowsAffected, res.Error
}

// ExpireStaleIntents releases inventory held by abandoned pending intents.
// A timeout or ambiguous provider response never fails a payment eagerly
// (the webhook stays the source of truth), so carts that were simply closed
// would otherwise pin tickets forever. Meant to run from the payout cron.
func (s *Service) ExpireStaleIntents(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	var stale []Payment
	if err := s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", StatusPending, cutoff).
		Find(&stale).Error; err != nil {
		return 0, err
	}

	expired := 0
	for _, p := range stale {
		if !strings.HasPrefix(p.StripePaymentIntentID, intentPlaceholderPrefix) {
			if err := s.gateway.CancelIntent(ctx, p.StripePaymentIntentID); err != nil {
				// The intent may have completed in the meantime; leave it for
				// the webhook rather than guessing.
				s.logger.WarnContext(ctx, "could not cancel stale intent",
					"payment_id", p.ID, "err", err)
				continue
			}
		}
		if err := s.ReconcileFailed(ctx, p.StripePaymentIntentID, "intent expired"); err != nil {
			s.logger.ErrorContext(ctx, "failed to expire stale intent",
				"payment_id", p.ID, "err", err)
			continue
		}
		expired++
	}
	return expired, nil
}

func (s *Service) findEvent(ctx context.Context, db *gorm.DB, eventID string) (events.Event, error) {
	var ev events.Event
	err := db.WithContext(ctx).First(&ev, "id = ?", eventID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return events.Event{}, ErrEventNotFound
	}
	return ev, err
}

func (s *Service) loadTickets(ctx context.Context, tx *gorm.DB, paymentID string, out *[]Ticket) error {
	return tx.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at ASC").
		Find(out).Error
}

func newTicketCode() string {
	return "TKT-" + strings.ToUpper(uuid.NewString()[:8])
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}

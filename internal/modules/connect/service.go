package connect

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/payments"
)

type Service struct {
	db          *gorm.DB
	gateway     AccountGateway
	frontendURL string
	logger      *slog.Logger
}

func NewService(db *gorm.DB, gw AccountGateway, frontendURL string) *Service {
	return &Service{db: db, gateway: gw, frontendURL: frontendURL, logger: slog.Default()}
}

func (s *Service) SetLogger(logger *slog.Logger) { s.logger = logger }

type OnboardingResult struct {
	AccountID     string
	OnboardingURL string
}

type StartOnboardingInput struct {
	UserID       string
	Email        string
	BusinessName string
	BusinessType string
}

// StartOnboarding creates the organizer's express account on first call and
// hands back a fresh onboarding link. Calling it again before onboarding
// finishes just mints a new link for the existing account; links expire,
// accounts do not. A fully-onboarded organizer asking again is rejected.
func (s *Service) StartOnboarding(ctx context.Context, in StartOnboardingInput) (OnboardingResult, error) {
	var acc Account
	err := s.db.WithContext(ctx).First(&acc, "user_id = ?", in.UserID).Error
	switch {
	case err == nil:
		if acc.FullyEnabled() {
			return OnboardingResult{}, ErrAlreadyOnboarded
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		state, gerr := s.gateway.CreateExpressAccount(ctx, CreateAccountRequest{
			Email:        in.Email,
			Country:      "US",
			UserID:       in.UserID,
			BusinessName: in.BusinessName,
			BusinessType: in.BusinessType,
		})
		if gerr != nil {
			return OnboardingResult{}, gerr
		}
		now := time.Now()
		acc = Account{
			ID:              uuid.NewString(),
			UserID:          in.UserID,
			StripeAccountID: state.AccountID,
			BusinessName:    optional(in.BusinessName),
			BusinessType:    optional(in.BusinessType),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if cerr := s.db.WithContext(ctx).Create(&acc).Error; cerr != nil {
			return OnboardingResult{}, cerr
		}
		s.logger.InfoContext(ctx, "connect account created",
			"user_id", in.UserID, "account_id", state.AccountID)
	default:
		return OnboardingResult{}, err
	}

	return s.onboardingLink(ctx, acc.StripeAccountID)
}

// RefreshOnboardingLink mints a new onboarding link for an existing,
// not-yet-complete account; the hosted flow's links are short-lived.
func (s *Service) RefreshOnboardingLink(ctx context.Context, userID string) (OnboardingResult, error) {
	var acc Account
	if err := s.db.WithContext(ctx).First(&acc, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return OnboardingResult{}, ErrNoAccount
		}
		return OnboardingResult{}, err
	}
	if acc.FullyEnabled() {
		return OnboardingResult{}, ErrAlreadyOnboarded
	}
	return s.onboardingLink(ctx, acc.StripeAccountID)
}

func (s *Service) onboardingLink(ctx context.Context, accountID string) (OnboardingResult, error) {
	link, err := s.gateway.CreateOnboardingLink(ctx, OnboardingLinkRequest{
		AccountID:  accountID,
		RefreshURL: s.frontendURL + "/organizer/onboarding/refresh",
		ReturnURL:  s.frontendURL + "/organizer/onboarding/complete",
	})
	if err != nil {
		return OnboardingResult{}, err
	}
	return OnboardingResult{AccountID: accountID, OnboardingURL: link}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

type StatusResult struct {
	HasAccount         bool
	AccountID          string
	OnboardingComplete bool
	ChargesEnabled     bool
	PayoutsEnabled     bool
	FullyEnabled       bool
}

// Status reconciles the local row against live provider state before
// answering, so a user polling after finishing the hosted flow sees the
// flip without waiting for the webhook.
func (s *Service) Status(ctx context.Context, userID string) (StatusResult, error) {
	var acc Account
	if err := s.db.WithContext(ctx).First(&acc, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return StatusResult{HasAccount: false}, nil
		}
		return StatusResult{}, err
	}

	state, err := s.gateway.RetrieveAccount(ctx, acc.StripeAccountID)
	if err != nil {
		// Provider being down should not hide what we already know.
		s.logger.WarnContext(ctx, "account retrieval failed, serving cached state",
			"account_id", acc.StripeAccountID, "err", err)
		return statusOf(acc), nil
	}

	if _, err := s.applyState(ctx, &acc, state); err != nil {
		return StatusResult{}, err
	}
	return statusOf(acc), nil
}

func statusOf(acc Account) StatusResult {
	return StatusResult{
		HasAccount:         true,
		AccountID:          acc.StripeAccountID,
		OnboardingComplete: acc.OnboardingComplete,
		ChargesEnabled:     acc.ChargesEnabled,
		PayoutsEnabled:     acc.PayoutsEnabled,
		FullyEnabled:       acc.FullyEnabled(),
	}
}

// SyncFromWebhook applies an account.updated event. It returns the owning
// user ID and whether this update took the account from not-fully-enabled to
// fully enabled, which is the trigger for payout migration and backfill.
func (s *Service) SyncFromWebhook(ctx context.Context, state AccountState) (userID string, becameEnabled bool, err error) {
	var acc Account
	if err := s.db.WithContext(ctx).First(&acc, "stripe_account_id = ?", state.AccountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, ErrAccountNotFound
		}
		return "", false, err
	}

	becameEnabled, err = s.applyState(ctx, &acc, state)
	if err != nil {
		return "", false, err
	}
	return acc.UserID, becameEnabled, nil
}

func (s *Service) applyState(ctx context.Context, acc *Account, state AccountState) (becameEnabled bool, err error) {
	wasEnabled := acc.FullyEnabled()

	acc.OnboardingComplete = state.DetailsSubmitted
	acc.ChargesEnabled = state.ChargesEnabled
	acc.PayoutsEnabled = state.PayoutsEnabled
	acc.UpdatedAt = time.Now()

	if err := s.db.WithContext(ctx).Model(&Account{}).
		Where("id = ?", acc.ID).
		Updates(map[string]any{
			"onboarding_complete": acc.OnboardingComplete,
			"charges_enabled":     acc.ChargesEnabled,
			"payouts_enabled":     acc.PayoutsEnabled,
			"updated_at":          acc.UpdatedAt,
		}).Error; err != nil {
		return false, err
	}

	return !wasEnabled && acc.FullyEnabled(), nil
}

// DashboardLink returns a login link to the express dashboard; only
// available once onboarding is done.
func (s *Service) DashboardLink(ctx context.Context, userID string) (string, error) {
	var acc Account
	if err := s.db.WithContext(ctx).First(&acc, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNoAccount
		}
		return "", err
	}
	if !acc.OnboardingComplete {
		return "", ErrOnboardingRequired
	}
	return s.gateway.CreateDashboardLink(ctx, acc.StripeAccountID)
}

// FullyEnabledAccountRef returns the organizer's account reference if their
// connected account can receive transfers, nil otherwise.
func (s *Service) FullyEnabledAccountRef(ctx context.Context, organizerID string) (*string, error) {
	var acc Account
	if err := s.db.WithContext(ctx).First(&acc, "user_id = ?", organizerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !acc.FullyEnabled() {
		return nil, nil
	}
	ref := acc.StripeAccountID
	return &ref, nil
}

var _ payments.AccountDirectory = (*Service)(nil)

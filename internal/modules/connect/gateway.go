package connect

import "context"

type CreateAccountRequest struct {
	Email        string
	Country      string
	UserID       string
	BusinessName string
	BusinessType string
}

type AccountState struct {
	AccountID         string
	DetailsSubmitted  bool
	ChargesEnabled    bool
	PayoutsEnabled    bool
	DisabledReason    string
	CurrentlyDueCount int
}

type OnboardingLinkRequest struct {
	AccountID  string
	RefreshURL string
	ReturnURL  string
}

// AccountGateway is the slice of the provider's Connect API this module
// needs: express account creation, state retrieval and onboarding links.
type AccountGateway interface {
	CreateExpressAccount(ctx context.Context, req CreateAccountRequest) (AccountState, error)
	RetrieveAccount(ctx context.Context, accountID string) (AccountState, error)
	CreateOnboardingLink(ctx context.Context, req OnboardingLinkRequest) (string, error)
	CreateDashboardLink(ctx context.Context, accountID string) (string, error)
}

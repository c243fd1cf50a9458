// internal/clients/subscription/config.go
package subscription

import (
	"transcript-client/internal/common/config"
	"transcript-client/internal/models"
)

const (
	// Path is the backend route that changes the account tier.
	Path = "api/auth/upgrade"

	SuccessMessage       = "Subscription upgraded successfully!"
	GenericErrorMessage  = "An error occurred. Please try again."
	LoginRequiredMessage = "You must be logged in to upgrade."
	unsupportedTierFmt   = "Unsupported account type: %s"
)

// SuggestedTiers are the account types the web client offered. They are
// completion hints only; the backend decides which tiers exist.
var SuggestedTiers = []string{models.AccountTypeFree, models.AccountTypePaid}

type Config struct {
	// GuardInFlight rejects a second Upgrade while one is pending.
	GuardInFlight bool
	// AllowedTiers, when non-empty, rejects other tiers before any backend
	// call. Empty sends every tier as given.
	AllowedTiers []string
}

func DefaultConfig() Config {
	return Config{GuardInFlight: true}
}

// LoadConfig maps the upgrade section of the client configuration.
func LoadConfig(cfg config.UpgradeConfig) Config {
	return Config{
		GuardInFlight: cfg.GuardInFlight,
		AllowedTiers:  append([]string(nil), cfg.AllowedTiers...),
	}
}

// internal/clients/subscription/models.go
package subscription

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	remote "transcript-client/internal/common/http"
	"transcript-client/internal/models"
)

// State is the visible progress of the upgrade flow.
type State int

const (
	StateIdle State = iota
	StatePending
)

func (s State) String() string {
	if s == StatePending {
		return "pending"
	}
	return "idle"
}

// Executor is the part of the remote client this package needs.
type Executor interface {
	BuildTarget(path string, query url.Values) string
	Execute(ctx context.Context, req remote.Request) remote.Outcome
}

// CredentialStore reads the current token and persists a refreshed pair.
type CredentialStore interface {
	Token(ctx context.Context) (string, error)
	Commit(ctx context.Context, token string, user json.RawMessage) error
}

// IdentitySetter replaces the in-memory identity.
type IdentitySetter interface {
	Set(*models.Identity)
}

// Recorder receives one observation per settled upgrade.
type Recorder interface {
	RecordUpgradeAttempt(ctx context.Context, result string, duration time.Duration)
}

// internal/clients/subscription/client.go
package subscription

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"transcript-client/internal/common/errors"
	remote "transcript-client/internal/common/http"
	"transcript-client/internal/common/logger"
	"transcript-client/internal/common/observability"
	"transcript-client/internal/common/validation"
	"transcript-client/internal/models"
)

// ErrUpgradeInProgress is returned when GuardInFlight is set and another
// upgrade has not settled yet. No state changes.
var ErrUpgradeInProgress = stderrors.New("upgrade already in progress")

var responseSchema = validation.MustValidator(validation.UpgradeResponseSchema)

// Client drives the tier change flow and exposes its state for display.
type Client struct {
	remote  Executor
	creds   CredentialStore
	ident   IdentitySetter
	cfg     Config
	allowed map[string]struct{}
	logger  logger.Logger
	obs     Recorder

	mu             sync.RWMutex
	inFlight       int
	errorMessage   string
	successMessage string
}

func NewClient(remote Executor, creds CredentialStore, ident IdentitySetter, cfg Config, log logger.Logger, obs Recorder) (*Client, error) {
	if remote == nil || creds == nil || ident == nil {
		return nil, errors.NewInvalidConfigError("upgrade client needs a remote executor, a credential store and an identity setter")
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	if obs == nil {
		obs = observability.NewNoop()
	}

	allowed := make(map[string]struct{}, len(cfg.AllowedTiers))
	for _, tier := range cfg.AllowedTiers {
		if tier = strings.TrimSpace(tier); tier != "" {
			allowed[tier] = struct{}{}
		}
	}

	return &Client{
		remote:  remote,
		creds:   creds,
		ident:   ident,
		cfg:     cfg,
		allowed: allowed,
		logger:  log.Named("subscription"),
		obs:     obs,
	}, nil
}

// ==========================
// State accessors
// ==========================

func (c *Client) Pending() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.inFlight > 0
}

func (c *Client) State() State {
	if c.Pending() {
		return StatePending
	}
	return StateIdle
}

// ErrorMessage is the text of the last failure, "" when none.
func (c *Client) ErrorMessage() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.errorMessage
}

// SuccessMessage is set after a completed upgrade, "" otherwise.
func (c *Client) SuccessMessage() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.successMessage
}

// ==========================
// Upgrade flow
// ==========================

// Upgrade asks the backend to move the account to tier using token, then
// persists the refreshed token and user and updates the in-memory identity.
// The outcome is reflected in ErrorMessage/SuccessMessage and also returned.
func (c *Client) Upgrade(ctx context.Context, tier, token string) error {
	return c.run(ctx, tier, func(context.Context) (string, error) {
		return token, nil
	})
}

// UpgradeWithStoredToken reads the bearer token from durable storage.
func (c *Client) UpgradeWithStoredToken(ctx context.Context, tier string) error {
	return c.run(ctx, tier, c.creds.Token)
}

func (c *Client) run(ctx context.Context, tier string, tokenFn func(context.Context) (string, error)) (err error) {
	if !c.begin() {
		c.logger.Warn("upgrade ignored, another upgrade is pending", map[string]interface{}{
			"accountType": tier,
		})
		return ErrUpgradeInProgress
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("upgrade panicked", map[string]interface{}{
				"accountType": tier,
				"panic":       fmt.Sprint(r),
			})
			c.setError(GenericErrorMessage)
			err = errors.Normalize(fmt.Errorf("panic during upgrade: %v", r))
		}
		c.finish()
		c.obs.RecordUpgradeAttempt(ctx, resultLabel(err), time.Since(start))
	}()

	if !c.tierAllowed(tier) {
		msg := fmt.Sprintf(unsupportedTierFmt, tier)
		c.setError(msg)
		return errors.NewInvalidInputError(msg)
	}

	token, err := tokenFn(ctx)
	if err != nil {
		return c.tokenUnavailable(err)
	}

	out := c.remote.Execute(ctx, remote.Request{
		Method:          http.MethodPost,
		Target:          c.remote.BuildTarget(Path, nil),
		Body:            models.UpgradeRequest{AccountType: tier},
		Headers:         map[string]string{"Authorization": "Bearer " + token},
		FallbackMessage: GenericErrorMessage,
	})
	if !out.OK() {
		return c.reject(tier, out.Failure)
	}

	resp, ident, failure := decodeResponse(out.Payload)
	if failure != nil {
		return c.reject(tier, failure)
	}

	if err := c.creds.Commit(ctx, resp.Token, resp.User); err != nil {
		c.logger.WithError(err).Error("failed to persist upgraded credentials", map[string]interface{}{
			"accountType": tier,
		})
		c.setError(GenericErrorMessage)
		return err
	}

	c.applyIdentity(ident)
	c.setSuccess(SuccessMessage)

	c.logger.Info("subscription upgraded", map[string]interface{}{
		"accountType": ident.AccountType,
		"userId":      ident.ID,
	})
	return nil
}

func (c *Client) tierAllowed(tier string) bool {
	if len(c.allowed) == 0 {
		return true
	}
	_, ok := c.allowed[tier]
	return ok
}

// applyIdentity runs after storage is committed. A fault here is logged and
// does not turn the upgrade into a failure.
func (c *Client) applyIdentity(ident *models.Identity) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("in-memory identity update panicked after commit", map[string]interface{}{
				"userId": ident.ID,
				"panic":  fmt.Sprint(r),
			})
		}
	}()
	c.ident.Set(ident)
}

// begin enters Pending and clears both messages. It reports false when the
// guard is on and a call is already pending.
func (c *Client) begin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg.GuardInFlight && c.inFlight > 0 {
		return false
	}
	c.inFlight++
	c.errorMessage = ""
	c.successMessage = ""
	return true
}

func (c *Client) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight > 0 {
		c.inFlight--
	}
}

func (c *Client) setError(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorMessage = msg
	c.successMessage = ""
}

func (c *Client) setSuccess(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successMessage = msg
	c.errorMessage = ""
}

// reject stores the backend's own text for labelled rejections and the
// generic text for everything else.
func (c *Client) reject(tier string, failure *errors.StandardError) error {
	msg := GenericErrorMessage
	if failure.Code == errors.ErrCodeBackendRejection {
		msg = failure.Message
	}
	c.logger.Error("upgrade failed", map[string]interface{}{
		"accountType": tier,
		"errorCode":   string(failure.Code),
		"status":      failure.StatusCode,
		"retryable":   failure.Retryable,
		"details":     failure.Details,
	})
	c.setError(msg)
	return failure
}

func (c *Client) tokenUnavailable(err error) error {
	if errors.CodeOf(err) == errors.ErrCodeNotAuthenticated {
		c.logger.Warn("upgrade attempted without a stored token", nil)
		c.setError(LoginRequiredMessage)
		return err
	}
	c.logger.WithError(err).Error("failed to read stored token", nil)
	c.setError(GenericErrorMessage)
	return err
}

func decodeResponse(payload json.RawMessage) (*models.UpgradeResponse, *models.Identity, *errors.StandardError) {
	if res := responseSchema.Validate(payload); !res.Valid {
		msg := "Unexpected upgrade payload from backend"
		if res.HasErrors("user") {
			msg = "Unexpected user in upgrade payload"
		}
		return nil, nil, errors.NewMalformedResponseError(msg, res.Summary())
	}

	var resp models.UpgradeResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, nil, errors.NewMalformedResponseError("Unexpected upgrade payload from backend", err.Error())
	}

	ident, err := models.ParseIdentity(resp.User)
	if err != nil {
		return nil, nil, errors.NewMalformedResponseError("Unexpected user in upgrade payload", err.Error())
	}
	return &resp, ident, nil
}

func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	return strings.ToLower(string(errors.CodeOf(err)))
}

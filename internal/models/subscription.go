package models

import "encoding/json"

// Account tiers offered by the upgrade form.
const (
	AccountTypeFree = "free"
	AccountTypePaid = "paid"
)

// UpgradeRequest is the body of the upgrade call.
type UpgradeRequest struct {
	AccountType string `json:"accountType"`
}

// UpgradeResponse is a successful upgrade payload. User stays raw so it can
// be persisted byte for byte.
type UpgradeResponse struct {
	Token string          `json:"token"`
	User  json.RawMessage `json:"user"`
}

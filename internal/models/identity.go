package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Identity is the signed-in user as the backend describes it. Fields other
// than the three the client reads are kept in Extra so a round trip through
// storage loses nothing.
type Identity struct {
	ID          string                     `json:"id"`
	Email       string                     `json:"email"`
	AccountType string                     `json:"accountType"`
	Extra       map[string]json.RawMessage `json:"-"`
}

var knownIdentityFields = map[string]struct{}{
	"id":          {},
	"email":       {},
	"accountType": {},
}

// UnmarshalJSON accepts an id sent as a string or as a bare scalar.
func (i *Identity) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return fmt.Errorf("identity must be a JSON object")
	}

	out := Identity{}
	for name, raw := range fields {
		switch name {
		case "id":
			out.ID = scalarString(raw)
		case "email":
			if err := json.Unmarshal(raw, &out.Email); err != nil {
				return fmt.Errorf("identity email: %w", err)
			}
		case "accountType":
			if err := json.Unmarshal(raw, &out.AccountType); err != nil {
				return fmt.Errorf("identity accountType: %w", err)
			}
		default:
			if out.Extra == nil {
				out.Extra = make(map[string]json.RawMessage)
			}
			out.Extra[name] = append(json.RawMessage(nil), raw...)
		}
	}

	*i = out
	return nil
}

func (i Identity) MarshalJSON() ([]byte, error) {
	fields := make(map[string]interface{}, len(i.Extra)+3)
	for name, raw := range i.Extra {
		if _, known := knownIdentityFields[name]; known {
			continue
		}
		fields[name] = raw
	}
	fields["id"] = i.ID
	fields["email"] = i.Email
	fields["accountType"] = i.AccountType
	return json.Marshal(fields)
}

// Clone returns a deep copy.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	if i.Extra != nil {
		c.Extra = make(map[string]json.RawMessage, len(i.Extra))
		for k, v := range i.Extra {
			c.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return &c
}

// ParseIdentity decodes a stored or received user object.
func ParseIdentity(raw json.RawMessage) (*Identity, error) {
	var ident Identity
	if err := json.Unmarshal(raw, &ident); err != nil {
		return nil, err
	}
	return &ident, nil
}

func scalarString(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s
	}
	return string(trimmed)
}

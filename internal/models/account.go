package models

import "time"

// ConnectionState is the lifecycle state of an ads account connection.
type ConnectionState string

const (
	StateUnvalidated  ConnectionState = "unvalidated"
	StateValidated    ConnectionState = "validated"
	StateConnected    ConnectionState = "connected"
	StateAnalyzing    ConnectionState = "analyzing"
	StateDisconnected ConnectionState = "disconnected"
)

// Credentials are the OAuth tokens granted for an ads account.
type Credentials struct {
	AccessToken    string    `json:"-"`
	RefreshToken   string    `json:"-"`
	TokenExpiresAt time.Time `json:"token_expires_at"`
}

// Empty reports whether no access token is stored.
func (c Credentials) Empty() bool {
	return c.AccessToken == ""
}

// AdsAccount is a tenant's connection to an external ads account.
// CustomerID is the ten digit client account id without dashes;
// LoginCustomerID is set when access goes through a manager account.
// TimeZone is the account's IANA reporting time zone; report dates are
// expressed in it.
type AdsAccount struct {
	ID              string          `json:"id"`
	TenantID        string          `json:"tenant_id"`
	CustomerID      string          `json:"customer_id"`
	LoginCustomerID string          `json:"login_customer_id,omitempty"`
	AccountName     string          `json:"account_name,omitempty"`
	CurrencyCode    string          `json:"currency_code,omitempty"`
	TimeZone        string          `json:"time_zone,omitempty"`
	State           ConnectionState `json:"state"`
	Credentials     Credentials     `json:"credentials"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

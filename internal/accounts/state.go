// Package accounts validates, connects and disconnects tenants' ads
// accounts and owns the connection state machine.
package accounts

import (
	"errors"
	"fmt"

	"github.com/patrickwarner/clickguard/internal/adsapi"
	"github.com/patrickwarner/clickguard/internal/models"
)

// ErrInvalidTransition is returned for a state change the lifecycle does not allow.
var ErrInvalidTransition = errors.New("invalid connection state transition")

var transitions = map[models.ConnectionState][]models.ConnectionState{
	models.StateUnvalidated:  {models.StateValidated},
	models.StateValidated:    {models.StateConnected, models.StateDisconnected},
	models.StateConnected:    {models.StateAnalyzing, models.StateDisconnected},
	models.StateAnalyzing:    {models.StateConnected, models.StateDisconnected},
	models.StateDisconnected: {models.StateValidated},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to models.ConnectionState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition returns an error wrapping ErrInvalidTransition when from may
// not move to to.
func Transition(from, to models.ConnectionState) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// APICredentials returns the credentials an ads API client needs to act on acct.
func APICredentials(acct *models.AdsAccount, developerToken string) adsapi.Credentials {
	return adsapi.Credentials{
		DeveloperToken:  developerToken,
		AccessToken:     acct.Credentials.AccessToken,
		CustomerID:      acct.CustomerID,
		LoginCustomerID: acct.LoginCustomerID,
	}
}

package accounts

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/patrickwarner/clickguard/internal/adsapi"
	"github.com/patrickwarner/clickguard/internal/db"
	"github.com/patrickwarner/clickguard/internal/models"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(models.StateUnvalidated, models.StateValidated))
	assert.True(t, CanTransition(models.StateValidated, models.StateConnected))
	assert.True(t, CanTransition(models.StateConnected, models.StateAnalyzing))
	assert.True(t, CanTransition(models.StateAnalyzing, models.StateConnected))
	assert.True(t, CanTransition(models.StateConnected, models.StateDisconnected))

	assert.False(t, CanTransition(models.StateUnvalidated, models.StateConnected))
	assert.False(t, CanTransition(models.StateDisconnected, models.StateAnalyzing))
	assert.False(t, CanTransition(models.StateValidated, models.StateAnalyzing))

	err := Transition(models.StateDisconnected, models.StateConnected)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCleanCustomerID(t *testing.T) {
	id, err := CleanCustomerID("123-456-7890")
	require.NoError(t, err)
	assert.Equal(t, "1234567890", id)

	for _, bad := range []string{"", "123-456-789", "12345678901", "abc-def-ghij"} {
		_, err := CleanCustomerID(bad)
		var ve *ValidationError
		require.True(t, errors.As(err, &ve), bad)
		assert.Equal(t, MsgInvalidFormat, ve.Message)
	}
}

func newService(fake *adsapi.Fake) (*Service, *db.MemoryStore) {
	store := db.NewMemoryStore()
	return NewService(store, fake, "dev-token", zap.NewNop()), store
}

func validationMessage(t *testing.T, err error) string {
	t.Helper()
	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
	return ve.Message
}

func TestValidateDirectAccess(t *testing.T) {
	fake := &adsapi.Fake{
		ProbeFunc: func(c adsapi.Credentials) (*adsapi.Customer, error) {
			return &adsapi.Customer{ID: c.CustomerID, DescriptiveName: "Shop", CurrencyCode: "EUR", TimeZone: "America/New_York"}, nil
		},
	}
	svc, _ := newService(fake)

	v, err := svc.Validate(context.Background(), ConnectRequest{CustomerID: "123-456-7890", AccessToken: "tok"})
	require.NoError(t, err)
	assert.Equal(t, "1234567890", v.CustomerID)
	assert.Empty(t, v.LoginCustomerID)
	assert.Equal(t, "Shop", v.AccountName)
	assert.Equal(t, "America/New_York", v.TimeZone)

	probes := fake.Probes()
	require.Len(t, probes, 1)
	assert.Equal(t, "dev-token", probes[0].DeveloperToken)
}

func TestValidateManagerAccount(t *testing.T) {
	fake := &adsapi.Fake{
		ProbeFunc: func(adsapi.Credentials) (*adsapi.Customer, error) {
			return nil, &adsapi.APIError{
				StatusCode: 400,
				Codes:      []string{"queryError:REQUESTED_METRICS_FOR_MANAGER"},
				Message:    "Metrics cannot be requested for a manager account.",
			}
		},
	}
	svc, _ := newService(fake)

	_, err := svc.Validate(context.Background(), ConnectRequest{CustomerID: "1234567890", AccessToken: "tok"})
	assert.Equal(t, MsgManagerAccount, validationMessage(t, err))
}

func TestValidateRetriesThroughManagers(t *testing.T) {
	fake := &adsapi.Fake{
		ProbeFunc: func(c adsapi.Credentials) (*adsapi.Customer, error) {
			if c.LoginCustomerID == "2222222222" {
				return &adsapi.Customer{ID: c.CustomerID}, nil
			}
			return nil, &adsapi.APIError{StatusCode: 403, Codes: []string{"authorizationError:USER_PERMISSION_DENIED"}}
		},
		ListFunc: func(adsapi.Credentials) ([]string, error) {
			return []string{"1111111111", "1234567890", "2222222222", "3333333333"}, nil
		},
	}
	svc, _ := newService(fake)

	v, err := svc.Validate(context.Background(), ConnectRequest{CustomerID: "1234567890", AccessToken: "tok"})
	require.NoError(t, err)
	assert.Equal(t, "2222222222", v.LoginCustomerID)

	probes := fake.Probes()
	require.Len(t, probes, 3)
	assert.Equal(t, "1111111111", probes[1].LoginCustomerID)
}

func TestValidateNoManagerWorks(t *testing.T) {
	fake := &adsapi.Fake{
		ProbeFunc: func(adsapi.Credentials) (*adsapi.Customer, error) {
			return nil, &adsapi.APIError{StatusCode: 403}
		},
		ListFunc: func(adsapi.Credentials) ([]string, error) { return []string{"1111111111"}, nil },
	}
	svc, _ := newService(fake)

	_, err := svc.Validate(context.Background(), ConnectRequest{CustomerID: "1234567890", AccessToken: "tok"})
	assert.Equal(t, MsgNotAccessible, validationMessage(t, err))
}

func TestValidateOtherFailure(t *testing.T) {
	fake := &adsapi.Fake{
		ProbeFunc: func(adsapi.Credentials) (*adsapi.Customer, error) {
			return nil, &adsapi.APIError{StatusCode: 401, Message: "invalid token"}
		},
	}
	svc, _ := newService(fake)

	_, err := svc.Validate(context.Background(), ConnectRequest{CustomerID: "1234567890", AccessToken: "tok"})
	assert.Equal(t, MsgInvalid, validationMessage(t, err))

	_, err = svc.Validate(context.Background(), ConnectRequest{CustomerID: "1234567890"})
	assert.Equal(t, MsgMissingToken, validationMessage(t, err))
}

func TestConnectAndDisconnect(t *testing.T) {
	svc, store := newService(&adsapi.Fake{})
	ctx := context.Background()

	acct, err := svc.Connect(ctx, ConnectRequest{
		TenantID:     "t1",
		CustomerID:   "123-456-7890",
		AccessToken:  "tok",
		RefreshToken: "refresh",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StateConnected, acct.State)
	assert.Equal(t, "USD", acct.CurrencyCode)
	assert.Equal(t, "Ads Account 1234567890", acct.AccountName)
	assert.False(t, acct.Credentials.TokenExpiresAt.IsZero())

	stored, err := store.GetAccount(ctx, "t1", acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "tok", stored.Credentials.AccessToken)

	// reconnecting updates the same row
	again, err := svc.Connect(ctx, ConnectRequest{TenantID: "t1", CustomerID: "1234567890", AccessToken: "tok2"})
	require.NoError(t, err)
	assert.Equal(t, acct.ID, again.ID)

	require.NoError(t, svc.Disconnect(ctx, "t1", acct.ID))
	stored, err = store.GetAccount(ctx, "t1", acct.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateDisconnected, stored.State)
	assert.True(t, stored.Credentials.Empty())

	_, err = svc.Connect(ctx, ConnectRequest{TenantID: "t1", CustomerID: "1234567890", AccessToken: "tok3"})
	require.NoError(t, err)
}

func TestConnectRejectsAccountUnderAnalysis(t *testing.T) {
	svc, store := newService(&adsapi.Fake{})
	ctx := context.Background()

	acct, err := svc.Connect(ctx, ConnectRequest{TenantID: "t1", CustomerID: "1234567890", AccessToken: "tok"})
	require.NoError(t, err)
	require.NoError(t, store.UpdateAccountState(ctx, "t1", acct.ID, models.StateAnalyzing))

	_, err = svc.Connect(ctx, ConnectRequest{TenantID: "t1", CustomerID: "1234567890", AccessToken: "tok"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

package accounts

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/patrickwarner/clickguard/internal/adsapi"
	"github.com/patrickwarner/clickguard/internal/db"
	"github.com/patrickwarner/clickguard/internal/models"
)

var tracer = otel.Tracer("clickguard/accounts")

// User-facing validation messages.
const (
	MsgInvalidFormat  = "Customer ID must be 10 digits."
	MsgMissingToken   = "Missing Customer ID or access token."
	MsgManagerAccount = "This is a Manager Account ID. Please provide a specific Client Account ID."
	MsgNotAccessible  = "Customer ID is invalid or not accessible with these credentials."
	MsgInvalid        = "Invalid Customer ID or you do not have permission to access this account."
)

// tokenLifetime is assumed for access tokens stored without an explicit expiry.
const tokenLifetime = time.Hour

var customerIDPattern = regexp.MustCompile(`^[0-9]{10}$`)

// ValidationError is returned when an account cannot be validated. Message
// is safe to show to the user.
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ConnectRequest carries what the caller supplies to validate or connect an account.
type ConnectRequest struct {
	TenantID        string    `json:"tenant_id"`
	CustomerID      string    `json:"customer_id"`
	LoginCustomerID string    `json:"login_customer_id,omitempty"`
	AccessToken     string    `json:"access_token"`
	RefreshToken    string    `json:"refresh_token,omitempty"`
	TokenExpiresAt  time.Time `json:"token_expires_at,omitempty"`
	AccountName     string    `json:"account_name,omitempty"`
	CurrencyCode    string    `json:"currency_code,omitempty"`
}

// Validation is the outcome of a successful validation.
type Validation struct {
	CustomerID      string `json:"customer_id"`
	LoginCustomerID string `json:"login_customer_id,omitempty"`
	AccountName     string `json:"account_name,omitempty"`
	CurrencyCode    string `json:"currency_code,omitempty"`
	TimeZone        string `json:"time_zone,omitempty"`
}

// Service validates, connects and disconnects ads accounts.
type Service struct {
	store          db.AccountStore
	ads            adsapi.Factory
	developerToken string
	logger         *zap.Logger
}

// NewService creates a Service.
func NewService(store db.AccountStore, ads adsapi.Factory, developerToken string, logger *zap.Logger) *Service {
	return &Service{store: store, ads: ads, developerToken: developerToken, logger: logger}
}

// CleanCustomerID strips dashes and checks the id is ten digits.
func CleanCustomerID(id string) (string, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(id), "-", "")
	if !customerIDPattern.MatchString(cleaned) {
		return "", &ValidationError{Message: MsgInvalidFormat}
	}
	return cleaned, nil
}

// Validate confirms the credentials can read the customer account. When
// direct access is denied it retries through each accessible account as the
// login customer and reports the first that works.
func (s *Service) Validate(ctx context.Context, req ConnectRequest) (*Validation, error) {
	customerID, err := CleanCustomerID(req.CustomerID)
	if err != nil {
		return nil, err
	}
	if req.AccessToken == "" {
		return nil, &ValidationError{Message: MsgMissingToken}
	}
	ctx, span := tracer.Start(ctx, "accounts.Validate", trace.WithAttributes(
		attribute.String("ads.customer_id", customerID),
	))
	defer span.End()

	loginID := adsapi.NormalizeCustomerID(req.LoginCustomerID)
	creds := adsapi.Credentials{
		DeveloperToken:  s.developerToken,
		AccessToken:     req.AccessToken,
		CustomerID:      customerID,
		LoginCustomerID: loginID,
	}
	cust, err := s.ads.ForCustomer(creds).Probe(ctx)
	if err == nil {
		return validation(customerID, loginID, cust), nil
	}

	log := s.logger.With(zap.String("customer_id", customerID))
	switch {
	case adsapi.IsManagerAccountError(err):
		return nil, &ValidationError{Message: MsgManagerAccount, Err: err}
	case adsapi.IsPermissionDenied(err):
		log.Info("direct access denied, trying accessible managers", zap.Error(err))
		return s.validateViaManagers(ctx, creds, log)
	default:
		log.Warn("customer probe failed", zap.Error(err))
		return nil, &ValidationError{Message: MsgInvalid, Err: err}
	}
}

func (s *Service) validateViaManagers(ctx context.Context, creds adsapi.Credentials, log *zap.Logger) (*Validation, error) {
	accessible, err := s.ads.ForCustomer(adsapi.Credentials{
		DeveloperToken: creds.DeveloperToken,
		AccessToken:    creds.AccessToken,
	}).ListAccessibleCustomers(ctx)
	if err != nil {
		return nil, &ValidationError{Message: MsgInvalid, Err: err}
	}

	for _, loginID := range accessible {
		if loginID == creds.CustomerID {
			continue
		}
		via := creds
		via.LoginCustomerID = loginID
		cust, err := s.ads.ForCustomer(via).Probe(ctx)
		if err == nil {
			log.Info("customer reachable through manager", zap.String("login_customer_id", loginID))
			return validation(creds.CustomerID, loginID, cust), nil
		}
		if adsapi.IsManagerAccountError(err) {
			return nil, &ValidationError{Message: MsgManagerAccount, Err: err}
		}
		log.Debug("manager probe failed", zap.String("login_customer_id", loginID), zap.Error(err))
	}
	return nil, &ValidationError{Message: MsgNotAccessible}
}

func validation(customerID, loginID string, cust *adsapi.Customer) *Validation {
	v := &Validation{CustomerID: customerID, LoginCustomerID: loginID}
	if cust != nil {
		v.AccountName = cust.DescriptiveName
		v.CurrencyCode = cust.CurrencyCode
		v.TimeZone = cust.TimeZone
	}
	return v
}

// Connect validates the request and stores the account as connected.
func (s *Service) Connect(ctx context.Context, req ConnectRequest) (*models.AdsAccount, error) {
	if req.TenantID == "" {
		return nil, &ValidationError{Message: "Missing tenant."}
	}
	v, err := s.Validate(ctx, req)
	if err != nil {
		return nil, err
	}

	acct, err := s.store.FindAccountByCustomer(ctx, req.TenantID, v.CustomerID)
	switch {
	case errors.Is(err, db.ErrNotFound):
		acct = &models.AdsAccount{TenantID: req.TenantID, CustomerID: v.CustomerID, State: models.StateUnvalidated}
	case err != nil:
		return nil, fmt.Errorf("load account: %w", err)
	}

	// reconnecting refreshes tokens; an account mid-pass cannot be revalidated
	switch acct.State {
	case models.StateValidated, models.StateConnected:
	default:
		if err := Transition(acct.State, models.StateValidated); err != nil {
			return nil, err
		}
	}

	expires := req.TokenExpiresAt
	if expires.IsZero() {
		expires = time.Now().UTC().Add(tokenLifetime)
	}
	acct.LoginCustomerID = v.LoginCustomerID
	acct.AccountName = firstNonEmpty(req.AccountName, v.AccountName, "Ads Account "+v.CustomerID)
	acct.CurrencyCode = firstNonEmpty(req.CurrencyCode, v.CurrencyCode, "USD")
	acct.TimeZone = v.TimeZone
	acct.Credentials = models.Credentials{
		AccessToken:    req.AccessToken,
		RefreshToken:   req.RefreshToken,
		TokenExpiresAt: expires,
	}
	acct.State = models.StateConnected

	if err := s.store.SaveAccount(ctx, acct); err != nil {
		return nil, fmt.Errorf("save account: %w", err)
	}
	s.logger.Info("ads account connected",
		zap.String("tenant_id", acct.TenantID),
		zap.String("ads_account_id", acct.ID),
		zap.String("customer_id", acct.CustomerID),
		zap.Bool("via_manager", acct.LoginCustomerID != ""))
	return acct, nil
}

// Disconnect deletes the account's credentials. Later passes on it fail
// until it is connected again.
func (s *Service) Disconnect(ctx context.Context, tenantID, accountID string) error {
	acct, err := s.store.GetAccount(ctx, tenantID, accountID)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	if acct.State != models.StateDisconnected {
		if err := Transition(acct.State, models.StateDisconnected); err != nil {
			return err
		}
	}
	if err := s.store.ClearCredentials(ctx, tenantID, accountID); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	s.logger.Info("ads account disconnected",
		zap.String("tenant_id", tenantID),
		zap.String("ads_account_id", accountID))
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

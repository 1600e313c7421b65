package adsapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// ErrNoCredentials is returned when a call is attempted without an access
// token or customer id.
var ErrNoCredentials = errors.New("ads api credentials missing")

// APIError is a non-2xx response from the ads API.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
	// Codes holds "category:CODE" entries from the failure details,
	// e.g. "authorizationError:USER_PERMISSION_DENIED".
	Codes    []string
	Messages []string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" && len(e.Messages) > 0 {
		msg = e.Messages[0]
	}
	if e.Status != "" {
		return fmt.Sprintf("ads api %d %s: %s", e.StatusCode, e.Status, msg)
	}
	return fmt.Sprintf("ads api %d: %s", e.StatusCode, msg)
}

func (e *APIError) hasCode(code string) bool {
	for _, c := range e.Codes {
		if strings.HasSuffix(c, ":"+code) {
			return true
		}
	}
	return false
}

func (e *APIError) mentions(substr string) bool {
	if strings.Contains(strings.ToLower(e.Message), substr) {
		return true
	}
	for _, m := range e.Messages {
		if strings.Contains(strings.ToLower(m), substr) {
			return true
		}
	}
	return false
}

// IsManagerAccountError reports whether err says metrics were requested
// against a manager account.
func IsManagerAccountError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.hasCode("REQUESTED_METRICS_FOR_MANAGER") ||
		apiErr.mentions("metrics cannot be requested for a manager account")
}

// IsPermissionDenied reports whether the credential cannot reach the customer.
func IsPermissionDenied(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusForbidden ||
		apiErr.Status == "PERMISSION_DENIED" ||
		apiErr.hasCode("USER_PERMISSION_DENIED") ||
		apiErr.hasCode("CUSTOMER_NOT_ENABLED")
}

// IsRateLimited reports whether the API rejected the call for quota.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED"
}

type errorEnvelope struct {
	Error struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Status  string          `json:"status"`
		Details []failureDetail `json:"details"`
	} `json:"error"`
}

type failureDetail struct {
	Errors []struct {
		ErrorCode map[string]string `json:"errorCode"`
		Message   string            `json:"message"`
	} `json:"errors"`
}

// parseAPIError decodes an error body. Bodies that are not JSON are kept
// verbatim as the message.
func parseAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode}

	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || (env.Error.Message == "" && env.Error.Status == "") {
		apiErr.Message = strings.TrimSpace(string(body))
		return apiErr
	}

	apiErr.Status = env.Error.Status
	apiErr.Message = env.Error.Message
	for _, d := range env.Error.Details {
		for _, e := range d.Errors {
			keys := make([]string, 0, len(e.ErrorCode))
			for k := range e.ErrorCode {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				apiErr.Codes = append(apiErr.Codes, k+":"+e.ErrorCode[k])
			}
			if e.Message != "" {
				apiErr.Messages = append(apiErr.Messages, e.Message)
			}
		}
	}
	return apiErr
}

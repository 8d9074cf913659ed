package shared

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthCancelled      = fmt.Errorf("authorization cancelled")
	ErrAuthExchangeFailed = fmt.Errorf("authorization code exchange failed")
	ErrNotAuthenticated   = fmt.Errorf("not authenticated")
	ErrRefreshInvalid     = fmt.Errorf("refresh token invalid or expired")
	ErrRefreshFailed      = fmt.Errorf("token refresh failed")
	ErrCredentialStore    = fmt.Errorf("credential store failure")

	// API and service errors
	ErrCatalogRequest     = fmt.Errorf("catalog request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")

	// Social graph and review errors
	ErrGraphWriteFailed = fmt.Errorf("graph write failed")
	ErrInvalidReview    = fmt.Errorf("invalid review")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// CatalogRequestError carries the status and raw body of a non-2xx catalog response.
type CatalogRequestError struct {
	StatusCode int
	Body       []byte
}

func (e *CatalogRequestError) Error() string {
	body := strings.TrimSpace(string(e.Body))
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("%v: status %d", ErrCatalogRequest, e.StatusCode)
	}
	return fmt.Sprintf("%v: status %d: %s", ErrCatalogRequest, e.StatusCode, body)
}

// Is lets callers match any catalog failure with errors.Is(err, ErrCatalogRequest).
func (e *CatalogRequestError) Is(target error) bool {
	return target == ErrCatalogRequest
}

// IsUnauthorized reports whether err is a catalog 401.
func IsUnauthorized(err error) bool {
	var reqErr *CatalogRequestError
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode == 401
	}
	return false
}

// GraphWriteError records how far a multi-step graph mutation got before failing.
type GraphWriteError struct {
	Operation string
	Step      string
	Completed []string
	Err       error
}

func (e *GraphWriteError) Error() string {
	return fmt.Sprintf("%v: %s failed at %q after %d step(s): %v",
		ErrGraphWriteFailed, e.Operation, e.Step, len(e.Completed), e.Err)
}

func (e *GraphWriteError) Unwrap() []error {
	return []error{ErrGraphWriteFailed, e.Err}
}

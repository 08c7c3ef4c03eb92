package shipments

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrQuoteNotFound        = errors.New("quote not found")
	ErrQuoteExpired         = errors.New("quote expired")
	ErrQuoteConsumed        = errors.New("quote already consumed")
	ErrProviderUnavailable  = errors.New("provider unavailable")
	ErrMockFallbackDisabled = errors.New("provider not configured and mock fallback disabled")
	ErrSignatureInvalid     = errors.New("webhook signature invalid")
	ErrInvalidTransition    = errors.New("invalid checkout transition")
	ErrConfirmInProgress    = errors.New("confirm already in progress")
	ErrPaymentPending       = errors.New("payment still pending")
	ErrPaymentNotSettled    = errors.New("payment not settled")
	ErrBookingFailed        = errors.New("carrier booking failed")
	ErrCheckoutFailed       = errors.New("checkout failed")
	ErrAlreadyExists        = errors.New("already exists")
)

// ValidationError: input salah bentuk. Tidak pernah di-retry.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func Invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// TransientProviderError is a 5xx, 429, timeout or connection reset from an
// external service. Retryable until the attempt budget runs out.
type TransientProviderError struct {
	Service    string
	StatusCode int
	Err        error
}

func (e *TransientProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: transient status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s: transient: %v", e.Service, e.Err)
}

func (e *TransientProviderError) Unwrap() error { return e.Err }

// ProviderError is a non-retryable rejection (4xx) from an external service.
type ProviderError struct {
	Service    string
	StatusCode int
	Code       string
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: rejected with status %d: %s", e.Service, e.StatusCode, e.Message)
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsProviderRejection(err error) bool {
	var p *ProviderError
	return errors.As(err, &p)
}

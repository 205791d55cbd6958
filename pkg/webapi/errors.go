package webapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// Common errors returned by web API calls.
var (
	// ErrBadCredentials is returned when the platform rejects the login
	// credentials. Callers feed this into the lockout guard.
	ErrBadCredentials = errors.New("bad credentials")

	// ErrTOTPNeeded is returned when the account has 2FA enabled but the
	// credentials carry neither a TOTP secret nor a one-time password.
	ErrTOTPNeeded = errors.New("account requires TOTP but no secret or one-time password provided")
)

// APIError represents a web API error response with request context.
type APIError struct {
	StatusCode int
	Endpoint   string
	Body       string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("web API error on %s (status %d): %v",
			e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("web API error on %s (status %d): %s",
		e.Endpoint, e.StatusCode, e.Body)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// CheckResponse maps a web API response to an error.
//
// A 400 whose body carries the platform's bad-credentials status maps to
// ErrBadCredentials (wrapped in an APIError). Any other non-200/201 status
// maps to a plain APIError. 200 and 201 return nil.
func CheckResponse(resp *http.Response, body []byte, endpoint string) error {
	if resp.StatusCode == http.StatusBadRequest {
		status := gjson.GetBytes(body, "status")
		statusText := gjson.GetBytes(body, "statusText")
		if status.Int() == loginBadCredentials || statusText.String() == "badCredentials" {
			return &APIError{
				StatusCode: resp.StatusCode,
				Endpoint:   endpoint,
				Body:       string(body),
				Err:        ErrBadCredentials,
			}
		}
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return &APIError{
			StatusCode: resp.StatusCode,
			Endpoint:   endpoint,
			Body:       string(body),
		}
	}
	return nil
}

package server

import (
	"fmt"
	"net/http"

	oerrors "github.com/opmodel/subctl/internal/errors"
)

// GoneError reports HTTP 410: the server deleted a consumer.
// DeletedID names the consumer that was deleted, which need not be ours.
type GoneError struct {
	DeletedID string
	Message   string
}

func (e *GoneError) Error() string {
	return fmt.Sprintf("consumer %s has been deleted: %s", e.DeletedID, e.Message)
}

// ExpiredIdentityError reports that the identity certificate is no longer
// accepted because it expired.
type ExpiredIdentityError struct {
	Cause error
}

func (e *ExpiredIdentityError) Error() string {
	if e.Cause == nil {
		return "identity certificate has expired"
	}
	return fmt.Sprintf("identity certificate has expired: %v", e.Cause)
}

func (e *ExpiredIdentityError) Unwrap() error {
	return e.Cause
}

// AuthError reports HTTP 401 or 403.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("server refused request (%d %s): %s", e.Status, http.StatusText(e.Status), e.Message)
}

// Is maps AuthError onto ErrPermission.
func (e *AuthError) Is(target error) bool {
	return target == oerrors.ErrPermission
}

// RestError reports any other non-2xx response.
type RestError struct {
	Status  int
	Message string
}

func (e *RestError) Error() string {
	return fmt.Sprintf("server error (%d %s): %s", e.Status, http.StatusText(e.Status), e.Message)
}

// Is maps 404 onto ErrNotFound.
func (e *RestError) Is(target error) bool {
	return target == oerrors.ErrNotFound && e.Status == http.StatusNotFound
}

// Temporary reports whether the request may succeed if retried.
func (e *RestError) Temporary() bool {
	switch e.Status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusTooManyRequests:
		return true
	}
	return false
}

// NetworkError reports that the server could not be reached.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("unable to reach server: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Is maps NetworkError onto ErrConnectivity.
func (e *NetworkError) Is(target error) bool {
	return target == oerrors.ErrConnectivity
}

// IsFatal reports whether err must stop a reconciliation batch.
func IsFatal(err error) bool {
	switch err.(type) {
	case *GoneError, *ExpiredIdentityError:
		return true
	}
	return false
}

package errors

import "errors"

// Exit codes returned by the subctl binary.
const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError = 1

	// ExitValidationError indicates configuration or input validation failed.
	ExitValidationError = 2

	// ExitConnectivityError indicates the entitlement server was unreachable.
	ExitConnectivityError = 3

	// ExitPermissionDenied indicates the server or filesystem refused access.
	ExitPermissionDenied = 4

	// ExitNotFound indicates a certificate or server resource was not found.
	ExitNotFound = 5

	// ExitConsumerDeleted indicates the server reported this consumer deleted.
	ExitConsumerDeleted = 69

	// ExitIdentityExpired indicates the identity certificate has expired.
	ExitIdentityExpired = 70
)

// ExitError wraps an error with an exit code.
type ExitError struct {
	// Code is the process exit code.
	Code int

	// Err is the underlying error.
	Err error

	// Printed is set when the command layer has already shown the error.
	Printed bool
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	if e.Err == nil {
		return ExitCodeName(e.Code)
	}
	return e.Err.Error()
}

// Unwrap returns the wrapped error.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCodeFromSentinel maps sentinel errors to exit codes.
func ExitCodeFromSentinel(err error) int {
	var exitErr *ExitError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &exitErr):
		return exitErr.Code
	case errors.Is(err, ErrValidation):
		return ExitValidationError
	case errors.Is(err, ErrConnectivity):
		return ExitConnectivityError
	case errors.Is(err, ErrPermission):
		return ExitPermissionDenied
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNotRegistered):
		return ExitNotFound
	default:
		return ExitGeneralError
	}
}

// ExitCodeName returns the name of the exit code.
func ExitCodeName(code int) string {
	switch code {
	case ExitSuccess:
		return "Success"
	case ExitGeneralError:
		return "General Error"
	case ExitValidationError:
		return "Validation Error"
	case ExitConnectivityError:
		return "Connectivity Error"
	case ExitPermissionDenied:
		return "Permission Denied"
	case ExitNotFound:
		return "Not Found"
	case ExitConsumerDeleted:
		return "Consumer Deleted"
	case ExitIdentityExpired:
		return "Identity Expired"
	default:
		return "Unknown"
	}
}

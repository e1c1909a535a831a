// Package cmdtypes provides shared types for the cmd package and its sub-packages.
// It is separate from internal/cmd to avoid import cycles between internal/cmd
// and its sub-packages (internal/cmd/config).
package cmdtypes

import (
	"errors"
	"net/http"

	"github.com/opmodel/subctl/internal/config"
	oerrors "github.com/opmodel/subctl/internal/errors"
	"github.com/opmodel/subctl/internal/server"
)

// GlobalConfig holds CLI-wide configuration resolved during PersistentPreRunE.
// It is populated once at startup and passed explicitly into every sub-command
// constructor.
type GlobalConfig struct {
	Config     *config.Config
	ConfigPath string // resolved --config path
	Verbose    bool
}

// Exit codes, aliased from internal/errors.
const (
	ExitSuccess           = oerrors.ExitSuccess
	ExitGeneralError      = oerrors.ExitGeneralError
	ExitValidationError   = oerrors.ExitValidationError
	ExitConnectivityError = oerrors.ExitConnectivityError
	ExitPermissionDenied  = oerrors.ExitPermissionDenied
	ExitNotFound          = oerrors.ExitNotFound
	ExitConsumerDeleted   = oerrors.ExitConsumerDeleted
	ExitIdentityExpired   = oerrors.ExitIdentityExpired
)

// ExitError is a type alias to internal/errors.ExitError.
type ExitError = oerrors.ExitError

// ExitCodeFromServerError maps entitlement server errors to exit codes and
// falls back to the sentinel mapping.
func ExitCodeFromServerError(err error) int {
	var (
		gone    *server.GoneError
		expired *server.ExpiredIdentityError
		rest    *server.RestError
	)
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &gone):
		return ExitConsumerDeleted
	case errors.As(err, &expired):
		return ExitIdentityExpired
	case errors.As(err, &rest) && rest.Status == http.StatusNotFound:
		return ExitNotFound
	default:
		return oerrors.ExitCodeFromSentinel(err)
	}
}

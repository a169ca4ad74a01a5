package activation

import (
	"net/http"

	"github.com/cspline/activationsrv/internal/common/apperrors"
)

// Base activation error.
var (
	ErrActivation apperrors.Error = apperrors.New("activation error").SetStatusCode(http.StatusInternalServerError)
)

// Client-input rejections. Messages are the wire contract with the installer
// client and match what it has always displayed to users.
var (
	ErrMissingFields  apperrors.Error = ErrActivation.New("Missing required fields").SetStatusCode(http.StatusBadRequest)
	ErrInvalidKey     apperrors.Error = ErrActivation.New("Invalid license key").SetStatusCode(http.StatusBadRequest)
	ErrKeyAlreadyUsed apperrors.Error = ErrActivation.New("License key already used on another computer").SetStatusCode(http.StatusBadRequest)
)

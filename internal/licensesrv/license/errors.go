package license

import (
	"net/http"

	"github.com/cspline/activationsrv/internal/common/apperrors"
)

// Base signing error. Signing failures are always server-side faults and are
// never surfaced as client-input rejections.
var (
	ErrSigning apperrors.Error = apperrors.New("signing error").SetStatusCode(http.StatusInternalServerError)
)

var (
	ErrSigningUnavailable apperrors.Error = ErrSigning.New("Server signing error").SetStatusCode(http.StatusInternalServerError)
	ErrInvalidKeyMaterial apperrors.Error = ErrSigning.New("invalid signing key material").SetStatusCode(http.StatusInternalServerError)
	ErrEncodePayload      apperrors.Error = ErrSigning.New("unable to encode license payload").SetStatusCode(http.StatusInternalServerError)
)

// Package dberror defines the error taxonomy for the license store. Handlers
// map these onto the enumerated activation outcomes; no storage detail leaks
// past this package.
package dberror

import (
	"net/http"

	"github.com/cspline/activationsrv/internal/common/apperrors"
)

var (
	ErrDatabase      apperrors.Error = apperrors.New("db error").SetStatusCode(http.StatusInternalServerError)
	ErrNotFound      apperrors.Error = ErrDatabase.New("not found").SetStatusCode(http.StatusNotFound)
	ErrAlreadyExists apperrors.Error = ErrDatabase.New("already exists").SetStatusCode(http.StatusConflict)
	// ErrConflict is returned when a claim loses the race for an unused key:
	// the key is already bound, and the returned row carries the winner's
	// machine ID.
	ErrConflict     apperrors.Error = ErrDatabase.New("claim conflict").SetStatusCode(http.StatusConflict)
	ErrInvalidInput apperrors.Error = ErrDatabase.New("invalid input").SetStatusCode(http.StatusBadRequest)
)

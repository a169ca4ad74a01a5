// Package httpx provides HTTP request/response handling utilities shared by
// the activation and admin endpoints. It standardizes JSON parsing, response
// writing, and the mapping of application errors to HTTP responses.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cspline/activationsrv/internal/common/apperrors"
	"github.com/rs/zerolog/log"
)

// GetRequestData parses a JSON request body into data. Only POST and PUT
// carry bodies in this service; other methods are rejected.
func GetRequestData(r *http.Request, data any) error {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		return ErrReqMethodNotSupported()
	}
	if r.Body == nil {
		log.Ctx(r.Context()).Error().Msg("empty request body")
		return ErrUnableToParseReqData()
	}
	if err := json.NewDecoder(r.Body).Decode(data); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return ErrRequestTooLarge(maxBytesErr.Limit)
		}
		return ErrUnableToParseReqData()
	}
	return nil
}

// Response represents a handler result with a status code and a JSON-encodable
// body. Location is set as a header on 201 responses.
type Response struct {
	StatusCode int
	Location   string
	Response   any
}

// RequestHandler is the handler signature used throughout the service.
// Handlers return either a Response or an error; the wrapper turns both into
// wire responses.
type RequestHandler func(r *http.Request) (*Response, error)

// WrapHttpRsp adapts a RequestHandler into an http.HandlerFunc with
// standardized error handling. apperrors carry their own status codes;
// anything else becomes an opaque 500 so internal details never leak.
func WrapHttpRsp(handler RequestHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rsp, err := handler(r)
		if err != nil {
			if httperror, ok := err.(*Error); ok {
				httperror.Send(w)
			} else if appErr, ok := err.(apperrors.Error); ok {
				SendError(w, appErr)
			} else {
				log.Ctx(r.Context()).Error().Err(err).Msg("unhandled handler error")
				ErrApplicationError().Send(w)
			}
			return
		}
		if rsp == nil {
			ErrApplicationError().Send(w)
			return
		}
		var location []string
		if rsp.Location != "" {
			location = append(location, rsp.Location)
		}
		SendJsonRsp(r.Context(), w, rsp.StatusCode, rsp.Response, location...)
	}
}

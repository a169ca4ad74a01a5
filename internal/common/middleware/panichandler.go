package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/cspline/activationsrv/internal/common/httpx"
	"github.com/rs/zerolog/log"
)

// PanicHandler recovers from panics in HTTP handlers. When a panic occurs it
// logs the panic and stack trace, then returns a generic error response so the
// server keeps running even if an individual request panics.
func PanicHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := httpx.NewResponseWriter(w)
		defer func() {
			if err := recover(); err != nil {
				stack := debug.Stack()

				log.Ctx(r.Context()).Error().
					Str("panic", fmt.Sprintf("%v", err)).
					Str("stack_trace", string(stack)).
					Msg("panic occurred")

				if !rw.Written() {
					httpx.ErrApplicationError().Send(rw)
				}
			}
		}()
		next.ServeHTTP(rw, r)
	})
}

package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"helios-hq/relay/pkg/proxy"
	"helios-hq/relay/pkg/proxy/types"
)

// Recovery converts handler panics into a 500 envelope. The stack trace is
// logged server-side and never reaches the client.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				requestID := GetRequestID(r.Context())

				slog.Error("panic recovered in handler",
					"request_id", requestID,
					"panic", rec,
					"stack", string(debug.Stack()),
				)

				errResp := types.NewError(types.ErrorTypeInternal,
					"An internal error occurred.", types.CodeInternalError, requestID)
				proxy.WriteErrorResponse(w, errResp)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

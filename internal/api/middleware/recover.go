package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/newthinker/candlescope/internal/api/response"
	"go.uber.org/zap"
)

// Recover turns a handler panic into a 500 and logs the stack. Upgraded
// connections are not written to.
func Recover(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("handler panic",
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()),
				)
				if r.Header.Get("Upgrade") == "" {
					response.Error(w, http.StatusInternalServerError, nil)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

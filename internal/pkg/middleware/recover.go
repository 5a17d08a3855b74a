package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/rfsnab/auth/internal/pkg/httpx"
	"github.com/rfsnab/auth/internal/pkg/router"
)

func Recover() router.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}

					slog.Error("internal server error",
						"error", err,
						"method", r.Method,
						"url", r.URL.Path,
						"remote_addr", r.RemoteAddr,
						"stack_trace", string(debug.Stack()),
					)

					httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

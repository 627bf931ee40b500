package httpmw

import (
	"net/http"

	"github.com/keithlinneman/strictcsp/internal/log"
	"github.com/keithlinneman/strictcsp/internal/xerrors"
)

// Recover turns handler panics into 500 responses. onPanic, if
// non-nil, is called for each recovered panic (metrics counter).
func Recover(onPanic func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if onPanic != nil {
						onPanic()
					}
					err := xerrors.Newf("panic: %v", rec)
					log.FromContext(r.Context()).Error(r.Context(), err, "recovered handler panic",
						"method", r.Method,
						"path", r.URL.Path,
					)
					// header may already be written; Set+WriteHeader
					// are then no-ops and the connection just closes
					w.Header().Set("Cache-Control", "no-store")
					w.WriteHeader(http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

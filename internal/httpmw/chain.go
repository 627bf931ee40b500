package httpmw

import "net/http"

// Chain applies middlewares so that the first middleware in the list
// is the outermost, and the last is innermost, wrapping h. Nil entries
// are skipped so callers can pass optional middleware unconditionally.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	wrapped := h
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] == nil {
			continue
		}
		wrapped = mws[i](wrapped)
	}
	return wrapped
}

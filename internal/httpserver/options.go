package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/strictcsp/internal/log"
)

type Options struct {
	Logger log.Logger

	// APIRoutes registers the harden API on a rate-limited group.
	APIRoutes func(chi.Router)

	// PageHandler serves hardened pages as the catch-all.
	PageHandler http.Handler

	// DefaultCSP is the policy header applied before handlers run;
	// page responses override it with their hash policy.
	DefaultCSP string

	MaxBodyBytes int64

	MetricsMW   func(http.Handler) http.Handler
	RateLimitMW func(http.Handler) http.Handler

	// OnPanic is invoked for every recovered handler panic.
	OnPanic func()
}

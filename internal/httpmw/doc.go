// Package httpmw provides HTTP middleware for the hardening server.
//
// Middleware is composed in httpserver.NewHandler: security headers,
// request ID, metrics, OTEL tracing, rate limiting, access logging, and
// the chi router. Each middleware is an independent function that can
// be tested, reordered, or removed individually. User-supplied data
// (query params, user-agent) is intentionally excluded from logs to
// prevent log injection.
package httpmw

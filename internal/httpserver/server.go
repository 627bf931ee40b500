// Package httpserver assembles the public handler stack and owns the
// listener lifecycle.
package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/strictcsp/internal/httpmw"
	"github.com/keithlinneman/strictcsp/internal/log"
	"github.com/keithlinneman/strictcsp/internal/xerrors"
)

// NewHandler builds the HTTP handler with routes + middleware.
// main() owns *http.Server so it can do graceful shutdown.
func NewHandler(opts *Options) http.Handler {
	r := chi.NewRouter()

	// Compress text responses
	r.Use(middleware.Compress(5,
		"text/html",
		"text/plain",
		"application/json",
	))

	r.Use(httpmw.AccessLog())

	if opts.MaxBodyBytes > 0 {
		r.Use(httpmw.MaxBody(opts.MaxBodyBytes))
	}

	// API routes, rate limited as a group
	if opts.APIRoutes != nil {
		r.Group(func(gr chi.Router) {
			if opts.RateLimitMW != nil {
				gr.Use(opts.RateLimitMW)
			}
			opts.APIRoutes(gr)
		})
	}

	// Hardened pages are the catch-all so API and health routes win.
	if opts.PageHandler != nil {
		r.NotFound(opts.PageHandler.ServeHTTP)
		r.MethodNotAllowed(opts.PageHandler.ServeHTTP)
	}

	// Middleware outside the router (outermost last in wrapping order)
	var h http.Handler = r
	h = httpmw.WithLogger(opts.Logger)(h)
	if opts.MetricsMW != nil {
		h = opts.MetricsMW(h)
	}

	h = otelhttp.NewHandler(h, "http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			// health checks would dominate the trace volume
			return r.URL.Path != "/-/healthy"
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)

	h = httpmw.Recover(opts.OnPanic)(h)
	h = httpmw.RequestID("")(h)
	h = httpmw.SecurityHeaders(opts.DefaultCSP)(h)
	return h
}

// Run serves h on port until ctx is cancelled, then shuts down
// gracefully within the given timeout.
func Run(ctx context.Context, port int, h http.Handler, L log.Logger, shutdownTimeout time.Duration) error {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return xerrors.Wrapf(err, "listening on %s", addr)
	}

	errCh := make(chan error, 1)
	go func() {
		L.Info(ctx, "http server listening", "addr", addr)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return xerrors.Wrap(err, "http server")
	case <-ctx.Done():
	}

	L.Info(ctx, "http server shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return xerrors.Wrap(err, "http server shutdown")
	}
	return <-errCh
}

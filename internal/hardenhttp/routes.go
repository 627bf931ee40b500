// Package hardenhttp exposes the rewrite pipeline over HTTP: callers
// POST an HTML document and get back the hardened document, or just
// the policy it would be given.
package hardenhttp

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/strictcsp/internal/csp"
	"github.com/keithlinneman/strictcsp/internal/log"
	"github.com/keithlinneman/strictcsp/internal/rewrite"
)

// Observer receives rewrite outcomes, satisfied by
// metrics.ServerMetrics. May be nil.
type Observer interface {
	ObserveRewrite(externalScripts, scriptHashes, styleHashes int, seconds float64)
	IncHardenError()
}

type Routes struct {
	// Defaults seeds the policy options; query parameters override
	// individual toggles per request.
	Defaults csp.Options
	Logger   log.Logger
	Metrics  Observer
}

func New(defaults csp.Options, l log.Logger, m Observer) *Routes {
	if l == nil {
		l = log.Nop()
	}
	return &Routes{Defaults: defaults, Logger: l, Metrics: m}
}

func (rt *Routes) RegisterRoutes(r chi.Router) {
	r.Post("/v1/harden", rt.harden)
	r.Post("/v1/policy", rt.policy)
}

// harden rewrites the posted document and returns it, with the policy
// echoed in the Content-Security-Policy header.
func (rt *Routes) harden(w http.ResponseWriter, r *http.Request) {
	res, ok := rt.run(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", res.Policy)
	_, _ = w.Write([]byte(res.HTML))
}

// policy runs the same pipeline but returns only the policy string, for
// callers that deploy the header out of band.
func (rt *Routes) policy(w http.ResponseWriter, r *http.Request) {
	res, ok := rt.run(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(res.Policy))
}

func (rt *Routes) run(w http.ResponseWriter, r *http.Request) (rewrite.Result, bool) {
	opts, err := optionsFromQuery(r.URL.Query(), rt.Defaults)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return rewrite.Result{}, false
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return rewrite.Result{}, false
		}
		http.Error(w, "reading request body", http.StatusBadRequest)
		return rewrite.Result{}, false
	}

	start := time.Now()
	res, err := rewrite.Harden(string(body), opts)
	if err != nil {
		if rt.Metrics != nil {
			rt.Metrics.IncHardenError()
		}
		rt.Logger.Error(r.Context(), err, "harden failed")
		http.Error(w, "document could not be processed", http.StatusUnprocessableEntity)
		return rewrite.Result{}, false
	}
	if rt.Metrics != nil {
		rt.Metrics.ObserveRewrite(res.ExternalScripts, res.ScriptHashes, res.StyleHashes, time.Since(start).Seconds())
	}

	rt.Logger.Debug(r.Context(), "document hardened",
		"bytes_in", len(body),
		"external_scripts", res.ExternalScripts,
		"script_hashes", res.ScriptHashes,
		"style_hashes", res.StyleHashes,
	)
	return res, true
}

// optionsFromQuery overlays per-request toggles onto the defaults.
// Recognized params: fallbacks, trusted-types, unsafe-eval.
func optionsFromQuery(q url.Values, defaults csp.Options) (csp.Options, error) {
	o := defaults
	for param, dst := range map[string]*bool{
		"fallbacks":     &o.BrowserFallbacks,
		"trusted-types": &o.TrustedTypes,
		"unsafe-eval":   &o.UnsafeEval,
	} {
		v := q.Get(param)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return csp.Options{}, &badParamError{param: param, value: v}
		}
		*dst = b
	}
	return o, nil
}

type badParamError struct {
	param, value string
}

func (e *badParamError) Error() string {
	return "invalid boolean for " + e.param + ": " + strconv.Quote(e.value)
}

// Package cfg defines the server configuration surface: flags with
// inline defaults, environment fill, and validation.
package cfg

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

type App struct {
	LogJSON  bool
	LogLevel string

	HTTPPort  int
	AdminPort int

	EnablePprof     bool
	EnablePyroscope bool
	EnableTracing   bool
	PyroServer      string
	PyroTenantID    string
	OTLPEndpoint    string
	TraceSample     float64

	// content source: a local directory of HTML pages, or an S3 bundle
	// whose release key is read from an SSM parameter
	ContentDir      string
	ContentS3Bucket string
	ContentS3Prefix string
	ContentSSMParam string

	// policy toggles, applied to every hardened page
	PolicyBrowserFallbacks bool
	PolicyTrustedTypes     bool
	PolicyUnsafeEval       bool

	MaxBodyBytes       int64
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.ContentDir, "content-dir", "", "local directory of HTML pages to harden and serve")
	fs.StringVar(&c.ContentS3Bucket, "content-s3-bucket", "", "s3 bucket name to get the HTML bundle from")
	fs.StringVar(&c.ContentS3Prefix, "content-s3-prefix", "", "s3 prefix (key) to get the HTML bundle from")
	fs.StringVar(&c.ContentSSMParam, "content-ssm-param", "", "ssm parameter name holding the active bundle release id")
	fs.BoolVar(&c.PolicyBrowserFallbacks, "policy-browser-fallbacks", true, "emit https:/'unsafe-inline' fallbacks for legacy browsers")
	fs.BoolVar(&c.PolicyTrustedTypes, "policy-trusted-types", false, "add require-trusted-types-for 'script'")
	fs.BoolVar(&c.PolicyUnsafeEval, "policy-unsafe-eval", false, "append 'unsafe-eval' to script-src")
	fs.Int64Var(&c.MaxBodyBytes, "max-body-bytes", 4<<20, "max accepted HTML body size for the harden API")
	fs.Float64Var(&c.RateLimitPerSecond, "rate-limit-per-second", 10, "token refill rate per client IP for the harden API")
	fs.IntVar(&c.RateLimitBurst, "rate-limit-burst", 30, "token bucket size per client IP for the harden API")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			// Set may have clobbered the value before failing
			fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// Validate rejects configurations the server cannot run with.
func Validate(c App) error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port %d out of range (1..65535)", c.HTTPPort)
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		return fmt.Errorf("admin-port %d out of range (1..65535)", c.AdminPort)
	}
	if c.HTTPPort == c.AdminPort {
		return fmt.Errorf("http-port and admin-port are both %d", c.HTTPPort)
	}
	if c.TraceSample < 0 || c.TraceSample > 1 {
		return fmt.Errorf("trace-sample %v out of range (0..1)", c.TraceSample)
	}
	if c.EnableTracing && c.OTLPEndpoint == "" {
		return fmt.Errorf("enable-tracing requires otlp-endpoint")
	}
	if c.EnablePyroscope && c.PyroServer == "" {
		return fmt.Errorf("enable-pyroscope requires pyro-server")
	}
	if c.ContentDir != "" && c.ContentS3Bucket != "" {
		return fmt.Errorf("content-dir and content-s3-bucket are mutually exclusive")
	}
	if c.ContentS3Bucket != "" && c.ContentSSMParam == "" {
		return fmt.Errorf("content-s3-bucket requires content-ssm-param")
	}
	if c.MaxBodyBytes < 1 {
		return fmt.Errorf("max-body-bytes must be positive")
	}
	if c.RateLimitPerSecond <= 0 || c.RateLimitBurst < 1 {
		return fmt.Errorf("rate limit must be positive (per-second=%v burst=%d)", c.RateLimitPerSecond, c.RateLimitBurst)
	}
	return nil
}

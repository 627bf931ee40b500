package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/strictcsp/internal/cfg"
	"github.com/keithlinneman/strictcsp/internal/content"
	"github.com/keithlinneman/strictcsp/internal/csp"
	"github.com/keithlinneman/strictcsp/internal/hardenhttp"
	"github.com/keithlinneman/strictcsp/internal/httpserver"
	"github.com/keithlinneman/strictcsp/internal/log"
	"github.com/keithlinneman/strictcsp/internal/metrics"
	"github.com/keithlinneman/strictcsp/internal/opshttp"
	"github.com/keithlinneman/strictcsp/internal/otelx"
	"github.com/keithlinneman/strictcsp/internal/pagehandler"
	"github.com/keithlinneman/strictcsp/internal/prof"
	"github.com/keithlinneman/strictcsp/internal/ratelimit"
	v "github.com/keithlinneman/strictcsp/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf(
			"%s %s (commit=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.AppName, vi.Version, vi.Commit, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	cfg.FillFromEnv(flag.CommandLine, "STRICTCSP_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	lg, err := log.New(log.Options{
		App:        v.AppName,
		Version:    v.Version,
		Level:      lvl,
		JsonFormat: conf.LogJSON,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.VCSDirty,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"otlp_endpoint", conf.OTLPEndpoint,
		"pyro_server", conf.PyroServer,
		"trace_sample", conf.TraceSample,
		"content_dir", conf.ContentDir,
		"content_s3_bucket", conf.ContentS3Bucket,
		"content_s3_prefix", conf.ContentS3Prefix,
		"content_ssm_param", conf.ContentSSMParam,
		"policy_browser_fallbacks", conf.PolicyBrowserFallbacks,
		"policy_trusted_types", conf.PolicyTrustedTypes,
		"policy_unsafe_eval", conf.PolicyUnsafeEval,
	)

	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       v.AppName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer stopProf()

	// Insecure is true because we only write to a collector on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:  conf.EnableTracing,
		Endpoint: conf.OTLPEndpoint,
		Insecure: true,
		Sample:   conf.TraceSample,
		Service:  v.AppName,
		Version:  vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	m := metrics.New()

	policy := csp.Options{
		BrowserFallbacks: conf.PolicyBrowserFallbacks,
		TrustedTypes:     conf.PolicyTrustedTypes,
		UnsafeEval:       conf.PolicyUnsafeEval,
	}

	contentMgr := content.NewManager()
	loader := &content.Loader{
		Policy:  policy,
		Logger:  L,
		Metrics: m,
	}

	switch {
	case conf.ContentDir != "":
		snap, err := loader.LoadDir(ctx, conf.ContentDir)
		if err != nil {
			L.Error(ctx, err, "failed to load content directory", "dir", conf.ContentDir)
			os.Exit(1)
		}
		contentMgr.Set(snap)
		L.Info(ctx, "loaded content from directory",
			"dir", conf.ContentDir,
			"pages", len(snap.Pages),
		)
	case conf.ContentS3Bucket != "":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			L.Error(ctx, err, "failed to load AWS config")
			os.Exit(1)
		}
		s3Client := s3.NewFromConfig(awsCfg)
		ssmClient := ssm.NewFromConfig(awsCfg)
		snap, err := loader.LoadS3(ctx, s3Client, ssmClient,
			conf.ContentS3Bucket, conf.ContentS3Prefix, conf.ContentSSMParam)
		if err != nil {
			L.Error(ctx, err, "failed to load content bundle",
				"bucket", conf.ContentS3Bucket,
				"ssm_param", conf.ContentSSMParam,
			)
			os.Exit(1)
		}
		contentMgr.Set(snap)
		L.Info(ctx, "loaded content bundle from S3",
			"source", snap.Source,
			"pages", len(snap.Pages),
		)
	default:
		// API-only mode, the page handler answers 503 until content exists
		L.Info(ctx, "no content source configured, serving harden API only")
	}

	pages, err := pagehandler.New(&pagehandler.Options{Content: contentMgr})
	if err != nil {
		L.Error(ctx, err, "failed to create page handler")
		os.Exit(1)
	}

	hardenAPI := hardenhttp.New(policy, L, m)

	limiter := ratelimit.New(ctx,
		ratelimit.WithRate(conf.RateLimitPerSecond, conf.RateLimitBurst),
		ratelimit.WithOnDenied(func(ip string) {
			m.IncRateLimited()
		}),
		ratelimit.WithOnFirstDenied(func(ip string) {
			L.Warn(ctx, "rate limit triggered", "ip", ip)
		}),
	)

	handler := httpserver.NewHandler(&httpserver.Options{
		Logger:       L,
		APIRoutes:    hardenAPI.RegisterRoutes,
		PageHandler:  pages,
		DefaultCSP:   csp.Build(nil, nil, policy),
		MaxBodyBytes: conf.MaxBodyBytes,
		MetricsMW:    m.Middleware,
		RateLimitMW:  limiter.Middleware,
		OnPanic:      m.IncPanic,
	})

	opsStop, err := opshttp.Start(ctx, L, opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Ready: func() bool {
			_, ok := contentMgr.Get()
			return ok || (conf.ContentDir == "" && conf.ContentS3Bucket == "")
		},
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsStop(context.Background()) }()

	if err := httpserver.Run(ctx, conf.HTTPPort, handler, L, 10*time.Second); err != nil {
		L.Error(context.Background(), err, "http server")
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := opsStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}
	stopProf()

	L.Info(context.Background(), "shutdown complete")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	challengeAuth "github.com/MrEthical07/challengeAuth"
	"github.com/MrEthical07/challengeAuth/httpapi"
	"github.com/MrEthical07/challengeAuth/identity"
	"github.com/MrEthical07/challengeAuth/identity/memstore"
	"github.com/MrEthical07/challengeAuth/identity/sqlstore"
	"github.com/MrEthical07/challengeAuth/internal/envconfig"
	"github.com/MrEthical07/challengeAuth/jobs"
	"github.com/MrEthical07/challengeAuth/mailer"
	otelmetrics "github.com/MrEthical07/challengeAuth/metrics/otel"
	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

func main() {
	cfg, err := envconfig.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	lg, err := cfg.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, lg); err != nil {
		lg.Fatal("server stopped", zap.Error(err))
	}
	lg.Info("goodbye")
}

func run(ctx context.Context, cfg *envconfig.Config, lg *zap.Logger) error {
	rdb, closeRedis, err := openRedis(cfg, lg)
	if err != nil {
		return err
	}
	defer closeRedis()

	store, closeStore, err := openStore(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var mail mailer.Mailer = mailer.NewLog(lg.Named("mailer"))
	if cfg.SMTPAddr != "" {
		mail = mailer.NewSMTP(mailer.SMTPConfig{
			Addr:     cfg.SMTPAddr,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
		})
	}

	engineCfg := challengeAuth.DefaultConfig()
	engineCfg.AppName = cfg.AppName
	engineCfg.Token.PrivateKey = []byte(cfg.JWTSecret)
	engineCfg.Token.Issuer = cfg.AppName
	engineCfg.Login.DecoySecret = []byte(cfg.DecoySecret)
	engineCfg.EmailVerification.Sender = cfg.AppEmailAddress
	engineCfg.Security.MaxLoginAttempts = cfg.MaxLoginAttempts
	engineCfg.Security.EnableIPThrottle = true

	scheduler := jobs.NewScheduler(rdb, jobs.SchedulerConfig{LeaseTTL: cfg.JobsLeaseTTL})
	engine, err := challengeAuth.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithStore(store).
		WithScheduler(scheduler).
		WithMailer(mail).
		WithLogger(lg.Named("engine")).
		WithRegisterer(reg).
		WithAuditSink(challengeAuth.NewAuditLogSink(lg.Named("audit"))).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	// No-op unless the host installs a global MeterProvider.
	exporter, err := otelmetrics.NewExporter(otel.Meter("challengeauth"), engine)
	if err != nil {
		return fmt.Errorf("otel exporter: %w", err)
	}
	defer func() { _ = exporter.Close() }()

	report := engine.SecurityReport()
	for _, w := range report.Warnings {
		lg.Warn("security posture", zap.String("warning", w))
	}

	processor := jobs.NewProcessor(scheduler, jobs.ProcessorConfig{Interval: cfg.JobsInterval},
		jobs.WithLease(jobs.NewLease(rdb, "", cfg.JobsLeaseTTL)),
		jobs.WithLogger(lg.Named("jobs")),
		jobs.WithMetrics(jobs.NewMetrics(reg)),
	)
	processor.Handle(engineCfg.Jobs.VerificationEmailType, engine.VerificationEmailHandler())

	api := httpapi.New(engine, httpapi.Options{
		Logger:            lg.Named("http"),
		Registerer:        reg,
		RateLimitRPS:      cfg.RateLimitRPS,
		RateLimitBurst:    cfg.RateLimitBurst,
		TrustForwardedFor: cfg.TrustForwardedFor,
	})
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", api.Handler())

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lg.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
	return serve(ctx, lg, srv, processor, 5*time.Second)
}

type runner interface {
	Run(ctx context.Context) error
}

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// serve runs the HTTP server and the job processor until ctx is done or
// either fails. It returns once the processor has stopped or shutdownTimeout
// has elapsed.
func serve(ctx context.Context, lg *zap.Logger, srv httpServer, processor runner, shutdownTimeout time.Duration) error {
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	errCh := make(chan error, 2)
	processorDone := make(chan struct{})
	go func() {
		defer close(processorDone)
		if err := processor.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("job processor: %w", err)
		}
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	lg.Info("shutting down")
	cancelRun()
	doneCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(doneCtx); err != nil {
		lg.Warn("http server shutdown failed", zap.Error(err))
	}
	select {
	case <-processorDone:
	case <-doneCtx.Done():
		lg.Warn("job processor did not stop before shutdown timeout")
	}
	return runErr
}

func openRedis(cfg *envconfig.Config, lg *zap.Logger) (redis.UniversalClient, func(), error) {
	if cfg.RedisURL == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		lg.Warn("REDIS_URL not set, using in-process miniredis", zap.String("addr", mr.Addr()))
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		return client, func() {
			_ = client.Close()
			mr.Close()
		}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	return client, func() { _ = client.Close() }, nil
}

func openStore(ctx context.Context, cfg *envconfig.Config, lg *zap.Logger) (identity.Store, func(), error) {
	if !cfg.UseDatabase() {
		lg.Warn("DB_HOST not set, identities are kept in memory")
		return memstore.New(), func() {}, nil
	}

	db, err := sqlstore.Open(ctx, sqlstore.Config{Driver: cfg.DBDriver, DSN: cfg.DSN()})
	if err != nil {
		return nil, nil, err
	}
	store := sqlstore.New(db)
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	lg.Info("connected to database", zap.String("driver", cfg.DBDriver), zap.String("host", cfg.DBHost))
	return store, func() { _ = db.Close() }, nil
}

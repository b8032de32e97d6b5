package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ahrav/go-explab/internal/config"
	"github.com/ahrav/go-explab/internal/evaluation"
	"github.com/ahrav/go-explab/internal/experiment"
	"github.com/ahrav/go-explab/internal/llm"
	"github.com/ahrav/go-explab/internal/llm/resilience"
	"github.com/ahrav/go-explab/internal/store"
	"github.com/ahrav/go-explab/pkg/events"
)

const metricsShutdownTimeout = 2 * time.Second

// app holds the state shared by every command of one invocation.
type app struct {
	cfgFile  string
	storeDir string
	logLevel string

	out    io.Writer
	errOut io.Writer

	cfg    *config.Config
	logger *slog.Logger
}

func (a *app) load() error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if a.storeDir != "" {
		cfg.Store.Dir = a.storeDir
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	a.cfg = cfg

	logger, err := newLogger(cfg.Log, a.errOut)
	if err != nil {
		return err
	}
	a.logger = logger
	slog.SetDefault(logger)
	return nil
}

func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// openStore returns the configured store and a release func.
func (a *app) openStore() (store.Store, func(), error) {
	fs, err := store.NewFileStore(a.cfg.Store.Dir, store.WithFileLogger(a.logger))
	if err != nil {
		return nil, nil, err
	}
	cc := a.cfg.Store.Cache
	if !cc.Enabled {
		return fs, func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: cc.RedisAddr, Password: cc.RedisPassword, DB: cc.RedisDB})
	a.logger.Debug("experiment cache enabled", "redis_addr", cc.RedisAddr, "ttl", cc.TTL)
	return store.NewCached(fs, rdb, cc.TTL, a.logger), func() { _ = rdb.Close() }, nil
}

func (a *app) newClient(ctx context.Context, reg prometheus.Registerer) (*llm.HTTPClient, error) {
	opts := []llm.Option{llm.WithLogger(a.logger)}
	if reg != nil && a.cfg.Client.Observability.MetricsEnabled {
		opts = append(opts, llm.WithMetrics(resilience.NewPrometheusMetrics(reg)))
	}
	client, err := llm.NewClient(ctx, &a.cfg.Client, opts...)
	if err != nil {
		return nil, fmt.Errorf("create model client: %w", err)
	}
	return client, nil
}

// newEvaluator returns nil when evaluation is disabled.
func (a *app) newEvaluator(client evaluation.JudgeClient) (experiment.Evaluator, error) {
	ec := a.cfg.Eval
	opts := []evaluation.Option{
		evaluation.WithLogger(a.logger),
		evaluation.WithConcurrency(ec.Concurrency),
	}

	switch ec.Evaluator {
	case config.EvaluatorRubric:
		rubric, err := ec.Rubric.Build()
		if err != nil {
			return nil, fmt.Errorf("build rubric: %w", err)
		}
		return evaluation.New(rubric, opts...), nil
	case config.EvaluatorJudge:
		judge := evaluation.NewJudge(client, ec.Model,
			evaluation.WithJudgeSystemPrompt(ec.SystemPrompt),
			evaluation.WithComparisonSystemPrompt(ec.ComparisonSystemPrompt),
			evaluation.WithPassThreshold(ec.PassThreshold))
		return evaluation.New(judge, opts...), nil
	default:
		return nil, nil
	}
}

// newEventSink returns a no-op sink when no mirror is configured.
func (a *app) newEventSink(eventsFile string) (events.EventSink, func(), error) {
	ec := a.cfg.Events
	if eventsFile != "" {
		ec.File = eventsFile
	}

	var (
		sinks   events.FanoutSink
		closers []func()
	)
	release := func() {
		for _, c := range closers {
			c()
		}
	}

	if ec.File != "" {
		f, err := os.OpenFile(ec.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open events file: %w", err)
		}
		sinks = append(sinks, events.NewJSONLSink(f))
		closers = append(closers, func() { _ = f.Close() })
	}
	if ec.RedisStream != "" {
		rdb := redis.NewClient(&redis.Options{Addr: ec.RedisAddr})
		sinks = append(sinks, events.NewRedisStreamSink(rdb, ec.RedisStream, ec.MaxLen))
		closers = append(closers, func() { _ = rdb.Close() })
	}

	if len(sinks) == 0 {
		return events.NewNoOpEventSink(), release, nil
	}
	return sinks, release, nil
}

// serveMetrics exposes reg on addr until the returned func is called.
func (a *app) serveMetrics(addr string, reg *prometheus.Registry) func() {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	a.logger.Info("serving metrics", "addr", addr, "path", "/metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

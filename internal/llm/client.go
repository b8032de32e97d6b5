// Package llm provides the model endpoint client used by experiment runs and
// model-judged evaluators. Calls go through a middleware pipeline:
//
//	logging+metrics -> cache -> retry -> circuit breaker -> rate limit -> HTTP
//
// The first middleware is outermost, so logging sees one entry per logical
// call, the cache short-circuits before any retry, and the breaker and rate
// limiter act per attempt.
//
// Every ordinary failure is returned as a *llmerrors.CallError.
package llm

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/sony/gobreaker"

	"github.com/ahrav/go-explab/internal/domain"
	"github.com/ahrav/go-explab/internal/llm/cache"
	"github.com/ahrav/go-explab/internal/llm/circuitbreaker"
	"github.com/ahrav/go-explab/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-explab/internal/llm/errors"
	"github.com/ahrav/go-explab/internal/llm/providers"
	"github.com/ahrav/go-explab/internal/llm/ratelimit"
	"github.com/ahrav/go-explab/internal/llm/resilience"
	"github.com/ahrav/go-explab/internal/llm/retry"
	"github.com/ahrav/go-explab/internal/llm/transport"
)

// Client calls OpenAI-compatible model endpoints.
type Client interface {
	// Call sends prompt to model and returns the completion of one run pair.
	Call(ctx context.Context, model domain.ModelConfig, prompt domain.Prompt) (domain.Completion, error)

	// Judge sends an evaluator prompt to a judge model. Deterministic judge
	// calls (temperature 0) may be served from the response cache.
	Judge(ctx context.Context, model domain.ModelConfig, prompt domain.Prompt) (domain.Completion, error)

	// ListModels returns the model identifiers advertised by endpoint, or by
	// the configured default endpoint when empty.
	ListModels(ctx context.Context, endpoint string) ([]string, error)
}

// Option customizes an HTTPClient.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	metrics resilience.Metrics
	redis   cache.RedisClient
}

// WithLogger sets the logger used by the client and its middleware.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithMetrics sets the metrics sink.
func WithMetrics(m resilience.Metrics) Option { return func(o *options) { o.metrics = m } }

// WithRedis supplies the Redis client backing the response cache instead of
// dialing cfg.Cache.RedisAddr.
func WithRedis(c cache.RedisClient) Option { return func(o *options) { o.redis = c } }

// HTTPClient is the production Client.
type HTTPClient struct {
	config     *configuration.Config
	adapter    *providers.OpenAIAdapter
	httpClient *http.Client
	handler    transport.Handler
	retrier    *retry.Retrier
	breakers   *circuitbreaker.Breakers
	cache      *cache.Cache
	closer     io.Closer
	logger     *slog.Logger
}

var _ Client = (*HTTPClient)(nil)

// NewClient builds a client and its middleware pipeline from cfg. A nil cfg
// uses configuration.DefaultConfig.
func NewClient(ctx context.Context, cfg *configuration.Config, opts ...Option) (*HTTPClient, error) {
	if cfg == nil {
		cfg = configuration.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.metrics == nil {
		o.metrics = resilience.NewNoOpMetrics()
	}

	provider := cfg.Provider
	if provider.APIKey == "" && provider.APIKeyEnv != "" {
		provider.APIKey = os.Getenv(provider.APIKeyEnv)
	}
	adapter := providers.NewOpenAIAdapter(provider)

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient(cfg)
	}

	c := &HTTPClient{
		config:     cfg,
		adapter:    adapter,
		httpClient: httpClient,
		logger:     o.logger.With("component", "llm_client"),
	}

	middlewares := []transport.Middleware{
		resilience.NewLoggingMiddleware(cfg.Observability, o.logger, o.metrics),
	}

	if cfg.Cache.Enabled {
		redisClient := o.redis
		if redisClient == nil {
			dialed, err := cache.Dial(ctx, cfg.Cache)
			if err != nil {
				// The cache is an optimization; run without it.
				c.logger.Warn("response cache disabled", "error", err)
			} else {
				redisClient = dialed
				c.closer = dialed
			}
		}
		if redisClient != nil {
			c.cache = cache.New(redisClient, cfg.Cache.TTL)
			middlewares = append(middlewares, c.cache.Middleware())
		}
	}

	if cfg.Retry.Enabled {
		r, err := retry.New(cfg.Retry)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize retry middleware: %w", err)
		}
		c.retrier = r
		middlewares = append(middlewares, r.Middleware())
	}

	if cfg.CircuitBreaker.Enabled {
		c.breakers = circuitbreaker.New(cfg.CircuitBreaker, func(key string, _, to gobreaker.State) {
			o.metrics.SetGauge(resilience.MetricBreakerState, map[string]string{"key": key}, breakerGauge(to))
		})
		middlewares = append(middlewares, c.breakers.Middleware())
	}

	if cfg.RateLimit.Enabled {
		rl, err := ratelimit.NewRateLimitMiddleware(cfg.RateLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize rate limiter: %w", err)
		}
		middlewares = append(middlewares, rl)
	}

	c.handler = transport.Chain(transport.NewHTTPHandler(httpClient, adapter), middlewares...)
	return c, nil
}

func newHTTPClient(cfg *configuration.Config) *http.Client {
	httpTransport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          configuration.DefaultMaxIdleConns,
		IdleConnTimeout:       configuration.DefaultIdleTimeoutSeconds * time.Second,
		TLSHandshakeTimeout:   configuration.DefaultTLSTimeoutSeconds * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if !cfg.Provider.VerifySSL {
		httpTransport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- opt-in for self-hosted endpoints
	}
	return &http.Client{Transport: httpTransport, Timeout: cfg.HTTPTimeout}
}

// Call implements Client.
func (c *HTTPClient) Call(ctx context.Context, model domain.ModelConfig, prompt domain.Prompt) (domain.Completion, error) {
	return c.do(ctx, transport.OpCompletion, model, prompt)
}

// Judge implements Client.
func (c *HTTPClient) Judge(ctx context.Context, model domain.ModelConfig, prompt domain.Prompt) (domain.Completion, error) {
	return c.do(ctx, transport.OpJudge, model, prompt)
}

func (c *HTTPClient) do(
	ctx context.Context,
	op transport.OperationType,
	model domain.ModelConfig,
	prompt domain.Prompt,
) (domain.Completion, error) {
	req := c.newRequest(op, model, prompt)

	resp, err := c.handler.Handle(ctx, req)
	if err != nil {
		callErr := llmerrors.Classify(err)
		if callErr.Model == "" {
			callErr.Model = model.Name
		}
		return domain.Completion{}, callErr
	}
	if resp.Content == "" {
		return domain.Completion{}, &llmerrors.CallError{
			Kind:    llmerrors.KindMalformed,
			Model:   model.Name,
			Message: llmerrors.ErrEmptyCompletion.Error(),
			Cause:   llmerrors.ErrEmptyCompletion,
		}
	}
	return resp.Completion(), nil
}

func (c *HTTPClient) newRequest(op transport.OperationType, model domain.ModelConfig, prompt domain.Prompt) *transport.Request {
	endpoint := model.Endpoint
	if endpoint == "" {
		endpoint = c.config.Provider.Endpoint
	}
	return &transport.Request{
		Operation:    op,
		Model:        model.Name,
		Endpoint:     endpoint,
		SystemPrompt: prompt.System,
		UserPrompt:   prompt.User,
		Sampling:     model.Sampling,
		Timeout:      model.Timeout,
		Cacheable:    op == transport.OpJudge && model.Sampling.Temperature == 0,
	}
}

// ListModels implements Client.
func (c *HTTPClient) ListModels(ctx context.Context, endpoint string) ([]string, error) {
	ids, err := c.adapter.ListModels(ctx, c.httpClient, endpoint)
	if err != nil {
		if errors.Is(err, providers.ErrNoModelsEndpoint) {
			return nil, err
		}
		return nil, llmerrors.Classify(err)
	}
	return ids, nil
}

// Stats is a snapshot of the client's resilience middleware.
type Stats struct {
	Retry retry.RetryStats
	Cache cache.Stats
}

// Stats returns middleware counters. Disabled layers report zero values.
func (c *HTTPClient) Stats() Stats {
	var s Stats
	if c.retrier != nil {
		s.Retry = c.retrier.Stats()
	}
	if c.cache != nil {
		s.Cache = c.cache.Stats()
	}
	return s
}

// BreakerState reports the circuit state for model at endpoint.
func (c *HTTPClient) BreakerState(endpoint, model string) string {
	if c.breakers == nil {
		return gobreaker.StateClosed.String()
	}
	if endpoint == "" {
		endpoint = c.config.Provider.Endpoint
	}
	return c.breakers.State(endpoint, model).String()
}

// Close releases the Redis connection the client dialed, if any.
func (c *HTTPClient) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

func breakerGauge(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

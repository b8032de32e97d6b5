// Package experiment runs a prompt set against several model configurations.
//
// A Coordinator expands a Plan into |configs| x |prompts| pairs and drives
// them in parallel (one goroutine per pair, optionally bounded) or
// sequentially in prompt-major order: the outer loop walks prompts and the
// inner loop walks models, so pair index = prompt*len(configs) + model.
//
// Every pair ends in exactly one terminal response. Endpoint failures and
// per-pair timeouts are recorded as failed responses and never affect
// sibling pairs. Cancellation is cooperative: in-flight calls observe a
// cancelled context, pairs not yet started are recorded as cancelled
// without an attempt, and the coordinator waits for every worker before
// it publishes the experiment.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/ahrav/go-explab/internal/domain"
	llmerrors "github.com/ahrav/go-explab/internal/llm/errors"
	"github.com/ahrav/go-explab/internal/statistics"
	"github.com/ahrav/go-explab/pkg/events"
)

// DefaultPairTimeout bounds a call whose ModelConfig has no timeout.
const DefaultPairTimeout = 120 * time.Second

// ErrRunCancelled is the cancellation cause recorded when Run.Cancel is called.
var ErrRunCancelled = errors.New("run cancelled")

// Caller performs one model call. *llm.HTTPClient satisfies it.
type Caller interface {
	Call(ctx context.Context, model domain.ModelConfig, prompt domain.Prompt) (domain.Completion, error)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithDefaultTimeout sets the per-pair timeout used when a ModelConfig has
// none. Zero or negative leaves such calls bounded only by the run context.
func WithDefaultTimeout(d time.Duration) Option { return func(c *Coordinator) { c.defaultTimeout = d } }

// WithMaxConcurrency bounds the number of in-flight calls in parallel mode.
// Zero means one goroutine per pair with no bound.
func WithMaxConcurrency(n int) Option { return func(c *Coordinator) { c.maxConcurrency = n } }

// WithDelay sets the pause between consecutive pairs in sequential mode.
func WithDelay(d time.Duration) Option { return func(c *Coordinator) { c.delay = d } }

// WithEventSink mirrors progress to sink as envelopes.
func WithEventSink(sink events.EventSink) Option { return func(c *Coordinator) { c.sink = sink } }

// WithLogger sets the coordinator's logger.
func WithLogger(l *slog.Logger) Option { return func(c *Coordinator) { c.logger = l } }

// Coordinator drives runs. It holds no per-run state and may start any
// number of runs concurrently.
type Coordinator struct {
	caller         Caller
	defaultTimeout time.Duration
	maxConcurrency int
	delay          time.Duration
	sink           events.EventSink
	emitter        *events.Emitter
	logger         *slog.Logger
	now            func() time.Time
}

// New creates a coordinator that issues calls through caller.
func New(caller Caller, opts ...Option) *Coordinator {
	c := &Coordinator{
		caller:         caller,
		defaultTimeout: DefaultPairTimeout,
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "run_coordinator")
	c.emitter = events.NewEmitter(c.sink, c.logger)
	return c
}

// Run executes plan and blocks until every pair is terminal. Cancelling ctx
// cancels the run; the returned experiment is still complete. Only plan
// validation errors are returned.
func (c *Coordinator) Run(ctx context.Context, plan Plan) (*domain.Experiment, error) {
	r, err := c.Start(ctx, plan)
	if err != nil {
		return nil, err
	}
	return r.Wait(), nil
}

// Start validates plan and begins the run in the background.
func (c *Coordinator) Start(ctx context.Context, plan Plan) (*Run, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	total := plan.PairCount()
	r := &Run{
		id:     uuid.New().String(),
		total:  total,
		events: make(chan Event, total+1),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	c.logger.Info("run started",
		"experiment_id", r.id,
		"mode", plan.Mode,
		"models", len(plan.Configs),
		"prompts", len(plan.Prompts),
		"pairs", total)

	go c.execute(runCtx, r, plan)
	return r, nil
}

func (c *Coordinator) execute(ctx context.Context, r *Run, plan Plan) {
	defer r.cancel(nil)

	startedAt := c.now()
	responses := make([]domain.ModelResponse, r.total)

	switch plan.Mode {
	case domain.ModeSequential:
		c.runSequential(ctx, r, plan, responses)
	default:
		c.runParallel(ctx, r, plan, responses)
	}

	stats, summary := statistics.Aggregate(responses)
	exp := &domain.Experiment{
		ID:        r.id,
		Name:      plan.Name,
		CreatedAt: startedAt,
		UpdatedAt: c.now(),
		Mode:      plan.Mode,
		Configs:   plan.Configs,
		Prompts:   plan.Prompts,
		Responses: responses,
		Stats:     stats,
		Summary:   summary,
		Notes:     plan.Notes,
	}

	c.logger.Info("run completed",
		"experiment_id", r.id,
		"succeeded", summary.SuccessCount,
		"failed", summary.FailureCount,
		"cancelled", summary.CancelledCount,
		"duration_ms", exp.UpdatedAt.Sub(startedAt).Milliseconds())

	c.mirrorCompletion(ctx, exp)

	r.result = exp
	r.cancelled = ctx.Err() != nil
	r.events <- RunComplete{Experiment: exp}
	close(r.events)
	close(r.done)
}

// runParallel starts one goroutine per pair and waits for all of them.
// Each goroutine writes only its own slot of responses.
func (c *Coordinator) runParallel(ctx context.Context, r *Run, plan Plan, responses []domain.ModelResponse) {
	var sem *semaphore.Weighted
	if c.maxConcurrency > 0 {
		sem = semaphore.NewWeighted(int64(c.maxConcurrency))
	}

	var wg sync.WaitGroup
	for idx := range r.total {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pair := plan.pairAt(idx)

			if sem != nil {
				if err := sem.Acquire(ctx, 1); err != nil {
					c.finish(ctx, r, responses, domain.CancelledResponse(pair, notStartedReason(ctx), c.now()))
					return
				}
				defer sem.Release(1)
			}

			c.finish(ctx, r, responses,
				c.callPair(ctx, pair, plan.Configs[pair.ModelIndex], plan.Prompts[pair.PromptIndex]))
		}()
	}
	wg.Wait()
}

// runSequential processes pairs one at a time in prompt-major order,
// checking for cancellation between pairs.
func (c *Coordinator) runSequential(ctx context.Context, r *Run, plan Plan, responses []domain.ModelResponse) {
	for idx := range r.total {
		pair := plan.pairAt(idx)

		if ctx.Err() == nil && idx > 0 && c.delay > 0 {
			timer := time.NewTimer(c.delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
			}
		}

		if ctx.Err() != nil {
			c.finish(ctx, r, responses, domain.CancelledResponse(pair, notStartedReason(ctx), c.now()))
			continue
		}

		c.finish(ctx, r, responses,
			c.callPair(ctx, pair, plan.Configs[pair.ModelIndex], plan.Prompts[pair.PromptIndex]))
	}
}

// callPair performs the call for one pair under its timeout and converts
// the outcome into a terminal response.
func (c *Coordinator) callPair(ctx context.Context, pair domain.Pair, model domain.ModelConfig, prompt domain.Prompt) domain.ModelResponse {
	if ctx.Err() != nil {
		return domain.CancelledResponse(pair, notStartedReason(ctx), c.now())
	}

	timeout := model.Timeout
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}
	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	started := c.now()
	completion, err := c.caller.Call(callCtx, model, prompt)
	finished := c.now()

	if err != nil {
		return domain.FailedResponse(pair, failureOf(ctx, callCtx, timeout, err), started, finished)
	}
	return domain.Succeeded(pair, completion, started, finished)
}

// failureOf attributes a call error. A cancelled run wins over a pair
// timeout, which wins over the client's own classification.
func failureOf(runCtx, callCtx context.Context, timeout time.Duration, err error) domain.Failure {
	switch {
	case runCtx.Err() != nil:
		return domain.Failure{Kind: domain.FailureCancelled, Message: cancelReason(runCtx) + " during call"}
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return domain.Failure{Kind: domain.FailureTimeout, Message: fmt.Sprintf("no response within %s", timeout)}
	default:
		return llmerrors.Classify(err).Failure()
	}
}

func cancelReason(ctx context.Context) string {
	if errors.Is(context.Cause(ctx), context.DeadlineExceeded) {
		return "run deadline exceeded"
	}
	return "run cancelled"
}

func notStartedReason(ctx context.Context) string {
	return cancelReason(ctx) + " before pair started"
}

// finish stores resp in its slot and publishes progress. The channel is
// sized for every event of the run, so the send never blocks.
func (c *Coordinator) finish(ctx context.Context, r *Run, responses []domain.ModelResponse, resp domain.ModelResponse) {
	responses[resp.Pair.Index] = resp
	st := statistics.StatsFor(resp)

	r.mu.Lock()
	r.completed++
	r.events <- ProgressEvent{PairIndex: resp.Pair.Index, Stats: st, Completed: r.completed, Total: r.total}
	r.mu.Unlock()

	logger := c.logger.With(
		"experiment_id", r.id,
		"pair_index", resp.Pair.Index,
		"model", resp.Pair.ModelID,
		"prompt_index", resp.Pair.PromptIndex)
	switch resp.Outcome {
	case domain.OutcomeSucceeded:
		logger.Debug("pair succeeded", "duration_ms", resp.Latency.Milliseconds(), "total_tokens", resp.Usage.Total)
	case domain.OutcomeCancelled:
		logger.Debug("pair cancelled", "attempted", resp.Attempted())
	default:
		logger.Warn("pair failed", "error", resp.ErrorText())
	}

	c.mirrorProgress(ctx, r.id, st)
}

// Run is a handle on a run in progress.
type Run struct {
	id     string
	total  int
	events chan Event
	cancel context.CancelCauseFunc
	done   chan struct{}

	// result and cancelled are written once before done is closed.
	result    *domain.Experiment
	cancelled bool

	mu        sync.Mutex
	completed int
}

// ID returns the experiment identifier assigned to the run.
func (r *Run) ID() string { return r.id }

// Total returns the number of pairs in the run.
func (r *Run) Total() int { return r.total }

// Events returns the progress channel. It carries one ProgressEvent per
// pair followed by a RunComplete, then is closed. There must be at most
// one consumer, using either Events or Drain.
func (r *Run) Events() <-chan Event { return r.events }

// Drain returns every event queued so far without blocking.
func (r *Run) Drain() []Event {
	var out []Event
	for {
		select {
		case ev, ok := <-r.events:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

// Cancel requests cancellation. It is safe to call at any time, from any
// goroutine, and more than once.
func (r *Run) Cancel() { r.cancel(ErrRunCancelled) }

// Cancelled blocks until the run completes and reports whether it was
// cancelled, through Cancel or its parent context, before finishing.
func (r *Run) Cancelled() bool {
	<-r.done
	return r.cancelled
}

// Done is closed once every pair is terminal and the experiment is ready.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run finishes and returns the experiment.
func (r *Run) Wait() *domain.Experiment {
	<-r.done
	return r.result
}

package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ahrav/go-explab/internal/config"
	"github.com/ahrav/go-explab/internal/domain"
	"github.com/ahrav/go-explab/internal/experiment"
	"github.com/ahrav/go-explab/internal/statistics"
	"github.com/ahrav/go-explab/internal/store"
)

type runOptions struct {
	prompts        []string
	promptsFile    string
	system         string
	models         []string
	mode           string
	name           string
	notes          string
	noEval         bool
	delay          time.Duration
	maxConcurrency int
	metricsAddr    string
	eventsFile     string
}

func newRunCmd(a *app) *cobra.Command {
	var o runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a prompt set against the configured models",
		Long: `Sends every prompt to every model, printing one line per finished pair.
The run is evaluated with the configured evaluator and saved. Interrupting
the command cancels the remaining pairs; the partial run is still saved.`,
		Example: `  # Two prompts against the configured models
  explab run -p "What is a goroutine?" -p "Explain channels" --name go-basics

  # Prompts from a file, two specific models, one pair at a time
  explab run -f prompts.yaml -m gpt-4o -m gpt-4o-mini --mode sequential`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExperiment(cmd, a, o)
		},
	}

	f := cmd.Flags()
	f.StringArrayVarP(&o.prompts, "prompt", "p", nil, "user prompt (repeatable)")
	f.StringVarP(&o.promptsFile, "prompts-file", "f", "", "YAML/JSON list of prompts, or a text file holding one prompt")
	f.StringVar(&o.system, "system", "", "system prompt for prompts that have none")
	f.StringSliceVarP(&o.models, "model", "m", nil, "model to query (repeatable, overrides the configured list)")
	f.StringVar(&o.mode, "mode", "", "parallel or sequential (overrides execution.mode)")
	f.StringVar(&o.name, "name", "", "experiment name")
	f.StringVar(&o.notes, "notes", "", "initial notes")
	f.BoolVar(&o.noEval, "no-eval", false, "skip evaluation")
	f.DurationVar(&o.delay, "delay", -1, "pause between pairs in sequential mode (overrides execution.delay)")
	f.IntVar(&o.maxConcurrency, "max-concurrency", -1, "bound on in-flight calls in parallel mode, 0 for none")
	f.StringVar(&o.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")
	f.StringVar(&o.eventsFile, "events-file", "", "append progress events as JSON lines to this file")
	return cmd
}

func runExperiment(cmd *cobra.Command, a *app, o runOptions) error {
	ctx := cmd.Context()
	cfg := a.cfg

	plan, err := buildPlan(cfg, o)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	client, err := a.newClient(ctx, reg)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	st, closeStore, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	var evaluator experiment.Evaluator
	if !o.noEval {
		if evaluator, err = a.newEvaluator(client); err != nil {
			return err
		}
	}

	sink, closeSink, err := a.newEventSink(o.eventsFile)
	if err != nil {
		return err
	}
	defer closeSink()

	delay := cfg.Execution.Delay
	if o.delay >= 0 {
		delay = o.delay
	}
	maxConcurrency := cfg.Execution.MaxConcurrency
	if o.maxConcurrency >= 0 {
		maxConcurrency = o.maxConcurrency
	}
	metricsAddr := cfg.Metrics.Addr
	if o.metricsAddr != "" {
		metricsAddr = o.metricsAddr
	}

	coordinator := experiment.New(client,
		experiment.WithDefaultTimeout(cfg.Execution.DefaultTimeout),
		experiment.WithMaxConcurrency(maxConcurrency),
		experiment.WithDelay(delay),
		experiment.WithEventSink(sink),
		experiment.WithLogger(a.logger))
	pipeline := experiment.NewPipeline(coordinator, evaluator, st, a.logger)

	stopMetrics := a.serveMetrics(metricsAddr, reg)
	defer stopMetrics()

	run, err := pipeline.Start(ctx, plan)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "experiment %s: %d models x %d prompts (%s)\n",
		run.ID(), len(plan.Configs), len(plan.Prompts), plan.Mode)

	for ev := range run.Events() {
		if p, ok := ev.(experiment.ProgressEvent); ok {
			fmt.Fprintf(out, "[%d/%d] prompt %d %s\n", p.Completed, p.Total, p.Stats.Pair.PromptIndex+1, statistics.FormatLine(p.Stats))
		}
	}

	exp, h, err := pipeline.Finish(ctx, run)
	cs := client.Stats()
	a.logger.Debug("client middleware",
		"attempts", cs.Retry.TotalAttempts,
		"retried_ok", cs.Retry.SuccessfulRetries,
		"retries_exhausted", cs.Retry.FailedRetries,
		"max_backoff", cs.Retry.MaxBackoff,
		"cache_hits", cs.Cache.Hits,
		"cache_misses", cs.Cache.Misses)
	fmt.Fprintln(out, statistics.FormatSummary(exp.Summary))
	printEvaluationSummary(out, exp)

	switch {
	case err == nil:
		fmt.Fprintf(out, "saved %s\n", h)
	case errors.Is(err, store.ErrNotesWriteFailed):
		fmt.Fprintf(out, "saved %s (notes not written: %v)\n", h, err)
	default:
		return err
	}
	if ctx.Err() != nil {
		fmt.Fprintln(out, "run cancelled; unfinished pairs were recorded as cancelled")
	}
	return nil
}

func buildPlan(cfg *config.Config, o runOptions) (experiment.Plan, error) {
	prompts, err := buildPrompts(o.promptsFile, o.prompts, o.system)
	if err != nil {
		return experiment.Plan{}, err
	}
	if len(prompts) == 0 {
		return experiment.Plan{}, fmt.Errorf("no prompts: use --prompt or --prompts-file: %w", domain.ErrNoPrompts)
	}

	mode := cfg.Execution.Mode
	if o.mode != "" {
		mode = domain.ExecutionMode(o.mode)
	}

	return experiment.Plan{
		Name:    o.name,
		Configs: selectModels(cfg.Models, o.models),
		Prompts: prompts,
		Mode:    mode,
		Notes:   o.notes,
	}, nil
}

// selectModels resolves names against the configured models, falling back
// to default sampling for unknown names.
func selectModels(configured []domain.ModelConfig, names []string) []domain.ModelConfig {
	if len(names) == 0 {
		return configured
	}
	byID := make(map[string]domain.ModelConfig, len(configured))
	for _, m := range configured {
		byID[m.ID()] = m
	}
	out := make([]domain.ModelConfig, 0, len(names))
	for _, n := range names {
		if m, ok := byID[n]; ok {
			out = append(out, m)
			continue
		}
		out = append(out, domain.ModelConfig{
			Name:     n,
			Sampling: domain.SamplingParams{Temperature: config.DefaultModelTemperature},
		})
	}
	return out
}

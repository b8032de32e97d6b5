// Package cli implements the explab command line.
package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// skipConfig marks commands that must work without a loadable configuration.
const skipConfig = "skip-config"

// Execute runs the root command. SIGINT and SIGTERM cancel the context, which
// cancels a run in progress; its partial results are still saved.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCommand(os.Stdout, os.Stderr).ExecuteContext(ctx)
}

// NewRootCommand builds the command tree writing to out and errOut.
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "explab",
		Short: "Run prompt sets against several models and compare the results",
		Long: `explab sends every prompt of a prompt set to every configured model,
collects latency and token statistics, optionally scores the responses
with a rubric or a judge model, and stores each run as an experiment.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if _, ok := cmd.Annotations[skipConfig]; ok {
				return nil
			}
			return a.load()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/explab/config.yaml)")
	root.PersistentFlags().StringVar(&a.storeDir, "store-dir", "", "experiment directory (overrides store.dir)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (overrides log.level)")

	root.AddCommand(
		newRunCmd(a),
		newListCmd(a),
		newShowCmd(a),
		newNotesCmd(a),
		newDeleteCmd(a),
		newModelsCmd(a),
		newConfigCmd(a),
	)
	return root
}

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List saved experiments, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, release, err := a.openStore()
			if err != nil {
				return err
			}
			defer release()

			entries, err := st.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "no experiments")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCREATED\tMODE\tMODELS\tPAIRS\tOK\tFAILED\tEVALUATOR")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
					e.Handle, e.Name, e.CreatedAt.Local().Format("2006-01-02 15:04"), e.Mode,
					strings.Join(e.Models, ","), e.Summary.Total, e.Summary.SuccessCount,
					e.Summary.FailureCount, e.Judge)
			}
			return tw.Flush()
		},
	}
}

func newShowCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show <id-or-name>",
		Short: "Show an experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, release, err := a.openStore()
			if err != nil {
				return err
			}
			defer release()

			ctx := cmd.Context()
			h, err := resolve(ctx, st, args[0])
			if err != nil {
				return err
			}
			exp, err := st.Load(ctx, h)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch format {
			case "json":
				return writeJSON(out, exp)
			case "yaml":
				return writeYAML(out, exp)
			case "text":
				printExperiment(out, exp)
				return nil
			default:
				return fmt.Errorf("unknown format %q (text, json, yaml)", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "o", "text", "text, json or yaml")
	return cmd
}

func newNotesCmd(a *app) *cobra.Command {
	var (
		set  string
		file string
	)
	cmd := &cobra.Command{
		Use:   "notes <id-or-name>",
		Short: "Print or replace the notes of an experiment",
		Long: `Without flags, prints the notes. --set replaces them with the given text and
--file with the contents of a file ("-" reads standard input).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, release, err := a.openStore()
			if err != nil {
				return err
			}
			defer release()

			ctx := cmd.Context()
			h, err := resolve(ctx, st, args[0])
			if err != nil {
				return err
			}

			replace := cmd.Flags().Changed("set") || file != ""
			if !replace {
				exp, err := st.Load(ctx, h)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), exp.Notes)
				return nil
			}

			notes := set
			if file != "" {
				if notes, err = readNotes(cmd.InOrStdin(), file); err != nil {
					return err
				}
			}
			if err := st.UpdateNotes(ctx, h, notes); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated notes of %s\n", h)
			return nil
		},
	}
	cmd.Flags().StringVar(&set, "set", "", "replace the notes with this text")
	cmd.Flags().StringVar(&file, "file", "", "replace the notes with this file's contents")
	cmd.MarkFlagsMutuallyExclusive("set", "file")
	return cmd
}

func readNotes(stdin io.Reader, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read notes: %w", err)
	}
	return string(data), nil
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id-or-name>...",
		Aliases: []string{"rm"},
		Short:   "Delete experiments and their notes",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, release, err := a.openStore()
			if err != nil {
				return err
			}
			defer release()

			ctx := cmd.Context()
			var errs []error
			for _, ref := range args {
				h, err := resolve(ctx, st, ref)
				if err == nil {
					err = st.Delete(ctx, h)
				}
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", ref, err))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", h)
			}
			return errors.Join(errs...)
		},
	}
}

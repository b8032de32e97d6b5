package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newModelsCmd(a *app) *cobra.Command {
	var endpoint string
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models an endpoint advertises",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			client, err := a.newClient(ctx, nil)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			ids, err := client.ListModels(ctx, endpoint)
			if err != nil {
				return fmt.Errorf("list models: %w", err)
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "API base URL (default client.provider.endpoint)")
	return cmd
}

package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/justestif/radio-track-enhancer/internal/ratelimit"
)

func newQuotaCommand(g *globals) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "quota [provider]",
		Short: "Show provider quota usage.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, g.cfg, g.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			providers := []string{ratelimit.ProviderYouTube, ratelimit.ProviderDiscogs}
			if len(args) == 1 {
				providers = args
			}

			statuses := make([]ratelimit.Status, 0, len(providers))
			for _, p := range providers {
				st, err := a.service.QuotaStatus(ctx, p)
				if err != nil {
					return err
				}
				statuses = append(statuses, st)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(statuses)
			}
			for _, st := range statuses {
				printQuota(os.Stdout, st)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

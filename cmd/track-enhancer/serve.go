package main

import (
	"github.com/spf13/cobra"

	"github.com/justestif/radio-track-enhancer/internal/web"
)

func newServeCommand(g *globals) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the enhancement HTTP API.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, g.cfg, g.logger)
			if err != nil {
				return err
			}
			defer a.Close()
			a.pruneCache(ctx)

			if addr == "" {
				addr = g.cfg.Addr
			}

			hopts := []web.HandlerOption{
				web.WithDefaults(a.batchOptions()),
				web.WithLogger(g.logger.Named("web")),
			}
			if a.db != nil {
				hopts = append(hopts, web.WithBatchReader(a.db.Batches()))
			}
			handlers := web.NewHandlers(a.service, a.discogs, hopts...)

			server := web.NewServer(web.ServerConfig{
				Addr:   addr,
				Logger: g.logger.Named("web"),
			}, handlers)
			return server.Run()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	return cmd
}

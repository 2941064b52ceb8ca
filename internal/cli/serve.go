package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"csvingest/internal/api"
	"csvingest/internal/browse"
	"csvingest/internal/config"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the loaded tables over HTTP",
		Long: `Serve exposes the store read-only as JSON:

  GET /api/tables               table names and row counts
  GET /api/tables/{name}?page=  columns and one page of rows
  GET /api/search?q=            substring search over every table
  GET /api/relationships        foreign key hints`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, func(c *config.Config) {
				if cmd.Flags().Changed("addr") {
					c.Serve.Addr = addr
				}
			})
			if err != nil {
				return err
			}
			logger := newLogger(cmd)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			handler, err := api.NewServer(&browse.Service{Catalog: st, PageSize: cfg.Serve.PageSize}, logger)
			if err != nil {
				return err
			}
			srv := &http.Server{
				Addr:              cfg.Serve.Addr,
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errc := make(chan error, 1)
			go func() { errc <- srv.ListenAndServe() }()
			fmt.Fprintf(cmd.ErrOrStderr(), "serving %s store on %s\n", cfg.StorageConfig().Kind, cfg.Serve.Addr)

			select {
			case err := <-errc:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides serve.addr)")
	return cmd
}

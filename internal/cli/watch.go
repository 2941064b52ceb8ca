package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"csvingest/internal/datasource/s3"
	"csvingest/internal/ingest"
)

func newWatchCmd() *cobra.Command {
	var (
		asJSON   bool
		initial  bool
		debounce time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reload CSV files as they change in the input directory",
		Long: `Watch loads the input directory once, then reloads a file each time it is
created or written. A reload drops and recreates that file's table.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if s3.IsURL(cfg.InputDir) {
				return fmt.Errorf("watch needs a local directory, got %s", cfg.InputDir)
			}
			opt, err := cfg.IngestOptions()
			if err != nil {
				return err
			}
			logger := newLogger(cmd)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			stopMetrics := startMetrics(ctx, cfg, logger)
			defer stopMetrics()

			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			runner := &ingest.Runner{Store: st, Options: opt, Logger: logger}
			out := cmd.OutOrStdout()
			if initial {
				srcs, err := discover(ctx, cfg)
				if err != nil {
					return err
				}
				if err := printSummary(out, runner.Run(ctx, srcs), asJSON); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "watching %s\n", cfg.InputDir)
			return runner.Watch(ctx, cfg.InputDir, ingest.WatchOptions{
				Debounce: debounce,
				OnReload: func(sum ingest.Summary) {
					if err := printSummary(out, sum, asJSON); err != nil {
						logger.Printf("watch: print summary: %v", err)
					}
				},
			})
		},
	}
	flags := cmd.Flags()
	flags.BoolVar(&asJSON, "json", false, "print summaries as JSON")
	flags.BoolVar(&initial, "initial", true, "load the whole directory before watching")
	flags.DurationVar(&debounce, "debounce", ingest.DefaultDebounce, "quiet period before a changed file is reloaded")
	return cmd
}

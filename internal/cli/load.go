package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"csvingest/internal/config"
	"csvingest/internal/ingest"
	"csvingest/internal/report"
)

type loadFlagValues struct {
	conflict   string
	workers    int
	sampleSize int
	batchSize  int
	delimiter  string
	stripHTML  bool
	asJSON     bool
	schedule   string
}

func newLoadCmd() *cobra.Command {
	var f loadFlagValues
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load every CSV file under the input directory",
		Long: `Load discovers *.csv files under the input directory (recursively, or under
an s3://bucket/prefix), infers a table for each one and loads its rows.

Existing tables with the same name are dropped and recreated. When two files
map to the same table name, --conflict decides: rename (default), append,
replace or fail.

Examples:
  csvingest load -i ./exports --db contacts.db
  csvingest load -i s3://bucket/linkedin/ --store postgres --db postgres://localhost/contacts
  csvingest load --conflict append --json
  csvingest load --schedule "0 3 * * *"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd, f)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.conflict, "conflict", "", "table name collision policy: rename|append|replace|fail")
	flags.IntVar(&f.workers, "workers", 0, "files loaded in parallel (rename and fail only)")
	flags.IntVar(&f.sampleSize, "sample-size", 0, "rows sampled per file for type inference")
	flags.IntVar(&f.batchSize, "batch-size", 0, "rows per insert transaction")
	flags.StringVar(&f.delimiter, "delimiter", "", `field delimiter: auto|,|;|tab||`)
	flags.BoolVar(&f.stripHTML, "strip-html", false, "reduce HTML in text cells to its visible text")
	flags.BoolVar(&f.asJSON, "json", false, "print the run summary as JSON")
	flags.StringVar(&f.schedule, "schedule", "", `repeat the load on a cron schedule, e.g. "*/30 * * * *"`)
	return cmd
}

func (f loadFlagValues) apply(cmd *cobra.Command) func(*config.Config) {
	flags := cmd.Flags()
	return func(c *config.Config) {
		if flags.Changed("conflict") {
			c.TableConflict = f.conflict
		}
		if flags.Changed("workers") {
			c.Workers = f.workers
		}
		if flags.Changed("sample-size") {
			c.SampleSize = f.sampleSize
		}
		if flags.Changed("batch-size") {
			c.BatchSize = f.batchSize
		}
		if flags.Changed("delimiter") {
			c.Delimiter = f.delimiter
		}
		if flags.Changed("strip-html") {
			c.StripHTML = f.stripHTML
		}
	}
}

func runLoad(cmd *cobra.Command, f loadFlagValues) error {
	cfg, err := loadConfig(cmd, f.apply(cmd))
	if err != nil {
		return err
	}
	opt, err := cfg.IngestOptions()
	if err != nil {
		return err
	}
	logger := newLogger(cmd)

	var sched cron.Schedule
	if f.schedule != "" {
		if sched, err = cron.ParseStandard(f.schedule); err != nil {
			return fmt.Errorf("invalid --schedule %q: %w", f.schedule, err)
		}
	}

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
	once := func() error {
		srcs, err := discover(ctx, cfg)
		if err != nil {
			return err
		}
		sum := runner.Run(ctx, srcs)
		if err := printSummary(cmd.OutOrStdout(), sum, f.asJSON); err != nil {
			return err
		}
		if sum.Err() != nil {
			return ErrFilesFailed
		}
		return nil
	}

	if sched == nil {
		return once()
	}
	return runScheduled(ctx, sched, logger, once)
}

// runScheduled runs fn on sched until ctx is done. A run still in progress
// when the next one is due makes that one skip.
func runScheduled(ctx context.Context, sched cron.Schedule, logger *log.Logger, fn func() error) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(logger))))
	c.Schedule(sched, cron.FuncJob(func() {
		logger.Printf("schedule: run starting")
		if err := fn(); err != nil {
			logger.Printf("schedule: run failed: %v", err)
		}
	}))
	c.Start()
	logger.Printf("schedule: next run at %s", sched.Next(time.Now()).Format(time.RFC3339))
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func printSummary(w io.Writer, sum ingest.Summary, asJSON bool) error {
	if asJSON {
		return report.JSON(w, sum)
	}
	return report.Text(w, sum)
}

// Package cli implements the csvingest command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"csvingest/internal/config"
)

// ErrFilesFailed is returned by load when at least one file failed. The
// summary has already been printed.
var ErrFilesFailed = errors.New("one or more files failed to load")

// ErrInvalidConfig is returned when validation reports errors.
var ErrInvalidConfig = errors.New("invalid configuration")

const longHelp = `csvingest infers a relational schema for every CSV file in a directory
(or an s3:// prefix) and loads the rows into SQLite, PostgreSQL, SQL Server
or MySQL. One table per file; the header becomes the columns.

Configuration precedence, lowest to highest:
  defaults, csvingest.yaml (or --config), .env, CSVINGEST_* variables, flags

Exit Codes:
  0  - Success
  1  - A file failed to load, or any other error
  2  - Invalid configuration`

// NewRootCmd builds the command tree. Each call returns a fresh tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "csvingest",
		Short:         "Infer schemas for CSV files and load them into a database",
		Long:          longHelp,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "config file (default ./"+config.FileName+" if present)")
	pf.StringSlice("env-file", nil, "dotenv files to load (default .env)")
	pf.BoolP("verbose", "v", false, "Enable verbose output for all commands")
	pf.StringP("input", "i", "", "input directory or s3://bucket/prefix (overrides input_dir)")
	pf.String("db", "", "database file or DSN (overrides db_path)")
	pf.String("store", "", "store kind: sqlite|postgres|mssql|mysql (overrides store)")

	root.AddCommand(
		newLoadCmd(),
		newProbeCmd(),
		newWatchCmd(),
		newServeCmd(),
		newSearchCmd(),
		newTablesCmd(),
		newValidateCmd(),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	root := NewRootCmd()
	err := root.Execute()
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrInvalidConfig):
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 2
	default:
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
}

// getVerboseFlag safely retrieves the verbose flag value
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to get verbose flag: %v\n", err)
		return false
	}
	return verbose
}

func newLogger(cmd *cobra.Command) *log.Logger {
	if !getVerboseFlag(cmd) {
		return log.New(io.Discard, "", 0)
	}
	return log.New(cmd.ErrOrStderr(), "csvingest ", log.LstdFlags)
}

// loadConfig resolves the configuration for cmd, applies the persistent
// flag overrides and then apply, and validates the result. Issues go to
// stderr; errors fail.
func loadConfig(cmd *cobra.Command, apply ...func(*config.Config)) (*config.Config, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	required := path != ""
	if path == "" {
		path = config.FileName
	}
	envFiles, _ := flags.GetStringSlice("env-file")

	cfg, err := config.Resolve(path, required, envFiles...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if flags.Changed("input") {
		cfg.InputDir, _ = flags.GetString("input")
	}
	if flags.Changed("db") {
		cfg.DBPath, _ = flags.GetString("db")
	}
	if flags.Changed("store") {
		cfg.Store, _ = flags.GetString("store")
	}
	for _, fn := range apply {
		fn(cfg)
	}

	if err := checkConfig(cmd.ErrOrStderr(), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func checkConfig(w io.Writer, cfg *config.Config) error {
	issues := cfg.Validate()
	for _, iss := range issues {
		fmt.Fprintln(w, iss.String())
	}
	if config.HasErrors(issues) {
		return ErrInvalidConfig
	}
	return nil
}

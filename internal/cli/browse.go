package cli

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"csvingest/internal/browse"
	"csvingest/internal/report"
)

func newTablesCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List the tables in the store with their row counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			svc := &browse.Service{Catalog: st}
			tables, err := svc.Tables(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"tables": tables})
			}
			return report.Tables(cmd.OutOrStdout(), tables)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func newSearchCmd() *cobra.Command {
	var (
		asJSON bool
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Find rows containing text in any column of any table",
		Long: `Search matches text as a case-insensitive substring of every column of
every table and prints up to --limit rows per table.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			q := strings.Join(args, " ")
			svc := &browse.Service{Catalog: st, SearchLimit: limit}
			hits, err := svc.Search(cmd.Context(), q)
			if err != nil {
				return err
			}
			if asJSON {
				if hits == nil {
					hits = []browse.SearchHit{}
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{"query": q, "results": hits})
			}
			return report.SearchHits(cmd.OutOrStdout(), q, hits)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	cmd.Flags().IntVar(&limit, "limit", browse.DefaultSearchLimit, "rows per table")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), "configuration is valid: store="+cfg.StorageConfig().Kind+" input_dir="+cfg.InputDir+"\n")
			return err
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package cli

import (
	"github.com/spf13/cobra"

	"csvingest/internal/datasource/file"
	"csvingest/internal/ingest"
	"csvingest/internal/report"
)

func newProbeCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "probe <file.csv>",
		Short: "Print the table a CSV file would be loaded into",
		Long: `Probe detects the encoding, reads the header and the sample window of one
file and prints the inferred table: column names, types, nullability, the
primary key and indexes. Nothing is written to the store.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			opt, err := cfg.IngestOptions()
			if err != nil {
				return err
			}
			spec, enc, err := ingest.Probe(cmd.Context(), file.New(args[0]), opt)
			if err != nil {
				return err
			}
			if asJSON {
				return report.SpecJSON(cmd.OutOrStdout(), spec, enc)
			}
			return report.SpecText(cmd.OutOrStdout(), spec, enc)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the table as JSON")
	return cmd
}

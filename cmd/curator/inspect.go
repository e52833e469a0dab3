package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/curator/internal/ingest"
	"github.com/MikeSquared-Agency/curator/internal/rows"
)

var inspectJSON bool

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Print the rows a CSV or XLSX file would load as",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := ingest.ReadFile(args[0])
		if err != nil {
			return err
		}
		all := rows.FromSource(source)
		out := cmd.OutOrStdout()

		if inspectJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(all)
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ROW\tCELLS\tRAW")
		for _, r := range all {
			fmt.Fprintf(tw, "%d\t%d\t%s\n", r.Index+1, len(r.SourceFields), r.RawText)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%d rows\n", len(all))
		return nil
	},
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "print rows as JSON")
}

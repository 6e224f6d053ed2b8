package cli

import (
	"github.com/spf13/cobra"

	"revenue-action-center/internal/app"
)

var (
	exportFlags     analysisFlags
	exportCSVPath   string
	exportJSONPath  string
	exportPNGPath   string
	exportSeriesPNG string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the report as CSV, JSON and/or PNG charts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Export(cmd.Context(), app.ExportOptions{
			AnalyzeOptions: exportFlags.options(cmd),
			CSVPath:        exportCSVPath,
			JSONPath:       exportJSONPath,
			PNGPath:        exportPNGPath,
			SeriesPNGPath:  exportSeriesPNG,
		})
	},
}

func init() {
	exportFlags.register(exportCmd)
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write per-key CSV")
	exportCmd.Flags().StringVar(&exportJSONPath, "json", "", "Path to write the full JSON report")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write a bar chart of the top keys' change")
	exportCmd.Flags().StringVar(&exportSeriesPNG, "series-png", "", "Path to write the daily series of the top keys")
}

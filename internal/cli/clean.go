package cli

import (
	"github.com/spf13/cobra"

	"revenue-action-center/internal/app"
)

var (
	cleanInput      string
	cleanSheet      string
	cleanSQL        string
	cleanFormat     string
	cleanMinRPM     float64
	cleanMinRevenue float64
	cleanSortBy     string
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Keep only rows above the RPM and revenue floors",
	RunE: func(cmd *cobra.Command, args []string) error {
		fs := cmd.Flags()
		return getApp().Clean(cmd.Context(), app.CleanOptions{
			Source:     app.SourceOptions{Input: cleanInput, Sheet: cleanSheet, SQL: cleanSQL},
			Format:     cleanFormat,
			MinRPM:     changed(fs, "min-rpm", cleanMinRPM),
			MinRevenue: changed(fs, "min-revenue", cleanMinRevenue),
			SortBy:     cleanSortBy,
		})
	},
}

func init() {
	cleanCmd.Flags().StringVar(&cleanInput, "input", "", "CSV/XLSX feed path, - for CSV on stdin (defaults to dataset.input)")
	cleanCmd.Flags().StringVar(&cleanSheet, "sheet", "", "XLSX worksheet name (defaults to the first sheet)")
	cleanCmd.Flags().StringVar(&cleanSQL, "sql", "", "SQL query to run against database.dsn instead of a file")
	cleanCmd.Flags().StringVarP(&cleanFormat, "format", "o", "table", "Output format: table, json or csv")
	cleanCmd.Flags().Float64Var(&cleanMinRPM, "min-rpm", 0, "Keep rows with RPM above this (defaults to clean.min_rpm)")
	cleanCmd.Flags().Float64Var(&cleanMinRevenue, "min-revenue", 0, "Keep rows with gross revenue above this (defaults to clean.min_revenue)")
	cleanCmd.Flags().StringVar(&cleanSortBy, "sort-by", "", "Dimension to order rows by (defaults to clean.sort_by)")
}

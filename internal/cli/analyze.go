package cli

import (
	"github.com/spf13/cobra"

	"revenue-action-center/internal/app"
)

var (
	analyzeFlags analysisFlags
	trendFlags   analysisFlags

	spikesFlags        analysisFlags
	spikesAllDays      bool
	spikesIncludeQuiet bool

	classifyFlags      analysisFlags
	classifyActionable bool

	topFlags  analysisFlags
	topView   string
	topLowRPM bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run every analysis and print the full report",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Analyze(cmd.Context(), analyzeFlags.options(cmd))
	},
}

var trendCmd = &cobra.Command{
	Use:   "trend",
	Short: "Compare the last window with the one before it, per key",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Trend(cmd.Context(), trendFlags.options(cmd))
	},
}

var spikesCmd = &cobra.Command{
	Use:   "spikes",
	Short: "Flag keys whose metric broke out of their own history",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Spikes(cmd.Context(), app.SpikesOptions{
			AnalyzeOptions: spikesFlags.options(cmd),
			AllDays:        spikesAllDays,
			IncludeQuiet:   spikesIncludeQuiet,
		})
	},
}

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Label each key and recommend block, investigate or safe",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Classify(cmd.Context(), app.ClassifyOptions{
			AnalyzeOptions: classifyFlags.options(cmd),
			ActionableOnly: classifyActionable,
		})
	},
}

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Rank keys by revenue change, invalid traffic or loss",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Top(cmd.Context(), app.TopOptions{
			AnalyzeOptions: topFlags.options(cmd),
			View:           topView,
			LowRPM:         topLowRPM,
		})
	},
}

func init() {
	analyzeFlags.register(analyzeCmd)
	trendFlags.register(trendCmd)

	spikesFlags.register(spikesCmd)
	spikesCmd.Flags().BoolVar(&spikesAllDays, "all-days", false, "Evaluate every day instead of only the latest date")
	spikesCmd.Flags().BoolVar(&spikesIncludeQuiet, "include-quiet", false, "Also list evaluations that did not flag")

	classifyFlags.register(classifyCmd)
	classifyCmd.Flags().BoolVar(&classifyActionable, "actionable", false, "Only list keys to block or investigate")

	topFlags.register(topCmd)
	topCmd.Flags().StringVar(&topView, "view", "revenue-delta", "Ranking: revenue-delta, ivt or loss")
	topCmd.Flags().BoolVar(&topLowRPM, "low-rpm", false, "Only keys under thresholds.rpm_floor with at least thresholds.min_requests requests")
}

package cli

import (
	"github.com/spf13/cobra"

	"revenue-action-center/internal/app"
)

var (
	notifyFlags analysisFlags
	notifyForce bool

	watchFlags analysisFlags
	watchOnce  bool
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Run once and send the action digest",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Notify(cmd.Context(), app.NotifyOptions{
			AnalyzeOptions: notifyFlags.options(cmd),
			Force:          notifyForce,
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-evaluate the feed on scheduler.interval and send digests",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Watch(cmd.Context(), app.WatchOptions{
			AnalyzeOptions: watchFlags.options(cmd),
			Once:           watchOnce,
		})
	},
}

func init() {
	notifyFlags.register(notifyCmd)
	notifyCmd.Flags().BoolVar(&notifyForce, "force", false, "Send even when nothing is actionable")

	watchFlags.register(watchCmd)
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "Run a single tick and exit")
}

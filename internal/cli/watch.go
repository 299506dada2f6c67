package cli

import (
	"github.com/spf13/cobra"

	"wallet-activity/internal/app"
)

var (
	watchAddress       string
	watchNotifyInitial bool
	watchOnce          bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll a wallet, archive new activity and send alerts",
	Long:  "Poll a wallet on scheduler.interval. Send SIGHUP after a confirmed write to start the post-write refresh burst.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Watch(cmd.Context(), app.WatchOptions{
			Address:       watchAddress,
			NotifyInitial: watchNotifyInitial,
			Once:          watchOnce,
		})
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchAddress, "address", "", "Wallet address (0x-prefixed)")
	watchCmd.Flags().BoolVar(&watchNotifyInitial, "notify-initial", false, "Also alert on the history found by the first poll")
	watchCmd.Flags().BoolVar(&watchOnce, "once", false, "Run a single poll and exit")
	_ = watchCmd.MarkFlagRequired("address")
}

package cli

import (
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every scheduled task once and exit",
	Long: `Runs collection, the notification check and cleanup once, in that order.
Suitable for driving usagewatch from cron instead of "usagewatch serve".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.scheduler().RunAll(cmd.Context())
	},
}

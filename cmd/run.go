package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runDryRun bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single fetch cycle and exit",
	Long:  "Fetches every configured center once, dispatches incidents not seen before, and prints the cycle summary as JSON. Suitable for cron.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initWatcher(ctx, runDryRun)
		if err != nil {
			return err
		}
		defer env.Close()

		stats, err := env.Watcher.RunCycle(ctx)
		if err != nil {
			return err
		}

		zap.L().Info("cycle complete",
			zap.Int("rows", stats.Rows),
			zap.Int("new", stats.New),
			zap.Int("dispatched", stats.Dispatched),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

func init() {
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "log incidents instead of sending to Telegram")
	rootCmd.AddCommand(runCmd)
}

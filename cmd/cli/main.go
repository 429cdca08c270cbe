package main

import (
	"context"
	"fmt"
	"os"

	"github.com/beaconblast/campaign-delivery/internal/config"
	"github.com/beaconblast/campaign-delivery/pkg/logger"
	"github.com/spf13/cobra"
)

var envPath string

var rootCmd = &cobra.Command{
	Use:   "campaignctl",
	Short: "Operational commands for the campaign delivery service",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.Load(resolveEnvPath(envPath))
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envPath, "env", "", "dotenv file to load, defaults to ./.env when present")

	migrateCmd.AddCommand(migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)

	sendCmd.Flags().Int64("user", 0, "owner of the campaign")
	_ = sendCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(sendCmd)

	testEmailCmd.Flags().Int64("user", 0, "owner of the campaign")
	_ = testEmailCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(testEmailCmd)

	rootCmd.AddCommand(scheduleTickCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveEnvPath(path string) string {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			logger.Error("failed to open the passed env file, got error" + err.Error())
			return ""
		}
		return path
	}
	if _, err := os.Stat(".env"); err != nil {
		return ""
	}
	return ".env"
}

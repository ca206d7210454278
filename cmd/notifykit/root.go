package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/notifykit/pkg/config"
)

var rootCmd = &cobra.Command{
	Use:           "notifykit",
	Short:         "Notification delivery engine",
	Long:          "Deliver business events to recipients over email, push and socket channels.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		files, _ := cmd.Flags().GetStringSlice("env-file")
		if len(files) == 0 {
			return nil
		}
		return config.LoadEnv(files...)
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringSlice("env-file", nil, "dotenv files loaded before reading the environment")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(templatesCmd)
}

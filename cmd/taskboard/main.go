package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fentz26/taskboard/internal/config"
)

var rootCmd = &cobra.Command{
	Use:          "taskboard",
	Short:        "taskboard - scheduled task dashboard",
	Long:         `taskboard shows the tasks and execution history of a database-backed scheduler, with live counts of what changed since you last looked.`,
	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if configPath != "" {
			cfg, err = config.Load(cmd.Context(), configPath)
		} else {
			cfg, err = config.LoadFromHome(cmd.Context())
		}
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("api") {
			cfg.APIAddr = apiAddr
		}
		logrus.SetLevel(cfg.Level())
		return nil
	},
	// No RunE - defaults to showing help when no subcommand is provided
}

var (
	apiAddr    string
	configPath string

	cfg *config.Config
)

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "http://127.0.0.1:7466", "API server address")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.taskboard/config.yaml)")

	// Add subcommands
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

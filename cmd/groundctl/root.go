package main

import (
	"github.com/spf13/cobra"

	"github.com/gioimtg2003/control-drone-first/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "groundctl",
	Short: "Drone ground control telemetry service",
	Long: `groundctl connects to a drone over a serial link, fans its telemetry
out to browser clients over SSE and runs motor tests and exports on
request.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default is $"+config.EnvConfigPath+", then ./groundctl.yaml)")
}

// loadConfig loads the layered configuration for any subcommand.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gioimtg2003/control-drone-first/internal/adapter/seriallink"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports a drone can connect on",
	Args:  cobra.NoArgs,
	RunE:  runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports, err := seriallink.New().ListPorts(cmd.Context())
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No serial ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	return nil
}

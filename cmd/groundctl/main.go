// Package main implements the groundctl entry point: the ground control
// telemetry service and its maintenance commands.
package main

import (
	"fmt"
	"os"
)

// Version is the groundctl release.
const Version = "1.0.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

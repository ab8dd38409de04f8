// Mbus-poll reads M-Bus meters over a serial line or a TCP level converter.
//
// Usage:
//
//	mbus-poll run --config mbus.yaml
//	mbus-poll decode "68 03 03 68 08 05 72 7F 16"
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags.
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mbus-poll",
	Short: "M-Bus meter poller",
	Long: `Poll M-Bus meters over a serial line or an M-Bus to TCP converter.

Each configured meter is reset with SND_NKE and read with REQ_UD2 on a fixed
interval. Decoded records are written to the log and scheduler counters are
exported for Prometheus.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(decodeCmd)
}

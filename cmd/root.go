// Package cmd implements the gencamctl CLI commands: discovery,
// GenApi feature reads/writes, GVSP streaming, event tailing, and
// action-command broadcasting. Grounded on the teacher's cmd/root.go
// (persistent flags, Execute entrypoint, exitWithError helper) and
// spec.md §1's listing of the CLI as an external collaborator.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	configFile     string
	ifaceName      string
	deviceAddress  string
	controlTimeout time.Duration
	jsonOutput     bool
)

var rootCmd = &cobra.Command{
	Use:   "gencamctl",
	Short: "gencamctl drives a GigE Vision device's control and streaming planes",
	Long: `gencamctl is a host-side client for the GigE Vision machine-vision
stack: device discovery over GVCP, typed feature reads/writes against a
device's XML register description, GVSP frame streaming, event-channel
tailing, and action-command broadcasting.`,
	Version: "0.1.0",
}

// Execute runs the root command. Called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "device config file path (YAML/JSON/TOML)")
	rootCmd.PersistentFlags().StringVarP(&ifaceName, "interface", "i", "", "host network interface to use")
	rootCmd.PersistentFlags().StringVarP(&deviceAddress, "address", "a", "", "device IPv4 address")
	rootCmd.PersistentFlags().DurationVarP(&controlTimeout, "timeout", "t", 500*time.Millisecond, "GVCP request timeout")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit JSON output")

	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(xmlCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(actionCmd)
}

// exitWithError prints msg and exits 1, for failures with no
// spec.md §7 error-kind mapping (flag validation, I/O setup).
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}

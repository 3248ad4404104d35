// Command ringctl is an operator tool for exercising the ring log
// library end to end against a simulated block device: format, mount,
// inspect status, append data, walk recorded sessions, and inject
// faults for testing. The device image persists to a flat file between
// invocations, so recovery behavior can be observed across real
// process restarts.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmdArgs struct {
	ConfigPath string
}

var rootCmd = &cobra.Command{
	Use:     "ringctl",
	Short:   "Operator CLI for the NAND ring log",
	Version: "0.1.0",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootCmdArgs.ConfigPath, "config", "c", "", "path to a YAML geometry/ring config file (defaults built in if omitted)")

	rootCmd.AddCommand(formatCmd)
	rootCmd.AddCommand(mountCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(injectFaultCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*Config, error) {
	if rootCmdArgs.ConfigPath == "" {
		return DefaultConfig(), nil
	}
	return LoadConfig(rootCmdArgs.ConfigPath)
}

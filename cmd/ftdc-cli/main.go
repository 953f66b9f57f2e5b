package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:     "ftdc-cli",
	Short:   "Decode and serve MongoDB FTDC diagnostic data captures",
	Version: version,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file (optional; env vars and defaults otherwise)")

	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "ganymede",
	Short: "Mercator Ganymede - TLS-terminating ingress router",
	Long: `Mercator Ganymede is a TLS-terminating ingress router that multiplexes
HTTP(S) traffic across virtual hosts to local backend services.

It provides:
  - SNI-based certificate selection with hot reload
  - Host-based routing to per-host backends
  - ACME HTTP-01 challenge serving for certificate issuance
  - A stub_status-style counter endpoint and Prometheus metrics
  - Streaming request forwarding with pooled backend connections`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/server"
	"mercator-hq/ganymede/pkg/telemetry/logging"
)

var runFlags struct {
	httpAddress  string
	httpsAddress string
	logLevel     string
	dryRun       bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Ganymede ingress",
	Long: `Start the Ganymede ingress with the specified configuration.

The ingress binds the plaintext and TLS listeners, terminates TLS with the
per-host certificate bindings, and forwards requests to the configured
backends.

Examples:
  # Start with default config
  ganymede run

  # Start with custom config
  ganymede run --config /etc/ganymede/config.yaml

  # Override listen addresses
  ganymede run --http :8080 --https :8443

  # Validate config without starting
  ganymede run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runFlags.httpAddress, "http", "", "override plaintext listen address")
	runCmd.Flags().StringVar(&runFlags.httpsAddress, "https", "", "override TLS listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the ingress")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError("", err.Error())
	}

	// Apply flag overrides
	if runFlags.httpAddress != "" {
		cfg.Server.HTTPAddress = runFlags.httpAddress
	}
	if runFlags.httpsAddress != "" {
		cfg.Server.HTTPSAddress = runFlags.httpsAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	if err := config.Validate(cfg); err != nil {
		return cli.NewConfigError("", err.Error())
	}

	logger, err := logging.Setup(cfg.Telemetry.Logging, nil)
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}

	if runFlags.dryRun {
		fmt.Printf("configuration OK: %d virtual host(s)\n", len(cfg.VirtualHosts))
		return nil
	}

	srv, err := server.New(cfg)
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	logger.Info("starting ganymede",
		"version", Version,
		"http", cfg.Server.HTTPAddress,
		"https", cfg.Server.HTTPSAddress,
		"virtual_hosts", len(cfg.VirtualHosts),
	)

	ctx := cli.SetupSignalHandler()
	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	return nil
}

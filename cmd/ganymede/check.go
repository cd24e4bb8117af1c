package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/config"
	securitytls "mercator-hq/ganymede/pkg/security/tls"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate configuration and certificates",
	Long: `Validate the configuration file, TLS parameters, and every virtual
host's certificate binding, without binding any sockets.

Exits non-zero if anything would prevent 'ganymede run' from starting.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError("", err.Error())
	}

	if _, err := securitytls.ParseMinVersion(cfg.TLS.MinVersion); err != nil {
		return cli.NewConfigError("tls.min_version", err.Error())
	}
	if _, err := securitytls.ParseCipherSuites(cfg.TLS.CipherSuites); err != nil {
		return cli.NewConfigError("tls.cipher_suites", err.Error())
	}

	bindings := make([]securitytls.Binding, 0, len(cfg.VirtualHosts))
	for _, vh := range cfg.VirtualHosts {
		bindings = append(bindings, securitytls.Binding{
			Hostname: vh.Hostname,
			CertFile: vh.CertFile,
			KeyFile:  vh.KeyFile,
		})
	}
	if err := securitytls.NewStore(bindings).Load(); err != nil {
		return cli.NewConfigError("virtual_hosts", err.Error())
	}

	fmt.Printf("configuration OK: %d virtual host(s), ACME root %s\n",
		len(cfg.VirtualHosts), cfg.ACME.ChallengeRoot)
	return nil
}

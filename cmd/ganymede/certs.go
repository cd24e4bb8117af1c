package main

import (
	"crypto/tls"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/config"
	securitytls "mercator-hq/ganymede/pkg/security/tls"
)

var certsCmd = &cobra.Command{
	Use:   "certs",
	Short: "Certificate binding utilities",
}

var certsInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show certificate details for every virtual host",
	RunE:  runCertsInfo,
}

func init() {
	certsCmd.AddCommand(certsInfoCmd)
	rootCmd.AddCommand(certsCmd)
}

func runCertsInfo(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError("", err.Error())
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "HOSTNAME\tSUBJECT\tISSUER\tEXPIRES\tDAYS LEFT")

	for _, vh := range cfg.VirtualHosts {
		cert, err := tls.LoadX509KeyPair(vh.CertFile, vh.KeyFile)
		if err != nil {
			fmt.Fprintf(w, "%s\t<error: %v>\t\t\t\n", vh.Hostname, err)
			continue
		}
		info, err := securitytls.LeafInfo(&cert)
		if err != nil {
			fmt.Fprintf(w, "%s\t<error: %v>\t\t\t\n", vh.Hostname, err)
			continue
		}
		days, _ := securitytls.CheckCertificateExpiration(info.NotAfter)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
			vh.Hostname,
			info.Subject,
			info.Issuer,
			info.NotAfter.Format(time.RFC3339),
			days,
		)
	}

	return w.Flush()
}

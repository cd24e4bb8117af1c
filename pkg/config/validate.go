package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Validate checks the configuration for errors that must stop the process
// before any traffic is accepted. It returns the first error found, naming
// the offending section and field.
func Validate(cfg *Config) error {
	if err := validateAddress("server.http_address", cfg.Server.HTTPAddress); err != nil {
		return err
	}
	if err := validateAddress("server.https_address", cfg.Server.HTTPSAddress); err != nil {
		return err
	}
	if cfg.Server.HTTPAddress == cfg.Server.HTTPSAddress {
		return fmt.Errorf("server: http_address and https_address must differ (both %q)", cfg.Server.HTTPAddress)
	}
	if cfg.Server.RequestTimeout < 0 {
		return fmt.Errorf("server.request_timeout: must not be negative")
	}

	switch cfg.TLS.MinVersion {
	case "1.2", "1.3":
	default:
		return fmt.Errorf("tls.min_version: must be \"1.2\" or \"1.3\", got %q", cfg.TLS.MinVersion)
	}

	if len(cfg.VirtualHosts) == 0 {
		return fmt.Errorf("virtual_hosts: at least one virtual host is required")
	}

	seen := make(map[string]bool, len(cfg.VirtualHosts))
	for i := range cfg.VirtualHosts {
		vh := &cfg.VirtualHosts[i]
		field := fmt.Sprintf("virtual_hosts[%d]", i)

		hostname := strings.ToLower(strings.TrimSpace(vh.Hostname))
		if hostname == "" {
			return fmt.Errorf("%s.hostname: is required", field)
		}
		if strings.ContainsAny(hostname, " /:") {
			return fmt.Errorf("%s.hostname: %q is not a valid hostname", field, vh.Hostname)
		}
		if seen[hostname] {
			return fmt.Errorf("%s.hostname: duplicate hostname %q", field, hostname)
		}
		seen[hostname] = true
		vh.Hostname = hostname

		if err := validateBackend(field+".backend", vh.Backend); err != nil {
			return err
		}

		// Every terminated hostname needs exactly one certificate binding.
		if vh.CertFile == "" {
			return fmt.Errorf("%s.cert_file: is required", field)
		}
		if vh.KeyFile == "" {
			return fmt.Errorf("%s.key_file: is required", field)
		}
	}

	switch cfg.Unmatched.Policy {
	case UnmatchedNotFound:
	case UnmatchedDefaultHost:
		if cfg.Unmatched.DefaultHost == "" {
			return fmt.Errorf("unmatched.default_host: required when policy is %q", UnmatchedDefaultHost)
		}
		if !seen[strings.ToLower(cfg.Unmatched.DefaultHost)] {
			return fmt.Errorf("unmatched.default_host: %q is not a configured virtual host", cfg.Unmatched.DefaultHost)
		}
	default:
		return fmt.Errorf("unmatched.policy: must be %q or %q, got %q",
			UnmatchedNotFound, UnmatchedDefaultHost, cfg.Unmatched.Policy)
	}

	if cfg.ACME.ChallengeRoot == "" {
		return fmt.Errorf("acme.challenge_root: is required")
	}

	if !strings.HasPrefix(cfg.Status.Path, "/") {
		return fmt.Errorf("status.path: must start with '/', got %q", cfg.Status.Path)
	}

	switch cfg.Telemetry.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("telemetry.logging.level: unknown level %q", cfg.Telemetry.Logging.Level)
	}
	switch cfg.Telemetry.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("telemetry.logging.format: unknown format %q", cfg.Telemetry.Logging.Format)
	}
	if !strings.HasPrefix(cfg.Telemetry.Metrics.Path, "/") {
		return fmt.Errorf("telemetry.metrics.path: must start with '/', got %q", cfg.Telemetry.Metrics.Path)
	}

	switch cfg.AccessLog.Backend {
	case AccessLogStdout, AccessLogSQLite:
	default:
		return fmt.Errorf("access_log.backend: must be %q or %q, got %q",
			AccessLogStdout, AccessLogSQLite, cfg.AccessLog.Backend)
	}
	if cfg.AccessLog.Backend == AccessLogSQLite && cfg.AccessLog.SQLite.Path == "" {
		return fmt.Errorf("access_log.sqlite.path: is required for the sqlite backend")
	}

	if cfg.Upstream.MaxIdlePerBackend < 0 {
		return fmt.Errorf("upstream.max_idle_per_backend: must not be negative")
	}

	return nil
}

// validateAddress checks a listen address of the form "host:port" or ":port".
func validateAddress(field, addr string) error {
	if addr == "" {
		return fmt.Errorf("%s: is required", field)
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%s: invalid address %q: %v", field, addr, err)
	}
	if err := validatePort(field, port); err != nil {
		return err
	}
	return nil
}

// validateBackend checks a backend address, which must include a host.
func validateBackend(field, addr string) error {
	if addr == "" {
		return fmt.Errorf("%s: is required", field)
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%s: invalid address %q: %v", field, addr, err)
	}
	if host == "" {
		return fmt.Errorf("%s: %q must include a host", field, addr)
	}
	return validatePort(field, port)
}

func validatePort(field, port string) error {
	n, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("%s: invalid port %q", field, port)
	}
	if n < 1 || n > 65535 {
		return fmt.Errorf("%s: port %d out of range", field, n)
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const minimalYAML = `
acme:
  challenge_root: /var/lib/ganymede/challenges
virtual_hosts:
  - hostname: tracker.example
    backend: 127.0.0.1:4000
    cert_file: /etc/certs/tracker.crt
    key_file: /etc/certs/tracker.key
`

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoadConfig_MinimalFile(t *testing.T) {
	cfg, err := LoadConfig(writeConfigFile(t, minimalYAML))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if got := cfg.Server.HTTPAddress; got != ":80" {
		t.Errorf("Server.HTTPAddress = %q, want \":80\"", got)
	}
	if got := cfg.Server.HTTPSAddress; got != ":443" {
		t.Errorf("Server.HTTPSAddress = %q, want \":443\"", got)
	}
	if got := cfg.Server.RequestTimeout; got != 60*time.Second {
		t.Errorf("Server.RequestTimeout = %v, want 60s", got)
	}
	if got := cfg.TLS.MinVersion; got != "1.2" {
		t.Errorf("TLS.MinVersion = %q, want \"1.2\"", got)
	}
	if got := cfg.Status.Path; got != "/stub_status" {
		t.Errorf("Status.Path = %q, want \"/stub_status\"", got)
	}
	if got := cfg.Unmatched.Policy; got != UnmatchedNotFound {
		t.Errorf("Unmatched.Policy = %q, want %q", got, UnmatchedNotFound)
	}
	if got := cfg.Upstream.MaxIdlePerBackend; got != 8 {
		t.Errorf("Upstream.MaxIdlePerBackend = %d, want 8", got)
	}
	if got := cfg.Telemetry.Metrics.Namespace; got != "ganymede" {
		t.Errorf("Telemetry.Metrics.Namespace = %q, want \"ganymede\"", got)
	}
	if got := cfg.AccessLog.Backend; got != AccessLogStdout {
		t.Errorf("AccessLog.Backend = %q, want %q", got, AccessLogStdout)
	}
	if !cfg.MetricsEnabled() {
		t.Error("MetricsEnabled() = false, want true by default")
	}
	if !cfg.AccessLogEnabled() {
		t.Error("AccessLogEnabled() = false, want true by default")
	}

	vh := cfg.VirtualHosts[0]
	if !vh.RedirectHTTPSEnabled() {
		t.Error("RedirectHTTPSEnabled() = false, want true by default")
	}
}

func TestLoadConfig_FullFile(t *testing.T) {
	content := `
server:
  http_address: ":8080"
  https_address: ":8443"
  read_timeout: 10s
  request_timeout: 5s
  shutdown_timeout: 15s
tls:
  min_version: "1.3"
  reload_debounce: 1s
acme:
  challenge_root: /tmp/challenges
status:
  path: /ingress_status
virtual_hosts:
  - hostname: Tracker.Example
    backend: 127.0.0.1:4000
    cert_file: /etc/certs/tracker.crt
    key_file: /etc/certs/tracker.key
    redirect_https: false
  - hostname: static.example
    backend: 127.0.0.1:4001
    cert_file: /etc/certs/static.crt
    key_file: /etc/certs/static.key
unmatched:
  policy: default_host
  default_host: static.example
upstream:
  dial_timeout: 2s
  idle_timeout: 30s
  max_idle_per_backend: 4
telemetry:
  logging:
    level: debug
    format: text
  metrics:
    enabled: false
access_log:
  backend: sqlite
  sqlite:
    path: /tmp/access.db
    retention_days: 7
    prune_schedule: "30 2 * * *"
`
	cfg, err := LoadConfig(writeConfigFile(t, content))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if got := cfg.Server.HTTPAddress; got != ":8080" {
		t.Errorf("Server.HTTPAddress = %q, want \":8080\"", got)
	}
	if got := cfg.Server.RequestTimeout; got != 5*time.Second {
		t.Errorf("Server.RequestTimeout = %v, want 5s", got)
	}
	if got := cfg.TLS.MinVersion; got != "1.3" {
		t.Errorf("TLS.MinVersion = %q, want \"1.3\"", got)
	}
	if got := cfg.Status.Path; got != "/ingress_status" {
		t.Errorf("Status.Path = %q, want \"/ingress_status\"", got)
	}

	// Validation lowercases hostnames so SNI and Host lookups are uniform.
	if got := cfg.VirtualHosts[0].Hostname; got != "tracker.example" {
		t.Errorf("VirtualHosts[0].Hostname = %q, want lowercased \"tracker.example\"", got)
	}
	if cfg.VirtualHosts[0].RedirectHTTPSEnabled() {
		t.Error("VirtualHosts[0].RedirectHTTPSEnabled() = true, want false")
	}
	if !cfg.VirtualHosts[1].RedirectHTTPSEnabled() {
		t.Error("VirtualHosts[1].RedirectHTTPSEnabled() = false, want true")
	}

	if got := cfg.Unmatched.Policy; got != UnmatchedDefaultHost {
		t.Errorf("Unmatched.Policy = %q, want %q", got, UnmatchedDefaultHost)
	}
	if got := cfg.Upstream.DialTimeout; got != 2*time.Second {
		t.Errorf("Upstream.DialTimeout = %v, want 2s", got)
	}
	if cfg.MetricsEnabled() {
		t.Error("MetricsEnabled() = true, want false")
	}
	if got := cfg.AccessLog.SQLite.RetentionDays; got != 7 {
		t.Errorf("AccessLog.SQLite.RetentionDays = %d, want 7", got)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("LoadConfig() expected error for missing file, got nil")
	}
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	if _, err := LoadConfig(writeConfigFile(t, "virtual_hosts: [unclosed")); err == nil {
		t.Fatal("LoadConfig() expected error for malformed YAML, got nil")
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	t.Setenv("GANYMEDE_SERVER_HTTP_ADDRESS", ":9080")
	t.Setenv("GANYMEDE_SERVER_REQUEST_TIMEOUT", "90s")
	t.Setenv("GANYMEDE_TLS_MIN_VERSION", "1.3")
	t.Setenv("GANYMEDE_STATUS_PATH", "/env_status")
	t.Setenv("GANYMEDE_LOGGING_LEVEL", "warn")

	cfg, err := LoadConfigWithEnvOverrides(writeConfigFile(t, minimalYAML))
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides() error = %v", err)
	}

	if got := cfg.Server.HTTPAddress; got != ":9080" {
		t.Errorf("Server.HTTPAddress = %q, want \":9080\"", got)
	}
	if got := cfg.Server.RequestTimeout; got != 90*time.Second {
		t.Errorf("Server.RequestTimeout = %v, want 90s", got)
	}
	if got := cfg.TLS.MinVersion; got != "1.3" {
		t.Errorf("TLS.MinVersion = %q, want \"1.3\"", got)
	}
	if got := cfg.Status.Path; got != "/env_status" {
		t.Errorf("Status.Path = %q, want \"/env_status\"", got)
	}
	if got := cfg.Telemetry.Logging.Level; got != "warn" {
		t.Errorf("Telemetry.Logging.Level = %q, want \"warn\"", got)
	}
}

func TestLoadConfigWithEnvOverrides_InvalidValue(t *testing.T) {
	t.Setenv("GANYMEDE_TLS_MIN_VERSION", "1.1")

	if _, err := LoadConfigWithEnvOverrides(writeConfigFile(t, minimalYAML)); err == nil {
		t.Fatal("LoadConfigWithEnvOverrides() expected validation error for TLS 1.1, got nil")
	}
}

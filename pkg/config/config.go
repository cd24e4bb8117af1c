package config

import "time"

// Config is the root configuration structure for Mercator Ganymede.
// It contains all configuration sections for the ingress listeners, TLS
// termination, virtual-host routing, ACME challenge serving, upstream
// forwarding, telemetry, and access logging.
type Config struct {
	// Server contains listener configuration including addresses, timeouts,
	// and connection limits.
	Server ServerConfig `yaml:"server"`

	// TLS contains TLS termination parameters shared by all virtual hosts.
	TLS TLSConfig `yaml:"tls"`

	// ACME contains configuration for serving HTTP-01 challenge files.
	ACME ACMEConfig `yaml:"acme"`

	// Status contains configuration for the plaintext counter endpoint.
	Status StatusConfig `yaml:"status"`

	// VirtualHosts lists the hostnames this ingress terminates and the
	// backend each one forwards to. Hostnames must be unique.
	VirtualHosts []VirtualHostConfig `yaml:"virtual_hosts"`

	// Unmatched controls what happens to requests for hostnames that have
	// no virtual host entry.
	Unmatched UnmatchedConfig `yaml:"unmatched"`

	// Upstream contains settings for backend connections and pooling.
	Upstream UpstreamConfig `yaml:"upstream"`

	// Telemetry contains configuration for logging and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// AccessLog contains configuration for per-request access logging.
	AccessLog AccessLogConfig `yaml:"access_log"`
}

// ServerConfig contains configuration for the two ingress listeners.
type ServerConfig struct {
	// HTTPAddress is the plaintext listen address.
	// Default: ":80"
	HTTPAddress string `yaml:"http_address"`

	// HTTPSAddress is the TLS listen address.
	// Default: ":443"
	HTTPSAddress string `yaml:"https_address"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body. Zero means no timeout.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response. Zero means no timeout. Streaming responses need headroom
	// here; the per-request deadline is RequestTimeout.
	// Default: 0 (disabled)
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// on a kept-alive client connection.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// RequestTimeout is the deadline for one proxied request/response cycle.
	// Requests exceeding it are cancelled and answered with 504.
	// Default: 60s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes the server will
	// read parsing request headers.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`
}

// TLSConfig contains TLS termination parameters.
type TLSConfig struct {
	// MinVersion is the minimum TLS version to accept ("1.2" or "1.3").
	// Default: "1.2"
	MinVersion string `yaml:"min_version"`

	// CipherSuites is a list of enabled cipher suites by their IANA names
	// (e.g. "TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256"). If empty, Go's
	// default secure suites are used. TLS 1.3 suites are not configurable.
	CipherSuites []string `yaml:"cipher_suites"`

	// ReloadDebounce is the quiet period after a certificate file change
	// before the binding table is rebuilt.
	// Default: 500ms
	ReloadDebounce time.Duration `yaml:"reload_debounce"`
}

// ACMEConfig contains configuration for HTTP-01 challenge serving.
type ACMEConfig struct {
	// ChallengeRoot is the directory challenge files are read from.
	// Tokens under /.well-known/acme-challenge/ map to files directly
	// under this directory.
	ChallengeRoot string `yaml:"challenge_root"`
}

// StatusConfig contains configuration for the counter endpoint.
type StatusConfig struct {
	// Path is the reserved path for the plaintext counter snapshot.
	// Default: "/stub_status"
	Path string `yaml:"path"`
}

// VirtualHostConfig describes one terminated hostname.
type VirtualHostConfig struct {
	// Hostname is the virtual host name clients present in SNI and the
	// Host header (e.g. "tracker.example"). Compared case-insensitively.
	Hostname string `yaml:"hostname"`

	// Backend is the upstream address in "host:port" form
	// (e.g. "127.0.0.1:4000").
	Backend string `yaml:"backend"`

	// CertFile is the path to the PEM-encoded certificate chain for this
	// hostname.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded private key for this hostname.
	KeyFile string `yaml:"key_file"`

	// RedirectHTTPS redirects plaintext requests for this hostname to the
	// TLS listener. ACME challenge and status paths are exempt.
	// Default: true
	RedirectHTTPS *bool `yaml:"redirect_https"`
}

// Unmatched-hostname policies.
const (
	// UnmatchedNotFound answers requests for unknown hostnames with 404.
	UnmatchedNotFound = "not_found"

	// UnmatchedDefaultHost routes requests for unknown hostnames to the
	// backend of the virtual host named by DefaultHost.
	UnmatchedDefaultHost = "default_host"
)

// UnmatchedConfig controls handling of unknown hostnames.
type UnmatchedConfig struct {
	// Policy is "not_found" or "default_host".
	// Default: "not_found"
	Policy string `yaml:"policy"`

	// DefaultHost names the virtual host that receives unmatched traffic
	// when Policy is "default_host".
	DefaultHost string `yaml:"default_host"`
}

// UpstreamConfig contains settings for backend connections.
type UpstreamConfig struct {
	// DialTimeout is the maximum duration for establishing a backend
	// connection.
	// Default: 5s
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// IdleTimeout is how long an unused pooled connection is kept before
	// being closed.
	// Default: 90s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// MaxIdlePerBackend caps the number of idle connections parked per
	// backend address.
	// Default: 8
	MaxIdlePerBackend int `yaml:"max_idle_per_backend"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level ("debug", "info", "warn", "error").
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the output format ("json" or "text").
	// Default: "json"
	Format string `yaml:"format"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether the metrics endpoint is served.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is where the exposition handler is mounted on the plaintext
	// listener.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the prefix for all metric names.
	// Default: "ganymede"
	Namespace string `yaml:"namespace"`
}

// Access-log backends.
const (
	AccessLogStdout = "stdout"
	AccessLogSQLite = "sqlite"
)

// AccessLogConfig contains per-request access logging configuration.
type AccessLogConfig struct {
	// Enabled controls whether access records are emitted at all.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Backend selects the sink: "stdout" (JSON lines) or "sqlite".
	// Default: "stdout"
	Backend string `yaml:"backend"`

	// BufferSize is the capacity of the async record buffer. Records are
	// dropped (and counted) when the buffer is full, so a slow sink never
	// stalls the serving path.
	// Default: 4096
	BufferSize int `yaml:"buffer_size"`

	// SQLite configures the SQLite sink. Ignored for other backends.
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig contains configuration for the SQLite access-log sink.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/access.db"
	Path string `yaml:"path"`

	// RetentionDays is how long records are kept. Zero disables age-based
	// pruning.
	// Default: 30
	RetentionDays int `yaml:"retention_days"`

	// MaxRecords caps the table size; oldest records are pruned first.
	// Zero disables the cap.
	// Default: 0
	MaxRecords int `yaml:"max_records"`

	// PruneSchedule is a cron expression for retention pruning
	// (e.g. "0 3 * * *" for daily at 3 AM). Empty disables scheduled
	// pruning.
	// Default: "0 3 * * *"
	PruneSchedule string `yaml:"prune_schedule"`
}

// RedirectHTTPSEnabled reports the effective redirect policy for the host.
func (v *VirtualHostConfig) RedirectHTTPSEnabled() bool {
	return v.RedirectHTTPS == nil || *v.RedirectHTTPS
}

// MetricsEnabled reports whether the metrics endpoint should be served.
func (c *Config) MetricsEnabled() bool {
	return c.Telemetry.Metrics.Enabled == nil || *c.Telemetry.Metrics.Enabled
}

// AccessLogEnabled reports whether access logging is on.
func (c *Config) AccessLogEnabled() bool {
	return c.AccessLog.Enabled == nil || *c.AccessLog.Enabled
}

package config

import "time"

// ApplyDefaults fills in default values for any unset configuration fields.
// It is called by LoadConfig before validation.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.HTTPAddress == "" {
		cfg.Server.HTTPAddress = ":80"
	}
	if cfg.Server.HTTPSAddress == "" {
		cfg.Server.HTTPSAddress = ":443"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = 1 << 20
	}

	// TLS defaults
	if cfg.TLS.MinVersion == "" {
		cfg.TLS.MinVersion = "1.2"
	}
	if cfg.TLS.ReloadDebounce == 0 {
		cfg.TLS.ReloadDebounce = 500 * time.Millisecond
	}

	// Status defaults
	if cfg.Status.Path == "" {
		cfg.Status.Path = "/stub_status"
	}

	// Unmatched defaults
	if cfg.Unmatched.Policy == "" {
		cfg.Unmatched.Policy = UnmatchedNotFound
	}

	// Upstream defaults
	if cfg.Upstream.DialTimeout == 0 {
		cfg.Upstream.DialTimeout = 5 * time.Second
	}
	if cfg.Upstream.IdleTimeout == 0 {
		cfg.Upstream.IdleTimeout = 90 * time.Second
	}
	if cfg.Upstream.MaxIdlePerBackend == 0 {
		cfg.Upstream.MaxIdlePerBackend = 8
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = "info"
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = "json"
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = "/metrics"
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = "ganymede"
	}

	// Access log defaults
	if cfg.AccessLog.Backend == "" {
		cfg.AccessLog.Backend = AccessLogStdout
	}
	if cfg.AccessLog.BufferSize == 0 {
		cfg.AccessLog.BufferSize = 4096
	}
	if cfg.AccessLog.SQLite.Path == "" {
		cfg.AccessLog.SQLite.Path = "data/access.db"
	}
	if cfg.AccessLog.SQLite.RetentionDays == 0 {
		cfg.AccessLog.SQLite.RetentionDays = 30
	}
	if cfg.AccessLog.SQLite.PruneSchedule == "" {
		cfg.AccessLog.SQLite.PruneSchedule = "0 3 * * *"
	}
}

package config

// Default values for configuration fields.
const (
	DefaultRoutingMode    = "path"
	DefaultStaticLogLevel = "DEBUG"

	DefaultDynamicDir = "/opt/traefik/juju"
	DefaultStaticPath = "/etc/traefik/traefik.yaml"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"

	DefaultMetricsPath = "/metrics"
	DefaultHeartbeat   = "@every 5m"
)

// ApplySettingsDefaults fills unset settings with their defaults
func ApplySettingsDefaults(s *Settings) {
	if s.RoutingMode == "" {
		s.RoutingMode = DefaultRoutingMode
	}
	if s.StaticLogLevel == "" {
		s.StaticLogLevel = DefaultStaticLogLevel
	}
}

// ApplyDefaults fills unset runtime options with their defaults
func ApplyDefaults(cfg *Config) {
	if cfg.Workload.Root == "" {
		cfg.Workload.Root = "."
	}
	if cfg.Workload.DynamicDir == "" {
		cfg.Workload.DynamicDir = DefaultDynamicDir
	}
	if cfg.Workload.StaticPath == "" {
		cfg.Workload.StaticPath = DefaultStaticPath
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Heartbeat.Schedule == "" {
		cfg.Heartbeat.Schedule = DefaultHeartbeat
	}
}

// Default returns a runtime configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

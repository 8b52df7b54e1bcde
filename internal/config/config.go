// Package config holds the operator settings and the runtime options of
// the edgeroute process.
package config

// Settings are the operator-facing options that shape every route
type Settings struct {
	// ExternalHostname overrides the load balancer address when set
	ExternalHostname string `yaml:"external_hostname,omitempty" validate:"omitempty,hostaddr"`

	// RoutingMode is "path" or "subdomain"
	RoutingMode string `yaml:"routing_mode,omitempty" validate:"oneof=path subdomain"`

	// BasicAuthUser is a single "user:hash" credential applied to all routes
	BasicAuthUser string `yaml:"basic_auth_user,omitempty" validate:"omitempty,basicauth"`

	EnableExperimentalForwardAuth bool `yaml:"enable_experimental_forward_auth,omitempty"`

	// StaticLogLevel is the proxy's own log level
	StaticLogLevel string `yaml:"static_log_level,omitempty" validate:"oneof=DEBUG INFO WARN ERROR FATAL PANIC"`
}

// Config is the runtime configuration of the edgeroute process
type Config struct {
	Workload  WorkloadConfig  `yaml:"workload"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
}

// WorkloadConfig locates the proxy workload's files
type WorkloadConfig struct {
	Root           string `yaml:"root" validate:"required"`
	DynamicDir     string `yaml:"dynamic_dir" validate:"required,startswith=/"`
	StaticPath     string `yaml:"static_path" validate:"required,startswith=/"`
	RestartCommand string `yaml:"restart_command"`
}

// LoggingConfig selects the log level and handler format
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address" validate:"required_if=Enabled true"`
	Path    string `yaml:"path" validate:"startswith=/"`
}

// HeartbeatConfig schedules periodic status re-evaluation
type HeartbeatConfig struct {
	Schedule string `yaml:"schedule" validate:"cron"`
}

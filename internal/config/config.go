// Package config holds the server configuration: compiled-in defaults, an
// optional YAML file, and environment overrides, plus validation.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file and default values
const (
	EnvHost        = "SCENEBRIDGE_HOST"
	EnvPort        = "SCENEBRIDGE_PORT"
	EnvAuthToken   = "SCENEBRIDGE_AUTH_TOKEN"
	EnvRequireAuth = "SCENEBRIDGE_REQUIRE_AUTH"
	EnvDebug       = "SCENEBRIDGE_DEBUG"
)

// Config is the complete server configuration
type Config struct {
	Server         ServerConfig    `yaml:"server"`
	Auth           AuthConfig      `yaml:"auth"`
	Executor       ExecutorConfig  `yaml:"executor"`
	Sessions       SessionConfig   `yaml:"sessions"`
	Shutdown       ShutdownConfig  `yaml:"shutdown"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
	Debug          bool            `yaml:"debug"`
	GRPCHealthPort int             `yaml:"grpc_health_port"`
}

// ServerConfig holds listener and identity settings
type ServerConfig struct {
	Name         string `yaml:"name"`
	Version      string `yaml:"version"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
}

// AuthConfig holds bearer token settings
type AuthConfig struct {
	Required bool   `yaml:"required"`
	Token    string `yaml:"token"`
}

// ExecutorConfig holds host execution settings.
// A zero timeout waits indefinitely.
type ExecutorConfig struct {
	PendingCapacity  int           `yaml:"pending_capacity"`
	ToolTimeout      time.Duration `yaml:"tool_timeout"`
	ResourceTimeout  time.Duration `yaml:"resource_timeout"`
	OutputLimit      int           `yaml:"output_limit"`
	JobMaxAge        time.Duration `yaml:"job_max_age"`
	JobSweepInterval time.Duration `yaml:"job_sweep_interval"`
}

// SessionConfig holds streaming session settings
type SessionConfig struct {
	QueueSize         int           `yaml:"queue_size"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`
}

// ShutdownConfig holds lifecycle bounds
type ShutdownConfig struct {
	GracefulTimeout  time.Duration `yaml:"graceful_timeout"`
	ForceStopTimeout time.Duration `yaml:"force_stop_timeout"`
	TaskCancelGrace  time.Duration `yaml:"task_cancel_grace"`
	StartupTimeout   time.Duration `yaml:"startup_timeout"`
	WaitForShutdown  time.Duration `yaml:"wait_for_shutdown"`
	RetryAfter       time.Duration `yaml:"retry_after"`
}

// RateLimitConfig holds per-client request limits
type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled"`
	RPS     float64       `yaml:"rps"`
	Burst   int           `yaml:"burst"`
	IdleTTL time.Duration `yaml:"idle_ttl"`
}

// Default returns the compiled-in configuration
func Default() Config {
	return Config{
		Server: ServerConfig{
			Name:         "scenebridge-mcp",
			Version:      "0.1.0",
			Host:         DefaultHost,
			Port:         DefaultPort,
			MaxBodyBytes: DefaultMaxBodyBytes,
		},
		Executor: DefaultExecutorConfig(),
		Sessions: DefaultSessionConfig(),
		Shutdown: DefaultShutdownConfig(),
		RateLimit: RateLimitConfig{
			Enabled: true,
			RPS:     DefaultRateLimitRPS,
			Burst:   DefaultRateLimitBurst,
			IdleTTL: DefaultRateLimitIdleTTL,
		},
	}
}

// DefaultExecutorConfig returns default configuration for host execution
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		PendingCapacity:  DefaultPendingCapacity,
		ToolTimeout:      DefaultToolTimeout,
		ResourceTimeout:  DefaultResourceTimeout,
		OutputLimit:      DefaultOutputLimit,
		JobMaxAge:        DefaultJobMaxAge,
		JobSweepInterval: DefaultJobSweepInterval,
	}
}

// DefaultSessionConfig returns default configuration for streaming sessions
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		QueueSize:         DefaultSessionQueueSize,
		IdleTimeout:       DefaultSessionIdleTimeout,
		SweepInterval:     DefaultSessionSweepInterval,
		KeepaliveInterval: DefaultKeepaliveInterval,
	}
}

// DefaultShutdownConfig returns default lifecycle bounds
func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{
		GracefulTimeout:  DefaultGracefulShutdownTimeout,
		ForceStopTimeout: DefaultForceStopTimeout,
		TaskCancelGrace:  DefaultTaskCancelGrace,
		StartupTimeout:   DefaultStartupTimeout,
		WaitForShutdown:  DefaultWaitForShutdown,
		RetryAfter:       DefaultRetryAfter,
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := ApplyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnvOverrides overlays SCENEBRIDGE_* environment variables
func ApplyEnvOverrides(cfg *Config) error {
	if host := strings.TrimSpace(os.Getenv(EnvHost)); host != "" {
		cfg.Server.Host = host
	}
	if raw := strings.TrimSpace(os.Getenv(EnvPort)); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%s: invalid port %q", EnvPort, raw)
		}
		cfg.Server.Port = port
	}
	if token := os.Getenv(EnvAuthToken); token != "" {
		cfg.Auth.Token = token
	}
	if v, ok, err := parseBoolEnv(EnvRequireAuth); err != nil {
		return err
	} else if ok {
		cfg.Auth.Required = v
	}
	if v, ok, err := parseBoolEnv(EnvDebug); err != nil {
		return err
	} else if ok {
		cfg.Debug = v
	}
	return nil
}

func parseBoolEnv(name string) (value, ok bool, err error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false, fmt.Errorf("%s: invalid boolean %q", name, raw)
	}
	return v, true, nil
}

// Validate checks the configuration. Hard failures are joined into the
// returned error; soft issues come back as warnings.
func (c Config) Validate() (warnings []string, err error) {
	var errs []error

	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		errs = append(errs, fmt.Errorf("port %d outside %d-%d", c.Server.Port, MinPort, MaxPort))
	}
	if c.Auth.Required && c.Auth.Token == "" {
		errs = append(errs, errors.New("authentication is required but no token is configured"))
	}
	if !c.IsLocalBind() && (!c.Auth.Required || c.Auth.Token == "") {
		errs = append(errs, fmt.Errorf("binding to %q exposes the server to the network; enable auth and set a token", c.Server.Host))
	}
	if c.Executor.PendingCapacity <= 0 {
		errs = append(errs, errors.New("executor.pending_capacity must be positive"))
	}
	if c.Sessions.QueueSize <= 0 {
		errs = append(errs, errors.New("sessions.queue_size must be positive"))
	}
	if c.Executor.ToolTimeout < 0 || c.Executor.ResourceTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative (use 0 to wait indefinitely)"))
	}

	if c.Auth.Token != "" && len(c.Auth.Token) < MinRecommendedTokenLength {
		warnings = append(warnings, fmt.Sprintf("auth token is shorter than %d characters", MinRecommendedTokenLength))
	}
	if c.Executor.ToolTimeout == 0 {
		warnings = append(warnings, "tool timeout is 0: tool calls wait indefinitely")
	}

	return warnings, errors.Join(errs...)
}

// Addr returns the host:port listen address
func (c Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// IsLocalBind reports whether the server only listens on loopback
func (c Config) IsLocalBind() bool {
	return IsLoopbackHost(c.Server.Host)
}

// IsLoopbackHost reports whether host names a loopback interface.
// An empty host binds every interface and is not loopback.
func IsLoopbackHost(host string) bool {
	host = strings.Trim(strings.TrimSpace(host), "[]")
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// CheckPortAvailable probes the listen address with a short-lived listener
func CheckPortAvailable(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("port %d is not available: %w", port, err)
	}
	return ln.Close()
}

// MaskToken returns a log-safe rendering of a secret
func MaskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

package config

import "time"

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	Executor ExecutorConfig `mapstructure:"executor" validate:"required"`
	Task     TaskConfig     `mapstructure:"task" validate:"required"`
	Poller   PollerConfig   `mapstructure:"poller" validate:"required"`
	Secrets  SecretsConfig  `mapstructure:"secrets"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port                   int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel               string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds" validate:"gt=0"`
}

// DatabaseConfig selects and addresses the mirror/profile/job store.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" validate:"required,oneof=postgres memory"`
	URL    string `mapstructure:"url" validate:"required_if=Driver postgres"`
	// SeedFile is a YAML fixture of profiles and jobs loaded into the
	// memory driver at startup.
	SeedFile string `mapstructure:"seed_file" validate:"omitempty,filepath"`
}

// AuthConfig contains bearer token settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"gt=0"`
}

// ExecutorConfig addresses the remote execution service. APIKey may be empty
// at load time; submissions are rejected until it is set.
type ExecutorConfig struct {
	BaseURL               string `mapstructure:"base_url" validate:"required,url"`
	APIKey                string `mapstructure:"api_key"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds" validate:"gt=0"`
	RunTimeoutMinutes     int    `mapstructure:"run_timeout_minutes" validate:"gt=0"`
	AwaitPollIntervalMS   int    `mapstructure:"await_poll_interval_ms" validate:"gt=0"`
	MaxRetries            int    `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	// MaxSteps caps agent steps per task; zero leaves the executor default.
	MaxSteps int  `mapstructure:"max_steps" validate:"gte=0"`
	Vision   bool `mapstructure:"vision"`
}

// TaskConfig sizes the background apply runner.
type TaskConfig struct {
	WorkerCount                   int `mapstructure:"worker_count" validate:"gt=0"`
	QueueSize                     int `mapstructure:"queue_size" validate:"gt=0"`
	StuckTaskAgeMinutes           int `mapstructure:"stuck_task_age_minutes" validate:"gt=0"`
	StuckTaskCheckIntervalMinutes int `mapstructure:"stuck_task_check_interval_minutes" validate:"gt=0"`
}

// PollerConfig sets the fixed refetch cadence.
type PollerConfig struct {
	IntervalMS int `mapstructure:"interval_ms" validate:"gte=250"`
}

// SecretsConfig locates the age identity used to open sealed credentials.
type SecretsConfig struct {
	AgeIdentityPath string `mapstructure:"age_identity_path" validate:"omitempty,filepath"`
}

// ShutdownTimeout returns the graceful shutdown budget.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// RequestTimeout returns the per-request executor timeout.
func (c ExecutorConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// RunTimeout bounds one apply run from session creation to terminal status.
func (c ExecutorConfig) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutMinutes) * time.Minute
}

// AwaitPollInterval is the cadence used while awaiting a task server-side.
func (c ExecutorConfig) AwaitPollInterval() time.Duration {
	return time.Duration(c.AwaitPollIntervalMS) * time.Millisecond
}

// StuckTaskAge is how long a run may go without updates before the sweep
// treats it as lost.
func (c TaskConfig) StuckTaskAge() time.Duration {
	return time.Duration(c.StuckTaskAgeMinutes) * time.Minute
}

// StuckTaskCheckInterval is the sweep cadence.
func (c TaskConfig) StuckTaskCheckInterval() time.Duration {
	return time.Duration(c.StuckTaskCheckIntervalMinutes) * time.Minute
}

// Interval returns the poll interval.
func (c PollerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

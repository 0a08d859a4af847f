package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server      ServerConfig      `mapstructure:"server" validate:"required"`
	Task        TaskConfig        `mapstructure:"task" validate:"required"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Events      EventsConfig      `mapstructure:"events"`
	Engine      EngineConfig      `mapstructure:"engine"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// TaskConfig contains the task manager settings.
type TaskConfig struct {
	// MaxConcurrentTasks is the fixed worker pool size.
	MaxConcurrentTasks int `mapstructure:"max_concurrent_tasks" validate:"required,gte=1"`

	// MaxQueueSize bounds the submission queue.
	MaxQueueSize int `mapstructure:"max_queue_size" validate:"required,gte=1"`

	// TaskTimeout bounds one execution attempt. It is applied as a
	// context deadline on the engine and converter calls; zero disables
	// the bound. Shutdown never shortens it.
	TaskTimeout time.Duration `mapstructure:"task_timeout"`

	// CleanupCompletedAfter is the age beyond which terminal tasks are
	// swept by the periodic cleanup.
	CleanupCompletedAfter time.Duration `mapstructure:"cleanup_completed_after"`

	// ShutdownTimeout bounds how long shutdown waits for workers to drain.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// PersistenceConfig controls best-effort snapshot persistence.
type PersistenceConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// ArchivePath, when set, enables the embedded snapshot archive at the
	// given file path.
	ArchivePath string `mapstructure:"archive_path"`
}

// AuthConfig contains API authentication settings. When disabled, all
// endpoints are public (local single-user WebUI deployments).
type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret" validate:"required_if=Enabled true,omitempty,min=32"`
}

// EventsConfig controls the optional external event publisher.
type EventsConfig struct {
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// EngineConfig locates the external inference engine and the optional
// audio converter binary.
type EngineConfig struct {
	// URL is the inference endpoint of the TTS engine sidecar.
	URL string `mapstructure:"url" validate:"required,url"`

	// ConverterPath is the ffmpeg binary used for format conversion. Empty
	// disables audio conversion.
	ConverterPath string `mapstructure:"converter_path"`
}

// Capabilities describes which optional collaborators are available,
// resolved once at startup and consumed via plain conditionals.
type Capabilities struct {
	// AudioConversion is true when a format converter is wired in.
	AudioConversion bool

	// SnapshotArchive is true when the embedded snapshot archive is open.
	SnapshotArchive bool

	// EventPublishing is true when an external event publisher is wired in.
	EventPublishing bool
}

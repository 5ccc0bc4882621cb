// Package config loads Mainspring configuration from TOML files and
// environment variables via Viper.
//
// Precedence (lowest to highest): defaults < user config < project config
// < MAINSPRING_* environment variables.
package config

// Config represents the Mainspring configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Mail      MailConfig      `mapstructure:"mail"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the Mainspring HTTP API
type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	LogJSON  bool   `mapstructure:"log_json"`
	LogTheme string `mapstructure:"log_theme"`
}

// DefaultServerPort is the development port (above the privileged range).
const DefaultServerPort = 8710

// SchedulerConfig configures the trigger ticker and notification policy
type SchedulerConfig struct {
	// How often the ticker checks for due triggers (default: 1 second)
	TickerIntervalSeconds int `mapstructure:"ticker_interval_seconds"`

	// Days of advance warning before a generated work order. 0 disables
	// notification triggers entirely.
	NotificationLeadDays int `mapstructure:"notification_lead_days"`

	// Number of trailing work orders inspected by the staleness check.
	StalenessWindow int `mapstructure:"staleness_window"`
}

// MailConfig configures the outgoing notification relay. An empty host
// routes notices to the log instead of SMTP.
type MailConfig struct {
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort string `mapstructure:"smtp_port"`
	From     string `mapstructure:"from"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

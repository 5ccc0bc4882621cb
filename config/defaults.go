package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "mainspring.db")

	// Server defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.log_json", false)
	v.SetDefault("server.log_theme", "gruvbox")

	// Scheduler defaults
	v.SetDefault("scheduler.ticker_interval_seconds", 1)
	v.SetDefault("scheduler.notification_lead_days", 2)
	v.SetDefault("scheduler.staleness_window", 10)

	// Mail defaults: no relay configured, notices go to the log
	v.SetDefault("mail.smtp_host", "")
	v.SetDefault("mail.smtp_port", "25")
	v.SetDefault("mail.from", "mainspring@localhost")
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
}

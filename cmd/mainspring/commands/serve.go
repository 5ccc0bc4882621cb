package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fernwall/mainspring/config"
	"github.com/fernwall/mainspring/db"
	"github.com/fernwall/mainspring/errors"
	"github.com/fernwall/mainspring/logger"
	"github.com/fernwall/mainspring/maintenance"
	"github.com/fernwall/mainspring/notify"
	"github.com/fernwall/mainspring/recurrence"
	"github.com/fernwall/mainspring/scheduling"
	"github.com/fernwall/mainspring/server"
	"github.com/fernwall/mainspring/sym"
	"github.com/fernwall/mainspring/trigger"
)

// ServeCmd starts the scheduling engine and HTTP API.
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   sym.Sched + " Start the Mainspring engine",
	Long: sym.Sched + ` serve — Start the scheduling engine and HTTP API

Opens the database, recovers missed triggers, starts the firing loop
and serves the schedule management API. Runs until interrupted.`,
	RunE: runServe,
}

var (
	serveDBPath string
	servePort   int
)

func init() {
	ServeCmd.Flags().StringVar(&serveDBPath, "db-path", "", "Custom database path (overrides config)")
	ServeCmd.Flags().IntVar(&servePort, "port", 0, "HTTP port (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	dbPath := cfg.Database.Path
	if serveDBPath != "" {
		dbPath = serveDBPath
	}
	port := cfg.Server.Port
	if servePort != 0 {
		port = servePort
	}

	log := logger.Logger
	logger.SetTheme(cfg.Server.LogTheme)

	database, err := db.Open(dbPath, log)
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	if err := db.Migrate(database, log); err != nil {
		return errors.Wrap(err, "failed to migrate database")
	}

	// Stores
	pms := maintenance.NewPMStore(database)
	workOrders := maintenance.NewWorkOrderStore(database)
	schedules := recurrence.NewStore(database)
	triggers := trigger.NewStore(database)

	// Scheduling core
	registry := trigger.NewSQLRegistry(triggers)
	orchestrator := scheduling.NewOrchestrator(schedules, workOrders, registry, scheduling.Options{
		NotificationLeadDays: cfg.Scheduler.NotificationLeadDays,
		StalenessWindow:      cfg.Scheduler.StalenessWindow,
	}, log)
	service := scheduling.NewService(schedules, workOrders, orchestrator, log)

	// Fire handlers
	notifier := buildNotifier(cfg, log)
	handlers := trigger.NewHandlerRegistry()
	scheduling.NewGenerationJob(schedules, pms, workOrders, orchestrator, log).Register(handlers)
	scheduling.NewNotificationJob(schedules, pms, notifier, cfg.Scheduler.NotificationLeadDays, log).Register(handlers)

	tickerCfg := trigger.DefaultTickerConfig()
	if cfg.Scheduler.TickerIntervalSeconds > 0 {
		tickerCfg.Interval = time.Duration(cfg.Scheduler.TickerIntervalSeconds) * time.Second
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	ticker := trigger.NewTicker(ctx, triggers, handlers, tickerCfg, log)
	srv := server.New(database, service, ticker, port, log)

	// Hot reload for tunables when a project config file is present.
	// Structural settings (db path, port) still take a restart.
	if cfgPath := config.ProjectConfigPath(); cfgPath != "" {
		watcher, werr := config.NewWatcher(cfgPath)
		if werr != nil {
			log.Warnw("Config watcher unavailable", "path", cfgPath, "error", werr)
		} else {
			watcher.OnReload(func(newCfg *config.Config) error {
				logger.SetTheme(newCfg.Server.LogTheme)
				return nil
			})
			watcher.Start()
			defer watcher.Stop()
		}
	}

	log.Infow(sym.Open+" Mainspring starting",
		"db_path", dbPath,
		"port", port,
		"ticker_interval", tickerCfg.Interval,
		"notification_lead_days", cfg.Scheduler.NotificationLeadDays,
	)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Infow(sym.Close+" Shutdown signal received", "signal", sig.String())
	case err := <-errChan:
		if err != nil {
			return errors.Wrap(err, "server failed")
		}
		return nil
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// buildNotifier picks the notification transport. Without an SMTP host
// notices are logged, which keeps development setups mail-free.
func buildNotifier(cfg *config.Config, log *zap.SugaredLogger) notify.Notifier {
	if cfg.Mail.SMTPHost == "" {
		return notify.NewLogNotifier(log)
	}
	return notify.NewMailer(notify.SMTPConfig{
		Host:     cfg.Mail.SMTPHost,
		Port:     cfg.Mail.SMTPPort,
		From:     cfg.Mail.From,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
	}, log)
}

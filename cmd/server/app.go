package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/traqcheck/bgv-agent/internal/agent"
	"github.com/traqcheck/bgv-agent/internal/api"
	"github.com/traqcheck/bgv-agent/internal/audit"
	"github.com/traqcheck/bgv-agent/internal/config"
	"github.com/traqcheck/bgv-agent/internal/events"
	"github.com/traqcheck/bgv-agent/internal/notify"
	"github.com/traqcheck/bgv-agent/internal/platform/gemini"
	"github.com/traqcheck/bgv-agent/internal/platform/redis"
	"github.com/traqcheck/bgv-agent/internal/platform/smtp"
	"github.com/traqcheck/bgv-agent/internal/ratelimit"
	"github.com/traqcheck/bgv-agent/internal/retry"
	"github.com/traqcheck/bgv-agent/internal/task"
)

// application holds the shared dependencies of the serve and sweep commands
// and releases them on cleanup.
type application struct {
	config *config.Config
	logger *slog.Logger

	stores *stores
	redis  *redis.Client

	provider *agent.Provider
	invoker  *retry.Invoker

	runner      *task.TaskRunner
	credentials *task.CredentialDelivery
	emitter     *events.InMemoryEventEmitter
	reminder    *task.AgentReminder
	sweep       *task.ReminderSweep
	dedupe      *api.SubmissionDeduper
}

// settingsFrom selects the agent model settings from the LLM configuration.
func settingsFrom(cfg config.LLMConfig) agent.Settings {
	return agent.Settings{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		APIKey:      cfg.GeminiAPIKey,
	}
}

// newApplication wires every component. Nothing is started: Run starts the
// task runner, the sweep loop and the HTTP server.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{config: cfg, logger: logger}

	var err error
	app.stores, err = openStores(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open stores: %w", err)
	}

	var (
		locker audit.Locker
		lease  task.Lease
	)
	if cfg.Redis.URL != "" {
		app.redis, err = redis.NewClient(ctx, cfg.Redis.URL)
		if err != nil {
			app.cleanup()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		locker = redis.NewLocker(app.redis, redis.DefaultLockerConfig(), logger)
		lease = redis.NewLease(app.redis, logger)
		logger.Info("redis connected, using distributed audit locks and sweep lease")
	}

	if err := app.wire(locker, lease); err != nil {
		app.cleanup()
		return nil, err
	}

	logger.Info("application initialized",
		"store", storeKind(cfg.Database),
		"model", cfg.LLM.Model,
		"composition", cfg.Escalator.Composition)
	return app, nil
}

func (app *application) wire(locker audit.Locker, lease task.Lease) error {
	cfg, logger := app.config, app.logger

	limiter, err := ratelimit.New(cfg.RateLimit.Capacity, cfg.RateLimit.Window)
	if err != nil {
		return fmt.Errorf("failed to create rate limiter: %w", err)
	}
	app.invoker, err = retry.NewInvoker(limiter, retry.InvokerConfig{
		MaxInnerAttempts: cfg.Retry.MaxInnerAttempts,
		CallTimeout:      cfg.LLM.CallTimeout,
		Policy:           retry.NewPolicy(cfg.Retry.BaseDelay),
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create invoker: %w", err)
	}

	var mailer *smtp.Mailer
	if cfg.SMTP.Host != "" {
		mailer, err = smtp.NewMailer(smtp.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create mailer: %w", err)
		}
	} else {
		logger.Warn("smtp not configured, the agent cannot send email")
	}

	var toolMailer agent.Mailer
	if mailer != nil {
		toolMailer = mailer
	}
	toolbox := agent.NewToolbox(app.stores.requests, app.stores.audit, toolMailer, logger)

	loginURL := agent.LoginURL(cfg.Admin.FrontendURL)
	factory := gemini.NewFactory(toolbox, gemini.AgentOptions{
		SystemInstruction: agent.SystemInstruction(loginURL),
		MaxTurns:          cfg.LLM.MaxTurns,
	}, logger)
	app.provider = agent.NewProvider(factory, settingsFrom(cfg.LLM), logger)

	amender, err := audit.NewAmender(app.stores.audit, locker, logger)
	if err != nil {
		return fmt.Errorf("failed to create audit amender: %w", err)
	}

	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if mailer != nil && cfg.Admin.Email != "" {
		notifier, err = notify.NewAdminEmail(mailer, cfg.Admin.Email, cfg.Admin.FrontendURL, logger)
		if err != nil {
			return fmt.Errorf("failed to create admin notifier: %w", err)
		}
	}

	app.runner = task.NewTaskRunner(app.stores.tasks, task.TaskRunnerConfig{
		WorkerCount:           cfg.Escalator.Workers,
		QueueSize:             cfg.Escalator.QueueSize,
		StuckTaskAge:          cfg.Escalator.StuckTaskAge,
		FinishedTaskRetention: cfg.Escalator.FinishedTaskRetention,
	}, logger)

	escalator, err := task.NewEscalator(app.runner, amender, notifier, task.EscalatorConfig{
		Composition:     task.Composition(cfg.Escalator.Composition),
		DeliveryChannel: task.DeliveryChannelAgent,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create escalator: %w", err)
	}

	app.credentials, err = task.NewCredentialDelivery(escalator, app.provider, app.invoker, task.CredentialDeliveryConfig{
		MaxRetries: cfg.Escalator.MaxRetries,
		BaseDelay:  cfg.Escalator.BaseDelay,
		LoginURL:   loginURL,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create credential delivery: %w", err)
	}
	app.runner.RegisterFactory(task.TaskTypeCredentialDelivery, app.credentials.Factory())

	app.emitter = events.NewInMemoryEventEmitter(logger)
	app.emitter.Subscribe(task.TaskTypeCredentialDelivery, task.NewTaskFactoryEventHandler(app.credentials, logger))

	app.reminder, err = task.NewAgentReminder(app.provider, app.invoker, app.stores.audit, loginURL, nil, logger)
	if err != nil {
		return fmt.Errorf("failed to create reminder dispatcher: %w", err)
	}

	app.sweep, err = task.NewReminderSweep(app.stores.requests, app.stores.audit, app.reminder, lease,
		task.ReminderSweepConfig{
			Threshold: cfg.Reminders.Threshold,
			Cooldown:  cfg.Reminders.Cooldown,
			Interval:  cfg.Reminders.Interval,
		}, nil, logger)
	if err != nil {
		return fmt.Errorf("failed to create reminder sweep: %w", err)
	}

	app.dedupe, err = api.NewSubmissionDeduper(api.DefaultDedupeWindow, 0)
	if err != nil {
		return err
	}
	return nil
}

// Run starts background processing and serves HTTP until ctx is canceled or
// a shutdown signal arrives.
func (app *application) Run(ctx context.Context) error {
	if err := app.runner.Start(); err != nil {
		app.cleanup()
		return fmt.Errorf("failed to start task runner: %w", err)
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	if app.config.Reminders.Enabled {
		go app.sweep.Run(sweepCtx)
		app.logger.Info("reminder sweep started", "interval", app.config.Reminders.Interval)
	}

	router, err := app.setupRouter()
	if err != nil {
		app.cleanup()
		return fmt.Errorf("failed to set up router: %w", err)
	}
	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// applyConfig takes the settings that can change without a restart.
func (app *application) applyConfig(cfg *config.Config) {
	if app.provider.UpdateSettings(settingsFrom(cfg.LLM)) {
		app.logger.Info("agent settings changed, agent will be recreated", "model", cfg.LLM.Model)
	}
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.runner != nil {
		app.runner.Stop()
	}
	if app.dedupe != nil {
		app.dedupe.Close()
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis connection", "error", err)
		}
	}
	if app.stores != nil {
		if err := app.stores.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}
	app.logger.Info("application shutdown completed")
}

func storeKind(cfg config.DatabaseConfig) string {
	if cfg.URL == "" {
		return "memory"
	}
	return "postgres"
}

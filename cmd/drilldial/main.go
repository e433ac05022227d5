package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/relieftext/drilldial/internal/api"
	"github.com/relieftext/drilldial/internal/drills"
	"github.com/relieftext/drilldial/internal/initiation"
	"github.com/relieftext/drilldial/internal/lockfile"
	"github.com/relieftext/drilldial/internal/outbound"
	"github.com/relieftext/drilldial/internal/registration"
	"github.com/relieftext/drilldial/internal/reminders"
	"github.com/relieftext/drilldial/internal/scheduler"
	"github.com/relieftext/drilldial/internal/store"
	"github.com/relieftext/drilldial/internal/transport"
	"github.com/relieftext/drilldial/internal/twiliosms"
	"github.com/relieftext/drilldial/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for drilldial state data
	DefaultStateDir = "/var/lib/drilldial"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "drilldial.db"
	// DefaultAPIAddr is the default HTTP listen address
	DefaultAPIAddr = ":8080"
	// DefaultCatalogPath is the default drill catalog file
	DefaultCatalogPath = "drills.json"

	// DefaultQueuePollInterval is how often the command runner drains the queue
	DefaultQueuePollInterval = time.Second
	// DefaultReminderCron is the schedule for the stalled-prompt reminder scan
	DefaultReminderCron = "*/15 * * * *"
	// DefaultInitiationCron is the schedule for the quiet-user initiation scan
	DefaultInitiationCron = "0 * * * *"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := run(flags); err != nil {
		slog.Error("drilldial failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("drilldial exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL   string
	StateDir      string
	CatalogPath   string
	APIAddr       string
	ValidationURL string
	ValidationKey string
}

// Flags holds command line flag values
type Flags struct {
	stateDir          *string
	dbDSN             *string
	catalogPath       *string
	apiAddr           *string
	validationURL     *string
	validationKey     *string
	reminderFloorMin  *int
	reminderCeilMin   *int
	inactivityMinutes *int
	reminderCron      *string
	initiationCron    *string
	dryRun            *bool
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		StateDir:      os.Getenv("DRILLDIAL_STATE_DIR"),
		CatalogPath:   os.Getenv("DRILL_CATALOG"),
		APIAddr:       os.Getenv("API_ADDR"),
		ValidationURL: os.Getenv("REGISTRATION_VALIDATION_URL"),
		ValidationKey: os.Getenv("REGISTRATION_VALIDATION_KEY"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No DRILLDIAL_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.CatalogPath == "" {
		config.CatalogPath = DefaultCatalogPath
	}
	if config.APIAddr == "" {
		config.APIAddr = DefaultAPIAddr
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"DRILLDIAL_STATE_DIR", config.StateDir,
		"DRILL_CATALOG", config.CatalogPath,
		"API_ADDR", config.APIAddr,
		"REGISTRATION_VALIDATION_URL_SET", config.ValidationURL != "",
		"REGISTRATION_VALIDATION_KEY_SET", config.ValidationKey != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:          flag.String("state-dir", config.StateDir, "state directory for drilldial data (overrides $DRILLDIAL_STATE_DIR)"),
		dbDSN:             flag.String("db-dsn", config.DatabaseURL, "database DSN (overrides $DATABASE_URL)"),
		catalogPath:       flag.String("catalog", config.CatalogPath, "drill catalog JSON file (overrides $DRILL_CATALOG)"),
		apiAddr:           flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		validationURL:     flag.String("validation-url", config.ValidationURL, "registration code validation URL (overrides $REGISTRATION_VALIDATION_URL)"),
		validationKey:     flag.String("validation-key", config.ValidationKey, "registration code validation API key (overrides $REGISTRATION_VALIDATION_KEY)"),
		reminderFloorMin:  flag.Int("reminder-floor-minutes", reminders.DefaultFloorMinutes, "minimum prompt staleness before a reminder"),
		reminderCeilMin:   flag.Int("reminder-ceil-minutes", reminders.DefaultCeilMinutes, "maximum prompt staleness for a reminder"),
		inactivityMinutes: flag.Int("inactivity-minutes", initiation.DefaultInactivityMinutes, "user inactivity before the next drill is started"),
		reminderCron:      flag.String("reminder-cron", DefaultReminderCron, "cron schedule for the reminder scan"),
		initiationCron:    flag.String("initiation-cron", DefaultInitiationCron, "cron schedule for the drill initiation scan"),
		dryRun:            flag.Bool("dry-run", util.ParseBoolEnv("DRILLDIAL_DRY_RUN", false), "log outbound SMS instead of sending through Twilio (overrides $DRILLDIAL_DRY_RUN)"),
	}

	flag.Parse()

	// Follow an explicit -state-dir when the DSN was only defaulted from it.
	if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"catalog", *flags.catalogPath,
		"apiAddr", *flags.apiAddr,
		"dryRun", *flags.dryRun)

	return flags
}

// logSender logs outbound SMS instead of sending them. Used with -dry-run.
type logSender struct{}

func (logSender) SendMessage(ctx context.Context, to, body, mediaURL string) error {
	slog.Info("dry-run outbound SMS", "to", to, "body", body, "media_url", mediaURL)
	return nil
}

func run(flags Flags) error {
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	catalog, localizer, err := drills.LoadCatalog(*flags.catalogPath)
	if err != nil {
		return err
	}

	st, err := newStore(flags, catalog)
	if err != nil {
		return err
	}
	defer st.Close()

	var sender outbound.Sender
	if *flags.dryRun {
		sender = logSender{}
	} else {
		twilioClient, err := twiliosms.NewClient()
		if err != nil {
			return err
		}
		sender = twilioClient
	}

	validator, err := registration.NewHTTPValidator(
		registration.WithURL(*flags.validationURL),
		registration.WithKey(*flags.validationKey),
	)
	if err != nil {
		return err
	}

	distributor := outbound.NewDistributor(sender, localizer)
	dispatcher := transport.NewDispatcher(st, catalog, localizer, validator, distributor)
	publisher := transport.NewQueuePublisher(st)
	runner := transport.NewRunner(st, dispatcher, DefaultQueuePollInterval)
	triggerer := reminders.NewTriggerer(st, publisher, *flags.reminderFloorMin, *flags.reminderCeilMin)
	initiator := initiation.NewInitiator(st, publisher, *flags.inactivityMinutes, initiation.DefaultInitiationTTL)
	server := api.NewServer(*flags.apiAddr, publisher, st)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runner.RecoverStaleCommands(ctx); err != nil {
		slog.Error("Failed to recover stale commands", "error", err)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		runner.Run(ctx)
	}()

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.AddJob(*flags.reminderCron, scanJob(ctx, "reminders", triggerer.TriggerReminders)); err != nil {
		return fmt.Errorf("schedule reminder scan failed: %w", err)
	}
	if err := sched.AddJob(*flags.initiationCron, scanJob(ctx, "initiation", initiator.TriggerNextDrills)); err != nil {
		return fmt.Errorf("schedule initiation scan failed: %w", err)
	}

	slog.Info("Bootstrapping drilldial", "drills", len(catalog.Slugs()), "api_addr", *flags.apiAddr)
	err = server.Run(ctx)

	stop()
	wg.Wait()
	return err
}

// scanJob adapts a context-taking scan to a cron task, skipping runs after
// shutdown has begun.
func scanJob(ctx context.Context, name string, fn func(context.Context) error) func() {
	return func() {
		if ctx.Err() != nil {
			return
		}
		if err := fn(ctx); err != nil {
			slog.Error("Scheduled scan failed", "name", name, "error", err)
		}
	}
}

// newStore selects the backend by DSN type.
func newStore(flags Flags, catalog *drills.Catalog) (store.Store, error) {
	slugs := catalog.Slugs()
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN), store.WithDrillSlugs(slugs))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN), store.WithDrillSlugs(slugs))
}

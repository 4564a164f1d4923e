package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PalcoLivre/StageLink/internal/api"
	"github.com/PalcoLivre/StageLink/internal/dispatch"
	"github.com/PalcoLivre/StageLink/internal/extract"
	"github.com/PalcoLivre/StageLink/internal/flow"
	"github.com/PalcoLivre/StageLink/internal/intent"
	"github.com/PalcoLivre/StageLink/internal/llm"
	"github.com/PalcoLivre/StageLink/internal/lockfile"
	"github.com/PalcoLivre/StageLink/internal/messaging"
	"github.com/PalcoLivre/StageLink/internal/models"
	"github.com/PalcoLivre/StageLink/internal/scheduler"
	"github.com/PalcoLivre/StageLink/internal/store"
	"github.com/PalcoLivre/StageLink/internal/twiliowhatsapp"
	"github.com/PalcoLivre/StageLink/internal/util"
	"github.com/PalcoLivre/StageLink/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for StageLink state data
	DefaultStateDir = "/var/lib/stagelink"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "stagelink.db"
	// DefaultWhatsmeowDBFileName is the default whatsmeow session database filename
	DefaultWhatsmeowDBFileName = "whatsmeow.db"
	// DefaultSummaryCron runs the daily intake summary at 08:00
	DefaultSummaryCron = "0 8 * * *"
	// DefaultModel is the chat model used when LLM_MODEL is unset
	DefaultModel = "gpt-4o-mini"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	slog.Info("Bootstrapping StageLink",
		"state_dir", *flags.stateDir,
		"backend", *flags.backend,
		"api_addr", *flags.apiAddr,
		"dsn_set", *flags.dbDSN != "")
	if err := run(flags); err != nil {
		slog.Error("StageLink failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("StageLink exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL   string
	StateDir      string
	APIAddr       string
	Backend       string
	TenantID      string
	OpenAIKey     string
	OpenAIBaseURL string
	Model         string
	FallbackKey   string
	FallbackURL   string
	FallbackModel string
	SummaryCron   string
}

// Flags holds command line flag values
type Flags struct {
	stateDir    *string
	dbDSN       *string
	apiAddr     *string
	backend     *string
	tenantID    *string
	openaiKey   *string
	qrOutput    *string
	numeric     *bool
	summaryCron *string

	config Config
}

// initializeLogger sets up structured logging. STAGELINK_DEBUG=true forces
// debug level; otherwise LOG_LEVEL picks it.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("STAGELINK_DEBUG", false) {
		level = slog.LevelDebug
	}
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// loadEnvironmentConfig loads .env (if present) and reads the environment.
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "reason", err)
	}
	return Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		StateDir:      os.Getenv("STATE_DIR"),
		APIAddr:       os.Getenv("API_ADDR"),
		Backend:       os.Getenv("MESSAGING_BACKEND"),
		TenantID:      os.Getenv("TENANT_ID"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
		Model:         os.Getenv("LLM_MODEL"),
		FallbackKey:   os.Getenv("LLM_FALLBACK_API_KEY"),
		FallbackURL:   os.Getenv("LLM_FALLBACK_BASE_URL"),
		FallbackModel: os.Getenv("LLM_FALLBACK_MODEL"),
		SummaryCron:   os.Getenv("DAILY_SUMMARY_CRON"),
	}
}

// parseCommandLineFlags defines flags with environment-derived defaults.
func parseCommandLineFlags(config Config) Flags {
	stateDir := config.StateDir
	if stateDir == "" {
		stateDir = DefaultStateDir
	}
	apiAddr := config.APIAddr
	if apiAddr == "" {
		apiAddr = api.DefaultAddr
	}
	backend := config.Backend
	if backend == "" {
		backend = "twilio"
	}
	summaryCron := config.SummaryCron
	if summaryCron == "" {
		summaryCron = DefaultSummaryCron
	}

	flags := Flags{
		stateDir:    flag.String("state-dir", stateDir, "directory for StageLink state data"),
		dbDSN:       flag.String("dsn", config.DatabaseURL, "database DSN (SQLite path or postgres:// URL)"),
		apiAddr:     flag.String("addr", apiAddr, "API listen address"),
		backend:     flag.String("backend", backend, "messaging backend: twilio or whatsmeow"),
		tenantID:    flag.String("tenant", config.TenantID, "tenant ID stamped on created profiles"),
		openaiKey:   flag.String("openai-key", config.OpenAIKey, "OpenAI API key"),
		qrOutput:    flag.String("qr-output", "", "write the WhatsApp login QR code to this path (whatsmeow backend)"),
		numeric:     flag.Bool("numeric-code", false, "use a numeric WhatsApp login code instead of QR (whatsmeow backend)"),
		summaryCron: flag.String("summary-cron", summaryCron, "cron expression for the daily intake summary"),
		config:      config,
	}
	flag.Parse()
	return flags
}

// ensureDirectoriesExist creates the state directory tree.
func ensureDirectoriesExist(flags Flags) error {
	return os.MkdirAll(*flags.stateDir, 0o755)
}

// run wires every module and serves until shutdown.
func run(flags Flags) error {
	st, err := buildStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	pool, err := buildProviderPool(flags)
	if err != nil {
		return err
	}

	analyzer := intent.NewAnalyzer(pool)
	extractor := extract.NewExtractor(pool)
	states := flow.NewStoreBasedStateManager(st)

	engine, err := flow.NewEngine(states, st, analyzer, extractor,
		flow.WithTenantID(*flags.tenantID))
	if err != nil {
		return err
	}

	svc, pumpNeeded, err := buildMessagingService(flags)
	if err != nil {
		return err
	}
	defer svc.Stop()

	queue := dispatch.NewQueue(engine, svc,
		dispatch.WithAckFunc(stageAckFunc(states)))
	queue.Start()
	defer queue.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		return err
	}
	if pumpNeeded {
		pump := messaging.NewPump(svc, queue, flow.MsgSystemBusy)
		go pump.Run(ctx)
	}

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.AddJob(*flags.summaryCron, dailySummaryJob(st, pool, queue)); err != nil {
		slog.Warn("Daily summary job not scheduled", "error", err, "cron", *flags.summaryCron)
	}

	server := api.NewServer(queue, st, pool, api.WithAddr(*flags.apiAddr))
	return server.Run()
}

// buildStore selects the store implementation from the DSN shape.
func buildStore(flags Flags) (store.Store, error) {
	dsn := *flags.dbDSN
	if dsn == "" {
		dsn = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, using default SQLite path", "path", dsn)
	}
	if store.DetectDSNType(dsn) == "postgres" {
		return store.NewPostgresStore(store.WithDSN(dsn))
	}
	return store.NewSQLiteStore(store.WithDSN(dsn))
}

// buildProviderPool configures the primary provider plus the optional
// fallback from the environment.
func buildProviderPool(flags Flags) (*llm.Pool, error) {
	cfg := flags.config
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	options := []llm.Option{
		llm.WithProvider(llm.ProviderConfig{
			Name:      "primary",
			Model:     model,
			APIKey:    *flags.openaiKey,
			BaseURL:   cfg.OpenAIBaseURL,
			RateLimit: util.ParseIntEnv("LLM_RATE_LIMIT", 0),
			Timeout:   util.ParseDurationEnv("LLM_TIMEOUT", llm.DefaultTimeout),
		}),
	}
	if cfg.FallbackKey != "" {
		fallbackModel := cfg.FallbackModel
		if fallbackModel == "" {
			fallbackModel = model
		}
		options = append(options, llm.WithProvider(llm.ProviderConfig{
			Name:    "fallback",
			Model:   fallbackModel,
			APIKey:  cfg.FallbackKey,
			BaseURL: cfg.FallbackURL,
		}))
	}
	return llm.NewPool(options...)
}

// buildMessagingService constructs the configured backend. The second return
// reports whether the inbound pump is needed (live connection backends only;
// the Twilio backend receives through the webhook).
func buildMessagingService(flags Flags) (messaging.Service, bool, error) {
	switch strings.ToLower(*flags.backend) {
	case "whatsmeow":
		waOpts := []whatsapp.Option{
			whatsapp.WithDBDSN(filepath.Join(*flags.stateDir, DefaultWhatsmeowDBFileName) + "?_foreign_keys=on"),
		}
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, false, err
		}
		return messaging.NewWhatsAppService(client), true, nil
	default:
		client, err := twiliowhatsapp.NewClient()
		if err != nil {
			return nil, false, err
		}
		return messaging.NewTwilioService(client), false, nil
	}
}

// stageAckFunc builds the queue's placeholder generator: the ack text follows
// the subject's last saved conversation stage. The stage comes from the state
// manager's snapshot index, never from the live state the worker is mutating.
func stageAckFunc(states *flow.StoreBasedStateManager) dispatch.AckFunc {
	return func(subjectID string) string {
		stage, ok := states.StageSnapshot(subjectID)
		if !ok {
			// First contact: no state has been saved yet.
			return flow.StageAck(models.StateStart)
		}
		return flow.StageAck(stage)
	}
}

// dailySummaryJob logs a one-line operational summary: yesterday's
// interaction volume, queue stats and provider availability.
func dailySummaryJob(st store.Store, pool *llm.Pool, queue *dispatch.Queue) func() {
	return func() {
		count, err := st.CountInteractionsSince(time.Now().Add(-24 * time.Hour))
		if err != nil {
			slog.Error("Daily summary interaction count failed", "error", err)
			return
		}
		stats := queue.Snapshot()
		available := 0
		for _, p := range pool.Snapshot() {
			if p.Available {
				available++
			}
		}
		slog.Info("Daily intake summary",
			"interactions_24h", count,
			"queue_processed", stats.Processed,
			"queue_failed", stats.Failed,
			"providers_available", available)
	}
}

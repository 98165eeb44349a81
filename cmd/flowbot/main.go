package main

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/e2g-ufsm/flowbot/internal/api"
	"github.com/e2g-ufsm/flowbot/internal/genai"
	"github.com/e2g-ufsm/flowbot/internal/store"
	"github.com/e2g-ufsm/flowbot/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for flowbot state data
	DefaultStateDir = "/var/lib/flowbot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "flowbot.db"
	// DefaultSessionTimeoutMinutes is the default idle session timeout
	DefaultSessionTimeoutMinutes = 30
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	waOpts := buildWhatsAppOptions(flags)
	storeOpts := buildStoreOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	apiOpts := buildAPIOptions(flags)

	slog.Info("Bootstrapping flowbot with configured modules")
	slog.Debug("Module options counts", "whatsapp", len(waOpts), "store", len(storeOpts), "genai", len(genaiOpts), "api", len(apiOpts))
	if err := api.Run(waOpts, storeOpts, genaiOpts, apiOpts); err != nil {
		slog.Error("flowbot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("flowbot exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL    string
	WhatsAppDSN    string
	StateDir       string
	FlowPath       string
	OpenAIKey      string
	APIAddr        string
	SessionTimeout int
	Verbose        bool
}

// Flags holds command line flag values
type Flags struct {
	qrOutput       *string
	numeric        *bool
	stateDir       *string
	dbDSN          *string
	flowPath       *string
	openaiKey      *string
	apiAddr        *string
	sessionTimeout *int
}

// initializeLogger sets up structured logging. VERBOSE=true lowers the level
// to debug.
func initializeLogger() {
	level := slog.LevelInfo
	if envBool("VERBOSE", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// envBool reads a boolean environment variable, accepting the usual
// true/false spellings plus yes/no and on/off. Unset or unrecognized values
// fall back to def.
func envBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	case "":
		return def
	}
	slog.Warn("Ignoring invalid boolean environment value", "key", key)
	return def
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		WhatsAppDSN:    os.Getenv("WHATSAPP_DB_DSN"),
		StateDir:       os.Getenv("FLOWBOT_STATE_DIR"),
		FlowPath:       os.Getenv("FLOWBOT_FLOW_PATH"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		APIAddr:        os.Getenv("API_ADDR"),
		SessionTimeout: DefaultSessionTimeoutMinutes,
	}

	if raw := os.Getenv("SESSION_TIMEOUT_MINUTES"); raw != "" {
		if minutes, err := time.ParseDuration(raw + "m"); err == nil {
			config.SessionTimeout = int(minutes.Minutes())
		} else {
			slog.Warn("Invalid SESSION_TIMEOUT_MINUTES, using default", "value", raw)
		}
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No FLOWBOT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = config.DatabaseURL
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.WhatsAppDSN)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"FLOWBOT_STATE_DIR", config.StateDir,
		"FLOWBOT_FLOW_PATH", config.FlowPath,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"SESSION_TIMEOUT_MINUTES", config.SessionTimeout)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:       flag.String("qr-output", "", "path to write login QR code"),
		numeric:        flag.Bool("numeric-code", false, "use numeric login code instead of QR code"),
		stateDir:       flag.String("state-dir", config.StateDir, "state directory for flowbot data (overrides $FLOWBOT_STATE_DIR)"),
		dbDSN:          flag.String("db-dsn", config.WhatsAppDSN, "database DSN for the session store and WhatsApp state (overrides $WHATSAPP_DB_DSN or $DATABASE_URL)"),
		flowPath:       flag.String("flow", config.FlowPath, "path to the flow definition JSON (overrides $FLOWBOT_FLOW_PATH)"),
		openaiKey:      flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:        flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		sessionTimeout: flag.Int("session-timeout", config.SessionTimeout, "idle session timeout in minutes (overrides $SESSION_TIMEOUT_MINUTES)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"flowPath", *flags.flowPath,
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"sessionTimeout", *flags.sessionTimeout)

	// Follow the state directory when the DSN was derived from the default.
	if *flags.dbDSN == config.WhatsAppDSN && config.WhatsAppDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" && !strings.Contains(*flags.dbDSN, "://") {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
	}
	return nil
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if *flags.dbDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.dbDSN))
	}
	return waOpts
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN == "" {
		slog.Debug("No database DSN provided, will use in-memory store")
		return storeOpts
	}
	switch store.DetectDSNType(*flags.dbDSN) {
	case "postgres":
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
	case "redis":
		slog.Debug("Detected Redis DSN, configuring Redis store")
		storeOpts = append(storeOpts, store.WithRedisDSN(*flags.dbDSN))
	default:
		slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
		storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
	}
	return storeOpts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	return genaiOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.stateDir != "" {
		apiOpts = append(apiOpts, api.WithStateDir(*flags.stateDir))
	}
	if *flags.flowPath != "" {
		apiOpts = append(apiOpts, api.WithFlowPath(*flags.flowPath))
	}
	if *flags.sessionTimeout > 0 {
		apiOpts = append(apiOpts, api.WithSessionTimeout(time.Duration(*flags.sessionTimeout)*time.Minute))
	}
	return apiOpts
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/ini.v1"

	"github.com/tokligence/labgate/internal/adapter"
)

const (
	settingsFile     = "config/setting.ini"
	defaultEnv       = "dev"
	envConfigPattern = "config/%s/labgate.ini"
	dotEnvFile       = ".env"
)

// Ledger drivers.
const (
	LedgerDisabled = ""
	LedgerSQLite   = "sqlite"
	LedgerPostgres = "postgres"
)

// Settings contains global toggles such as the active environment.
type Settings struct {
	Environment string
	Defaults    map[string]string
}

// Config describes runtime options for labgated.
type Config struct {
	Environment string
	HTTPAddress string
	LogFile     string
	LogLevel    string

	RateLimitEnabled   bool
	RateLimitPerHour   int
	RateLimitPerDay    int
	SessionTimeout     time.Duration
	SessionMaxMessages int

	AIMaxTokens      int
	AITemperature    float64
	AIMaxAttempts    int
	AIBackoffBase    time.Duration
	AIRequestTimeout time.Duration
	DefaultProvider  adapter.Provider

	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIModel      string
	OpenAIOrg        string
	AnthropicAPIKey  string
	AnthropicBaseURL string
	AnthropicVersion string
	AnthropicModel   string

	UsageLogCapacity int
	LedgerDriver     string
	LedgerDSN        string

	BlockedPatternsFile string
}

// Debug reports whether debug logging is on.
func (c Config) Debug() bool {
	return strings.EqualFold(c.LogLevel, "debug")
}

// Load reads <root>/.env, the settings file, the environment's labgate.ini
// and finally process environment variables, later sources winning.
// Variables already present in the process environment are never replaced
// by .env entries.
func Load(root string) (Config, error) {
	if root == "" {
		root = "."
	}
	if err := godotenv.Load(filepath.Join(root, dotEnvFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", dotEnvFile, err)
	}

	s, err := loadSettings(root)
	if err != nil {
		return Config{}, err
	}
	if env := strings.TrimSpace(os.Getenv("LABGATE_ENV")); env != "" {
		s.Environment = env
	}

	envValues, err := parseINI(filepath.Join(root, fmt.Sprintf(envConfigPattern, s.Environment)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			envValues = map[string]string{}
		} else {
			return Config{}, err
		}
	}

	merged := make(map[string]string)
	for k, v := range s.Defaults {
		merged[k] = v
	}
	for k, v := range envValues {
		merged[k] = v
	}

	p := parser{}
	cfg := Config{
		Environment: s.Environment,
		HTTPAddress: firstNonEmpty(os.Getenv("LABGATE_HTTP_ADDRESS"), merged["http_address"], ":8080"),
		LogFile:     firstNonEmpty(os.Getenv("LABGATE_LOG_FILE"), merged["log_file"]),
		LogLevel:    strings.ToLower(firstNonEmpty(os.Getenv("LABGATE_LOG_LEVEL"), merged["log_level"], "info")),

		RateLimitEnabled:   p.boolean("rate_limit_enabled", firstNonEmpty(os.Getenv("LABGATE_RATE_LIMIT_ENABLED"), merged["rate_limit_enabled"]), true),
		RateLimitPerHour:   p.positiveInt("rate_limit_per_hour", firstNonEmpty(os.Getenv("RATE_LIMIT_REQUESTS_PER_HOUR"), merged["rate_limit_per_hour"]), 20),
		RateLimitPerDay:    p.positiveInt("rate_limit_per_day", firstNonEmpty(os.Getenv("RATE_LIMIT_REQUESTS_PER_DAY"), merged["rate_limit_per_day"]), 100),
		SessionTimeout:     time.Duration(p.positiveInt("session_timeout_ms", firstNonEmpty(os.Getenv("SESSION_TIMEOUT_MS"), merged["session_timeout_ms"]), 1800000)) * time.Millisecond,
		SessionMaxMessages: p.positiveInt("session_max_messages", firstNonEmpty(os.Getenv("LABGATE_SESSION_MAX_MESSAGES"), merged["session_max_messages"]), 10),

		AIMaxTokens:      p.positiveInt("ai_max_tokens", firstNonEmpty(os.Getenv("AI_MAX_TOKENS"), merged["ai_max_tokens"]), 2000),
		AITemperature:    p.temperature("ai_temperature", firstNonEmpty(os.Getenv("LABGATE_AI_TEMPERATURE"), merged["ai_temperature"]), 0.7),
		AIMaxAttempts:    p.positiveInt("ai_max_attempts", firstNonEmpty(os.Getenv("LABGATE_AI_MAX_ATTEMPTS"), merged["ai_max_attempts"]), 3),
		AIBackoffBase:    p.duration("ai_backoff_base", firstNonEmpty(os.Getenv("LABGATE_AI_BACKOFF_BASE"), merged["ai_backoff_base"]), time.Second),
		AIRequestTimeout: p.duration("ai_request_timeout", firstNonEmpty(os.Getenv("LABGATE_AI_REQUEST_TIMEOUT"), merged["ai_request_timeout"]), 30*time.Second),
		DefaultProvider:  p.provider("default_provider", firstNonEmpty(os.Getenv("LABGATE_DEFAULT_PROVIDER"), merged["default_provider"], string(adapter.ProviderOpenAI))),

		OpenAIAPIKey:     firstNonEmpty(os.Getenv("OPENAI_API_KEY"), merged["openai_api_key"]),
		OpenAIBaseURL:    firstNonEmpty(os.Getenv("OPENAI_BASE_URL"), merged["openai_base_url"]),
		OpenAIModel:      firstNonEmpty(os.Getenv("OPENAI_MODEL"), merged["openai_model"]),
		OpenAIOrg:        firstNonEmpty(os.Getenv("OPENAI_ORG"), merged["openai_org"]),
		AnthropicAPIKey:  firstNonEmpty(os.Getenv("ANTHROPIC_API_KEY"), merged["anthropic_api_key"]),
		AnthropicBaseURL: firstNonEmpty(os.Getenv("ANTHROPIC_BASE_URL"), merged["anthropic_base_url"]),
		AnthropicVersion: firstNonEmpty(os.Getenv("ANTHROPIC_VERSION"), merged["anthropic_version"], "2023-06-01"),
		AnthropicModel:   firstNonEmpty(os.Getenv("ANTHROPIC_MODEL"), merged["anthropic_model"]),

		UsageLogCapacity: p.positiveInt("usage_log_capacity", firstNonEmpty(os.Getenv("LABGATE_USAGE_LOG_CAPACITY"), merged["usage_log_capacity"]), 1000),
		LedgerDriver:     strings.ToLower(strings.TrimSpace(firstNonEmpty(os.Getenv("LABGATE_LEDGER_DRIVER"), merged["ledger_driver"]))),
		LedgerDSN:        firstNonEmpty(os.Getenv("LABGATE_LEDGER_DSN"), merged["ledger_dsn"]),

		BlockedPatternsFile: firstNonEmpty(os.Getenv("LABGATE_BLOCKED_PATTERNS_FILE"), merged["blocked_patterns_file"]),
	}

	switch cfg.LedgerDriver {
	case LedgerDisabled:
	case LedgerSQLite:
		if cfg.LedgerDSN == "" {
			cfg.LedgerDSN = DefaultLedgerPath()
		}
	case LedgerPostgres:
		if cfg.LedgerDSN == "" {
			p.fail("ledger_dsn", "required when ledger_driver=postgres")
		}
	default:
		p.fail("ledger_driver", fmt.Sprintf("unknown driver %q (want sqlite or postgres)", cfg.LedgerDriver))
	}

	if err := p.err(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadSettings(root string) (Settings, error) {
	values, err := parseINI(filepath.Join(root, settingsFile))
	if errors.Is(err, os.ErrNotExist) {
		return Settings{Environment: defaultEnv, Defaults: map[string]string{}}, nil
	}
	if err != nil {
		return Settings{}, err
	}
	env := values["environment"]
	if env == "" {
		env = defaultEnv
	}
	defaults := make(map[string]string)
	for k, v := range values {
		if k == "environment" {
			continue
		}
		defaults[k] = v
	}
	return Settings{Environment: env, Defaults: defaults}, nil
}

// parseINI flattens every section of an INI file into lower-cased keys.
// Later sections win on duplicate keys.
func parseINI(path string) (map[string]string, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	f, err := ini.LoadSources(ini.LoadOptions{Insensitive: true, IgnoreInlineComment: true}, path)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	values := make(map[string]string)
	for _, section := range f.Sections() {
		for _, key := range section.Keys() {
			values[key.Name()] = strings.TrimSpace(key.String())
		}
	}
	return values, nil
}

// parser accumulates value errors so one Load reports all of them.
type parser struct {
	errs []error
}

func (p *parser) fail(key, msg string) {
	p.errs = append(p.errs, fmt.Errorf("config %s: %s", key, msg))
}

func (p *parser) err() error {
	return errors.Join(p.errs...)
}

func (p *parser) positiveInt(key, v string, fallback int) int {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, fmt.Sprintf("invalid integer %q", v))
		return fallback
	}
	if n <= 0 {
		p.fail(key, fmt.Sprintf("must be positive, got %d", n))
		return fallback
	}
	return n
}

func (p *parser) temperature(key, v string, fallback float64) float64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, fmt.Sprintf("invalid number %q", v))
		return fallback
	}
	if f < 0 || f > 2 {
		p.fail(key, fmt.Sprintf("must be within [0, 2], got %v", f))
		return fallback
	}
	return f
}

// duration accepts Go duration strings; a bare integer is taken as
// milliseconds.
func (p *parser) duration(key, v string, fallback time.Duration) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		ms, convErr := strconv.Atoi(v)
		if convErr != nil {
			p.fail(key, fmt.Sprintf("invalid duration %q", v))
			return fallback
		}
		d = time.Duration(ms) * time.Millisecond
	}
	if d <= 0 {
		p.fail(key, fmt.Sprintf("must be positive, got %s", d))
		return fallback
	}
	return d
}

func (p *parser) boolean(key, v string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "":
		return fallback
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		p.fail(key, fmt.Sprintf("invalid boolean %q", v))
		return fallback
	}
}

func (p *parser) provider(key, v string) adapter.Provider {
	prov, err := adapter.ParseProvider(strings.ToLower(strings.TrimSpace(v)))
	if err != nil {
		p.fail(key, err.Error())
		return adapter.ProviderOpenAI
	}
	return prov
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// DefaultLedgerPath returns the fallback SQLite ledger location under the
// user's home directory.
func DefaultLedgerPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "labgate-usage.db"
	}
	return filepath.Join(home, ".labgate", "usage.db")
}

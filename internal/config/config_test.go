package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tokligence/labgate/internal/adapter"
)

// clearEnv blanks every variable Load reads so the host environment cannot
// leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"LABGATE_ENV", "LABGATE_HTTP_ADDRESS", "LABGATE_LOG_FILE", "LABGATE_LOG_LEVEL", "LABGATE_RATE_LIMIT_ENABLED",
		"RATE_LIMIT_REQUESTS_PER_HOUR", "RATE_LIMIT_REQUESTS_PER_DAY", "SESSION_TIMEOUT_MS",
		"LABGATE_SESSION_MAX_MESSAGES", "AI_MAX_TOKENS", "LABGATE_AI_TEMPERATURE", "LABGATE_AI_MAX_ATTEMPTS",
		"LABGATE_AI_BACKOFF_BASE", "LABGATE_AI_REQUEST_TIMEOUT", "LABGATE_DEFAULT_PROVIDER",
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_MODEL", "OPENAI_ORG",
		"ANTHROPIC_API_KEY", "ANTHROPIC_BASE_URL", "ANTHROPIC_VERSION", "ANTHROPIC_MODEL",
		"LABGATE_USAGE_LOG_CAPACITY", "LABGATE_LEDGER_DRIVER", "LABGATE_LEDGER_DSN", "LABGATE_BLOCKED_PATTERNS_FILE",
	} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Environment != "dev" {
		t.Fatalf("unexpected environment %q", cfg.Environment)
	}
	if cfg.HTTPAddress != ":8080" {
		t.Fatalf("unexpected http address %q", cfg.HTTPAddress)
	}
	if !cfg.RateLimitEnabled || cfg.RateLimitPerHour != 20 || cfg.RateLimitPerDay != 100 {
		t.Fatalf("unexpected rate limits %+v", cfg)
	}
	if cfg.SessionTimeout != 30*time.Minute || cfg.SessionMaxMessages != 10 {
		t.Fatalf("unexpected session settings %v/%d", cfg.SessionTimeout, cfg.SessionMaxMessages)
	}
	if cfg.AIMaxTokens != 2000 || cfg.AITemperature != 0.7 || cfg.AIMaxAttempts != 3 {
		t.Fatalf("unexpected ai settings %+v", cfg)
	}
	if cfg.AIBackoffBase != time.Second || cfg.AIRequestTimeout != 30*time.Second {
		t.Fatalf("unexpected ai timing %v/%v", cfg.AIBackoffBase, cfg.AIRequestTimeout)
	}
	if cfg.DefaultProvider != adapter.ProviderOpenAI {
		t.Fatalf("unexpected default provider %q", cfg.DefaultProvider)
	}
	if cfg.AnthropicVersion != "2023-06-01" {
		t.Fatalf("unexpected anthropic version %q", cfg.AnthropicVersion)
	}
	if cfg.UsageLogCapacity != 1000 || cfg.LedgerDriver != LedgerDisabled {
		t.Fatalf("unexpected usage settings %+v", cfg)
	}
	if cfg.Debug() {
		t.Fatalf("debug should be off by default")
	}
}

func TestLoadLayering(t *testing.T) {
	clearEnv(t)
	tmp := t.TempDir()
	writeFile(t, filepath.Join(tmp, "config", "setting.ini"),
		"environment=test\nlog_level=debug\nrate_limit_per_hour=5\nopenai_model=gpt-base\n")
	writeFile(t, filepath.Join(tmp, "config", "test", "labgate.ini"), strings.Join([]string{
		"[http]",
		"http_address = :9090",
		"[ai]",
		"openai_model = gpt-env",
		"ai_backoff_base = 250ms",
		"ai_request_timeout = 5000",
		"default_provider = Anthropic",
		"[ledger]",
		"ledger_driver = sqlite",
		"ledger_dsn = /tmp/labgate-test.db",
	}, "\n"))
	t.Setenv("RATE_LIMIT_REQUESTS_PER_DAY", "40")
	t.Setenv("SESSION_TIMEOUT_MS", "60000")

	cfg, err := Load(tmp)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Environment != "test" {
		t.Fatalf("unexpected environment %q", cfg.Environment)
	}
	if !cfg.Debug() {
		t.Fatalf("expected log level from settings, got %q", cfg.LogLevel)
	}
	if cfg.RateLimitPerHour != 5 {
		t.Fatalf("expected hourly limit from settings, got %d", cfg.RateLimitPerHour)
	}
	if cfg.RateLimitPerDay != 40 {
		t.Fatalf("expected daily limit from env, got %d", cfg.RateLimitPerDay)
	}
	if cfg.SessionTimeout != time.Minute {
		t.Fatalf("unexpected session timeout %v", cfg.SessionTimeout)
	}
	if cfg.HTTPAddress != ":9090" {
		t.Fatalf("unexpected http address %q", cfg.HTTPAddress)
	}
	if cfg.OpenAIModel != "gpt-env" {
		t.Fatalf("expected env file to override settings, got %q", cfg.OpenAIModel)
	}
	if cfg.AIBackoffBase != 250*time.Millisecond || cfg.AIRequestTimeout != 5*time.Second {
		t.Fatalf("unexpected ai timing %v/%v", cfg.AIBackoffBase, cfg.AIRequestTimeout)
	}
	if cfg.DefaultProvider != adapter.ProviderAnthropic {
		t.Fatalf("unexpected default provider %q", cfg.DefaultProvider)
	}
	if cfg.LedgerDriver != LedgerSQLite || cfg.LedgerDSN != "/tmp/labgate-test.db" {
		t.Fatalf("unexpected ledger %q %q", cfg.LedgerDriver, cfg.LedgerDSN)
	}
}

func TestLoadDotEnvDoesNotOverrideProcessEnv(t *testing.T) {
	clearEnv(t)
	tmp := t.TempDir()
	writeFile(t, filepath.Join(tmp, ".env"), "OPENAI_API_KEY=sk-from-dotenv\nANTHROPIC_API_KEY=ak-from-dotenv\n")
	t.Setenv("ANTHROPIC_API_KEY", "ak-from-process")
	t.Cleanup(func() { os.Unsetenv("OPENAI_API_KEY") })

	// t.Setenv above left OPENAI_API_KEY set to "", which godotenv treats as
	// present; unset it so the .env value applies.
	os.Unsetenv("OPENAI_API_KEY")

	cfg, err := Load(tmp)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OpenAIAPIKey != "sk-from-dotenv" {
		t.Fatalf("expected key from .env, got %q", cfg.OpenAIAPIKey)
	}
	if cfg.AnthropicAPIKey != "ak-from-process" {
		t.Fatalf("expected process env to win, got %q", cfg.AnthropicAPIKey)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	clearEnv(t)
	tmp := t.TempDir()
	writeFile(t, filepath.Join(tmp, "config", "dev", "labgate.ini"), strings.Join([]string{
		"rate_limit_per_hour = 0",
		"rate_limit_per_day = lots",
		"ai_backoff_base = soon",
		"ai_temperature = 3",
		"default_provider = gemini",
		"ledger_driver = mongo",
	}, "\n"))

	_, err := Load(tmp)
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, key := range []string{"rate_limit_per_hour", "rate_limit_per_day", "ai_backoff_base", "ai_temperature", "default_provider", "ledger_driver"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error should mention %s: %v", key, err)
		}
	}
}

func TestLoadPostgresNeedsDSN(t *testing.T) {
	clearEnv(t)
	t.Setenv("LABGATE_LEDGER_DRIVER", "postgres")
	_, err := Load(t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "ledger_dsn") {
		t.Fatalf("expected ledger_dsn error, got %v", err)
	}

	t.Setenv("LABGATE_LEDGER_DRIVER", "sqlite")
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LedgerDSN == "" {
		t.Fatalf("sqlite ledger should default its path")
	}
}

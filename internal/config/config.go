package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config contains all runtime settings for the concierge chat service.
type Config struct {
	BindAddr                 string        `yaml:"bind_addr" env:"APP_BIND_ADDR" env-default:":8080"`
	ShutdownTimeout          time.Duration `yaml:"shutdown_timeout" env:"APP_SHUTDOWN_TIMEOUT" env-default:"15s"`
	SessionInactivityTimeout time.Duration `yaml:"session_inactivity_timeout" env:"APP_SESSION_INACTIVITY_TIMEOUT" env-default:"30m"`
	MetricsNamespace         string        `yaml:"metrics_namespace" env:"APP_METRICS_NAMESPACE" env-default:"concierge"`
	AllowAnyOrigin           bool          `yaml:"allow_any_origin" env:"APP_ALLOW_ANY_ORIGIN" env-default:"false"`

	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT" env-default:"json"`

	Webhook    Webhook    `yaml:"webhook"`
	Progress   Progress   `yaml:"progress"`
	Onboarding Onboarding `yaml:"onboarding"`
	Transcript Transcript `yaml:"transcript"`
}

// Webhook configures the outbound AI backend call.
type Webhook struct {
	URL     string        `yaml:"url" env:"WEBHOOK_URL" env-default:"http://localhost:5678/webhook/chat"`
	Timeout time.Duration `yaml:"timeout" env:"WEBHOOK_TIMEOUT" env-default:"60s"`
	// Concurrency bounds outbound calls across every session in the process.
	Concurrency int `yaml:"concurrency" env:"WEBHOOK_CONCURRENCY" env-default:"1"`

	// TimeoutMessage receives the timeout in seconds as its only %s verb.
	TimeoutMessage string `yaml:"timeout_message" env:"WEBHOOK_TIMEOUT_MESSAGE" env-default:"Error: the AI service did not answer in time (read timed out after %s seconds). Please try again or contact our call center."`
	// FailureMessage receives the error description as its only %s verb.
	FailureMessage  string `yaml:"failure_message" env:"WEBHOOK_FAILURE_MESSAGE" env-default:"Error: unexpected connection failure: %s"`
	FallbackMessage string `yaml:"fallback_message" env:"WEBHOOK_FALLBACK_MESSAGE" env-default:"Sorry, something went wrong on the AI service."`
}

// Progress configures the simulated loading indicator.
type Progress struct {
	Stages        []string      `yaml:"stages" env:"PROGRESS_STAGES" env-separator:"|" env-default:"Analyzing your question...|Searching the knowledge base...|Composing a polite answer...|Almost there, thank you for waiting..."`
	StageInterval time.Duration `yaml:"stage_interval" env:"PROGRESS_STAGE_INTERVAL" env-default:"1s"`
	PollInterval  time.Duration `yaml:"poll_interval" env:"PROGRESS_POLL_INTERVAL" env-default:"3s"`
}

// Onboarding configures the name/phone gate.
type Onboarding struct {
	PhonePrefix    string `yaml:"phone_prefix" env:"ONBOARDING_PHONE_PREFIX" env-default:"08"`
	PhoneMinLength int    `yaml:"phone_min_length" env:"ONBOARDING_PHONE_MIN_LENGTH" env-default:"10"`
	// Greeting receives the user's name as its only %s verb.
	Greeting string `yaml:"greeting" env:"ONBOARDING_GREETING" env-default:"Hello **%s**, I am your smart assistant. Ask me anything about our services and I will be glad to help."`
}

// Transcript configures the turn archive.
type Transcript struct {
	// URL selects the backend: empty (memory), postgres://, redis://, sqlite:// or file:.
	URL       string        `yaml:"url" env:"TRANSCRIPT_URL"`
	RedactPII bool          `yaml:"redact_pii" env:"TRANSCRIPT_REDACT_PII" env-default:"false"`
	TTL       time.Duration `yaml:"ttl" env:"TRANSCRIPT_TTL" env-default:"0s"`
}

// Load reads an optional YAML file and then environment variables, applying defaults.
func Load(path string) (Config, error) {
	var cfg Config
	var err error
	if strings.TrimSpace(path) != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges that cannot be expressed as defaults.
func (c *Config) Validate() error {
	if c.SessionInactivityTimeout < 5*time.Second {
		return fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if c.Webhook.URL == "" {
		return fmt.Errorf("WEBHOOK_URL cannot be empty")
	}
	if c.Webhook.Timeout <= 0 {
		return fmt.Errorf("WEBHOOK_TIMEOUT must be positive")
	}
	if c.Webhook.Concurrency <= 0 {
		return fmt.Errorf("WEBHOOK_CONCURRENCY must be positive")
	}
	if !singleStringVerb(c.Webhook.TimeoutMessage) {
		return fmt.Errorf("WEBHOOK_TIMEOUT_MESSAGE must contain exactly one %%s for the timeout seconds")
	}
	if !singleStringVerb(c.Webhook.FailureMessage) {
		return fmt.Errorf("WEBHOOK_FAILURE_MESSAGE must contain exactly one %%s for the error detail")
	}
	if len(c.Progress.Stages) == 0 {
		return fmt.Errorf("PROGRESS_STAGES must list at least one stage")
	}
	if c.Progress.StageInterval <= 0 {
		return fmt.Errorf("PROGRESS_STAGE_INTERVAL must be positive")
	}
	if c.Progress.PollInterval <= 0 {
		return fmt.Errorf("PROGRESS_POLL_INTERVAL must be positive")
	}
	if c.Onboarding.PhoneMinLength < 0 {
		return fmt.Errorf("ONBOARDING_PHONE_MIN_LENGTH must be >= 0")
	}
	if c.Transcript.TTL < 0 {
		return fmt.Errorf("TRANSCRIPT_TTL must be >= 0")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	return nil
}

// singleStringVerb reports whether tmpl formats exactly one %s and no other
// verb. Literal %% is allowed.
func singleStringVerb(tmpl string) bool {
	rest := strings.ReplaceAll(tmpl, "%%", "")
	return strings.Count(rest, "%s") == 1 && strings.Count(rest, "%") == 1
}

func (c *Config) normalize() {
	c.Webhook.URL = strings.TrimSpace(c.Webhook.URL)
	c.Transcript.URL = strings.TrimSpace(c.Transcript.URL)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))

	stages := c.Progress.Stages[:0]
	for _, s := range c.Progress.Stages {
		if s = strings.TrimSpace(s); s != "" {
			stages = append(stages, s)
		}
	}
	c.Progress.Stages = stages
}

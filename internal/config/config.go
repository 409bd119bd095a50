package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ehr/triage/internal/domain/vitals"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	LogLevel          string        `mapstructure:"LOG_LEVEL"`
	FHIRBaseURL       string        `mapstructure:"FHIR_BASE_URL"`
	FHIRTimeout       time.Duration `mapstructure:"FHIR_TIMEOUT"`
	FHIRPageSize      int           `mapstructure:"FHIR_PAGE_SIZE"`
	FHIRMaxPages      int           `mapstructure:"FHIR_MAX_PAGES"`
	FHIRCategory      string        `mapstructure:"FHIR_CATEGORY"`
	FHIRAuthToken     string        `mapstructure:"FHIR_AUTH_TOKEN"`
	RulesFile         string        `mapstructure:"RULES_FILE"`
	RulesWatch        bool          `mapstructure:"RULES_WATCH"`
	WorkerConcurrency int           `mapstructure:"WORKER_CONCURRENCY"`
	TrendLimit        int           `mapstructure:"TREND_LIMIT"`
	RequestTimeout    time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit         string        `mapstructure:"BODY_LIMIT"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`

	// Comma lists, parsed by the accessors below.
	ExpectedKindsRaw string `mapstructure:"EXPECTED_KINDS"`
	SubjectsRaw      string `mapstructure:"SUBJECTS"`
	SubjectNamesRaw  string `mapstructure:"SUBJECT_NAMES"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"FHIR_BASE_URL", "FHIR_TIMEOUT", "FHIR_PAGE_SIZE", "FHIR_MAX_PAGES", "FHIR_CATEGORY", "FHIR_AUTH_TOKEN",
	"RULES_FILE", "RULES_WATCH",
	"WORKER_CONCURRENCY", "TREND_LIMIT", "REQUEST_TIMEOUT", "BODY_LIMIT", "CORS_ORIGINS",
	"EXPECTED_KINDS", "SUBJECTS", "SUBJECT_NAMES",
}

// Load reads configuration from the environment and an optional .env file.
// It does not validate; callers pick the checks their command needs.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("FHIR_TIMEOUT", "10s")
	v.SetDefault("FHIR_PAGE_SIZE", 100)
	v.SetDefault("FHIR_MAX_PAGES", 5)
	v.SetDefault("FHIR_CATEGORY", "vital-signs")
	v.SetDefault("RULES_WATCH", false)
	v.SetDefault("WORKER_CONCURRENCY", 4)
	v.SetDefault("TREND_LIMIT", vitals.DefaultTrendLimit)
	v.SetDefault("REQUEST_TIMEOUT", "60s")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = splitList(cfg.CORSOrigins[0])
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// ExpectedKinds returns the configured completeness expectation, or the
// default four kinds when EXPECTED_KINDS is unset.
func (c *Config) ExpectedKinds() ([]vitals.Kind, error) {
	names := splitList(c.ExpectedKindsRaw)
	if len(names) == 0 {
		return append([]vitals.Kind(nil), vitals.DefaultExpectedKinds...), nil
	}
	kinds := make([]vitals.Kind, 0, len(names))
	for _, n := range names {
		k, ok := vitals.ParseKind(n)
		if !ok {
			return nil, fmt.Errorf("EXPECTED_KINDS: unknown vital kind %q", n)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func (c *Config) Subjects() []string {
	return splitList(c.SubjectsRaw)
}

// SubjectNames parses SUBJECT_NAMES entries of the form id=Display Name.
func (c *Config) SubjectNames() (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range splitList(c.SubjectNamesRaw) {
		id, name, ok := strings.Cut(pair, "=")
		id, name = strings.TrimSpace(id), strings.TrimSpace(name)
		if !ok || id == "" || name == "" {
			return nil, fmt.Errorf("SUBJECT_NAMES: expected id=name, got %q", pair)
		}
		out[id] = name
	}
	return out, nil
}

// Validate checks ranges and list syntax. FHIR_BASE_URL is only required
// when requireFHIR is set, since offline commands read bundle files.
func (c *Config) Validate(requireFHIR bool) error {
	if requireFHIR && c.FHIRBaseURL == "" {
		return fmt.Errorf("FHIR_BASE_URL is required")
	}
	if c.FHIRBaseURL != "" && !strings.HasPrefix(c.FHIRBaseURL, "http://") && !strings.HasPrefix(c.FHIRBaseURL, "https://") {
		return fmt.Errorf("FHIR_BASE_URL must be an http(s) URL, got %q", c.FHIRBaseURL)
	}
	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1, got %d", c.WorkerConcurrency)
	}
	if c.TrendLimit < 1 {
		return fmt.Errorf("TREND_LIMIT must be at least 1, got %d", c.TrendLimit)
	}
	if c.FHIRPageSize < 1 {
		return fmt.Errorf("FHIR_PAGE_SIZE must be at least 1, got %d", c.FHIRPageSize)
	}
	if c.FHIRTimeout <= 0 {
		return fmt.Errorf("FHIR_TIMEOUT must be positive, got %s", c.FHIRTimeout)
	}
	if c.RulesWatch && c.RulesFile == "" {
		return fmt.Errorf("RULES_WATCH requires RULES_FILE")
	}
	if _, err := c.ExpectedKinds(); err != nil {
		return err
	}
	if _, err := c.SubjectNames(); err != nil {
		return err
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

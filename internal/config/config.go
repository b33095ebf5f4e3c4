package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port               string
	BaseURL            string
	GoogleClientID     string
	GoogleClientSecret string
	SessionSecret      string
	DatabaseURL        string
	AIProvider         string
	AIKey              string
	Env                string

	// Generation client
	FastModel         string
	ProModel          string
	QualityPolicy     string // "fast", "pro" or "auto"
	GenerationTimeout int    // seconds, hard bound per model call

	// Ingestion loop
	PollInterval      int // seconds between poll runs
	PollRunTimeout    int // seconds, bound for a whole run
	ContractorTimeout int // seconds, bound per contractor fetch
	MaxFetchEmails    int // K most recent messages per contractor

	// Context builder
	ContextWindow int // most recent N messages in the prompt

	Risk RiskWeights
}

// RiskWeights are the offer risk-score penalties. They are configuration, not
// invariants; the defaults match the dashboard's documented scale.
type RiskWeights struct {
	MissingWarranty      int
	MissingPaymentTerms  int
	MissingInsurance     int
	MissingTimeline      int
	MissingCostBreakdown int
	ShortTimeline        int
	ThinScope            int

	ShortTimelineDays int // timelines under this many days are penalized
	ThinScopeChars    int // scope texts under this length are penalized
}

func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:               GetEnv("PORT", "8080"),
		BaseURL:            GetEnv("BASE_URL", "http://localhost:8080"),
		GoogleClientID:     GetEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: GetEnv("GOOGLE_CLIENT_SECRET", ""),
		SessionSecret:      GetEnv("SESSION_SECRET", "0d1f3f63-34a4-4d58-9c3a-7a5ad37f4c0e"),
		DatabaseURL:        GetEnv("DATABASE_URL", ""),
		AIProvider:         GetEnv("AI_PROVIDER", "openai"),
		AIKey:              GetEnv("AI_API_KEY", ""),
		Env:                GetEnv("ENV", "development"),

		FastModel:         GetEnv("AI_FAST_MODEL", "gpt-4o-mini"),
		ProModel:          GetEnv("AI_PRO_MODEL", "gpt-4o"),
		QualityPolicy:     GetEnv("AI_QUALITY_POLICY", "auto"),
		GenerationTimeout: GetEnvInt("AI_TIMEOUT_SECONDS", 12),

		PollInterval:      GetEnvInt("POLL_INTERVAL_SECONDS", 10),
		PollRunTimeout:    GetEnvInt("POLL_RUN_TIMEOUT_SECONDS", 60),
		ContractorTimeout: GetEnvInt("CONTRACTOR_TIMEOUT_SECONDS", 15),
		MaxFetchEmails:    GetEnvInt("MAX_FETCH_EMAILS", 5),

		ContextWindow: GetEnvInt("CONTEXT_WINDOW_MESSAGES", 20),

		Risk: RiskWeights{
			MissingWarranty:      GetEnvInt("RISK_MISSING_WARRANTY", 20),
			MissingPaymentTerms:  GetEnvInt("RISK_MISSING_PAYMENT_TERMS", 15),
			MissingInsurance:     GetEnvInt("RISK_MISSING_INSURANCE", 15),
			MissingTimeline:      GetEnvInt("RISK_MISSING_TIMELINE", 20),
			MissingCostBreakdown: GetEnvInt("RISK_MISSING_COST_BREAKDOWN", 10),
			ShortTimeline:        GetEnvInt("RISK_SHORT_TIMELINE", 20),
			ThinScope:            GetEnvInt("RISK_THIN_SCOPE", 10),
			ShortTimelineDays:    GetEnvInt("RISK_SHORT_TIMELINE_DAYS", 7),
			ThinScopeChars:       GetEnvInt("RISK_THIN_SCOPE_CHARS", 50),
		},
	}, nil
}

func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func GetEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func (c *Config) Validate() error {
	if c.GoogleClientID == "" {
		return fmt.Errorf("GOOGLE_CLIENT_ID is required")
	}
	if c.GoogleClientSecret == "" {
		return fmt.Errorf("GOOGLE_CLIENT_SECRET is required")
	}
	if c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is required")
	}
	if c.AIKey == "" {
		return fmt.Errorf("AI_API_KEY is required")
	}
	if c.QualityPolicy != "fast" && c.QualityPolicy != "pro" && c.QualityPolicy != "auto" {
		return fmt.Errorf("AI_QUALITY_POLICY must be one of fast, pro, auto")
	}
	return nil
}

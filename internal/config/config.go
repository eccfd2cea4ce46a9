package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Handoff store backends.
const (
	HandoffStoreMemory   = "memory"
	HandoffStoreRedis    = "redis"
	HandoffStorePostgres = "postgres"
	HandoffStoreS3       = "s3"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	PublicBaseURL string
	CompanyName   string

	OpenAIAPIKey   string
	OpenAIModel    string
	// OpenAIFallbackModel is retried once when OpenAIModel fails.
	OpenAIFallbackModel string
	OpenAITTSModel string
	OpenAITTSVoice string
	OpenAITimeout  time.Duration

	DialpadAPIToken       string
	DialpadAPIBase        string
	DialpadWebhookSecret  string
	DialpadCallRouterID   string
	SalesDepartmentID     string
	SalesDepartmentNumber string
	DialpadLiveActions    bool

	TwilioAccountSID        string
	TwilioAuthToken         string
	TwilioValidateSignature bool
	TwilioTransferNumber    string
	TwilioVoice             string

	HandoffStore        string
	HandoffSaveTimeout  time.Duration
	DatabaseURL         string
	RedisAddr           string
	RedisPassword       string
	RedisTLS            bool
	HandoffBucket       string
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// SendGrid Email Configuration
	SendGridAPIKey     string
	SendGridFromEmail  string
	SendGridFromName   string
	HandoffNotifyEmail string

	AdminJWTSecret string

	ConversationMaxIdle       time.Duration
	ConversationSweepInterval time.Duration
	StrictStateTransitions    bool

	WebhookRateLimit float64
	WebhookRateBurst int
	ShutdownTimeout  time.Duration
}

// Load reads an optional .env file and then the environment.
func Load() *Config {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads configuration from environment variables only.
func FromEnv() *Config {
	return &Config{
		Port:          getEnv("PORT", "3000"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),
		CompanyName:   getEnv("COMPANY_NAME", "The Moving Company"),

		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIFallbackModel: getEnv("OPENAI_FALLBACK_MODEL", ""),
		OpenAITTSModel: getEnv("OPENAI_TTS_MODEL", "tts-1"),
		OpenAITTSVoice: getEnv("OPENAI_TTS_VOICE", "nova"),
		OpenAITimeout:  getEnvAsDuration("OPENAI_TIMEOUT", 30*time.Second),

		DialpadAPIToken:       getEnv("DIALPAD_API_TOKEN", ""),
		DialpadAPIBase:        getEnv("DIALPAD_API_BASE", "https://dialpad.com/api/v2"),
		DialpadWebhookSecret:  getEnv("DIALPAD_WEBHOOK_SECRET", ""),
		DialpadCallRouterID:   getEnv("DIALPAD_CALL_ROUTER_ID", "5983474916573184"),
		SalesDepartmentID:     getEnv("SALES_DEPARTMENT_ID", ""),
		SalesDepartmentNumber: getEnv("SALES_DEPARTMENT_NUMBER", "+13057013979"),
		DialpadLiveActions:    getEnvAsBool("DIALPAD_LIVE_ACTIONS", false),

		TwilioAccountSID:        getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:         getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioValidateSignature: getEnvAsBool("TWILIO_VALIDATE_SIGNATURE", true),
		TwilioTransferNumber:    getEnv("TWILIO_TRANSFER_NUMBER", "+13057013963"),
		TwilioVoice:             getEnv("TWILIO_VOICE", "Polly.Amy"),

		HandoffStore:        strings.ToLower(strings.TrimSpace(getEnv("HANDOFF_STORE", HandoffStoreMemory))),
		HandoffSaveTimeout:  getEnvAsDuration("HANDOFF_SAVE_TIMEOUT", 10*time.Second),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisTLS:            getEnvAsBool("REDIS_TLS", false),
		HandoffBucket:       getEnv("HANDOFF_BUCKET", ""),
		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		SendGridAPIKey:     getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:  getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:   getEnv("SENDGRID_FROM_NAME", "Moving Call Relay"),
		HandoffNotifyEmail: getEnv("HANDOFF_NOTIFY_EMAIL", ""),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		ConversationMaxIdle:       getEnvAsDuration("CONVERSATION_MAX_IDLE", 2*time.Hour),
		ConversationSweepInterval: getEnvAsDuration("CONVERSATION_SWEEP_INTERVAL", 5*time.Minute),
		StrictStateTransitions:    getEnvAsBool("STRICT_STATE_TRANSITIONS", false),

		WebhookRateLimit: getEnvAsFloat("WEBHOOK_RATE_LIMIT", 50),
		WebhookRateBurst: getEnvAsInt("WEBHOOK_RATE_BURST", 100),
		ShutdownTimeout:  getEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
	}
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error
	switch c.HandoffStore {
	case HandoffStoreMemory, HandoffStoreRedis:
	case HandoffStorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("HANDOFF_STORE=postgres requires DATABASE_URL"))
		}
	case HandoffStoreS3:
		if c.HandoffBucket == "" {
			errs = append(errs, errors.New("HANDOFF_STORE=s3 requires HANDOFF_BUCKET"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown HANDOFF_STORE %q", c.HandoffStore))
	}
	if c.DialpadLiveActions && c.DialpadAPIToken == "" {
		errs = append(errs, errors.New("DIALPAD_LIVE_ACTIONS requires DIALPAD_API_TOKEN"))
	}
	if c.TwilioValidateSignature && c.TwilioAccountSID != "" && c.TwilioAuthToken == "" {
		errs = append(errs, errors.New("TWILIO_VALIDATE_SIGNATURE requires TWILIO_AUTH_TOKEN"))
	}
	if c.WebhookRateLimit < 0 {
		errs = append(errs, errors.New("WEBHOOK_RATE_LIMIT must not be negative"))
	}
	return errors.Join(errs...)
}

// DialpadTransferTarget is the department calls are bridged to.
func (c *Config) DialpadTransferTarget() string {
	if c.SalesDepartmentID != "" {
		return c.SalesDepartmentID
	}
	return c.SalesDepartmentNumber
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds application configuration
type Config struct {
	Port        string `validate:"required,numeric"`
	Env         string `validate:"oneof=development staging production test"`
	LogLevel    string `validate:"oneof=debug info warn warning error"`
	DatabaseURL string

	// Tenant routing: WhatsApp phone-number ids and Facebook page ids map
	// to the dealership that owns them.
	DefaultTenantID string `validate:"required"`
	TenantMapJSON   string

	// WhatsApp Cloud API
	WhatsAppVerifyToken   string
	WhatsAppAppSecret     string
	WhatsAppAccessToken   string
	WhatsAppPhoneNumberID string
	GraphAPIBaseURL       string `validate:"required,url"`

	// Facebook Lead Ads
	LeadAdsVerifyToken string
	LeadAdsAccessToken string

	WebhookDedupEnabled    bool
	WebhookRateLimitRPS    float64 `validate:"gte=0"`
	WebhookRateLimitBurst  int     `validate:"gte=0"`
	ConversationHistoryLen int     `validate:"gte=1,lte=50"`
	TypingDelayPerChar     time.Duration
	TypingDelayMin         time.Duration
	TypingDelayMax         time.Duration `validate:"gtefield=TypingDelayMin"`

	AWSRegion               string
	AWSAccessKeyID          string
	AWSSecretAccessKey      string
	AWSEndpointOverride     string
	BedrockModelID          string
	BedrockEmbeddingModelID string
	// Every embedding column in migrations/ is vector(1024); another size
	// needs a migration first.
	EmbeddingDimensions     int `validate:"eq=1024"`
	GeminiAPIKey            string
	GeminiModelID           string
	LLMMaxTokens            int     `validate:"gte=1"`
	LLMTemperature          float64 `validate:"gte=0,lte=2"`
	LLMTopP                 float64 `validate:"gte=0,lte=1"`
	KnowledgeBucket         string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	AsynqQueue    string

	EmailProvider string `validate:"oneof=sendgrid ses smtp stub"`
	ManagerEmail  string `validate:"omitempty,email"`
	ManagerName   string

	// SendGrid Email Configuration
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	// SES / SMTP
	SESFromEmail string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	AdminJWTSecret string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		DefaultTenantID: getEnv("DEFAULT_TENANT_ID", "default"),
		TenantMapJSON:   getEnv("TENANT_MAP_JSON", ""),

		WhatsAppVerifyToken:   getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppAppSecret:     getEnv("WHATSAPP_APP_SECRET", ""),
		WhatsAppAccessToken:   getEnv("WHATSAPP_ACCESS_TOKEN", ""),
		WhatsAppPhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		GraphAPIBaseURL:       getEnv("GRAPH_API_BASE_URL", "https://graph.facebook.com/v21.0"),

		LeadAdsVerifyToken: getEnv("LEADADS_VERIFY_TOKEN", ""),
		LeadAdsAccessToken: getEnv("LEADADS_ACCESS_TOKEN", ""),

		WebhookDedupEnabled:    getEnvAsBool("WEBHOOK_DEDUP_ENABLED", true),
		WebhookRateLimitRPS:    getEnvAsFloat("WEBHOOK_RATE_LIMIT_RPS", 50),
		WebhookRateLimitBurst:  getEnvAsInt("WEBHOOK_RATE_LIMIT_BURST", 100),
		ConversationHistoryLen: getEnvAsInt("CONVERSATION_HISTORY_LEN", 10),
		TypingDelayPerChar:     getEnvAsDuration("TYPING_DELAY_PER_CHAR", 45*time.Millisecond),
		TypingDelayMin:         getEnvAsDuration("TYPING_DELAY_MIN", 1500*time.Millisecond),
		TypingDelayMax:         getEnvAsDuration("TYPING_DELAY_MAX", 8*time.Second),

		AWSRegion:               getEnv("AWS_REGION", "eu-west-1"),
		AWSAccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:     getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		BedrockModelID:          getEnv("BEDROCK_MODEL_ID", ""),
		BedrockEmbeddingModelID: getEnv("BEDROCK_EMBEDDING_MODEL_ID", "amazon.titan-embed-text-v2:0"),
		EmbeddingDimensions:     getEnvAsInt("EMBEDDING_DIMENSIONS", 1024),
		GeminiAPIKey:            getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:           getEnv("GEMINI_MODEL_ID", "gemini-1.5-flash"),
		LLMMaxTokens:            getEnvAsInt("LLM_MAX_TOKENS", 600),
		LLMTemperature:          getEnvAsFloat("LLM_TEMPERATURE", 0.4),
		LLMTopP:                 getEnvAsFloat("LLM_TOP_P", 0),
		KnowledgeBucket:         getEnv("KNOWLEDGE_BUCKET", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		AsynqQueue:    getEnv("ASYNQ_QUEUE", "notifications"),

		EmailProvider: strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		ManagerEmail:  getEnv("MANAGER_EMAIL", ""),
		ManagerName:   getEnv("MANAGER_NAME", "Jefe de ventas"),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "AutoLead"),

		SESFromEmail: getEnv("SES_FROM_EMAIL", ""),
		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", ""),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
	}
}

// Validate checks field constraints declared on Config.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := c.TenantMap(); err != nil {
		return err
	}
	return nil
}

// TenantMap decodes TENANT_MAP_JSON ({"<phone-number-id or page-id>": "<tenant>"}).
func (c *Config) TenantMap() (map[string]string, error) {
	out := map[string]string{}
	raw := strings.TrimSpace(c.TenantMapJSON)
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("config: invalid TENANT_MAP_JSON: %w", err)
	}
	return out, nil
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

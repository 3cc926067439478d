package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Scheduling
	BusinessTimezone       string
	SlotGranularityMinutes int
	PaymentWindow          time.Duration

	// UnpaidSweepInterval enables the in-process expiry of unpaid bookings. Zero disables it.
	UnpaidSweepInterval time.Duration

	// Static PIX code used when the gateway does not return one
	PixKey          string
	PixMerchantName string
	PixMerchantCity string

	// Payment gateways; with no credentials the local simulator is used
	MercadoPagoAccessToken   string
	MercadoPagoBaseURL       string
	MercadoPagoWebhookSecret string
	StripeSecretKey          string
	StripeWebhookSecret      string
	StripeSuccessURL         string
	StripeCancelURL          string

	// Notification channels
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioFromNumber  string

	// AWS (SES email, SQS webhook queue)
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Webhook event queue: SQS when WebhookQueueURL is set, in-memory otherwise
	WebhookQueueURL    string
	WebhookQueueBuffer int
	WebhookWorkerCount int

	// Booking lifecycle events
	AMQPURL      string
	AMQPExchange string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		BusinessTimezone:       getEnv("BUSINESS_TIMEZONE", "America/Sao_Paulo"),
		SlotGranularityMinutes: getEnvAsInt("SLOT_GRANULARITY_MINUTES", 30),
		PaymentWindow:          getEnvAsDuration("PAYMENT_WINDOW", 15*time.Minute),
		UnpaidSweepInterval:    getEnvAsDuration("UNPAID_SWEEP_INTERVAL", 0),

		PixKey:          getEnv("PIX_KEY", ""),
		PixMerchantName: getEnv("PIX_MERCHANT_NAME", "Barbearia"),
		PixMerchantCity: getEnv("PIX_MERCHANT_CITY", "Sao Paulo"),

		MercadoPagoAccessToken:   getEnv("MERCADOPAGO_ACCESS_TOKEN", ""),
		MercadoPagoBaseURL:       getEnv("MERCADOPAGO_BASE_URL", "https://api.mercadopago.com"),
		MercadoPagoWebhookSecret: getEnv("MERCADOPAGO_WEBHOOK_SECRET", ""),
		StripeSecretKey:          getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret:      getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeSuccessURL:         getEnv("STRIPE_SUCCESS_URL", ""),
		StripeCancelURL:          getEnv("STRIPE_CANCEL_URL", ""),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "auto"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Barbearia"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		TwilioAccountSID:  getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:   getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:  getEnv("TWILIO_FROM_NUMBER", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		WebhookQueueURL:    getEnv("WEBHOOK_QUEUE_URL", ""),
		WebhookQueueBuffer: getEnvAsInt("WEBHOOK_QUEUE_BUFFER", 256),
		WebhookWorkerCount: getEnvAsInt("WEBHOOK_WORKER_COUNT", 2),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "booking.events"),
	}
}

// BusinessLocation resolves the configured business timezone, falling back to UTC.
func (c *Config) BusinessLocation() *time.Location {
	if c == nil || strings.TrimSpace(c.BusinessTimezone) == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.BusinessTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
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

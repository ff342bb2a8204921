package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Env    string
	Port   string
	JWTKey string

	DBDriver   string
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string

	TelebirrBaseURL            string
	TelebirrWebBaseURL         string
	TelebirrFabricAppID        string
	TelebirrAppSecret          string
	TelebirrMerchantAppID      string
	TelebirrMerchantCode       string
	TelebirrPrivateKey         string // PEM encoded RSA private key
	TelebirrPublicKey          string // Telebirr's key for notification signatures, optional
	TelebirrNotifyURL          string
	TelebirrRedirectURL        string
	TelebirrTimeoutSeconds     int
	TelebirrPlaceholderURL     string
	TelebirrFallbackOnError    bool
	TelebirrInsecureSkipVerify bool

	SendgridAPIKey string
	EmailSender    string
	AppName        string

	RollbarToken string

	AggregateRefreshCron string
}

// AppConfig is a global variable to access configuration
var AppConfig *Config

// LoadConfig initializes configuration from environment variables or defaults
func LoadConfig() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found. Using system environment variables.")
	}

	AppConfig = &Config{
		Env:    getEnv("APP_ENV", "development"),
		Port:   getEnv("PORT", "3000"),
		JWTKey: getEnv("JWT_SECRET_KEY", "defaultSecret"),

		DBDriver:   getEnv("DB_DRIVER", "postgres"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "coursemarket"),
		DBPort:     getEnv("DB_PORT", "5432"),

		TelebirrBaseURL:            getEnv("TELEBIRR_BASE_URL", "https://developerportal.ethiotelebirr.et:38443/apiaccess/payment/gateway"),
		TelebirrWebBaseURL:         getEnv("TELEBIRR_WEB_BASE_URL", "https://developerportal.ethiotelebirr.et:38443/payment/web/paygate?"),
		TelebirrFabricAppID:        getEnv("TELEBIRR_FABRIC_APP_ID", ""),
		TelebirrAppSecret:          getEnv("TELEBIRR_APP_SECRET", ""),
		TelebirrMerchantAppID:      getEnv("TELEBIRR_MERCHANT_APP_ID", ""),
		TelebirrMerchantCode:       getEnv("TELEBIRR_MERCHANT_CODE", ""),
		TelebirrPrivateKey:         strings.ReplaceAll(getEnv("TELEBIRR_PRIVATE_KEY", ""), `\n`, "\n"),
		TelebirrPublicKey:          strings.ReplaceAll(getEnv("TELEBIRR_PUBLIC_KEY", ""), `\n`, "\n"),
		TelebirrNotifyURL:          getEnv("TELEBIRR_NOTIFY_URL", ""),
		TelebirrRedirectURL:        getEnv("TELEBIRR_REDIRECT_URL", ""),
		TelebirrTimeoutSeconds:     getEnvInt("TELEBIRR_TIMEOUT_SECONDS", 30),
		TelebirrPlaceholderURL:     getEnv("TELEBIRR_PLACEHOLDER_CHECKOUT_URL", ""),
		TelebirrFallbackOnError:    getEnvBool("TELEBIRR_FALLBACK_ON_ERROR", false),
		TelebirrInsecureSkipVerify: getEnvBool("TELEBIRR_INSECURE_SKIP_VERIFY", false),

		SendgridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		EmailSender:    getEnv("EMAIL_SENDER", "no-reply@coursemarket.local"),
		AppName:        getEnv("APP_NAME", "Course Market"),

		RollbarToken: getEnv("ROLLBAR_TOKEN", ""),

		AggregateRefreshCron: getEnv("AGGREGATE_REFRESH_CRON", ""),
	}

	// Validate critical configuration
	if AppConfig.JWTKey == "defaultSecret" {
		log.Println("Warning: Using default JWT_SECRET_KEY. Update it in your environment.")
	}
	if AppConfig.IsProduction() && AppConfig.TelebirrFabricAppID == "" {
		log.Println("Warning: Telebirr credentials are not configured. Paid checkouts will be unavailable.")
	}
}

// IsProduction reports whether the app runs in a production-like environment.
func (c *Config) IsProduction() bool {
	switch strings.ToLower(c.Env) {
	case "production", "prod", "staging":
		return true
	}
	return false
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt retrieves an environment variable as an integer or returns the default integer value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Error converting environment variable %s to int: %v", key, err)
		return defaultValue
	}
	return intValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Error converting environment variable %s to bool: %v", key, err)
		return defaultValue
	}
	return b
}

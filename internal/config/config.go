// internal/config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"sypbackend/internal/logger"
)

// Variables available everywhere
var (
	stripeSecretKey, stripeWebhookSecret, stripeAPIBase string
	baseDir                                             string
	dataDirectory                                       string
	logsDirectory                                       string

	LogFileFormat   string
	AllowedOrigin   string // For CORS
	SiteBaseURL     string // success/cancel redirects and gallery links
	SheetsWebAppURL string
	PreviewBaseURL  string
	BrandName       string
	BrandLogoURL    string

	sessionSecret   string
	metaAdminSecret string
)

//
// --- Utility Helpers ---
//

// Helper: get a setting based on ENVIRONMENT (dev or prod)
func GetEnvBasedSetting(base string) string {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}
	return os.Getenv(fmt.Sprintf("%s_%s", base, strings.ToUpper(env)))
}

// Helper: log which environment is running
func LogCurrentEnvironment() {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}

	if env == "dev" {
		logger.LogInfo("Running in development environment")
	} else {
		logger.LogInfo("Running in production environment")
	}
}

//
// --- Loaders ---
//

// LoadEnv reads .env file
func LoadEnv() {
	wd, err := os.Getwd()
	if err != nil {
		log.Printf("Could not determine working directory: %v", err)
	} else {
		log.Printf("Current working directory: %s", wd)
	}

	err = godotenv.Load(".env")
	if err != nil {
		log.Printf("No .env file found in %s. Using system environment variables.", wd)
	} else {
		log.Printf("Loaded environment variables from .env file in %s", wd)
	}
}

// LoggerConfig returns a logger.Config struct populated from environment
func LoggerConfig() logger.Config {
	logDir := GetEnvBasedSetting("LOGS_DIRECTORY")
	if logDir == "" {
		logDir = "./logs"
	}

	logFormat := GetEnvBasedSetting("LOG_FILE_FORMAT")
	if logFormat == "" {
		logFormat = "./logs/server_%s.log"
	}

	timezone := os.Getenv("TIME_ZONE")
	if timezone == "" {
		timezone = "Local"
	}

	return logger.Config{
		LogsDirectory: logDir,
		LogFileFormat: logFormat,
		TimeZone:      timezone,
	}
}

// ConfigurePaths sets up folders and paths
func ConfigurePaths() {
	wd, err := os.Getwd()
	if err != nil {
		logger.LogFatal("Failed to get working directory: %v", err)
	}
	baseDir = wd

	dataDir := GetEnvBasedSetting("DATA_DIRECTORY")
	if dataDir != "" {
		dataDirectory = dataDir
	} else {
		dataDirectory = filepath.Join(baseDir, "../data")
	}

	logsDir := GetEnvBasedSetting("LOGS_DIRECTORY")
	if logsDir != "" {
		logsDirectory = logsDir
	} else {
		logsDirectory = filepath.Join(baseDir, "../logs")
	}

	LogFileFormat = filepath.Join(logsDirectory, "server_%s.log")
}

// LoadStripeConfig sets up Stripe credentials
func LoadStripeConfig() error {
	stripeSecretKey = os.Getenv("STRIPE_SECRET_KEY")
	if stripeSecretKey == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY is missing")
	}

	stripeWebhookSecret = os.Getenv("STRIPE_WEBHOOK_SECRET")
	if stripeWebhookSecret == "" {
		logger.LogWarn("STRIPE_WEBHOOK_SECRET is not set; webhook deliveries will be rejected")
	}

	stripeAPIBase = os.Getenv("STRIPE_API_BASE")
	if stripeAPIBase == "" {
		stripeAPIBase = "https://api.stripe.com"
	}

	if strings.HasPrefix(stripeSecretKey, "sk_live_") {
		logger.LogInfo("Using Stripe live mode")
	} else {
		logger.LogInfo("Using Stripe test mode")
	}

	return nil
}

// LoadCORSConfig loads CORS settings
func LoadCORSConfig() {
	AllowedOrigin = GetEnvBasedSetting("ALLOWED_ORIGIN")
	if AllowedOrigin == "" {
		AllowedOrigin = "*" // Allow all - be careful in prod
		logger.LogWarn("ALLOWED_ORIGIN not set, using '*' (allow all origins) - SECURITY RISK")
	} else {
		logger.LogInfo("Allowed Origin: %s", AllowedOrigin)
	}
}

// LoadSiteConfig loads the public site URL and branding settings
func LoadSiteConfig() {
	SiteBaseURL = os.Getenv("SITE_BASE_URL")
	if SiteBaseURL == "" {
		SiteBaseURL = "https://scottymkerphotos.com"
		logger.LogWarn("SITE_BASE_URL not set, using default: %s", SiteBaseURL)
	} else {
		logger.LogInfo("Site base URL: %s", SiteBaseURL)
	}
	SiteBaseURL = strings.TrimRight(SiteBaseURL, "/")

	SheetsWebAppURL = os.Getenv("SHEETS_WEBAPP_URL")
	if SheetsWebAppURL == "" {
		logger.LogWarn("SHEETS_WEBAPP_URL not set; orders will not be forwarded to the sheet")
	}

	PreviewBaseURL = strings.TrimRight(os.Getenv("PREVIEW_BASE_URL"), "/")
	if PreviewBaseURL == "" {
		PreviewBaseURL = SiteBaseURL + "/previews"
	}

	BrandName = os.Getenv("BRAND_NAME")
	if BrandName == "" {
		BrandName = "Scott Ymker Photography"
	}
	BrandLogoURL = os.Getenv("BRAND_LOGO_URL")
}

// LoadSecretsConfig loads signing secrets for gallery sessions and admin access
func LoadSecretsConfig() error {
	sessionSecret = os.Getenv("SESSION_SECRET")
	if sessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is missing")
	}

	metaAdminSecret = os.Getenv("META_ADMIN_SECRET")
	if metaAdminSecret == "" {
		logger.LogWarn("META_ADMIN_SECRET is not set; admin metadata endpoints are disabled")
	}

	return nil
}

//
// --- Getters (exported) ---
//

func DataDirectory() string {
	return dataDirectory
}

func LogsDirectory() string {
	return logsDirectory
}

func StripeAPIBase() string {
	return stripeAPIBase
}

func StripeSecretKey() string {
	return stripeSecretKey
}

func StripeWebhookSecret() string {
	return stripeWebhookSecret
}

func SessionSecret() string {
	return sessionSecret
}

func MetaAdminSecret() string {
	return metaAdminSecret
}

// SetStripeAPIBase overrides the Stripe endpoint, used by tests with a local mock.
func SetStripeAPIBase(base string) {
	stripeAPIBase = base
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables read on top of the config files.
const (
	EnvAPIURL          = "CONTRACTDESK_API_URL"
	EnvRelayURL        = "CONTRACTDESK_RELAY_URL"
	EnvLogFile         = "CONTRACTDESK_LOG_FILE"
	EnvLogLevel        = "CONTRACTDESK_LOG_LEVEL"
	EnvProcessingDelay = "CONTRACTDESK_PROCESSING_DELAY"
	EnvClientID        = "AZURE_AD_CLIENT_ID"
	EnvTenantID        = "AZURE_AD_TENANT_ID"
	EnvRedirectURI     = "AZURE_AD_REDIRECT_URI"
)

// LoadDotEnv loads .env from the working directory when present. Variables
// already set in the environment win.
func LoadDotEnv() {
	_ = godotenv.Load()
}

// ApplyEnv overlays environment variables onto cfg. Values still holding an
// unsubstituted {{ placeholder }} count as unset.
func ApplyEnv(cfg Config) Config {
	set := func(dst *string, key string) {
		if v := getEnv(key, ""); v != "" {
			*dst = v
		}
	}
	set(&cfg.APIURL, EnvAPIURL)
	set(&cfg.RelayURL, EnvRelayURL)
	set(&cfg.LogFile, EnvLogFile)
	set(&cfg.LogLevel, EnvLogLevel)
	set(&cfg.ProcessingDelay, EnvProcessingDelay)
	set(&cfg.AzureAD.ClientID, EnvClientID)
	set(&cfg.AzureAD.TenantID, EnvTenantID)
	set(&cfg.AzureAD.RedirectURI, EnvRedirectURI)
	if cfg.AzureAD.TenantID == "" {
		cfg.AzureAD.TenantID = "common"
	}
	return cfg
}

// Clean trims v and blanks deployment placeholders such as "{{CLIENT_ID}}".
func Clean(v string) string {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "{{") && strings.HasSuffix(v, "}}") {
		return ""
	}
	return v
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		if v := Clean(value); v != "" {
			return v
		}
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

// Relay configures `contractdesk serve`.
type Relay struct {
	Port            string
	FunctionAppURL  string
	StaticDir       string
	UpstreamTimeout time.Duration
	MaxUploadMemory int64 // bytes of a multipart upload held in memory
	CompareCacheTTL time.Duration
	LogFile         string
}

// LoadRelay reads the relay settings from the environment (and .env).
func LoadRelay() Relay {
	LoadDotEnv()
	return Relay{
		Port:            getEnv("PORT", "8080"),
		FunctionAppURL:  getEnv("FUNCTION_APP_URL", ""),
		StaticDir:       getEnv("STATIC_DIR", "build"),
		UpstreamTimeout: getEnvAsDuration("UPSTREAM_TIMEOUT", 180*time.Second),
		MaxUploadMemory: int64(getEnvAsInt("MAX_UPLOAD_MEMORY_MB", 64)) << 20,
		CompareCacheTTL: getEnvAsDuration("COMPARE_CACHE_TTL", 0),
		LogFile:         getEnv("LOG_FILE", "contractdesk-relay.log"),
	}
}

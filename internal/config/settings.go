// Package config loads process settings from the environment and the
// per-flow task documents from YAML.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Settings are the process-wide knobs read from the environment.
type Settings struct {
	LogLevel  string
	ConfigDir string

	VaultAddr       string
	VaultToken      string
	VaultAuthMethod string
	VaultCACert     string
	VaultClientCert string
	VaultClientKey  string
	VaultNamespace  string

	// SSLCertFile is the CA bundle used for object storage and postgres TLS.
	SSLCertFile string

	PushgatewayURL string

	StaleAfterDays       int
	AlertLookbackDays    int
	ActivityLookbackDays int
}

// LoadSettings reads .env files (ENV_FILE, else .env.local then .env) and
// then the environment.
func LoadSettings() (*Settings, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}
	return &Settings{
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		ConfigDir:            getEnv("ETL_CONFIG_DIR", "configs/flows"),
		VaultAddr:            getEnv("VAULT_ADDR", ""),
		VaultToken:           getEnv("VAULT_TOKEN", ""),
		VaultAuthMethod:      getEnv("VAULT_AUTH_METHOD", "token"),
		VaultCACert:          getEnv("VAULT_CACERT", ""),
		VaultClientCert:      getEnv("VAULT_CLIENT_CERT", ""),
		VaultClientKey:       getEnv("VAULT_CLIENT_KEY", ""),
		VaultNamespace:       getEnv("VAULT_NAMESPACE", ""),
		SSLCertFile:          getEnv("SSL_CERT_FILE", ""),
		PushgatewayURL:       getEnv("PUSHGATEWAY_URL", ""),
		StaleAfterDays:       getEnvInt("STALE_AFTER_DAYS", 30),
		AlertLookbackDays:    getEnvInt("ALERT_LOOKBACK_DAYS", 7),
		ActivityLookbackDays: getEnvInt("ACTIVITY_LOOKBACK_DAYS", 45),
	}, nil
}

func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}
	for _, f := range []string{".env.local", ".env"} {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

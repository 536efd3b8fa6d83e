// Package config loads runtime configuration from the environment.
package config

import (
	"os"
	"strconv"
)

type Config struct {
	ProjectID  string // default GCP project for bucket and identity operations
	Region     string // default AWS region
	StateFile  string // provisioned resource records; empty keeps state in memory
	VaultDir   string // directory-backed secret store; empty disables secret lookups
	LogLevel   string // debug|info|warn|error
	MaxWorkers int    // concurrent provision operations
}

func Load() *Config {
	cfg := &Config{
		ProjectID:  getEnv("GCP_PROJECT_ID", ""),
		Region:     getEnv("AWS_REGION", "us-east-1"),
		StateFile:  getEnv("PROVISION_STATE_FILE", ""),
		VaultDir:   getEnv("PROVISION_VAULT_DIR", ""),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		MaxWorkers: getEnvInt("PROVISION_MAX_WORKERS", 8),
	}
	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

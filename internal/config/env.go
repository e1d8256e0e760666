package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadEnvFiles loads .env files from the working directory and the user's
// config dirs. Variables already present in the environment win.
func LoadEnvFiles() error {
	envPaths := []string{
		"./.env",
	}

	if home, err := os.UserHomeDir(); err == nil {
		envPaths = append(envPaths,
			filepath.Join(home, ".moneychat", ".env"),
			filepath.Join(home, ".config", "moneychat", ".env"),
		)
	}

	for _, path := range envPaths {
		if _, err := os.Stat(path); err == nil {
			if err := loadEnvFile(path); err != nil {
				return err
			}
		}
	}

	return nil
}

func loadEnvFile(path string) error {
	return godotenv.Load(path)
}

func GetEnvDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

var envAliases = map[string][]string{
	"MONEYCHAT_LLM_PROVIDERS_GEMINI_API_KEY":     {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"MONEYCHAT_LLM_PROVIDERS_OPENAI_API_KEY":     {"OPENAI_API_KEY"},
	"MONEYCHAT_LLM_PROVIDERS_OPENROUTER_API_KEY": {"OPENROUTER_API_KEY"},
	"MONEYCHAT_SECURITY_JWT_SECRET":              {"MONEYCHAT_JWT_SECRET", "JWT_SECRET"},
	"MONEYCHAT_SECURITY_ADMIN_PASSWORD":          {"MONEYCHAT_ADMIN_PASSWORD"},
}

func ResolveEnvWithAliases(canonicalKey string) string {
	if val := os.Getenv(canonicalKey); val != "" {
		return val
	}

	if aliases, ok := envAliases[canonicalKey]; ok {
		for _, alias := range aliases {
			if val := os.Getenv(alias); val != "" {
				return val
			}
		}
	}

	return ""
}

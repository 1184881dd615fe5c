package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Config holds environment-sourced settings. Command-line flags parsed in
// main take precedence over these.
type Config struct {
	APIListenAddr string
	WSListenAddr  string
	MediaRoot     string
	LogLevel      string
}

// Load reads configuration from environment variables, honoring a local
// .env file when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		APIListenAddr: getEnv("API_LISTEN_ADDR", ":8080"),
		WSListenAddr:  getEnv("WS_LISTEN_ADDR", ":8888"),
		MediaRoot:     getEnv("MEDIA_ROOT", "./media"),
		LogLevel:      getEnv("LOG_LEVEL", "debug"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

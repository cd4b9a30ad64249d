// Package config resolves defaults from the environment and an optional .env file.
// Command-line flags override everything here.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the tracker defaults.
type Config struct {
	WorkDir     string
	Cache       string
	DatabaseURL string

	DetectorCommand []string
	DetectorSocket  string
	Threshold       float64

	Stride   int
	Smoother string
	Window   int
	Order    int
	Sigma    float64
	Workers  int
}

// LoadEnv loads the given .env files (".env" when none) into the process
// environment. Missing files are not an error; existing variables win.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads the configuration from REFRAME_* variables.
func Load() *Config {
	return &Config{
		WorkDir:     getEnv("REFRAME_WORK_DIR", "work"),
		Cache:       getEnv("REFRAME_CACHE", "file"),
		DatabaseURL: databaseURL(),

		DetectorCommand: strings.Fields(getEnv("REFRAME_DETECTOR_CMD", "python3 -u python/detector.py")),
		DetectorSocket:  getEnv("REFRAME_DETECTOR_SOCKET", ""),
		Threshold:       getEnvFloat("REFRAME_THRESHOLD", 0.5),

		Stride:   getEnvInt("REFRAME_STRIDE", 1),
		Smoother: getEnv("REFRAME_SMOOTHER", "savgol"),
		Window:   getEnvInt("REFRAME_WINDOW", 11),
		Order:    getEnvInt("REFRAME_ORDER", 3),
		Sigma:    getEnvFloat("REFRAME_SIGMA", 2),
		Workers:  getEnvInt("REFRAME_WORKERS", min(runtime.NumCPU(), 4)),
	}
}

// databaseURL prefers REFRAME_DATABASE_URL, then builds one from the
// POSTGRES_* variables, then falls back to a local default.
func databaseURL() string {
	if url := os.Getenv("REFRAME_DATABASE_URL"); url != "" {
		return url
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		name := os.Getenv("POSTGRES_DB")
		port := getEnv("POSTGRES_PORT", "5432")
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
	}
	return "postgres://localhost:5432/reframe"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intValue int
		if _, err := fmt.Sscanf(value, "%d", &intValue); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%g", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

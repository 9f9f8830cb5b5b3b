package config

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// envFiles are read from the working directory before ${VAR} expansion.
var envFiles = []string{".env", ".env.local"}

// loadEnvFiles loads the env files that exist. Variables already present in
// the process environment win, so secrets injected by the host are never
// shadowed by a stale file.
func loadEnvFiles() {
	for _, name := range envFiles {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			slog.Warn("Could not load env file", slog.String("file", name), slog.String("error", err.Error()))
			continue
		}
		slog.Debug("Loaded environment variables", slog.String("file", name))
	}
}

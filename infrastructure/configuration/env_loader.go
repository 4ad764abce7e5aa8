package configuration

import (
	"errors"
	"io/fs"

	"linkhealth/infrastructure/logger"

	"github.com/joho/godotenv"
)

// LoadEnvFromFile loads KEY=VALUE pairs from each existing file (e.g., config.env, .env).
// Variables already present in the environment are not overridden.
func LoadEnvFromFile(paths ...string) {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				logger.GetLogger().WithField("file", p).WithField("error", err).Warn("Failed to parse env file")
			}
			continue
		}
		logger.GetLogger().WithField("file", p).Info("Loaded env file")
	}
}

package config

import (
	"errors"
	"io/fs"
	"path/filepath"

	"github.com/joho/godotenv"
)

// DotEnvFiles returns the .env files consulted by LoadDotEnv, in priority
// order: the working directory first, then the config directory.
func DotEnvFiles() []string {
	return []string{".env", filepath.Join(ConfigDir(), ".env")}
}

// LoadDotEnv loads IB_* variables from .env files into the process
// environment. Variables already set in the environment win, and so does the
// first file that defines a variable. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = DotEnvFiles()
	}

	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

package daemonrun

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// dotEnvDepth bounds how many parent directories are searched.
const dotEnvDepth = 5

// LoadDotEnv loads the nearest .env file from the working directory or one
// of its parents. Variables already set in the environment win. It returns
// the loaded path, or "" when none was found.
func LoadDotEnv() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for i := 0; i < dotEnvDepth; i++ {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				return ""
			}
			return envPath
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
	return ""
}

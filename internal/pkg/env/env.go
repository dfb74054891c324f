package env

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

var Env map[string]string

// GetEnv returns the value for key from the loaded .env file, then the
// process environment, then the given default.
func GetEnv(key, def string) string {
	if val, ok := Env[key]; ok {
		return val
	}
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// SetupEnvFile loads the first .env file found near the binary. Containerized
// deployments usually carry no .env at all and configure everything through
// the process environment, so a missing file is fine.
func SetupEnvFile() {
	envFiles := []string{
		".env",          // project root / working directory
		"../../.env",    // from cmd/immofox
		"../../../.env", // deeper nesting
	}

	var err error
	for _, envFile := range envFiles {
		Env, err = godotenv.Read(envFile)
		if err == nil {
			return
		}
	}

	Env = map[string]string{}
	log.Println("no .env file found, relying on process environment")
}

func IsDev() bool {
	return GetEnv("APP_ENV", "prod") == "dev"
}

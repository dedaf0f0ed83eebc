package secrets

import (
	"context"
	"errors"
	"os"
	"strings"
)

// Well-known secret keys.
const (
	KeySessionSecret         = "session-secret"
	KeyDialogflowCredentials = "dialogflow-credentials"
	KeyRedisPassword         = "redis-password"
	KeyDBPassword            = "db-password"
)

var ErrSecretNotFound = errors.New("secret not found")

// Source provides access to secrets
type Source interface {
	// GetSecret retrieves a secret by key
	GetSecret(ctx context.Context, key string) (string, error)

	// GetSecretWithDefault retrieves a secret with a default value if not found
	GetSecretWithDefault(ctx context.Context, key, defaultValue string) string
}

// EnvKey maps a secret key such as "dialogflow-credentials" to DIALOGFLOW_CREDENTIALS.
func EnvKey(key string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))
}

func fromEnvironment(key string) (string, error) {
	value := strings.TrimSpace(os.Getenv(EnvKey(key)))
	if value == "" {
		return "", ErrSecretNotFound
	}
	return value, nil
}

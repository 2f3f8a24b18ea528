package clientstate

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"

	"gadgethost/internal/config"
	"gadgethost/pkg/logging"
)

// SecretAccessor returns the payload of a secret version.
type SecretAccessor func(ctx context.Context, name string) ([]byte, error)

// ResolveSecret returns the client state secret. When SecretRef is set the
// secret is read through access; otherwise the inline Secret is used.
func ResolveSecret(ctx context.Context, cfg config.ClientStateConfig, access SecretAccessor) (string, error) {
	if cfg.SecretRef == "" {
		return cfg.Secret, nil
	}
	if access == nil {
		access = AccessSecretManager
	}
	data, err := access(ctx, cfg.SecretRef)
	if err != nil {
		return "", err
	}
	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return "", fmt.Errorf("secret %s is empty", cfg.SecretRef)
	}
	logging.Info("ClientState", "Loaded client state secret from %s", cfg.SecretRef)
	return secret, nil
}

// AccessSecretManager reads a Google Secret Manager version, e.g.
// projects/p/secrets/gadgethost-state/versions/latest, using application
// default credentials.
func AccessSecretManager(ctx context.Context, name string) ([]byte, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
	}
	defer client.Close()

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access secret %s: %w", name, err)
	}
	return result.Payload.Data, nil
}

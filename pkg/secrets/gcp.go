package secrets

import (
	"context"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	gax "github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/eventrelay/eventrelay/pkg/errors"
)

// backend is the slice of the Secret Manager API the store depends on.
// Tests substitute a fake; production uses *secretmanager.Client.
type backend interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.SecretVersion, error)
	Close() error
}

// Manager is a Store backed by Google Secret Manager.
type Manager struct {
	client    backend
	projectID string
	logger    *zap.Logger
}

// NewManager creates a Secret Manager backed store for the given project.
func NewManager(ctx context.Context, projectID string, logger *zap.Logger, opts ...option.ClientOption) (*Manager, error) {
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSecretUnavailable, "failed to create secret manager client")
	}

	return &Manager{
		client:    client,
		projectID: projectID,
		logger:    logger.With(zap.String("component", "secrets")),
	}, nil
}

// newManagerWithBackend wires an explicit backend; used by tests.
func newManagerWithBackend(client backend, projectID string, logger *zap.Logger) *Manager {
	return &Manager{
		client:    client,
		projectID: projectID,
		logger:    logger.With(zap.String("component", "secrets")),
	}
}

// Get returns the latest version of the named secret. Placeholder or empty
// values fail with a secret_invalid error; backend failures and missing
// keys fail with secret_unavailable.
func (m *Manager) Get(ctx context.Context, name string) (string, error) {
	path := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", m.projectID, name)
	m.logger.Debug("fetching secret", zap.String("path", path))

	resp, err := m.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: path,
	})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeSecretUnavailable,
			fmt.Sprintf("failed to access secret %q", name))
	}

	return validate(name, string(resp.GetPayload().GetData()))
}

// Set appends a new version of the named secret. The append keeps every
// prior version intact, so a failed write never destroys the previous
// watermark.
func (m *Manager) Set(ctx context.Context, name, value string) error {
	parent := fmt.Sprintf("projects/%s/secrets/%s", m.projectID, name)
	m.logger.Debug("adding secret version", zap.String("parent", parent))

	_, err := m.client.AddSecretVersion(ctx, &secretmanagerpb.AddSecretVersionRequest{
		Parent: parent,
		Payload: &secretmanagerpb.SecretPayload{
			Data: []byte(value),
		},
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeSecretWrite,
			fmt.Sprintf("failed to add version to secret %q", name))
	}

	return nil
}

// Close releases the underlying API client.
func (m *Manager) Close() error {
	return m.client.Close()
}

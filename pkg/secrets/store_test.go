package secrets

import (
	"context"
	"fmt"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	gax "github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eventrelay/eventrelay/pkg/errors"
)

// fakeBackend keeps secrets in memory, one version list per name, keyed by
// the full resource path the manager builds.
type fakeBackend struct {
	values   map[string][]string
	writeErr error
	accessed []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{values: map[string][]string{}}
}

func (f *fakeBackend) put(project, name, value string) {
	key := fmt.Sprintf("projects/%s/secrets/%s", project, name)
	f.values[key] = append(f.values[key], value)
}

func (f *fakeBackend) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.accessed = append(f.accessed, req.Name)

	parent, ok := trimLatest(req.Name)
	if !ok {
		return nil, fmt.Errorf("unexpected version path %q", req.Name)
	}
	versions, ok := f.values[parent]
	if !ok || len(versions) == 0 {
		return nil, fmt.Errorf("secret not found: %s", req.Name)
	}

	return &secretmanagerpb.AccessSecretVersionResponse{
		Payload: &secretmanagerpb.SecretPayload{
			Data: []byte(versions[len(versions)-1]),
		},
	}, nil
}

func (f *fakeBackend) AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.SecretVersion, error) {
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	f.values[req.Parent] = append(f.values[req.Parent], string(req.Payload.Data))
	return &secretmanagerpb.SecretVersion{}, nil
}

func (f *fakeBackend) Close() error { return nil }

func trimLatest(path string) (string, bool) {
	const suffix = "/versions/latest"
	if len(path) <= len(suffix) || path[len(path)-len(suffix):] != suffix {
		return "", false
	}
	return path[:len(path)-len(suffix)], true
}

func testManager(backend *fakeBackend) *Manager {
	return newManagerWithBackend(backend, "test-project", zap.NewNop())
}

func TestGetReturnsLatestVersion(t *testing.T) {
	backend := newFakeBackend()
	backend.put("test-project", "export-watermark", "100")
	backend.put("test-project", "export-watermark", "200")

	m := testManager(backend)
	value, err := m.Get(context.Background(), "export-watermark")
	require.NoError(t, err)
	assert.Equal(t, "200", value)
	assert.Equal(t, []string{"projects/test-project/secrets/export-watermark/versions/latest"}, backend.accessed)
}

func TestGetMissingSecret(t *testing.T) {
	m := testManager(newFakeBackend())

	_, err := m.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSecretUnavailable))
}

func TestGetRejectsPlaceholder(t *testing.T) {
	backend := newFakeBackend()
	backend.put("test-project", "write-key", Placeholder)

	m := testManager(backend)
	_, err := m.Get(context.Background(), "write-key")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSecretInvalid))
}

func TestGetRejectsEmptyValue(t *testing.T) {
	backend := newFakeBackend()
	backend.put("test-project", "write-key", "")

	m := testManager(backend)
	_, err := m.Get(context.Background(), "write-key")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSecretInvalid))
}

func TestSetAppendsVersion(t *testing.T) {
	backend := newFakeBackend()
	backend.put("test-project", "export-watermark", "100")

	m := testManager(backend)
	require.NoError(t, m.Set(context.Background(), "export-watermark", "200"))

	// Both versions survive; Get sees the newest.
	assert.Equal(t, []string{"100", "200"}, backend.values["projects/test-project/secrets/export-watermark"])

	value, err := m.Get(context.Background(), "export-watermark")
	require.NoError(t, err)
	assert.Equal(t, "200", value)
}

func TestSetWriteFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.writeErr = fmt.Errorf("permission denied")

	m := testManager(backend)
	err := m.Set(context.Background(), "export-watermark", "200")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSecretWrite))
}

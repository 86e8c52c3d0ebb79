// Package secrets provides the checkpoint/secret store client. The store
// holds three named slots: the source read token, the sink write key, and
// the export watermark. Values are fetched per use and never logged.
package secrets

import (
	"context"

	"github.com/eventrelay/eventrelay/pkg/errors"
)

// Placeholder is the sentinel a freshly provisioned slot carries before an
// operator sets a real value. Reading it back is an error, never a value.
const Placeholder = "<default_value>"

// Store is the checkpoint/secret store contract. Get returns the latest
// version of a named value; Set appends a new version so a failed write can
// never destroy the prior one.
type Store interface {
	Get(ctx context.Context, name string) (string, error)
	Set(ctx context.Context, name, value string) error
}

// validate rejects unset or placeholder values so callers never see them.
func validate(name, value string) (string, error) {
	if value == "" {
		return "", errors.Newf(errors.ErrorTypeSecretInvalid, "secret %q is an empty string", name)
	}
	if value == Placeholder {
		return "", errors.Newf(errors.ErrorTypeSecretInvalid, "secret %q is using a default value", name)
	}
	return value, nil
}

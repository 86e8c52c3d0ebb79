package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetFallsBackAfterFailedInit(t *testing.T) {
	// A bad level fails Init and consumes the once.
	require.Error(t, Init(Config{Level: "shouting"}))

	// Get must still hand back a usable logger instead of nil.
	log := Get()
	require.NotNil(t, log)
	log.Info("fallback logger is usable")

	assert.NotNil(t, With())
}

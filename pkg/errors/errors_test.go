package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainError_ErrorIncludesCauseAndContext(t *testing.T) {
	err := NewSpawnError("failed to start process", fmt.Errorf("exec: not found")).
		WithContext("unit", "Worker").
		WithContext("dir", "/srv")

	assert.Equal(t, "spawn: failed to start process: exec: not found [dir=/srv, unit=Worker]", err.Error())
}

func TestDomainError_IsMatchesByType(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewNotRunningError("unit is stopped", nil))

	assert.True(t, errors.Is(err, &DomainError{Type: ErrorTypeNotRunning}))
	assert.False(t, errors.Is(err, &DomainError{Type: ErrorTypeAlreadyRunning}))
	assert.True(t, IsNotRunningError(err))
	assert.Equal(t, ErrorTypeNotRunning, TypeOf(err))
	assert.Equal(t, ErrorType(""), TypeOf(errors.New("plain")))
}

func TestDomainError_UnwrapReachesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := NewIOError("failed to write units file", cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, IsIOError(err))
	assert.False(t, IsConfigUnreadableError(err))
}

func TestDomainError_HelpersSeeEveryTypeInTheChain(t *testing.T) {
	inner := NewValidationError("command line is required", nil)
	err := fmt.Errorf("starting: %w", NewSpawnError("invalid execution configuration", inner))

	assert.True(t, IsSpawnError(err))
	assert.True(t, IsValidationError(err))
	assert.False(t, IsNotFoundError(err))

	// The outermost type decides how callers classify the failure
	assert.Equal(t, ErrorTypeSpawn, TypeOf(err))
}

func TestErrorCollection(t *testing.T) {
	c := NewErrorCollection()
	require.NoError(t, c.ToError())

	c.Add(nil)
	assert.False(t, c.HasErrors())

	c.Add(NewPollError("status 500", nil))
	c.Add(NewTimeoutError("stop timed out", nil))

	err := c.ToError()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 errors occurred")
	assert.Contains(t, err.Error(), "poll: status 500")
	assert.Contains(t, err.Error(), "timeout: stop timed out")
}

package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameworkErrorWrapsSentinel(t *testing.T) {
	err := NewFrameworkError("manager.Dispatch", "skill", ErrUnknownSkill).WithID("task-1")

	assert.True(t, errors.Is(err, ErrUnknownSkill))
	assert.Equal(t, "manager.Dispatch [task-1]: unknown skill", err.Error())
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrOperationTimeout))
	assert.True(t, IsRetryable(ErrUpstreamFailure))
	assert.False(t, IsRetryable(ErrUnknownSkill))
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(ErrUnknownSkill))
	assert.True(t, IsTerminal(ErrMalformedTask))
	assert.False(t, IsTerminal(ErrOperationTimeout))
}

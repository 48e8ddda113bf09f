package errs

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDiscardCoversPerMessageKinds(t *testing.T) {
	assert.True(t, IsDiscard(ErrDiscardBySeverity))
	assert.True(t, IsDiscard(ErrDiscardByRatelimit))
	assert.True(t, IsDiscard(fmt.Errorf("wrapped: %w", ErrParse)))
	assert.False(t, IsDiscard(ErrQueueFull))
	assert.False(t, IsDiscard(nil))
}

func TestIsConnectionCoversPerTargetKinds(t *testing.T) {
	assert.True(t, IsConnection(ErrPeerClosed))
	assert.True(t, IsConnection(fmt.Errorf("dial: %w", ErrConnectionRefused)))
	assert.True(t, IsConnection(ErrTLSHandshake))
	assert.False(t, IsConnection(ErrDiscardBySeverity))
	assert.False(t, IsConnection(nil))
}

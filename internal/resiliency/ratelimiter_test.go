package resiliency

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cebartling/orderflow/internal/outcome"
)

func TestRateLimiterAllowsUpToBurst(t *testing.T) {
	rl := NewRateLimiter(2)

	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow())
}

func TestRateLimiterExecuteRejectsWithoutCallingOp(t *testing.T) {
	rl := NewRateLimiter(1)

	require.True(t, rl.Allow())

	called := false

	err := rl.Execute(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	})

	var failure *outcome.Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, outcome.KindRateLimited, failure.Kind)
	assert.False(t, called)
}

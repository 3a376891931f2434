package anthropic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/classify-cli/internal/resilience"
)

func TestNewClientOptions(t *testing.T) {
	c := NewClient("key",
		WithModel("claude-sonnet-4-5-20250929"),
		WithMaxTokens(512),
		WithTimeout(5*time.Second),
		WithRateLimit(2.0),
	).(*sdkClient)

	assert.Equal(t, "claude-sonnet-4-5-20250929", c.model)
	assert.Equal(t, int64(512), c.maxTokens)
	assert.Equal(t, 5*time.Second, c.timeout)
	require.NotNil(t, c.limiter)
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient("key").(*sdkClient)
	assert.Equal(t, "claude-haiku-4-5-20251001", c.model)
	assert.Equal(t, int64(2048), c.maxTokens)
	assert.Nil(t, c.limiter, "rate limiting is opt-in")
}

func TestClassifyError_Timeout(t *testing.T) {
	err := classifyError(context.DeadlineExceeded)
	assert.True(t, resilience.IsTransient(err), "timeouts follow the transient retry policy")
}

func TestClassifyError_HardError(t *testing.T) {
	err := classifyError(errors.New("invalid x-api-key"))
	assert.False(t, resilience.IsTransient(err))
}

func TestCompleteRespectsCancelledContext(t *testing.T) {
	c := NewClient("key", WithRateLimit(0.001)).(*sdkClient)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Complete(ctx, CompletionRequest{System: "s", User: "u"})
	require.Error(t, err)
}

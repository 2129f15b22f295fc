package circuit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBreakerStartsClosed(t *testing.T) {
	b := New("audit-kafka")
	assert.Equal(t, "audit-kafka", b.Name())
	assert.Equal(t, StateClosed, b.State())
	assert.False(t, b.IsOpen())
}

func TestBreakerOpensOnConsecutiveFailures(t *testing.T) {
	b := New("audit-kafka", WithFailureThreshold(3))

	for i := 0; i < 2; i++ {
		fallback, change := b.RecordFailure()
		require.False(t, fallback, "failure %d", i+1)
		require.False(t, change.Opened)
	}
	fallback, change := b.RecordFailure()
	assert.True(t, fallback)
	assert.True(t, change.Opened)
	assert.True(t, b.IsOpen())

	t.Run("further failures report no new transition", func(t *testing.T) {
		fallback, change := b.RecordFailure()
		assert.True(t, fallback)
		assert.Equal(t, StateChange{}, change)
	})
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := New("audit-kafka", WithFailureThreshold(2))

	b.RecordFailure()
	primary, change := b.RecordSuccess()
	assert.True(t, primary)
	assert.Equal(t, StateChange{}, change)

	fallback, _ := b.RecordFailure()
	assert.False(t, fallback, "count restarted after a success")
	assert.False(t, b.IsOpen())
}

func TestBreakerClosesAfterSuccessThreshold(t *testing.T) {
	b := New("audit-kafka", WithFailureThreshold(1), WithSuccessThreshold(2))
	b.RecordFailure()
	require.True(t, b.IsOpen())

	primary, change := b.RecordSuccess()
	assert.False(t, primary)
	assert.False(t, change.Closed)

	t.Run("a failure while half-recovered restarts the success count", func(t *testing.T) {
		b.RecordFailure()
		primary, _ := b.RecordSuccess()
		assert.False(t, primary)
	})

	primary, change = b.RecordSuccess()
	assert.True(t, primary)
	assert.True(t, change.Closed)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerIgnoresNonPositiveThresholds(t *testing.T) {
	b := New("audit-kafka", WithFailureThreshold(0), WithSuccessThreshold(-1))
	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	assert.False(t, b.IsOpen(), "default threshold of five applies")
	b.RecordFailure()
	assert.True(t, b.IsOpen())
}

func TestBreakerReset(t *testing.T) {
	b := New("audit-kafka", WithFailureThreshold(1))
	b.RecordFailure()
	require.True(t, b.IsOpen())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	fallback, _ := b.RecordFailure()
	assert.True(t, fallback, "threshold of one opens again immediately")
}

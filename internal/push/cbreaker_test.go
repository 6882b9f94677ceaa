package push

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerStartsClosed(t *testing.T) {
	b := NewMicroBreaker(3, 50*time.Millisecond)
	assert.True(t, b.TryAcquire())
	assert.True(t, b.TryAcquire())
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewMicroBreaker(2, time.Minute)
	b.OnFailure()
	assert.True(t, b.TryAcquire(), "one failure is below threshold")
	b.OnFailure()
	assert.False(t, b.TryAcquire(), "threshold reached, breaker must open")
}

func TestBreakerAdmitsSingleProbeAfterOpenFor(t *testing.T) {
	b := NewMicroBreaker(1, 20*time.Millisecond)
	b.OnFailure()
	assert.False(t, b.TryAcquire())

	time.Sleep(30 * time.Millisecond)

	assert.True(t, b.TryAcquire(), "probe admitted after open window")
	assert.False(t, b.TryAcquire(), "only one probe in flight")
}

func TestBreakerClosesOnProbeSuccess(t *testing.T) {
	b := NewMicroBreaker(1, 20*time.Millisecond)
	b.OnFailure()
	time.Sleep(30 * time.Millisecond)

	assert.True(t, b.TryAcquire())
	b.OnSuccess()

	assert.True(t, b.TryAcquire())
	assert.True(t, b.TryAcquire())
}

func TestBreakerReopensOnProbeFailure(t *testing.T) {
	b := NewMicroBreaker(1, 20*time.Millisecond)
	b.OnFailure()
	time.Sleep(30 * time.Millisecond)

	assert.True(t, b.TryAcquire())
	b.OnFailure()

	assert.False(t, b.TryAcquire(), "failed probe reopens the breaker")
}

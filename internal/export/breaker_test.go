package export

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b := NewBreaker(3, time.Minute, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	assert.False(t, b.Open())

	b.RecordFailure()
	assert.True(t, b.Open())
}

func TestBreaker_SuccessResets(t *testing.T) {
	b := NewBreaker(2, time.Minute, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	assert.True(t, b.Open())

	b.RecordSuccess()
	assert.False(t, b.Open())

	// history is cleared, one failure is below threshold again
	b.RecordFailure()
	assert.False(t, b.Open())
}

func TestBreaker_OldFailuresExpire(t *testing.T) {
	b := NewBreaker(2, 10*time.Millisecond, time.Minute)

	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	b.RecordFailure()
	assert.False(t, b.Open())
}

func TestBreaker_NilIsSafe(t *testing.T) {
	var b *Breaker
	b.RecordFailure()
	b.RecordSuccess()
	assert.False(t, b.Open())
}

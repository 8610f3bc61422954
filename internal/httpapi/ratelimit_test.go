package httpapi

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiterBurstThenRefill(t *testing.T) {
	now := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	l := newLimiter(1, 2)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("s1"))
	assert.True(t, l.allow("s1"))
	assert.False(t, l.allow("s1"))
	assert.True(t, l.allow("s2"), "other sessions keep their own bucket")

	now = now.Add(time.Second)
	assert.True(t, l.allow("s1"))
}

func TestLimiterSweepsIdleVisitors(t *testing.T) {
	now := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	l := newLimiter(5, 10)
	l.now = func() time.Time { return now }

	for i := 0; i < limiterSweepSize; i++ {
		l.allow(fmt.Sprintf("s%d", i))
	}
	assert.Equal(t, limiterSweepSize, l.size())

	now = now.Add(limiterIdleTTL + time.Minute)
	assert.True(t, l.allow("fresh"))
	assert.Equal(t, 1, l.size())
}

package janitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewHealthCheckerUsesBrickDefaults(t *testing.T) {
	b := openTestBrick(t)
	hc := NewHealthChecker(b)
	assert.Equal(t, 30*time.Second, hc.Interval)
	assert.Equal(t, 20*time.Second, hc.Timeout)
}

func TestProbeOnceSucceedsAndClearsDegraded(t *testing.T) {
	b := openTestBrick(t)
	b.SetDegraded(true)
	hc := NewHealthChecker(b)

	hc.probeOnce(context.Background())
	assert.False(t, b.Degraded())
}

func TestProbeOnceFlipsDegradedOnTimeout(t *testing.T) {
	b := openTestBrick(t)
	hc := &HealthChecker{Brick: b, Interval: time.Second, Timeout: time.Nanosecond}

	hc.probeOnce(context.Background())
	assert.True(t, b.Degraded(), "a cycle that cannot beat the timeout should mark the brick degraded")
}

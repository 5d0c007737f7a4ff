package delay_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wharflab/tsls/internal/delay"
)

func TestDelayerFiresAfterDelay(t *testing.T) {
	d := delay.New(10)
	var fired atomic.Bool

	d.Trigger(func() { fired.Store(true) })

	require.Eventually(t, fired.Load, time.Second, time.Millisecond)
}

func TestDelayerReplacesPendingActionAndDelay(t *testing.T) {
	d := delay.New(500)
	var calls atomic.Int32
	var lastCall atomic.Int32

	d.TriggerAfter(200*time.Millisecond, func() {
		calls.Add(1)
		lastCall.Store(1)
	})
	// Replace before the first fires, with a much shorter delay.
	d.TriggerAfter(5*time.Millisecond, func() {
		calls.Add(1)
		lastCall.Store(2)
	})

	require.Eventually(t, func() bool { return calls.Load() > 0 }, time.Second, time.Millisecond)
	time.Sleep(250 * time.Millisecond) // give the superseded timer a chance to misfire

	assert.Equal(t, int32(1), calls.Load(), "only the latest action must fire")
	assert.Equal(t, int32(2), lastCall.Load())
}

func TestDelayerActionRunsAtMostOncePerFiring(t *testing.T) {
	d := delay.New(5)
	var calls atomic.Int32

	d.Trigger(func() { calls.Add(1) })
	d.Trigger(func() { calls.Add(1) })
	d.Trigger(func() { calls.Add(1) })

	require.Eventually(t, func() bool { return calls.Load() > 0 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, int32(1), calls.Load())
}

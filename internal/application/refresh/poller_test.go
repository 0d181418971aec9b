package refresh

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTarget struct {
	n atomic.Int32
}

func (c *countingTarget) Invalidate() { c.n.Add(1) }

func TestPoller_DefaultInterval(t *testing.T) {
	assert.Equal(t, DefaultInterval, NewPoller(0).Interval())
	assert.Equal(t, 10*time.Second, DefaultInterval)
}

func TestPoller_StartsOnFirstAttachStopsOnLast(t *testing.T) {
	p := NewPoller(2 * time.Millisecond)
	assert.False(t, p.Active())

	a, b := &countingTarget{}, &countingTarget{}
	detachA := p.Attach(a)
	assert.True(t, p.Active())
	detachB := p.Attach(b)

	require.Eventually(t, func() bool { return a.n.Load() >= 2 && b.n.Load() >= 2 }, time.Second, time.Millisecond)

	detachA()
	assert.True(t, p.Active(), "one consumer left")

	detachB()
	assert.False(t, p.Active())

	// Sin consumidores no hay más ticks.
	before := b.n.Load()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, before, b.n.Load())
}

func TestPoller_DetachIsIdempotent(t *testing.T) {
	p := NewPoller(time.Hour)
	a, b := &countingTarget{}, &countingTarget{}

	detachA := p.Attach(a)
	detachB := p.Attach(b)

	detachA()
	detachA()
	assert.True(t, p.Active(), "double detach must not remove another consumer")

	detachB()
	assert.False(t, p.Active())
}

func TestPoller_RestartsAfterFullDetach(t *testing.T) {
	p := NewPoller(2 * time.Millisecond)
	a := &countingTarget{}

	p.Attach(a)()
	assert.False(t, p.Active())

	detach := p.Attach(a)
	defer detach()
	assert.True(t, p.Active())
	require.Eventually(t, func() bool { return a.n.Load() >= 1 }, time.Second, time.Millisecond)
}

package feed

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) record(v string) func() {
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls = append(r.calls, v)
	}
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func TestDebouncer_RunsOnlyLast(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := NewDebouncer(clock, 300*time.Millisecond)
	r := &recorder{}

	for _, v := range []string{"r", "re", "rea", "reac", "react"} {
		d.Trigger(r.record(v))
		clock.Advance(50 * time.Millisecond)
	}
	assert.Empty(t, r.get())

	clock.Advance(300 * time.Millisecond)
	require.Eventually(t, func() bool { return len(r.get()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"react"}, r.get())
}

func TestDebouncer_SeparateBursts(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := NewDebouncer(clock, 100*time.Millisecond)
	r := &recorder{}

	d.Trigger(r.record("a"))
	clock.Advance(100 * time.Millisecond)
	require.Eventually(t, func() bool { return len(r.get()) == 1 }, time.Second, time.Millisecond)

	d.Trigger(r.record("b"))
	clock.Advance(99 * time.Millisecond)
	assert.Len(t, r.get(), 1)
	clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return len(r.get()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, r.get())
}

func TestDebouncer_Stop(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d := NewDebouncer(clock, 100*time.Millisecond)
	r := &recorder{}

	d.Trigger(r.record("a"))
	d.Stop()
	d.Trigger(r.record("b"))
	clock.Advance(time.Second)

	// give a misfired callback a chance to run
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, r.get())
}

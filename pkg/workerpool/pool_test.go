package workerpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

func TestDefaultSize(t *testing.T) {
	p := New(0, nil)
	defer p.Close()
	assert.Greater(t, p.Size(), 0)
}

func TestSubmitRuns(t *testing.T) {
	p := New(2, nil)
	defer p.Close()

	var n atomic.Int32
	tasks := make([]*Task, 10)
	for i := range tasks {
		tasks[i] = p.Submit(func(ctx context.Context) { n.Add(1) })
	}
	for _, task := range tasks {
		task.Wait()
	}
	assert.Equal(t, int32(10), n.Load())
}

func TestSubmitIsBounded(t *testing.T) {
	p := New(2, nil)
	defer p.Close()

	release := make(chan struct{})
	var peak, current atomic.Int32
	for i := 0; i < 6; i++ {
		p.Submit(func(ctx context.Context) {
			c := current.Add(1)
			for {
				old := peak.Load()
				if c <= old || peak.CompareAndSwap(old, c) {
					break
				}
			}
			<-release
			current.Add(-1)
		})
	}

	require.Eventually(t, func() bool { return p.Running() == 2 }, waitFor, time.Millisecond)
	close(release)
	require.Eventually(t, func() bool { return p.Running() == 0 }, waitFor, time.Millisecond)
	assert.Equal(t, int32(2), peak.Load())
}

func TestGoDoesNotHoldSlot(t *testing.T) {
	p := New(1, nil)
	defer p.Close()

	loop := p.Go(func(ctx context.Context) { <-ctx.Done() })

	done := p.Submit(func(ctx context.Context) {})
	select {
	case <-done.Done():
	case <-time.After(waitFor):
		t.Fatal("submitted task starved by resident loop")
	}

	loop.Cancel()
	loop.Wait()
}

func TestCancelInterruptsBlockedTask(t *testing.T) {
	p := New(1, nil)
	defer p.Close()

	started := make(chan struct{})
	task := p.Submit(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	})
	<-started
	task.Cancel()

	select {
	case <-task.Done():
	case <-time.After(waitFor):
		t.Fatal("task did not observe cancellation")
	}
}

func TestPanicIsContained(t *testing.T) {
	p := New(1, nil)
	defer p.Close()

	p.Submit(func(ctx context.Context) { panic("boom") }).Wait()

	var ran atomic.Bool
	p.Submit(func(ctx context.Context) { ran.Store(true) }).Wait()
	assert.True(t, ran.Load())
}

func TestSchedule(t *testing.T) {
	mock := clock.NewMock()
	p := New(1, mock)
	defer p.Close()

	var fired atomic.Int32
	task := p.Schedule(5*time.Second, func(ctx context.Context) { fired.Add(1) })

	mock.Add(4 * time.Second)
	assert.Equal(t, int32(0), fired.Load())

	mock.Add(time.Second)
	task.Wait()
	assert.Equal(t, int32(1), fired.Load())
}

func TestScheduleCanceled(t *testing.T) {
	mock := clock.NewMock()
	p := New(1, mock)
	defer p.Close()

	var fired atomic.Int32
	task := p.Schedule(time.Second, func(ctx context.Context) { fired.Add(1) })
	task.Cancel()
	task.Wait()

	mock.Add(2 * time.Second)
	assert.Equal(t, int32(0), fired.Load())
}

func TestEvery(t *testing.T) {
	mock := clock.NewMock()
	p := New(1, mock)
	defer p.Close()

	var runs atomic.Int32
	task := p.Every(time.Second, func(ctx context.Context) { runs.Add(1) })

	// first run is immediate
	require.Eventually(t, func() bool { return runs.Load() == 1 }, waitFor, time.Millisecond)

	for i := 2; i <= 4; i++ {
		mock.Add(time.Second)
		want := int32(i)
		require.Eventually(t, func() bool { return runs.Load() == want }, waitFor, time.Millisecond)
	}

	task.Cancel()
	task.Wait()
	mock.Add(5 * time.Second)
	assert.Equal(t, int32(4), runs.Load())
}

func TestCloseStopsEverything(t *testing.T) {
	p := New(2, nil)

	loop := p.Go(func(ctx context.Context) { <-ctx.Done() })
	every := p.Every(time.Hour, func(ctx context.Context) {})
	p.Close()

	for _, task := range []*Task{loop, every} {
		select {
		case <-task.Done():
		default:
			t.Fatal("task still running after Close")
		}
	}

	var ran atomic.Bool
	late := p.Submit(func(ctx context.Context) { ran.Store(true) })
	late.Wait()
	assert.False(t, ran.Load())
}

// trackingClock remembers the timers and tickers handed out by a mock clock.
type trackingClock struct {
	*clock.Mock
	timers  []*clock.Timer
	tickers []*clock.Ticker
}

func (c *trackingClock) Timer(d time.Duration) *clock.Timer {
	t := c.Mock.Timer(d)
	c.timers = append(c.timers, t)
	return t
}

func (c *trackingClock) Ticker(d time.Duration) *clock.Ticker {
	t := c.Mock.Ticker(d)
	c.tickers = append(c.tickers, t)
	return t
}

func TestTimersReleasedAfterClose(t *testing.T) {
	clk := &trackingClock{Mock: clock.NewMock()}
	p := New(1, clk)
	p.Close()

	var n atomic.Int32
	scheduled := p.Schedule(time.Second, func(ctx context.Context) { n.Add(1) })
	every := p.Every(time.Second, func(ctx context.Context) { n.Add(1) })
	scheduled.Wait()
	every.Wait()

	require.Len(t, clk.timers, 1)
	require.Len(t, clk.tickers, 1)
	assert.False(t, clk.timers[0].Stop(), "timer still armed")

	clk.Add(3 * time.Second)
	select {
	case <-clk.tickers[0].C:
		t.Fatal("ticker still running")
	default:
	}
	assert.Zero(t, n.Load())
}

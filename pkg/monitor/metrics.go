package monitor

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"tarun-kavipurapu/p2p-send/pkg/logger"
)

// Direction of a finished transfer.
type Direction int

const (
	Sent Direction = iota
	Received
)

func (d Direction) String() string {
	if d == Sent {
		return "sent"
	}
	return "received"
}

// Metrics holds transfer counters for one controller
type Metrics struct {
	clock clock.Clock
	start time.Time

	bytesSent     atomic.Int64
	bytesReceived atomic.Int64
	filesSent     atomic.Int64
	filesReceived atomic.Int64
	textsSent     atomic.Int64
	textsReceived atomic.Int64
	announcements atomic.Int64
	failures      atomic.Int64
}

// Snapshot is a point in time copy of Metrics.
type Snapshot struct {
	Uptime        time.Duration
	BytesSent     int64
	BytesReceived int64
	FilesSent     int64
	FilesReceived int64
	TextsSent     int64
	TextsReceived int64
	Announcements int64
	Failures      int64
}

// New starts the uptime clock. A nil clock uses the wall clock.
func New(clk clock.Clock) *Metrics {
	if clk == nil {
		clk = clock.New()
	}
	return &Metrics{clock: clk, start: clk.Now()}
}

func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Uptime:        m.clock.Since(m.start),
		BytesSent:     m.bytesSent.Load(),
		BytesReceived: m.bytesReceived.Load(),
		FilesSent:     m.filesSent.Load(),
		FilesReceived: m.filesReceived.Load(),
		TextsSent:     m.textsSent.Load(),
		TextsReceived: m.textsReceived.Load(),
		Announcements: m.announcements.Load(),
		Failures:      m.failures.Load(),
	}
}

// Announced counts one multicast announcement sent.
func (m *Metrics) Announced() {
	m.announcements.Add(1)
}

// Failed counts one aborted transfer.
func (m *Metrics) Failed() {
	m.failures.Add(1)
}

// Transfer times one file or text transfer.
type Transfer struct {
	m     *Metrics
	dir   Direction
	file  bool
	name  string
	start time.Time
}

// StartTransfer records the start of a transfer
func (m *Metrics) StartTransfer(dir Direction, file bool, name string) *Transfer {
	return &Transfer{m: m, dir: dir, file: file, name: name, start: m.clock.Now()}
}

// Done records a completed transfer of n payload bytes and logs its speed.
func (t *Transfer) Done(n int64) {
	m := t.m
	switch {
	case t.dir == Sent && t.file:
		m.filesSent.Add(1)
	case t.dir == Sent:
		m.textsSent.Add(1)
	case t.file:
		m.filesReceived.Add(1)
	default:
		m.textsReceived.Add(1)
	}
	if t.dir == Sent {
		m.bytesSent.Add(n)
	} else {
		m.bytesReceived.Add(n)
	}

	duration := m.clock.Since(t.start).Seconds()
	var speed float64
	if duration > 0 {
		speed = float64(n) / duration / 1024 / 1024
	}
	logger.Sugar.Infof("[Transfer] %s %q | Size=%dKB | Duration=%.2fs | Speed=%.2fMB/s",
		t.dir, t.name, n/1024, duration, speed)
}

// LogPeriodic logs runtime metrics; run it with workerpool.Pool.Every.
func (m *Metrics) LogPeriodic(_ context.Context) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	s := m.Snapshot()
	var throughput float64
	if secs := s.Uptime.Seconds(); secs > 0 {
		throughput = float64(s.BytesSent+s.BytesReceived) / secs / 1024 / 1024
	}

	logger.Sugar.Infof("[Metrics] Goroutines=%d | HeapAlloc=%dMB | Throughput=%.2fMB/s | Sent=%d/%d | Received=%d/%d | Failures=%d",
		runtime.NumGoroutine(),
		ms.HeapAlloc/1024/1024,
		throughput,
		s.FilesSent, s.TextsSent,
		s.FilesReceived, s.TextsReceived,
		s.Failures,
	)
}

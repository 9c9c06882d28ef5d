package peer

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DownloadState represents the current state of a file download
type DownloadState int

const (
	DownloadActive DownloadState = iota
	DownloadCompleted
	DownloadFailed
)

// String returns a string representation of the download state
func (s DownloadState) String() string {
	switch s {
	case DownloadActive:
		return "downloading"
	case DownloadCompleted:
		return "completed"
	case DownloadFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Icon returns an icon representation of the download state
func (s DownloadState) Icon() string {
	switch s {
	case DownloadActive:
		return "↓"
	case DownloadCompleted:
		return "✓"
	case DownloadFailed:
		return "✗"
	default:
		return "?"
	}
}

// DownloadTracker tracks the progress of one file received on a transfer connection
type DownloadTracker struct {
	mu    sync.RWMutex
	clock clock.Clock

	Topic     string
	FileName  string
	FileSize  uint64
	StartTime time.Time
	EndTime   time.Time

	state           DownloadState
	pieces          uint32
	bytesDownloaded uint64

	// Speed calculation
	lastBytes    uint64
	lastTime     time.Time
	currentSpeed float64 // bytes/sec
}

// NewDownloadTracker creates a new download tracker
func NewDownloadTracker(clk clock.Clock, topic, fileName string, fileSize uint64) *DownloadTracker {
	now := clk.Now()
	return &DownloadTracker{
		clock:     clk,
		Topic:     topic,
		FileName:  fileName,
		FileSize:  fileSize,
		StartTime: now,
		lastTime:  now,
	}
}

// AddPiece records one verified piece of n bytes
func (dt *DownloadTracker) AddPiece(n int) {
	dt.mu.Lock()
	defer dt.mu.Unlock()
	dt.pieces++
	dt.bytesDownloaded += uint64(n)
}

func (dt *DownloadTracker) finish(state DownloadState) {
	dt.mu.Lock()
	defer dt.mu.Unlock()
	dt.state = state
	dt.EndTime = dt.clock.Now()
}

// Complete marks the download as finished
func (dt *DownloadTracker) Complete() { dt.finish(DownloadCompleted) }

// Fail marks the download as aborted
func (dt *DownloadTracker) Fail() { dt.finish(DownloadFailed) }

// UpdateSpeed recalculates the current download speed
func (dt *DownloadTracker) UpdateSpeed() float64 {
	dt.mu.Lock()
	defer dt.mu.Unlock()

	now := dt.clock.Now()
	elapsed := now.Sub(dt.lastTime).Seconds()
	if elapsed > 0.5 { // Update every 500ms minimum
		dt.currentSpeed = float64(dt.bytesDownloaded-dt.lastBytes) / elapsed
		dt.lastBytes = dt.bytesDownloaded
		dt.lastTime = now
	}
	return dt.currentSpeed
}

// State returns the current state
func (dt *DownloadTracker) State() DownloadState {
	dt.mu.RLock()
	defer dt.mu.RUnlock()
	return dt.state
}

// GetProgress returns pieces and bytes received so far
func (dt *DownloadTracker) GetProgress() (pieces uint32, bytes uint64) {
	dt.mu.RLock()
	defer dt.mu.RUnlock()
	return dt.pieces, dt.bytesDownloaded
}

// ProgressPercentage returns the progress percentage (0-100)
func (dt *DownloadTracker) ProgressPercentage() float64 {
	dt.mu.RLock()
	defer dt.mu.RUnlock()
	if dt.FileSize == 0 {
		if dt.state == DownloadCompleted {
			return 100
		}
		return 0
	}
	return float64(dt.bytesDownloaded) / float64(dt.FileSize) * 100
}

// GetETA estimates the remaining time, 0 when unknown
func (dt *DownloadTracker) GetETA() time.Duration {
	speed := dt.UpdateSpeed()

	dt.mu.RLock()
	defer dt.mu.RUnlock()
	if speed <= 0 || dt.bytesDownloaded >= dt.FileSize {
		return 0
	}
	return time.Duration(float64(dt.FileSize-dt.bytesDownloaded) / speed * float64(time.Second))
}

// GetElapsedTime returns time spent so far, or the total time once finished
func (dt *DownloadTracker) GetElapsedTime() time.Duration {
	dt.mu.RLock()
	defer dt.mu.RUnlock()
	if !dt.EndTime.IsZero() {
		return dt.EndTime.Sub(dt.StartTime)
	}
	return dt.clock.Since(dt.StartTime)
}

// downloadLog keeps active downloads and the most recent finished ones.
type downloadLog struct {
	limit   int
	entries []*DownloadTracker
}

func (l *downloadLog) add(dt *DownloadTracker) {
	if len(l.entries) >= l.limit {
		// drop the oldest finished entry
		for i, e := range l.entries {
			if e.State() != DownloadActive {
				l.entries = append(l.entries[:i], l.entries[i+1:]...)
				break
			}
		}
	}
	l.entries = append(l.entries, dt)
}

package main

import (
	"fmt"
	"strings"
	"time"

	"tarun-kavipurapu/p2p-send/peer"
)

const barWidth = 30

// renderDownload formats one download as a single status line
func renderDownload(dt *peer.DownloadTracker) string {
	pieces, bytes := dt.GetProgress()
	percent := dt.ProgressPercentage()

	filled := int(float64(barWidth) * percent / 100)
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	state := dt.State()
	line := fmt.Sprintf("%s [%s] %s [%s] %.1f%% %s/%s (%d pieces)",
		state.Icon(), dt.Topic, dt.FileName, bar, percent,
		formatBytes(float64(bytes)), formatBytes(float64(dt.FileSize)), pieces,
	)
	if state == peer.DownloadActive {
		line += fmt.Sprintf(" | %s/s | ETA: %s", formatBytes(dt.UpdateSpeed()), formatETA(dt.GetETA()))
	} else {
		line += fmt.Sprintf(" | %s in %s", state, formatDuration(dt.GetElapsedTime()))
	}
	return line
}

// formatBytes formats a byte count into a human-readable string
func formatBytes(bytes float64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%.1f B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", bytes/float64(div), "KMGTPE"[exp])
}

// formatETA formats an estimated time into a human-readable string
func formatETA(eta time.Duration) string {
	if eta <= 0 {
		return "∞"
	}
	return formatDuration(eta)
}

// formatDuration formats a duration into a human-readable string
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", d/time.Second)
	}
	if d < time.Hour {
		mins := d / time.Minute
		secs := (d % time.Minute) / time.Second
		return fmt.Sprintf("%dm%ds", mins, secs)
	}
	hours := d / time.Hour
	mins := (d % time.Hour) / time.Minute
	return fmt.Sprintf("%dh%dm", hours, mins)
}

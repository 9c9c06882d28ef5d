package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

func TestTransferCounters(t *testing.T) {
	mock := clock.NewMock()
	m := New(mock)

	tr := m.StartTransfer(Sent, true, "a.txt")
	mock.Add(2 * time.Second)
	tr.Done(100)
	m.StartTransfer(Sent, false, "topic").Done(5)
	m.StartTransfer(Received, true, "b.txt").Done(10)
	m.StartTransfer(Received, false, "topic").Done(3)
	m.Announced()
	m.Failed()

	s := m.Snapshot()
	assert.Equal(t, 2*time.Second, s.Uptime)
	assert.Equal(t, int64(105), s.BytesSent)
	assert.Equal(t, int64(13), s.BytesReceived)
	assert.Equal(t, int64(1), s.FilesSent)
	assert.Equal(t, int64(1), s.TextsSent)
	assert.Equal(t, int64(1), s.FilesReceived)
	assert.Equal(t, int64(1), s.TextsReceived)
	assert.Equal(t, int64(1), s.Announcements)
	assert.Equal(t, int64(1), s.Failures)

	assert.NotPanics(t, func() { m.LogPeriodic(context.Background()) })
}

func TestDirectionString(t *testing.T) {
	assert.Equal(t, "sent", Sent.String())
	assert.Equal(t, "received", Received.String())
}

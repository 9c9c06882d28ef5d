package transport

import (
	"bufio"
	"time"

	"tarun-kavipurapu/p2p-send/pkg/protocol"
)

// Node is one end of a point-to-point transfer connection.
// Writes are buffered: call Flush before waiting on a reply.
type Node interface {
	Send(p protocol.Packet) error
	Flush() error
	Reader() *bufio.Reader
	SetDeadline(t time.Time) error
	Close() error
	Addr() string
}

package tcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"tarun-kavipurapu/p2p-send/pkg/logger"
	"tarun-kavipurapu/p2p-send/pkg/protocol"
	"tarun-kavipurapu/p2p-send/pkg/transport"
)

const bufferSize = 1 << 17

// TCPNode implements transport.Node
type TCPNode struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
	lock sync.Mutex
	// TCP主动连接 outbound -> true 否则 outbound -> false
	outbound bool

	closed atomic.Bool
}

func NewTCPNode(conn net.Conn, outbound bool) *TCPNode {
	return &TCPNode{
		conn:     conn,
		r:        bufio.NewReaderSize(conn, bufferSize),
		w:        bufio.NewWriterSize(conn, bufferSize),
		outbound: outbound,
	}
}

func (n *TCPNode) Send(p protocol.Packet) error {
	n.lock.Lock()
	defer n.lock.Unlock()

	b, err := p.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", p.Kind(), err)
	}
	if _, err := n.w.Write(b); err != nil {
		return fmt.Errorf("failed to write %s: %w", p.Kind(), err)
	}
	return nil
}

func (n *TCPNode) Flush() error {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.w.Flush()
}

func (n *TCPNode) Reader() *bufio.Reader {
	return n.r
}

func (n *TCPNode) SetDeadline(t time.Time) error {
	return n.conn.SetDeadline(t)
}

func (n *TCPNode) Outbound() bool {
	return n.outbound
}

// Close may be called from another goroutine to cut off a transfer in progress.
func (n *TCPNode) Close() error {
	if !n.closed.CompareAndSwap(false, true) {
		return nil
	}
	return n.conn.Close()
}

func (n *TCPNode) Addr() string {
	return n.conn.RemoteAddr().String()
}

// Dial connects to a publisher endpoint.
func Dial(ctx context.Context, addr string, timeout time.Duration) (*TCPNode, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewTCPNode(conn, true), nil
}

// Listener is the endpoint a publisher announces; each accepted connection is
// handed to a handler as a transport.Node.
type Listener struct {
	listener net.Listener
	closed   atomic.Bool
}

// Listen opens a listening endpoint. Use ":0" for an ephemeral port.
func Listen(addr string) (*Listener, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Listener{listener: l}, nil
}

func (l *Listener) Port() int {
	return l.listener.Addr().(*net.TCPAddr).Port
}

func (l *Listener) Addr() string {
	return l.listener.Addr().String()
}

// AcceptLoop blocks accepting connections and passes each one to handle.
// Closing the listener, or canceling ctx, ends the loop with a nil error.
func (l *Listener) AcceptLoop(ctx context.Context, handle func(transport.Node)) error {
	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()

	var delay time.Duration
	for {
		conn, err := l.listener.Accept()
		if err != nil {
			if l.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				// back off like net/http on transient accept failures
				if delay == 0 {
					delay = 5 * time.Millisecond
				} else if delay *= 2; delay > time.Second {
					delay = time.Second
				}
				logger.Sugar.Warnf("[TCPTransport] accept error: listen=%s err=%v; retrying in %v", l.Addr(), err, delay)
				time.Sleep(delay)
				continue
			}
			return fmt.Errorf("accept on %s: %w", l.Addr(), err)
		}
		delay = 0
		handle(NewTCPNode(conn, false))
	}
}

func (l *Listener) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	return l.listener.Close()
}

package peer

import (
	"context"
	"net"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"tarun-kavipurapu/p2p-send/pkg/content"
	"tarun-kavipurapu/p2p-send/pkg/protocol"
	"tarun-kavipurapu/p2p-send/pkg/transport"
	"tarun-kavipurapu/p2p-send/pkg/transport/tcp"
	"tarun-kavipurapu/p2p-send/pkg/workerpool"
)

const waitFor = 5 * time.Second

func testConfig(t *testing.T) Config {
	cfg := DefaultConfig()
	cfg.DownloadPath = t.TempDir()
	cfg.DialTimeout = 2 * time.Second
	return cfg
}

// udpSocket is a loopback socket standing in for the multicast group.
func udpSocket(t *testing.T) net.PacketConn {
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// newController announces to group, or to its own socket when group is nil.
func newController(t *testing.T, cfg Config, group net.Addr, clk clock.Clock) *Controller {
	conn := udpSocket(t)
	pool := workerpool.New(8, clk)
	if group == nil {
		group = conn.LocalAddr()
	}
	c, err := NewController(cfg, pool, conn, group)
	require.NoError(t, err)
	t.Cleanup(func() {
		c.Close()
		pool.Close()
	})
	return c
}

func readAnnouncement(t *testing.T, conn net.PacketConn) *protocol.Publish {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
	buf := make([]byte, protocol.MaxPublishPacketSize)
	n, _, err := conn.ReadFrom(buf)
	require.NoError(t, err)
	pub, err := protocol.DecodePublish(buf[:n])
	require.NoError(t, err)
	return pub
}

// request connects to an announced endpoint and asks for its topic.
func request(t *testing.T, pub *protocol.Publish) *tcp.TCPNode {
	t.Helper()
	node := connect(t, int(pub.Port))
	sendRequest(t, node, pub.Topic, pub.ID)
	return node
}

// connect dials a local topic endpoint without sending anything.
func connect(t *testing.T, port int) *tcp.TCPNode {
	t.Helper()
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	node, err := tcp.Dial(context.Background(), addr, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { node.Close() })
	require.NoError(t, node.SetDeadline(time.Now().Add(waitFor)))
	return node
}

func sendRequest(t *testing.T, node *tcp.TCPNode, topic string, id protocol.ID) {
	t.Helper()
	require.NoError(t, node.Send(&protocol.Request{Topic: topic, ID: id}))
	require.NoError(t, node.Flush())
}

// fakePublisher serves every accepted connection with serve and counts them.
func fakePublisher(t *testing.T, serve func(node transport.Node)) (uint16, *atomic.Int32) {
	l, err := tcp.Listen("127.0.0.1:0")
	require.NoError(t, err)
	var accepted atomic.Int32
	go l.AcceptLoop(context.Background(), func(node transport.Node) {
		accepted.Add(1)
		go func() {
			defer node.Close()
			node.SetDeadline(time.Now().Add(waitFor))
			serve(node)
		}()
	})
	t.Cleanup(func() { l.Close() })
	return uint16(l.Port()), &accepted
}

func announceTo(t *testing.T, to net.Addr, pub *protocol.Publish) {
	t.Helper()
	b, err := pub.MarshalBinary()
	require.NoError(t, err)
	sendRaw(t, to, b)
}

func sendRaw(t *testing.T, to net.Addr, b []byte) {
	t.Helper()
	conn, err := net.Dial("udp4", to.String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write(b)
	require.NoError(t, err)
}

func newText(t *testing.T, s string, pieceSize int) *content.Text {
	txt, err := content.NewText(s, pieceSize)
	require.NoError(t, err)
	return txt
}

func leasePort(t *testing.T, c *Controller, topic string) int {
	var port int
	c.published.with(func(p *publishedTopics) error {
		if l, ok := p.leases[topic]; ok {
			port = l.listener.Port()
		}
		return nil
	})
	require.NotZero(t, port, "topic %q has no lease", topic)
	return port
}

type foreignContent struct{}

func (foreignContent) Kind() protocol.MessageKind { return protocol.KindText }

package peer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/multierr"

	"tarun-kavipurapu/p2p-send/pkg/logger"
	"tarun-kavipurapu/p2p-send/pkg/monitor"
	"tarun-kavipurapu/p2p-send/pkg/protocol"
	"tarun-kavipurapu/p2p-send/pkg/transport"
	"tarun-kavipurapu/p2p-send/pkg/transport/tcp"
)

// receiveLoop reads announcements and hands each one to a worker. It never
// waits on a peer and ends when the socket is closed.
func (c *Controller) receiveLoop(ctx context.Context) {
	stop := context.AfterFunc(ctx, func() { c.conn.Close() })
	defer stop()

	buf := make([]byte, protocol.MaxPublishPacketSize)
	for {
		n, from, err := c.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				logger.Sugar.Infof("[Receiver] Announcement socket closed, stopping")
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			logger.Sugar.Errorf("[Receiver] Stopping on read error: %v", err)
			return
		}
		if n < protocol.MinPublishPacketSize {
			logger.Sugar.Debugf("[Receiver] Dropped %d byte datagram from %s: too short", n, from)
			continue
		}
		if protocol.MessageKind(buf[0]) != protocol.KindPublish {
			logger.Sugar.Debugf("[Receiver] Dropped %s datagram from %s", protocol.MessageKind(buf[0]), from)
			continue
		}
		packet := append([]byte(nil), buf[:n]...)
		c.pool.Submit(func(ctx context.Context) {
			c.handleAnnouncement(ctx, packet, from)
		})
	}
}

// publisherAddr joins the announcement source with the announced port.
func publisherAddr(from net.Addr, port uint16) (string, error) {
	udp, ok := from.(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("unexpected source address %v", from)
	}
	host := udp.IP.String()
	if udp.Zone != "" {
		host += "%" + udp.Zone
	}
	return net.JoinHostPort(host, strconv.Itoa(int(port))), nil
}

func (c *Controller) handleAnnouncement(ctx context.Context, packet []byte, from net.Addr) {
	pub, err := protocol.DecodePublish(packet)
	if err != nil {
		logger.Sugar.Debugf("[Receiver] Bad announcement from %s: %v", from, err)
		return
	}

	var claimed bool
	c.subscribed.with(func(s *subscriptions) error {
		claimed = s.claim(pub.Topic, pub.ID)
		return nil
	})
	if !claimed {
		return
	}

	err = c.download(ctx, pub, from)
	c.subscribed.with(func(s *subscriptions) error {
		s.release(pub.ID, err == nil)
		return nil
	})
	if err != nil {
		c.metrics.Failed()
		logger.Sugar.Errorf("[Receiver] Download of %q (id=%s) from %s failed: %v", pub.Topic, pub.ID, from, err)
	}
}

func (c *Controller) download(ctx context.Context, pub *protocol.Publish, from net.Addr) error {
	addr, err := publisherAddr(from, pub.Port)
	if err != nil {
		return err
	}
	node, err := tcp.Dial(ctx, addr, c.cfg.DialTimeout)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer node.Close()
	stop := context.AfterFunc(ctx, func() { node.Close() })
	defer stop()

	logger.Sugar.Infof("[Receiver] Requesting %q (id=%s) from %s", pub.Topic, pub.ID, addr)
	c.touch(node)
	if err := node.Send(&protocol.Request{Topic: pub.Topic, ID: pub.ID}); err != nil {
		return err
	}
	if err := node.Flush(); err != nil {
		return err
	}

	switch pub.PayloadKind {
	case protocol.KindFilePiece:
		return c.receiveFiles(node, pub.Topic)
	case protocol.KindText:
		return c.receiveText(node, pub.Topic)
	default:
		return fmt.Errorf("%w: payload %s", protocol.ErrIncorrectMessageKind, pub.PayloadKind)
	}
}

// localPath resolves an advertised name inside dir. Names that are absolute
// or climb out of dir are refused.
func localPath(dir, name string) (string, error) {
	rel := filepath.FromSlash(name)
	if name == "" || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeName, name)
	}
	return filepath.Join(dir, rel), nil
}

func (c *Controller) reply(node transport.Node, sig protocol.Signal) error {
	if err := node.Send(sig); err != nil {
		return err
	}
	return node.Flush()
}

func (c *Controller) receiveFiles(node transport.Node, topic string) error {
	r := node.Reader()
	for {
		c.touch(node)
		done, err := protocol.IsDone(r)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		info, err := protocol.ReadFileInfo(r)
		if err != nil {
			return err
		}

		dest, err := localPath(c.DownloadPath(), info.Name)
		if err != nil {
			logger.Sugar.Warnf("[Receiver] Refusing %v", err)
			if err := c.reply(node, protocol.No); err != nil {
				return err
			}
			continue
		}
		if _, err := os.Stat(dest); err == nil {
			logger.Sugar.Infof("[Receiver] %s already exists, skipping", dest)
			if err := c.reply(node, protocol.No); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", dest, err)
		}
		if err := c.reply(node, protocol.Yes); err != nil {
			return err
		}
		if err := c.receiveFile(node, topic, info, dest); err != nil {
			return fmt.Errorf("file %s: %w", info.Name, err)
		}
	}
}

// receiveFile writes the pieces of one accepted file. On failure the partial
// file is removed.
func (c *Controller) receiveFile(node transport.Node, topic string, info *protocol.FileInfo, dest string) (err error) {
	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	dt := NewDownloadTracker(c.pool.Clock(), topic, info.Name, info.FileLength)
	c.track(dt)
	defer func() {
		if err != nil {
			dt.Fail()
			if rerr := os.Remove(dest); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
				err = multierr.Append(err, rerr)
			}
		}
	}()

	var h hash.Hash
	var w io.Writer = f
	if info.HashKind != protocol.HashNone {
		h = info.HashKind.New()
		w = io.MultiWriter(f, h)
	}

	tr := c.metrics.StartTransfer(monitor.Received, true, info.Name)
	written, err := c.receivePieces(node, w, dt)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close file: %w", cerr)
	}
	if err != nil {
		return err
	}

	if uint64(written) != info.FileLength {
		logger.Sugar.Warnf("[Receiver] %s is %d bytes, advertised %d", dest, written, info.FileLength)
	}
	if h != nil && !bytes.Equal(h.Sum(nil), info.Digest) {
		logger.Sugar.Warnf("[Receiver] %s: whole file %s digest does not match", dest, info.HashKind)
	}
	dt.Complete()
	tr.Done(written)
	logger.Sugar.Infof("[Receiver] Saved %s (%d bytes)", dest, written)
	return nil
}

func (c *Controller) receivePieces(node transport.Node, w io.Writer, dt *DownloadTracker) (int64, error) {
	r := node.Reader()
	var index uint32
	var written int64
	for {
		c.touch(node)
		done, err := protocol.IsDone(r)
		if err != nil {
			return written, err
		}
		if done {
			return written, nil
		}
		piece, err := protocol.ReadFilePiece(r)
		if err != nil {
			return written, err
		}
		if err := protocol.CheckIndex(piece.Index, index); err != nil {
			return written, err
		}
		if err := piece.Verify(); err != nil {
			return written, fmt.Errorf("piece %d: %w", piece.Index, err)
		}
		n, err := w.Write(piece.Data)
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("failed to write piece %d: %w", piece.Index, err)
		}
		dt.AddPiece(n)
		index++
	}
}

func (c *Controller) receiveText(node transport.Node, topic string) error {
	r := node.Reader()
	tr := c.metrics.StartTransfer(monitor.Received, false, topic)
	var sb strings.Builder
	var index uint32
	for {
		c.touch(node)
		done, err := protocol.IsDone(r)
		if err != nil {
			return err
		}
		if done {
			break
		}
		piece, err := protocol.ReadText(r)
		if err != nil {
			return err
		}
		if err := protocol.CheckIndex(piece.Index, index); err != nil {
			return err
		}
		sb.Write(piece.Data)
		index++
	}
	tr.Done(int64(sb.Len()))

	if c.cfg.OnText != nil {
		c.cfg.OnText(topic, sb.String())
	} else {
		logger.Sugar.Infof("[Receiver] Text on %q: %s", topic, sb.String())
	}
	return nil
}

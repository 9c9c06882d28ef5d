package peer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"tarun-kavipurapu/p2p-send/pkg/content"
	"tarun-kavipurapu/p2p-send/pkg/logger"
	"tarun-kavipurapu/p2p-send/pkg/monitor"
	"tarun-kavipurapu/p2p-send/pkg/protocol"
	"tarun-kavipurapu/p2p-send/pkg/storage"
	"tarun-kavipurapu/p2p-send/pkg/transport"
)

// touch extends the idle deadline of a transfer connection.
func (c *Controller) touch(node transport.Node) {
	node.SetDeadline(time.Now().Add(c.cfg.DialTimeout))
}

// serve answers one subscriber connection accepted on l's endpoint. Only l's
// topic is served, and only while l is still the published lease for it.
// Errors end only this connection.
func (c *Controller) serve(ctx context.Context, l *lease, node transport.Node) {
	defer node.Close()
	stop := context.AfterFunc(ctx, func() { node.Close() })
	defer stop()

	c.touch(node)
	req, err := protocol.ReadRequest(node.Reader())
	if err != nil {
		logger.Sugar.Warnf("[Sender] Bad request from %s: %v", node.Addr(), err)
		return
	}

	var ct content.Content
	c.published.with(func(p *publishedTopics) error {
		if req.Topic == l.topic && p.leases[req.Topic] == l {
			ct = l.content
		}
		return nil
	})
	if ct == nil {
		logger.Sugar.Warnf("[Sender] %v: %q from %s", ErrUnknownTopic, req.Topic, node.Addr())
		return
	}

	logger.Sugar.Infof("[Sender] Serving %q to %s", req.Topic, node.Addr())
	switch ct := ct.(type) {
	case *content.Files:
		err = c.sendFiles(node, ct)
	case *content.Text:
		err = c.sendText(node, req.Topic, ct)
	}
	if err != nil {
		c.metrics.Failed()
		logger.Sugar.Errorf("[Sender] Transfer of %q to %s failed: %v", req.Topic, node.Addr(), err)
		return
	}
	logger.Sugar.Infof("[Sender] Finished %q to %s", req.Topic, node.Addr())
}

// sendFiles offers every file in turn and streams the ones the peer accepts.
func (c *Controller) sendFiles(node transport.Node, files *content.Files) error {
	for _, f := range files.Files() {
		c.touch(node)
		if err := node.Send(f.FileInfo()); err != nil {
			return err
		}
		if err := node.Flush(); err != nil {
			return err
		}
		sig, err := protocol.ReadSignal(node.Reader(), protocol.Yes, protocol.No)
		if err != nil {
			return fmt.Errorf("waiting for reply to %s: %w", f.Name(), err)
		}
		if sig == protocol.No {
			logger.Sugar.Infof("[Sender] %s declined %s", node.Addr(), f.Name())
			continue
		}
		if err := c.sendFile(node, f); err != nil {
			return fmt.Errorf("sending %s: %w", f.Name(), err)
		}
	}
	if err := node.Send(protocol.Done); err != nil {
		return err
	}
	return node.Flush()
}

func (c *Controller) sendFile(node transport.Node, f *storage.PFile) (err error) {
	tr := c.metrics.StartTransfer(monitor.Sent, true, f.Name())
	it, err := f.Pieces()
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, it.Close())
	}()

	var sent int64
	for it.Next() {
		c.touch(node)
		piece := it.Piece()
		if err := node.Send(piece); err != nil {
			return err
		}
		sent += int64(len(piece.Data))
	}
	if err := it.Err(); err != nil {
		return err
	}
	if err := node.Send(protocol.Done); err != nil {
		return err
	}
	tr.Done(sent)
	return nil
}

func (c *Controller) sendText(node transport.Node, topic string, text *content.Text) error {
	tr := c.metrics.StartTransfer(monitor.Sent, false, topic)
	it := text.Pieces()
	for it.Next() {
		c.touch(node)
		if err := node.Send(it.Piece()); err != nil {
			return err
		}
	}
	if err := node.Send(protocol.Done); err != nil {
		return err
	}
	if err := node.Flush(); err != nil {
		return err
	}
	tr.Done(int64(text.Len()))
	return nil
}

// Package peer announces published topics on a multicast group, serves them to
// subscribers over TCP and downloads announced topics this process subscribed to.
package peer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"

	"tarun-kavipurapu/p2p-send/pkg/content"
	"tarun-kavipurapu/p2p-send/pkg/logger"
	"tarun-kavipurapu/p2p-send/pkg/monitor"
	"tarun-kavipurapu/p2p-send/pkg/protocol"
	"tarun-kavipurapu/p2p-send/pkg/transport"
	"tarun-kavipurapu/p2p-send/pkg/transport/tcp"
	"tarun-kavipurapu/p2p-send/pkg/workerpool"
)

const recentDownloads = 32

// Controller is the topic registry of one process. Publishing and receiving
// share its pool and its announcement socket.
type Controller struct {
	cfg     Config
	pool    *workerpool.Pool
	conn    net.PacketConn
	group   net.Addr
	metrics *monitor.Metrics

	published  guarded[publishedTopics]
	subscribed guarded[subscriptions]
	downloads  guarded[downloadLog]

	pathLock     sync.RWMutex
	downloadPath string

	receive     *workerpool.Task
	metricsTask *workerpool.Task
	closeOnce   sync.Once
}

// NewController starts the receive loop on conn. Announcements are sent to group.
// The pool and conn are owned by the caller; Close closes conn.
func NewController(cfg Config, pool *workerpool.Pool, conn net.PacketConn, group net.Addr) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Controller{
		cfg:          cfg,
		pool:         pool,
		conn:         conn,
		group:        group,
		metrics:      monitor.New(pool.Clock()),
		downloadPath: cfg.DownloadPath,
	}
	c.published.v = publishedTopics{leases: make(map[string]*lease)}
	c.subscribed.v = subscriptions{
		topics:   make(map[string]struct{}),
		done:     newIDCache(cfg.IDCacheSize),
		inflight: make(map[protocol.ID]struct{}),
	}
	c.downloads.v = downloadLog{limit: recentDownloads}

	c.receive = pool.Go(c.receiveLoop)
	if cfg.MetricsInterval > 0 {
		c.metricsTask = pool.Every(cfg.MetricsInterval, c.metrics.LogPeriodic)
	}
	logger.Sugar.Infof("[Controller] Started: announce to %s, listen on %s, workers=%d", group, conn.LocalAddr(), pool.Size())
	return c, nil
}

func validTopic(topic string) error {
	if len(topic) > protocol.MaxTopicLength {
		return fmt.Errorf("%w: %d bytes", ErrTopicTooLong, len(topic))
	}
	return nil
}

// Publish announces ct under topic every interval until canceled, or until
// timeout elapses when timeout is positive.
func (c *Controller) Publish(ct content.Content, topic string, timeout, interval time.Duration) (string, error) {
	switch ct.(type) {
	case *content.Text:
		if ct.Kind() != protocol.KindText {
			return "", ErrIncorrectContentKind
		}
	case *content.Files:
		if ct.Kind() != protocol.KindFilePiece {
			return "", ErrIncorrectContentKind
		}
	default:
		return "", fmt.Errorf("%w: %T", ErrIncorrectContentKind, ct)
	}
	if err := validTopic(topic); err != nil {
		return "", err
	}
	if timeout < 0 {
		return "", fmt.Errorf("%w: %v", ErrInvalidTimeout, timeout)
	}
	if interval <= 0 {
		return "", fmt.Errorf("%w: %v", ErrInvalidInterval, interval)
	}
	id, err := protocol.NewID()
	if err != nil {
		return "", err
	}

	err = c.published.with(func(p *publishedTopics) error {
		if p.closed {
			return ErrClosed
		}
		if _, ok := p.leases[topic]; ok {
			return fmt.Errorf("%w: %q", ErrAlreadyPublishing, topic)
		}
		listener, err := tcp.Listen(":0")
		if err != nil {
			return fmt.Errorf("failed to open endpoint for %q: %w", topic, err)
		}
		packet, err := (&protocol.Publish{
			Topic:       topic,
			PayloadKind: ct.Kind(),
			Port:        uint16(listener.Port()),
			ID:          id,
		}).MarshalBinary()
		if err != nil {
			listener.Close()
			return err
		}

		p.generation++
		l := &lease{topic: topic, content: ct, id: id, generation: p.generation, listener: listener}
		l.accept = c.pool.Go(func(ctx context.Context) {
			err := listener.AcceptLoop(ctx, func(node transport.Node) {
				c.dispatch(l, node)
			})
			if err != nil {
				logger.Sugar.Errorf("[Controller] Accept loop for %q ended: %v", topic, err)
			}
		})
		l.announce = c.pool.Every(interval, func(ctx context.Context) {
			c.announce(topic, packet)
		})
		if timeout > 0 {
			gen := l.generation
			l.expire = c.pool.Schedule(timeout, func(ctx context.Context) {
				c.expire(topic, gen)
			})
		}
		p.add(l)

		logger.Sugar.Infof("[Controller] Publishing %q (%s) on port %d, id=%s", topic, ct.Kind(), listener.Port(), id)
		return nil
	})
	if err != nil {
		return "", err
	}
	return topic, nil
}

func (c *Controller) announce(topic string, packet []byte) {
	if _, err := c.conn.WriteTo(packet, c.group); err != nil {
		logger.Sugar.Warnf("[Controller] Failed to announce %q: %v", topic, err)
		return
	}
	c.metrics.Announced()
}

// dispatch hands a connection accepted on l's endpoint to a worker.
func (c *Controller) dispatch(l *lease, node transport.Node) {
	c.pool.Submit(func(ctx context.Context) {
		c.serve(ctx, l, node)
	})
}

// CancelPublish stops announcing topic and closes its endpoint.
func (c *Controller) CancelPublish(topic string) error {
	return c.published.with(func(p *publishedTopics) error {
		l := p.remove(topic)
		if l == nil {
			return fmt.Errorf("%w: %q", ErrNotPublishing, topic)
		}
		if err := l.close(); err != nil {
			logger.Sugar.Warnf("[Controller] Closing endpoint of %q: %v", topic, err)
		}
		logger.Sugar.Infof("[Controller] Unpublished %q", topic)
		return nil
	})
}

// expire is the auto-unpublish of one publish call. It is a no-op once topic
// has been unpublished or published again.
func (c *Controller) expire(topic string, generation uint64) {
	c.published.with(func(p *publishedTopics) error {
		l, ok := p.leases[topic]
		if !ok || l.generation != generation {
			logger.Sugar.Debugf("[Controller] Stale expiry for %q ignored (generation %d)", topic, generation)
			return nil
		}
		p.remove(topic)
		if err := l.close(); err != nil {
			logger.Sugar.Warnf("[Controller] Closing endpoint of %q: %v", topic, err)
		}
		logger.Sugar.Infof("[Controller] Publish of %q expired", topic)
		return nil
	})
}

func (c *Controller) Subscribe(topic string) (string, error) {
	if err := validTopic(topic); err != nil {
		return "", err
	}
	err := c.subscribed.with(func(s *subscriptions) error {
		if _, ok := s.topics[topic]; ok {
			return fmt.Errorf("%w: %q", ErrAlreadySubscribed, topic)
		}
		s.topics[topic] = struct{}{}
		return nil
	})
	if err != nil {
		return "", err
	}
	logger.Sugar.Infof("[Controller] Subscribed to %q", topic)
	return topic, nil
}

func (c *Controller) CancelSubscribe(topic string) error {
	err := c.subscribed.with(func(s *subscriptions) error {
		if _, ok := s.topics[topic]; !ok {
			return fmt.Errorf("%w: %q", ErrNotSubscribed, topic)
		}
		delete(s.topics, topic)
		return nil
	})
	if err == nil {
		logger.Sugar.Infof("[Controller] Unsubscribed from %q", topic)
	}
	return err
}

// List returns "pub : <topic>" lines in publish order followed by
// "sub : <topic>" lines in sorted order.
func (c *Controller) List() []string {
	var out []string
	c.published.with(func(p *publishedTopics) error {
		for _, t := range p.order {
			out = append(out, "pub : "+t)
		}
		return nil
	})

	var subs []string
	c.subscribed.with(func(s *subscriptions) error {
		for t := range s.topics {
			subs = append(subs, t)
		}
		return nil
	})
	sort.Strings(subs)
	for _, t := range subs {
		out = append(out, "sub : "+t)
	}
	return out
}

// SetDownloadPath changes where files received from now on are written.
func (c *Controller) SetDownloadPath(path string) {
	c.pathLock.Lock()
	defer c.pathLock.Unlock()
	c.downloadPath = path
	logger.Sugar.Infof("[Controller] Download path set to %s", path)
}

func (c *Controller) DownloadPath() string {
	c.pathLock.RLock()
	defer c.pathLock.RUnlock()
	return c.downloadPath
}

// Metrics returns a snapshot of the transfer counters.
func (c *Controller) Metrics() monitor.Snapshot {
	return c.metrics.Snapshot()
}

// Downloads returns active and recently finished file downloads, oldest first.
func (c *Controller) Downloads() []*DownloadTracker {
	var out []*DownloadTracker
	c.downloads.with(func(l *downloadLog) error {
		out = append(out, l.entries...)
		return nil
	})
	return out
}

func (c *Controller) track(dt *DownloadTracker) {
	c.downloads.with(func(l *downloadLog) error {
		l.add(dt)
		return nil
	})
}

// Close unpublishes every topic and closes the announcement socket, which ends
// the receive loop. Transfers in flight stop when the pool is closed.
func (c *Controller) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.published.with(func(p *publishedTopics) error {
			p.closed = true
			for _, topic := range append([]string(nil), p.order...) {
				err = multierr.Append(err, p.remove(topic).close())
			}
			return nil
		})
		if c.metricsTask != nil {
			c.metricsTask.Cancel()
		}
		if cerr := c.conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = multierr.Append(err, cerr)
		}
		c.receive.Cancel()
		c.receive.Wait()
		logger.Sugar.Infof("[Controller] Closed")
	})
	return err
}

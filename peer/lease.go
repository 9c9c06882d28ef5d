package peer

import (
	"tarun-kavipurapu/p2p-send/pkg/content"
	"tarun-kavipurapu/p2p-send/pkg/protocol"
	"tarun-kavipurapu/p2p-send/pkg/transport/tcp"
	"tarun-kavipurapu/p2p-send/pkg/workerpool"
)

// lease bundles everything one publish call owns. It exists exactly as long as
// its topic is in the published map.
type lease struct {
	topic      string
	content    content.Content
	id         protocol.ID
	generation uint64

	listener *tcp.Listener
	announce *workerpool.Task
	accept   *workerpool.Task
	expire   *workerpool.Task // nil without a timeout
}

// close shuts the listener first so the accept loop can not hand out new
// connections, then cancels the tasks. Connections already being served finish
// or fail on their own.
func (l *lease) close() error {
	err := l.listener.Close()
	if l.announce != nil {
		l.announce.Cancel()
	}
	if l.accept != nil {
		l.accept.Cancel()
	}
	if l.expire != nil {
		l.expire.Cancel()
	}
	return err
}

// publishedTopics is the registry of active leases, keyed by topic, in publish order.
type publishedTopics struct {
	leases     map[string]*lease
	order      []string
	generation uint64
	closed     bool
}

func (p *publishedTopics) add(l *lease) {
	p.leases[l.topic] = l
	p.order = append(p.order, l.topic)
}

func (p *publishedTopics) remove(topic string) *lease {
	l, ok := p.leases[topic]
	if !ok {
		return nil
	}
	delete(p.leases, topic)
	for i, t := range p.order {
		if t == topic {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return l
}

// subscriptions holds the subscribed topics together with the identifiers
// already downloaded or being downloaded.
type subscriptions struct {
	topics   map[string]struct{}
	done     *idCache
	inflight map[protocol.ID]struct{}
}

// claim reports whether an announcement should be downloaded and, if so,
// marks its identifier in flight.
func (s *subscriptions) claim(topic string, id protocol.ID) bool {
	if _, ok := s.topics[topic]; !ok {
		return false
	}
	if s.done.contains(id) {
		return false
	}
	if _, ok := s.inflight[id]; ok {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

// release ends an in-flight download; a successful one is remembered.
func (s *subscriptions) release(id protocol.ID, ok bool) {
	delete(s.inflight, id)
	if ok {
		s.done.add(id)
	}
}

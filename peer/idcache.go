package peer

import "tarun-kavipurapu/p2p-send/pkg/protocol"

// idCache remembers identifiers of finished downloads. When full it is cleared
// wholesale, so an old announcement may be downloaded again afterwards.
type idCache struct {
	capacity int
	ids      map[protocol.ID]struct{}
}

func newIDCache(capacity int) *idCache {
	return &idCache{capacity: capacity, ids: make(map[protocol.ID]struct{})}
}

func (c *idCache) contains(id protocol.ID) bool {
	_, ok := c.ids[id]
	return ok
}

func (c *idCache) add(id protocol.ID) {
	if len(c.ids) >= c.capacity {
		clear(c.ids)
	}
	c.ids[id] = struct{}{}
}

func (c *idCache) len() int {
	return len(c.ids)
}

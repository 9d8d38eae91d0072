package certificate

import (
	"crypto/tls"
	"sync"
	"time"

	"github.com/sagernet/sing/common/x/list"
)

type cacheEntry struct {
	hostname   string
	leaf       *tls.Certificate
	lastAccess time.Time
}

// Cache is a bounded least-recently-used map of issued leaves. Eviction
// only forgets the entry; stored files are left alone.
type Cache struct {
	access   sync.Mutex
	capacity int
	entries  list.List[*cacheEntry]
	index    map[string]*list.Element[*cacheEntry]
	timeFunc func() time.Time
}

func NewCache(capacity int, timeFunc func() time.Time) *Cache {
	if timeFunc == nil {
		timeFunc = time.Now
	}
	return &Cache{
		capacity: capacity,
		index:    make(map[string]*list.Element[*cacheEntry]),
		timeFunc: timeFunc,
	}
}

func (c *Cache) Load(hostname string) (*tls.Certificate, bool) {
	c.access.Lock()
	defer c.access.Unlock()
	element, loaded := c.index[hostname]
	if !loaded {
		return nil, false
	}
	element.Value.lastAccess = c.timeFunc()
	c.entries.MoveToFront(element)
	return element.Value.leaf, true
}

// Store inserts or replaces the leaf for hostname and returns the host
// names evicted to stay within capacity.
func (c *Cache) Store(hostname string, leaf *tls.Certificate) []string {
	c.access.Lock()
	defer c.access.Unlock()
	if element, loaded := c.index[hostname]; loaded {
		element.Value.leaf = leaf
		element.Value.lastAccess = c.timeFunc()
		c.entries.MoveToFront(element)
		return nil
	}
	if c.capacity <= 0 {
		return []string{hostname}
	}
	c.index[hostname] = c.entries.PushFront(&cacheEntry{
		hostname:   hostname,
		leaf:       leaf,
		lastAccess: c.timeFunc(),
	})
	var evicted []string
	for c.entries.Len() > c.capacity {
		oldest := c.entries.Back()
		c.entries.Remove(oldest)
		delete(c.index, oldest.Value.hostname)
		evicted = append(evicted, oldest.Value.hostname)
	}
	return evicted
}

func (c *Cache) Remove(hostname string) bool {
	c.access.Lock()
	defer c.access.Unlock()
	element, loaded := c.index[hostname]
	if !loaded {
		return false
	}
	c.entries.Remove(element)
	delete(c.index, hostname)
	return true
}

func (c *Cache) Len() int {
	c.access.Lock()
	defer c.access.Unlock()
	return c.entries.Len()
}

// Hostnames lists cached names from most to least recently used.
func (c *Cache) Hostnames() []string {
	c.access.Lock()
	defer c.access.Unlock()
	hostnames := make([]string, 0, c.entries.Len())
	for element := c.entries.Front(); element != nil; element = element.Next() {
		hostnames = append(hostnames, element.Value.hostname)
	}
	return hostnames
}

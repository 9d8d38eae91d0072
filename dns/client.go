package dns

import (
	"context"
	"net"
	"net/netip"
	"strings"
	"sync"
	"time"

	C "github.com/examproxy/sebproxy/constant"
	"github.com/examproxy/sebproxy/log"
	"github.com/examproxy/sebproxy/option"
	"github.com/sagernet/sing/common/cache"
	E "github.com/sagernet/sing/common/exceptions"
	"github.com/sagernet/sing/common/task"

	"github.com/miekg/dns"
)

var ErrNoAddresses = E.New("no addresses")

// Client resolves host names for outbound dials and remembers answers for
// a short fixed TTL. Once more than ceiling names were stored since the
// last reset, the whole cache is dropped.
type Client struct {
	logger    log.ContextLogger
	transport Transport
	ttl       time.Duration
	ceiling   int
	access    sync.Mutex
	cache     *cache.LruCache[string, []netip.Addr]
	stored    int
}

type ClientOptions struct {
	Logger    log.ContextLogger
	Transport Transport
	Options   option.DNSOptions
}

func NewClient(options ClientOptions) *Client {
	ttl := time.Duration(options.Options.TTL)
	if ttl == 0 {
		ttl = C.DNSCacheTTL
	}
	ceiling := options.Options.CacheCeiling
	if ceiling == 0 {
		ceiling = C.DNSCacheCeiling
	}
	client := &Client{
		logger:    options.Logger,
		transport: options.Transport,
		ttl:       ttl,
		ceiling:   ceiling,
	}
	client.cache = client.newCache()
	return client
}

func (c *Client) newCache() *cache.LruCache[string, []netip.Addr] {
	maxAge := int64(c.ttl / time.Second)
	if maxAge < 1 {
		maxAge = 1
	}
	return cache.New[string, []netip.Addr](cache.WithAge[string, []netip.Addr](maxAge))
}

func (c *Client) Lookup(ctx context.Context, domain string) ([]netip.Addr, error) {
	domain = strings.TrimSuffix(strings.ToLower(domain), ".")
	if address, err := netip.ParseAddr(domain); err == nil {
		return []netip.Addr{address}, nil
	}
	c.access.Lock()
	cached, loaded := c.cache.Load(domain)
	c.access.Unlock()
	if loaded {
		return cached, nil
	}
	ctx, cancel := context.WithTimeout(ctx, C.DNSTimeout)
	defer cancel()
	addresses, err := c.exchange(ctx, domain)
	if err != nil {
		return nil, err
	}
	if len(addresses) == 0 {
		return nil, E.Extend(ErrNoAddresses, domain)
	}
	c.access.Lock()
	if c.stored >= c.ceiling {
		c.logger.DebugContext(ctx, "resolution cache reached ", c.ceiling, " entries, reset")
		c.cache = c.newCache()
		c.stored = 0
	}
	c.cache.StoreWithExpire(domain, addresses, time.Now().Add(c.ttl))
	c.stored++
	c.access.Unlock()
	return addresses, nil
}

func (c *Client) exchange(ctx context.Context, domain string) ([]netip.Addr, error) {
	if c.transport == nil {
		return net.DefaultResolver.LookupNetIP(ctx, "ip", domain)
	}
	dnsName := dns.Fqdn(domain)
	var (
		response4 []netip.Addr
		response6 []netip.Addr
		group     task.Group
	)
	group.Append("exchange4", func(ctx context.Context) error {
		response, err := c.lookupToExchange(ctx, dnsName, dns.TypeA)
		if err != nil {
			return err
		}
		response4 = response
		return nil
	})
	group.Append("exchange6", func(ctx context.Context) error {
		response, err := c.lookupToExchange(ctx, dnsName, dns.TypeAAAA)
		if err != nil {
			return err
		}
		response6 = response
		return nil
	})
	err := group.Run(ctx)
	if len(response4) == 0 && len(response6) == 0 {
		return nil, err
	}
	return append(response4, response6...), nil
}

func (c *Client) lookupToExchange(ctx context.Context, name string, qType uint16) ([]netip.Addr, error) {
	message := dns.Msg{
		MsgHdr: dns.MsgHdr{
			Id:               dns.Id(),
			RecursionDesired: true,
		},
		Question: []dns.Question{{
			Name:   name,
			Qtype:  qType,
			Qclass: dns.ClassINET,
		}},
	}
	response, err := c.transport.Exchange(ctx, &message)
	if err != nil {
		return nil, err
	}
	return MessageToAddresses(response)
}

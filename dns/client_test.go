package dns

import (
	"context"
	"net"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/examproxy/sebproxy/log"
	"github.com/examproxy/sebproxy/option"
	E "github.com/sagernet/sing/common/exceptions"
	"github.com/sagernet/sing/common/json/badoption"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

type staticTransport struct {
	queries atomic.Int32
	fail    bool
}

func (t *staticTransport) Exchange(ctx context.Context, message *dns.Msg) (*dns.Msg, error) {
	t.queries.Add(1)
	if t.fail {
		return nil, E.New("unreachable")
	}
	response := new(dns.Msg)
	response.SetReply(message)
	question := message.Question[0]
	header := dns.RR_Header{Name: question.Name, Rrtype: question.Qtype, Class: dns.ClassINET, Ttl: 300}
	switch question.Qtype {
	case dns.TypeA:
		response.Answer = append(response.Answer, &dns.A{Hdr: header, A: net.ParseIP("192.0.2.10").To4()})
	case dns.TypeAAAA:
		response.Answer = append(response.Answer, &dns.AAAA{Hdr: header, AAAA: net.ParseIP("2001:db8::10")})
	}
	return response, nil
}

func newTestClient(transport Transport, ceiling int) *Client {
	return NewClient(ClientOptions{
		Logger:    log.NewNOPFactory().Logger(),
		Transport: transport,
		Options: option.DNSOptions{
			TTL:          badoption.Duration(time.Minute),
			CacheCeiling: ceiling,
		},
	})
}

func TestLookupCached(t *testing.T) {
	t.Parallel()
	transport := &staticTransport{}
	client := newTestClient(transport, 100)
	addresses, err := client.Lookup(context.Background(), "Exam.Example.")
	require.NoError(t, err)
	require.ElementsMatch(t, []netip.Addr{netip.MustParseAddr("192.0.2.10"), netip.MustParseAddr("2001:db8::10")}, addresses)
	require.Equal(t, int32(2), transport.queries.Load())
	_, err = client.Lookup(context.Background(), "exam.example")
	require.NoError(t, err)
	require.Equal(t, int32(2), transport.queries.Load())
}

func TestLookupCeilingReset(t *testing.T) {
	t.Parallel()
	transport := &staticTransport{}
	client := newTestClient(transport, 2)
	for _, domain := range []string{"a.example", "b.example", "c.example"} {
		_, err := client.Lookup(context.Background(), domain)
		require.NoError(t, err)
	}
	require.Equal(t, int32(6), transport.queries.Load())
	_, err := client.Lookup(context.Background(), "a.example")
	require.NoError(t, err)
	require.Equal(t, int32(8), transport.queries.Load())
	_, err = client.Lookup(context.Background(), "c.example")
	require.NoError(t, err)
	require.Equal(t, int32(8), transport.queries.Load())
}

func TestLookupAddressLiteral(t *testing.T) {
	t.Parallel()
	transport := &staticTransport{}
	client := newTestClient(transport, 10)
	addresses, err := client.Lookup(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	require.Equal(t, []netip.Addr{netip.MustParseAddr("127.0.0.1")}, addresses)
	require.Zero(t, transport.queries.Load())
}

func TestLookupFailureNotCached(t *testing.T) {
	t.Parallel()
	transport := &staticTransport{fail: true}
	client := newTestClient(transport, 10)
	_, err := client.Lookup(context.Background(), "down.example")
	require.Error(t, err)
	_, err = client.Lookup(context.Background(), "down.example")
	require.Error(t, err)
	require.Equal(t, int32(4), transport.queries.Load())
}

func TestUDPTransport(t *testing.T) {
	t.Parallel()
	packetConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	server := &dns.Server{
		PacketConn: packetConn,
		Handler: dns.HandlerFunc(func(writer dns.ResponseWriter, request *dns.Msg) {
			response, _ := (&staticTransport{}).Exchange(context.Background(), request)
			writer.WriteMsg(response)
		}),
	}
	go server.ActivateAndServe()
	defer server.Shutdown()

	transport, err := NewTransport([]string{packetConn.LocalAddr().String()})
	require.NoError(t, err)
	client := newTestClient(transport, 10)
	addresses, err := client.Lookup(context.Background(), "local.example")
	require.NoError(t, err)
	require.Contains(t, addresses, netip.MustParseAddr("192.0.2.10"))
}

func TestNewTransportDefaultPort(t *testing.T) {
	t.Parallel()
	transport, err := NewTransport([]string{"192.0.2.53"})
	require.NoError(t, err)
	require.Equal(t, []string{"192.0.2.53:53"}, transport.(*UDPTransport).servers)
}

package common

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidServiceURL(t *testing.T) {
	assert.True(t, ValidServiceURL("http://localhost:7101"))
	assert.True(t, ValidServiceURL("https://enclave.example.com/"))
	assert.False(t, ValidServiceURL("preferred"))
	assert.False(t, ValidServiceURL("random"))
	assert.False(t, ValidServiceURL("localhost:7101/x"))
	assert.False(t, ValidServiceURL("://bad"))
}

func startDNSServer(t *testing.T, records map[string]string) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	server := &dns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
			m := new(dns.Msg)
			m.SetReply(req)
			for _, q := range req.Question {
				if ip, ok := records[q.Name]; ok && q.Qtype == dns.TypeA {
					m.Answer = append(m.Answer, &dns.A{
						Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
						A:   net.ParseIP(ip),
					})
				}
			}
			_ = w.WriteMsg(m)
		}),
	}

	go func() { _ = server.ActivateAndServe() }()
	t.Cleanup(func() { _ = server.Shutdown() })

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("dns server did not start")
	}
	return pc.LocalAddr().String()
}

func TestNormalizeServiceURL(t *testing.T) {
	resolver := &DNSResolver{
		Server:  startDNSServer(t, map[string]string{"enclave.test.": "10.0.0.7"}),
		Timeout: time.Second,
	}
	ctx := context.Background()

	normalized, err := NormalizeServiceURL(ctx, resolver, "http://enclave.test:7101/")
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.7:7101", normalized)

	normalized, err = NormalizeServiceURL(ctx, resolver, "http://localhost:7101")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:7101", normalized)

	_, err = NormalizeServiceURL(ctx, resolver, "http://unknown.test:7101")
	require.ErrorIs(t, err, ErrHostNotResolved)

	_, err = NormalizeServiceURL(ctx, resolver, "not a url")
	require.Error(t, err)
}

func TestSameServiceURL(t *testing.T) {
	resolver := &DNSResolver{
		Server:  startDNSServer(t, map[string]string{"enclave.test.": "10.0.0.7"}),
		Timeout: time.Second,
	}
	ctx := context.Background()

	assert.True(t, SameServiceURL(ctx, resolver, "http://127.0.0.1:7101/", "http://localhost:7101"))
	assert.True(t, SameServiceURL(ctx, resolver, "http://enclave.test:7101", "http://10.0.0.7:7101"))
	assert.False(t, SameServiceURL(ctx, resolver, "http://localhost:7101", "http://localhost:7102"))
	assert.False(t, SameServiceURL(ctx, resolver, "", "http://localhost:7101"))
}

package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/domainstack/internal/enum"
	er "github.com/customeros/domainstack/internal/errors"
	"github.com/customeros/domainstack/internal/models"
)

type fakeExchanger struct {
	mu      sync.Mutex
	answers map[string]func(m *dns.Msg) (*dns.Msg, error)
	calls   int
}

func (f *fakeExchanger) ExchangeContext(_ context.Context, m *dns.Msg, address string) (*dns.Msg, time.Duration, error) {
	f.mu.Lock()
	f.calls++
	handler, ok := f.answers[address]
	f.mu.Unlock()
	if !ok {
		return nil, 0, errors.New("no route to " + address)
	}
	resp, err := handler(m)
	return resp, time.Millisecond, err
}

func reply(rrs ...string) func(m *dns.Msg) (*dns.Msg, error) {
	return func(m *dns.Msg) (*dns.Msg, error) {
		resp := new(dns.Msg)
		resp.SetReply(m)
		for _, s := range rrs {
			rr, err := dns.NewRR(s)
			if err != nil {
				return nil, err
			}
			resp.Answer = append(resp.Answer, rr)
		}
		return resp, nil
	}
}

func rcode(code int) func(m *dns.Msg) (*dns.Msg, error) {
	return func(m *dns.Msg) (*dns.Msg, error) {
		resp := new(dns.Msg)
		resp.SetRcode(m, code)
		return resp, nil
	}
}

func TestResolveNameservers(t *testing.T) {
	ex := &fakeExchanger{answers: map[string]func(*dns.Msg) (*dns.Msg, error){
		"1.1.1.1:53": reply(
			"example.com. 300 IN NS Rita.NS.Cloudflare.com.",
			"example.com. 300 IN NS adam.ns.cloudflare.com.",
		),
	}}
	r := NewNameserverResolverWithExchanger("1.1.1.1:53", ex)

	ns, err := r.ResolveNameservers(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"adam.ns.cloudflare.com", "rita.ns.cloudflare.com"}, ns)
}

func TestResolveNameservers_NXDomain(t *testing.T) {
	ex := &fakeExchanger{answers: map[string]func(*dns.Msg) (*dns.Msg, error){
		"1.1.1.1:53": rcode(dns.RcodeNameError),
	}}
	r := NewNameserverResolverWithExchanger("1.1.1.1:53", ex)

	_, err := r.ResolveNameservers(context.Background(), "missing.example")
	assert.ErrorIs(t, err, er.ErrNoNameservers)
}

func TestResolveNameservers_EmptyAnswer(t *testing.T) {
	ex := &fakeExchanger{answers: map[string]func(*dns.Msg) (*dns.Msg, error){
		"1.1.1.1:53": reply(),
	}}
	r := NewNameserverResolverWithExchanger("1.1.1.1:53", ex)

	_, err := r.ResolveNameservers(context.Background(), "example.com")
	assert.ErrorIs(t, err, er.ErrNoNameservers)
}

func TestResolveNameservers_TransportFailureIsTransient(t *testing.T) {
	r := NewNameserverResolverWithExchanger("1.1.1.1:53", &fakeExchanger{})

	_, err := r.ResolveNameservers(context.Background(), "example.com")
	require.Error(t, err)
	assert.True(t, er.IsTransient(err))
}

func TestSample_PartialCoverage(t *testing.T) {
	ex := &fakeExchanger{answers: map[string]func(*dns.Msg) (*dns.Msg, error){
		"a:53": reply(`example.com. 300 IN TXT "v=spf1 include:_spf.hostedemail.com ~all"`),
		"b:53": reply(`example.com. 300 IN TXT "v=spf1 include:_spf.hostedemail.com ~all"`),
		"c:53": reply(),
	}}
	s := NewPropagationSamplerWithExchanger([]string{"a:53", "b:53", "c:53"}, ex)

	result := s.Sample(context.Background(), &models.DNSRecord{
		RecordType: enum.DNSRecordTXT,
		Name:       "example.com",
		Content:    "v=spf1 include:_spf.hostedemail.com ~all",
	})

	assert.Equal(t, 67, result.Coverage)
	assert.Equal(t, enum.Propagating, result.Status)
	require.Len(t, result.Resolvers, 3)
	assert.True(t, result.Resolvers[0].Matched)
	assert.False(t, result.Resolvers[2].Matched)
}

func TestSample_SplitTXTStringsAreJoined(t *testing.T) {
	ex := &fakeExchanger{answers: map[string]func(*dns.Msg) (*dns.Msg, error){
		"a:53": reply(`dkim._domainkey.example.com. 300 IN TXT "v=DKIM1; k=rsa; " "p=ABC"`),
	}}
	s := NewPropagationSamplerWithExchanger([]string{"a:53"}, ex)

	result := s.Sample(context.Background(), &models.DNSRecord{
		RecordType: enum.DNSRecordTXT,
		Name:       "dkim._domainkey.example.com",
		Content:    "v=DKIM1; k=rsa; p=ABC",
	})

	assert.Equal(t, 100, result.Coverage)
	assert.Equal(t, enum.Propagated, result.Status)
}

func TestSample_MXAndCNAMEMatchIgnoringCaseAndDot(t *testing.T) {
	ex := &fakeExchanger{answers: map[string]func(*dns.Msg) (*dns.Msg, error){
		"a:53": func(m *dns.Msg) (*dns.Msg, error) {
			if m.Question[0].Qtype == dns.TypeMX {
				return reply("example.com. 300 IN MX 10 MX.HostedEmail.com.")(m)
			}
			return reply("track.example.com. 300 IN CNAME CustosMetrics.com.")(m)
		},
	}}
	s := NewPropagationSamplerWithExchanger([]string{"a:53"}, ex)

	mx := s.Sample(context.Background(), &models.DNSRecord{RecordType: enum.DNSRecordMX, Name: "example.com", Content: "mx.hostedemail.com"})
	assert.Equal(t, enum.Propagated, mx.Status)
	assert.Equal(t, []string{"10 mx.hostedemail.com"}, mx.Resolvers[0].Values)

	cname := s.Sample(context.Background(), &models.DNSRecord{RecordType: enum.DNSRecordCNAME, Name: "track.example.com", Content: "custosmetrics.com"})
	assert.Equal(t, enum.Propagated, cname.Status)
}

func TestSample_ResolverErrorsCountAsMisses(t *testing.T) {
	ex := &fakeExchanger{answers: map[string]func(*dns.Msg) (*dns.Msg, error){
		"a:53": rcode(dns.RcodeServerFailure),
	}}
	s := NewPropagationSamplerWithExchanger([]string{"a:53", "down:53"}, ex)

	result := s.Sample(context.Background(), &models.DNSRecord{RecordType: enum.DNSRecordTXT, Name: "example.com", Content: "x"})

	assert.Equal(t, 0, result.Coverage)
	assert.Equal(t, enum.NotPropagated, result.Status)
	assert.Equal(t, "SERVFAIL", result.Resolvers[0].Error)
	assert.NotEmpty(t, result.Resolvers[1].Error)
}

func TestSample_TruncatedRetriesOverTCP(t *testing.T) {
	udp := &fakeExchanger{answers: map[string]func(*dns.Msg) (*dns.Msg, error){
		"a:53": func(m *dns.Msg) (*dns.Msg, error) {
			resp := new(dns.Msg)
			resp.SetReply(m)
			resp.Truncated = true
			return resp, nil
		},
	}}
	tcp := &fakeExchanger{answers: map[string]func(*dns.Msg) (*dns.Msg, error){
		"a:53": reply(`example.com. 300 IN TXT "long"`),
	}}
	s := &propagationSampler{resolvers: []string{"a:53"}, querier: &querier{udp: udp, tcp: tcp}}

	result := s.Sample(context.Background(), &models.DNSRecord{RecordType: enum.DNSRecordTXT, Name: "example.com", Content: "long"})

	assert.Equal(t, 100, result.Coverage)
	assert.Equal(t, 1, tcp.calls)
}

func TestCoverage(t *testing.T) {
	assert.Equal(t, 0, Coverage(0, 0))
	assert.Equal(t, 33, Coverage(1, 3))
	assert.Equal(t, 67, Coverage(2, 3))
	assert.Equal(t, 50, Coverage(2, 4))
	assert.Equal(t, 100, Coverage(4, 4))
}

package resolver

import (
	"context"
	"time"

	"github.com/miekg/dns"
	"github.com/pkg/errors"

	er "github.com/customeros/domainstack/internal/errors"
)

// Exchanger sends one DNS message to a server; *dns.Client satisfies it.
type Exchanger interface {
	ExchangeContext(ctx context.Context, m *dns.Msg, address string) (*dns.Msg, time.Duration, error)
}

type querier struct {
	udp     Exchanger
	tcp     Exchanger
	timeout time.Duration
}

func newQuerier(timeout time.Duration) *querier {
	return &querier{
		udp:     &dns.Client{Net: "udp", Timeout: timeout},
		tcp:     &dns.Client{Net: "tcp", Timeout: timeout},
		timeout: timeout,
	}
}

// query asks server for name/qtype with recursion, falling back to TCP on truncation.
func (q *querier) query(ctx context.Context, server, name string, qtype uint16) (*dns.Msg, error) {
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.RecursionDesired = true
	m.SetEdns0(4096, false)

	resp, _, err := q.udp.ExchangeContext(ctx, m, server)
	if err == nil && resp != nil && resp.Truncated && q.tcp != nil {
		resp, _, err = q.tcp.ExchangeContext(ctx, m, server)
	}
	if err != nil {
		return nil, er.Transient("dns.query", errors.Wrapf(err, "query %s %s via %s", dns.TypeToString[qtype], name, server))
	}
	if resp == nil {
		return nil, er.Transient("dns.query", errors.Errorf("empty response from %s", server))
	}
	return resp, nil
}

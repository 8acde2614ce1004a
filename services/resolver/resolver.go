package resolver

import (
	"context"
	"sort"

	"github.com/miekg/dns"
	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/customeros/domainstack/config"
	"github.com/customeros/domainstack/interfaces"
	er "github.com/customeros/domainstack/internal/errors"
	"github.com/customeros/domainstack/internal/tracing"
	"github.com/customeros/domainstack/internal/utils"
)

type nameserverResolver struct {
	server  string
	querier *querier
}

func NewNameserverResolver(cfg *config.PropagationConfig) interfaces.NameserverResolver {
	return &nameserverResolver{
		server:  cfg.NSResolver,
		querier: newQuerier(cfg.QueryTimeout),
	}
}

// NewNameserverResolverWithExchanger builds a resolver on a custom transport.
func NewNameserverResolverWithExchanger(server string, exchanger Exchanger) interfaces.NameserverResolver {
	return &nameserverResolver{
		server:  server,
		querier: &querier{udp: exchanger, tcp: exchanger},
	}
}

// ResolveNameservers returns the delegated NS hosts, normalised and sorted.
// A missing domain or empty NS set yields er.ErrNoNameservers.
func (r *nameserverResolver) ResolveNameservers(ctx context.Context, domain string) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "NameserverResolver.ResolveNameservers")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("domain", domain)

	resp, err := r.querier.query(ctx, r.server, domain, dns.TypeNS)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	switch resp.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		span.LogFields(tracingLog.String("result.rcode", "NXDOMAIN"))
		return nil, er.ErrNoNameservers
	default:
		err = errors.Errorf("nameserver lookup for %s failed with %s", domain, dns.RcodeToString[resp.Rcode])
		tracing.TraceErr(span, err)
		return nil, err
	}

	var nameservers []string
	for _, rr := range resp.Answer {
		if ns, ok := rr.(*dns.NS); ok {
			nameservers = append(nameservers, utils.NormalizeHostname(ns.Ns))
		}
	}
	if len(nameservers) == 0 {
		return nil, er.ErrNoNameservers
	}
	sort.Strings(nameservers)

	span.LogFields(tracingLog.String("result.nameservers", utils.SliceToString(nameservers)))
	return nameservers, nil
}

package resolver

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/miekg/dns"
	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"golang.org/x/sync/errgroup"

	"github.com/customeros/domainstack/config"
	"github.com/customeros/domainstack/interfaces"
	"github.com/customeros/domainstack/internal/enum"
	"github.com/customeros/domainstack/internal/models"
	"github.com/customeros/domainstack/internal/tracing"
	"github.com/customeros/domainstack/internal/utils"
)

type propagationSampler struct {
	resolvers []string
	querier   *querier
}

func NewPropagationSampler(cfg *config.PropagationConfig) interfaces.PropagationSampler {
	return &propagationSampler{
		resolvers: cfg.Resolvers,
		querier:   newQuerier(cfg.QueryTimeout),
	}
}

func NewPropagationSamplerWithExchanger(resolvers []string, exchanger Exchanger) interfaces.PropagationSampler {
	return &propagationSampler{
		resolvers: resolvers,
		querier:   &querier{udp: exchanger, tcp: exchanger},
	}
}

// Sample asks every panel resolver for record concurrently. Failed lookups count as non-matching.
func (s *propagationSampler) Sample(ctx context.Context, record *models.DNSRecord) interfaces.SampleResult {
	span, ctx := opentracing.StartSpanFromContext(ctx, "PropagationSampler.Sample")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, record.ID)
	span.LogKV("type", record.RecordType, "name", record.Name)

	answers := make([]interfaces.ResolverAnswer, len(s.resolvers))
	g, gctx := errgroup.WithContext(ctx)
	for i, server := range s.resolvers {
		i, server := i, server
		g.Go(func() error {
			answers[i] = s.ask(gctx, server, record)
			return nil
		})
	}
	_ = g.Wait()

	matching := 0
	for _, answer := range answers {
		if answer.Matched {
			matching++
		}
	}
	coverage := Coverage(matching, len(s.resolvers))
	result := interfaces.SampleResult{
		Status:    StatusForCoverage(coverage),
		Coverage:  coverage,
		Resolvers: answers,
	}

	span.LogFields(
		tracingLog.Int("result.coverage", result.Coverage),
		tracingLog.String("result.status", result.Status.String()),
	)
	return result
}

func (s *propagationSampler) ask(ctx context.Context, server string, record *models.DNSRecord) interfaces.ResolverAnswer {
	answer := interfaces.ResolverAnswer{Resolver: server}

	qtype, ok := queryType(record.RecordType)
	if !ok {
		answer.Error = fmt.Sprintf("unsupported record type %s", record.RecordType)
		return answer
	}

	resp, err := s.querier.query(ctx, server, record.Name, qtype)
	if err != nil {
		answer.Error = err.Error()
		return answer
	}
	if resp.Rcode != dns.RcodeSuccess {
		answer.Error = dns.RcodeToString[resp.Rcode]
		return answer
	}

	answer.Values = extractValues(resp.Answer, qtype)
	answer.Matched = matches(record, resp.Answer, qtype)
	return answer
}

// Coverage is the rounded percentage of matching resolvers.
func Coverage(matching, panel int) int {
	if panel <= 0 {
		return 0
	}
	return int(math.Round(float64(matching) * 100 / float64(panel)))
}

func StatusForCoverage(coverage int) enum.PropagationStatus {
	switch {
	case coverage >= 100:
		return enum.Propagated
	case coverage <= 0:
		return enum.NotPropagated
	default:
		return enum.Propagating
	}
}

func queryType(recordType enum.DNSRecordType) (uint16, bool) {
	switch recordType {
	case enum.DNSRecordTXT:
		return dns.TypeTXT, true
	case enum.DNSRecordMX:
		return dns.TypeMX, true
	case enum.DNSRecordCNAME:
		return dns.TypeCNAME, true
	}
	return 0, false
}

func matches(record *models.DNSRecord, rrs []dns.RR, qtype uint16) bool {
	for _, rr := range rrs {
		switch v := rr.(type) {
		case *dns.TXT:
			if qtype == dns.TypeTXT && strings.Join(v.Txt, "") == record.Content {
				return true
			}
		case *dns.MX:
			if qtype == dns.TypeMX && utils.HasHostnameSuffix(v.Mx, record.Content) {
				return true
			}
		case *dns.CNAME:
			if qtype == dns.TypeCNAME && utils.HasHostnameSuffix(v.Target, record.Content) {
				return true
			}
		}
	}
	return false
}

func extractValues(rrs []dns.RR, qtype uint16) []string {
	var values []string
	for _, rr := range rrs {
		switch v := rr.(type) {
		case *dns.TXT:
			if qtype == dns.TypeTXT {
				values = append(values, strings.Join(v.Txt, ""))
			}
		case *dns.MX:
			if qtype == dns.TypeMX {
				values = append(values, fmt.Sprintf("%d %s", v.Preference, utils.NormalizeHostname(v.Mx)))
			}
		case *dns.CNAME:
			if qtype == dns.TypeCNAME {
				values = append(values, utils.NormalizeHostname(v.Target))
			}
		}
	}
	return values
}

package tracing

import (
	"io"

	"github.com/opentracing/opentracing-go"
	"github.com/uber/jaeger-client-go/config"
	"github.com/uber/jaeger-client-go/log/zap"

	"github.com/customeros/domainstack/internal/logger"
)

const defaultServiceName = "domainstack"

type JaegerConfig struct {
	Endpoint     string  `env:"JAEGER_ENDPOINT"`
	ServiceName  string  `env:"JAEGER_SERVICE_NAME" envDefault:"domainstack"`
	AgentHost    string  `env:"JAEGER_AGENT_HOST" envDefault:"localhost"`
	AgentPort    string  `env:"JAEGER_AGENT_PORT" envDefault:"6831"`
	Enabled      bool    `env:"JAEGER_ENABLED" envDefault:"true"`
	LogSpans     bool    `env:"JAEGER_REPORTER_LOG_SPANS" envDefault:"false"`
	SamplerType  string  `env:"JAEGER_SAMPLER_TYPE" envDefault:"const"`
	SamplerParam float64 `env:"JAEGER_SAMPLER_PARAM" envDefault:"1"`
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewJaegerTracer builds the process tracer. A disabled config yields a no-op tracer.
func NewJaegerTracer(jaegerConfig *JaegerConfig, log logger.Logger) (opentracing.Tracer, io.Closer, error) {
	if jaegerConfig == nil || !jaegerConfig.Enabled {
		return opentracing.NoopTracer{}, nopCloser{}, nil
	}
	return jaegerConfiguration(jaegerConfig).NewTracer(
		config.Logger(zap.NewLogger(log.Logger())),
		config.Tag("app.source", defaultServiceName),
	)
}

func jaegerConfiguration(jaegerConfig *JaegerConfig) *config.Configuration {
	serviceName := jaegerConfig.ServiceName
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	cfg := &config.Configuration{
		ServiceName: serviceName,
		Sampler: &config.SamplerConfig{
			Type:  jaegerConfig.SamplerType,
			Param: jaegerConfig.SamplerParam,
		},
		Reporter: &config.ReporterConfig{
			LogSpans: jaegerConfig.LogSpans,
		},
	}

	if jaegerConfig.Endpoint != "" {
		cfg.Reporter.CollectorEndpoint = jaegerConfig.Endpoint
	} else {
		cfg.Reporter.LocalAgentHostPort = jaegerConfig.AgentHost + ":" + jaegerConfig.AgentPort
	}
	return cfg
}

package tracing

import (
	"io"
	"os"

	"github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"
	"github.com/uber/jaeger-client-go/config"
	"github.com/uber/jaeger-lib/metrics"
)

// InitGlobalTracer builds a jaeger tracer from the JAEGER_* environment and installs it as the
// global tracer. JAEGER_DISABLED=true yields a no-op tracer.
func InitGlobalTracer(defaultServiceName string) (io.Closer, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = defaultServiceName
	}
	if os.Getenv("JAEGER_AGENT_HOST") == "" && os.Getenv("JAEGER_ENDPOINT") == "" && os.Getenv("JAEGER_DISABLED") == "" {
		cfg.Disabled = true
	}

	tracer, closer, err := cfg.NewTracer(config.Logger(jaegerLogger{}), config.Metrics(metrics.NullFactory))
	if err != nil {
		return nil, err
	}
	opentracing.SetGlobalTracer(tracer)
	logrus.WithFields(logrus.Fields{"service": cfg.ServiceName, "disabled": cfg.Disabled}).Info("tracer initialized")
	return closer, nil
}

type jaegerLogger struct{}

func (jaegerLogger) Error(msg string) {
	logrus.WithField("component", "jaeger").Error(msg)
}

func (jaegerLogger) Infof(msg string, args ...interface{}) {
	logrus.WithField("component", "jaeger").Infof(msg, args...)
}

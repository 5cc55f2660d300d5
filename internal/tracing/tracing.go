package tracing

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials"
)

const instrumentationName = "github.com/osvaldoandrade/gradeq"

type Config struct {
	Enabled     bool
	ServiceName string

	OTLPEndpoint string
	OTLPInsecure bool

	SampleRatio float64
}

// settings is Config resolved against the standard OTEL_* variables.
type settings struct {
	service  string
	endpoint string
	insecure bool
	ratio    float64
}

func resolve(cfg Config) settings {
	st := settings{
		service:  firstSet(cfg.ServiceName, os.Getenv("OTEL_SERVICE_NAME"), "gradeq"),
		endpoint: sanitizeEndpoint(firstSet(cfg.OTLPEndpoint, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), "localhost:4317")),
		insecure: cfg.OTLPInsecure,
		ratio:    cfg.SampleRatio,
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); v != "" {
		st.insecure = ParseBool(v)
	}
	if st.ratio <= 0 || st.ratio > 1 {
		st.ratio = 1
	}
	return st
}

func (st settings) exporterOptions() []otlptracegrpc.Option {
	creds := otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, ""))
	if st.insecure {
		creds = otlptracegrpc.WithInsecure()
	}
	return []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(st.endpoint), creds}
}

func noopShutdown(context.Context) error { return nil }

// Setup installs the global tracer provider and returns its shutdown func.
// Exporter errors disable tracing instead of failing the run.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (func(context.Context) error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	otel.SetTextMapPropagator(propagation.TraceContext{})
	if !cfg.Enabled {
		return noopShutdown, nil
	}

	st := resolve(cfg)
	exp, err := otlptracegrpc.New(ctx, st.exporterOptions()...)
	if err != nil {
		logger.Warn("trace exporter unavailable, tracing off", "endpoint", st.endpoint, "err", err)
		return noopShutdown, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(st.service)))
	if err != nil {
		res = resource.Default()
	}

	// Spans are exported synchronously; the process exits right after the run.
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(st.ratio))),
	)
	otel.SetTracerProvider(tp)
	logger.Debug("tracing enabled", "endpoint", st.endpoint, "service", st.service, "sample_ratio", st.ratio)
	return tp.Shutdown, nil
}

// Tracer returns the gradeq tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// InjectHeaders injects W3C trace context headers into h. Baggage is not
// propagated to the grading service.
func InjectHeaders(ctx context.Context, h http.Header) {
	if h == nil {
		return
	}
	propagation.TraceContext{}.Inject(ctx, propagation.HeaderCarrier(h))
}

// sanitizeEndpoint reduces a URL-style endpoint to the host:port the gRPC
// exporter dials.
func sanitizeEndpoint(raw string) string {
	raw = strings.TrimSpace(raw)
	if u, err := url.Parse(raw); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return u.Host
	}
	return strings.TrimSuffix(raw, "/")
}

func firstSet(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// ParseBool reads a boolean environment value. Unknown spellings are false.
func ParseBool(v string) bool {
	switch strings.TrimSpace(strings.ToLower(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}

// ParseSampleRatio returns 0 for an empty or malformed ratio, which Setup
// treats as "sample everything".
func ParseSampleRatio(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return f
}

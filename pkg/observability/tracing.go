// Package observability provides optional OpenTelemetry tracing for export
// runs. Tracing is off by default; when enabled, each run produces one span
// per pipeline stage on the stdout exporter.
package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/eventrelay/eventrelay/pkg/errors"
)

const tracerName = "github.com/eventrelay/eventrelay"

var (
	provider *sdktrace.TracerProvider
	initOnce sync.Once
)

// Config controls tracing setup.
type Config struct {
	Enabled     bool
	PrettyPrint bool
}

// Init installs the global tracer provider. Safe to call more than once;
// only the first call takes effect.
func Init(cfg Config) error {
	if !cfg.Enabled {
		return nil
	}

	var err error
	initOnce.Do(func() {
		var opts []stdouttrace.Option
		if cfg.PrettyPrint {
			opts = append(opts, stdouttrace.WithPrettyPrint())
		}

		var exporter *stdouttrace.Exporter
		exporter, err = stdouttrace.New(opts...)
		if err != nil {
			err = errors.Wrap(err, errors.ErrorTypeInternal, "failed to create trace exporter")
			return
		}

		provider = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
		)
		otel.SetTracerProvider(provider)
	})

	return err
}

// Tracer returns the tracer spans are started from. Without Init this is
// the no-op global tracer, so callers never need to branch on whether
// tracing is enabled.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span on the run tracer.
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name)
}

// Shutdown flushes any buffered spans.
func Shutdown(ctx context.Context) error {
	if provider == nil {
		return nil
	}
	return provider.Shutdown(ctx)
}

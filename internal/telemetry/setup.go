package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
)

// Options selects how telemetry is exported.
type Options struct {
	ServiceName  string
	OTLPEndpoint string
	Environment  string
	LogLevel     string
	// Disabled skips every OTLP exporter and logs JSON to stdout.
	Disabled bool
}

// Providers owns the SDK providers created by Setup.
type Providers struct {
	Logger *slog.Logger

	conn *grpc.ClientConn
	tp   *sdktrace.TracerProvider
	mp   *sdkmetric.MeterProvider
	lp   *sdklog.LoggerProvider
}

// Setup initializes tracing, metrics and logging in that order so that log
// records can be correlated with spans. All three exporters share one
// connection to the collector.
func Setup(ctx context.Context, opts Options) (*Providers, error) {
	stdout := NewStdoutLogger(os.Stdout, opts.ServiceName, opts.LogLevel)
	if opts.Disabled {
		stdout.Info("telemetry export disabled")
		return &Providers{Logger: stdout}, nil
	}

	// Create resource with service information
	res, err := newResource(opts.ServiceName, opts.Environment)
	if err != nil {
		return nil, err
	}

	p := &Providers{}
	if p.conn, err = dialCollector(opts.OTLPEndpoint); err != nil {
		return nil, err
	}

	// Tracer, meter and logger providers share the connection
	if p.tp, err = newTracerProvider(ctx, p.conn, res); err != nil {
		p.Shutdown(ctx)
		return nil, err
	}
	if p.mp, err = newMeterProvider(ctx, p.conn, res); err != nil {
		p.Shutdown(ctx)
		return nil, err
	}
	if p.lp, p.Logger, err = newLoggerProvider(ctx, p.conn, res, opts.ServiceName); err != nil {
		p.Shutdown(ctx)
		return nil, err
	}

	stdout.Info("telemetry initialized", slog.String("endpoint", opts.OTLPEndpoint))
	return p, nil
}

// Shutdown flushes every provider that was started, then closes the collector connection.
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	if p.lp != nil {
		errs = append(errs, p.lp.Shutdown(ctx))
	}
	if p.mp != nil {
		errs = append(errs, p.mp.Shutdown(ctx))
	}
	if p.tp != nil {
		errs = append(errs, p.tp.Shutdown(ctx))
	}
	// Close the shared connection after every exporter has flushed
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close collector connection: %w", err))
		}
	}
	return errors.Join(errs...)
}

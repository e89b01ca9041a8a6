// Package context carries the process-wide collaborators of osppmod commands:
// the logger, the metrics registry and the writer reports are printed to.
package context

import (
	"context"
	"io"
	"os"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
)

type contextKey int

const (
	loggerKey contextKey = iota
	registryKey
	outputKey
)

func WithLogger(ctx context.Context, logger log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// Logger returns the logger stored in ctx, or a no-op logger.
func Logger(ctx context.Context) log.Logger {
	if logger, ok := ctx.Value(loggerKey).(log.Logger); ok {
		return logger
	}
	return log.NewNopLogger()
}

func WithRegistry(ctx context.Context, registry prometheus.Registerer) context.Context {
	return context.WithValue(ctx, registryKey, registry)
}

// Registry returns the registerer stored in ctx. Without one, metrics are
// collected into a throwaway registry.
func Registry(ctx context.Context) prometheus.Registerer {
	if registry, ok := ctx.Value(registryKey).(prometheus.Registerer); ok {
		return registry
	}
	return prometheus.NewRegistry()
}

// WithOutput sets where command reports go. Logs are not affected.
func WithOutput(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, outputKey, w)
}

func Output(ctx context.Context) io.Writer {
	if w, ok := ctx.Value(outputKey).(io.Writer); ok {
		return w
	}
	return os.Stdout
}

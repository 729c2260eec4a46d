// Command dispatchd serves the outbound-call dispatch API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/outdial/outdial-core/core/dispatch"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		slog.Error("dispatchd failed", "error", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "dispatchd",
		Short:        "Outbound call dispatch service",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := dispatch.LoadConfig(configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			shutdownTracing, err := setupTracing(ctx)
			if err != nil {
				return fmt.Errorf("setting up tracing: %w", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTracing(shutdownCtx); err != nil {
					slog.Warn("trace pipeline shutdown failed", "error", err)
				}
			}()

			service, err := dispatch.NewService(config)
			if err != nil {
				return err
			}
			return service.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "dispatchd.yaml", "path to the YAML configuration file")
	return cmd
}

// setupTracing installs a global OTLP trace pipeline. Without an
// OTEL_EXPORTER_OTLP_ENDPOINT the exporter targets localhost:4317; spans are
// dropped there when no collector answers.
func setupTracing(ctx context.Context) (func(context.Context) error, error) {
	exporter, err := otlptracegrpc.New(ctx)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName("dispatchd"),
	))
	if err != nil {
		res = resource.Default()
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return provider.Shutdown, nil
}

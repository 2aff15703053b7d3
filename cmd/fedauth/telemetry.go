package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	fedAuth "github.com/MrEthical07/fedAuth"
	"github.com/MrEthical07/fedAuth/internal/config"
	otelexport "github.com/MrEthical07/fedAuth/metrics/export/otel"
)

type shutdownFunc func(context.Context) error

// startMetricsExport pushes facade metrics over OTLP/HTTP when
// metrics.otel.endpoint is set. The returned func flushes and stops it.
func startMetricsExport(ctx context.Context, cfg config.OTelConfig, facade *fedAuth.Facade, logger *slog.Logger) (shutdownFunc, error) {
	if !cfg.Enabled() {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpointURL(strings.TrimRight(cfg.Endpoint, "/")+"/v1/metrics"),
	)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}
	return newMeterExport(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.Interval)), cfg, facade, logger)
}

func newMeterExport(reader sdkmetric.Reader, cfg config.OTelConfig, facade *fedAuth.Facade, logger *slog.Logger) (shutdownFunc, error) {
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))),
	)
	exp, err := otelexport.NewOTelExporter(provider.Meter("github.com/MrEthical07/fedAuth"), facade)
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, fmt.Errorf("register otel instruments: %w", err)
	}
	logger.Info("exporting metrics over otlp", "endpoint", cfg.Endpoint, "interval", cfg.Interval)

	return func(ctx context.Context) error {
		return errors.Join(exp.Close(), provider.Shutdown(ctx))
	}, nil
}

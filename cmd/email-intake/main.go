package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/llm-email-analyzer/internal/config"
	"github.com/mikey/llm-email-analyzer/internal/core"
	"github.com/mikey/llm-email-analyzer/internal/di"
	"github.com/mikey/llm-email-analyzer/internal/metrics"
	"github.com/mikey/llm-email-analyzer/internal/ports"
)

func main() {
	configFile := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Build the dependency injection container
	container, err := di.BuildContainer(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	cfg *config.Config,
	logger *zap.Logger,
	intake ports.EmailIntake,
	gateway core.ModelGateway,
	store core.RecordStore,
) error {
	defer logger.Sync()

	gatewayCfg, err := cfg.GetGateway()
	if err != nil {
		return err
	}
	if checker, ok := gateway.(core.HealthChecker); ok && gatewayCfg.CheckOnStart {
		ctx, cancel := context.WithTimeout(context.Background(), gatewayCfg.Timeout)
		err := checker.Ping(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("%w: %w", core.ErrGatewayUnavailable, err)
		}
	}

	var metricsServer *http.Server
	if metricsCfg := cfg.GetMetrics(); metricsCfg.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{
			Addr:              metricsCfg.ListenAddress,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("Metrics server starting", zap.String("address", metricsCfg.ListenAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server error", zap.Error(err))
			}
		}()
	}

	// Start the intake
	if err := intake.Start(); err != nil {
		logger.Error("Failed to start intake", zap.Error(err))
		return err
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	if err := intake.Stop(); err != nil {
		logger.Error("Failed to stop intake", zap.Error(err))
	}

	if metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.Error("Failed to stop metrics server", zap.Error(err))
		}
		cancel()
	}

	// Close any resources that need closing
	for name, resource := range map[string]any{"model gateway": gateway, "record store": store} {
		if closer, ok := resource.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				logger.Error("Failed to close "+name, zap.Error(err))
			}
		}
	}

	logger.Info("Shutdown complete")
	return nil
}

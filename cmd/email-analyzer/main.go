package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-analyzer/internal/adapters/source"
	"github.com/mikey/llm-email-analyzer/internal/config"
	"github.com/mikey/llm-email-analyzer/internal/core"
	"github.com/mikey/llm-email-analyzer/internal/di"
	"github.com/mikey/llm-email-analyzer/internal/ports"
)

func main() {
	flags := di.ParseFlags()

	// Build the dependency injection container
	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case flags.Stats:
		err = container.Invoke(func(p listParams) error { return printStats(ctx, p) })
	case flags.List:
		err = container.Invoke(func(p listParams) error { return list(ctx, p) })
	default:
		err = container.Invoke(func(p runParams) error { return run(ctx, container, p) })
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", dig.RootCause(err))
		os.Exit(1)
	}
}

type listParams struct {
	dig.In

	Flags    *di.CLIFlags
	Logger   *zap.Logger
	Store    core.RecordStore
	Reporter ports.Reporter
}

// list prints stored records matching the listing flags
func list(ctx context.Context, p listParams) error {
	defer p.Logger.Sync()
	defer closeResource(p.Logger, "record store", p.Store)

	records, err := queryRecords(ctx, p)
	if err != nil {
		return err
	}

	p.Reporter.Records(records)
	return nil
}

// printStats prints aggregate statistics over the records matching the listing flags
func printStats(ctx context.Context, p listParams) error {
	defer p.Logger.Sync()
	defer closeResource(p.Logger, "record store", p.Store)

	records, err := queryRecords(ctx, p)
	if err != nil {
		return err
	}

	p.Reporter.Stats(core.SummarizeRecords(records, p.Flags.TopTags))
	return nil
}

func queryRecords(ctx context.Context, p listParams) ([]core.AnalysisRecord, error) {
	filter, err := p.Flags.RecordFilter()
	if err != nil {
		return nil, err
	}

	records, err := p.Store.QueryByFilter(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	return records, nil
}

type runParams struct {
	dig.In

	Flags    *di.CLIFlags
	Config   *config.Config
	Logger   *zap.Logger
	Gateway  core.ModelGateway
	Store    core.RecordStore
	Runner   *core.BatchRunner
	Reporter ports.Reporter
}

// run analyzes the configured source, or a single message, and prints the summary
func run(ctx context.Context, container *dig.Container, p runParams) error {
	defer p.Logger.Sync()
	defer closeResource(p.Logger, "model gateway", p.Gateway)
	defer closeResource(p.Logger, "record store", p.Store)

	gatewayCfg, err := p.Config.GetGateway()
	if err != nil {
		return err
	}

	// Startup check: an unreachable model service is fatal before any email is read
	if checker, ok := p.Gateway.(core.HealthChecker); ok && gatewayCfg.CheckOnStart {
		pingCtx, cancel := context.WithTimeout(ctx, gatewayCfg.Timeout)
		err := checker.Ping(pingCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("%w: %w", core.ErrGatewayUnavailable, err)
		}
		p.Logger.Info("Model service is reachable", zap.String("provider", p.Config.GetLLM().Provider))
	}

	emails, err := loadEmails(ctx, container, p.Flags)
	if err != nil {
		return err
	}

	p.Runner.OnProgress(p.Reporter.Progress)
	stats, err := p.Runner.RunBatch(ctx, emails)
	p.Reporter.Summary(stats)
	if err != nil {
		return fmt.Errorf("batch interrupted: %w", err)
	}
	return nil
}

// loadEmails resolves the email source lazily so -message works without a configured source
func loadEmails(ctx context.Context, container *dig.Container, flags *di.CLIFlags) ([]core.EmailInput, error) {
	if flags.Message != "" {
		email, err := readMessage(flags.Message)
		if err != nil {
			return nil, err
		}
		return []core.EmailInput{email}, nil
	}

	var emails []core.EmailInput
	err := container.Invoke(func(src ports.EmailSource) error {
		var err error
		emails, err = src.Load(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load emails: %w", dig.RootCause(err))
	}
	return emails, nil
}

func readMessage(path string) (core.EmailInput, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return core.EmailInput{}, fmt.Errorf("failed to open message: %w", err)
		}
		defer f.Close()
		r = f
	}
	return source.ParseMessage(r, uuid.NewString)
}

func closeResource(logger *zap.Logger, name string, resource any) {
	if closer, ok := resource.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close "+name, zap.Error(err))
		}
	}
}

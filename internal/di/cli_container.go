package di

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/llm-email-analyzer/internal/adapters/report"
	"github.com/mikey/llm-email-analyzer/internal/config"
	"github.com/mikey/llm-email-analyzer/internal/core"
	"github.com/mikey/llm-email-analyzer/internal/logging"
	"github.com/mikey/llm-email-analyzer/internal/ports"
)

// unset marks numeric flags that should fall back to the configuration
const unset = -1

// CLIFlags contains all command line flags for the CLI application
type CLIFlags struct {
	ConfigFile string

	// LLM provider flags
	Provider string
	Model    string

	// Analysis flags
	Threshold     float64
	MaxRetries    int
	RetryStrategy string
	MaxEmails     int

	// Input flags
	SourceType string
	Input      string
	Message    string

	// Store flags
	StoreType  string
	SQLitePath string

	// Listing flags
	List          bool
	Stats         bool
	TopTags       int
	Sentiment     string
	Category      string
	MinConfidence float64
	MaxConfidence float64
	Tag           string
	Since         string
	Until         string

	SkipHealthCheck bool
	Verbose         bool
	JSONLog         bool
}

// ParseFlags parses command line flags and returns a CLIFlags struct
func ParseFlags() *CLIFlags {
	return ParseFlagSet(flag.CommandLine, os.Args[1:])
}

// ParseFlagSet parses args into a CLIFlags struct using fs
func ParseFlagSet(fs *flag.FlagSet, args []string) *CLIFlags {
	flags := &CLIFlags{}

	fs.StringVar(&flags.ConfigFile, "config", "", "Path to config file")

	// LLM provider flags
	fs.StringVar(&flags.Provider, "provider", "", "LLM provider (ollama, openai, gemini, bedrock)")
	fs.StringVar(&flags.Model, "model", "", "Model name for the selected provider")

	// Analysis flags
	fs.Float64Var(&flags.Threshold, "threshold", unset, "Confidence threshold (0-100)")
	fs.IntVar(&flags.MaxRetries, "max-retries", unset, "Maximum analysis rounds per email")
	fs.StringVar(&flags.RetryStrategy, "retry-strategy", "", "Retry prompt strategy (repeat, emphasize)")
	fs.IntVar(&flags.MaxEmails, "max-emails", unset, "Maximum number of emails to process (0 for all)")

	// Input flags
	fs.StringVar(&flags.SourceType, "source", "", "Email source type (csv, eml)")
	fs.StringVar(&flags.Input, "input", "", "CSV file or .eml directory to read")
	fs.StringVar(&flags.Message, "message", "", "Analyze a single RFC 5322 message file (- for stdin)")

	// Store flags
	fs.StringVar(&flags.StoreType, "store", "", "Record store type (memory, sqlite, mysql, postgres)")
	fs.StringVar(&flags.SQLitePath, "db", "", "SQLite database path")

	// Listing flags
	fs.BoolVar(&flags.List, "list", false, "List stored analysis records instead of running a batch")
	fs.BoolVar(&flags.Stats, "stats", false, "Print statistics over stored analysis records instead of running a batch")
	fs.IntVar(&flags.TopTags, "top-tags", core.DefaultTopTags, "Number of most frequent tags shown by -stats")
	fs.StringVar(&flags.Sentiment, "sentiment", "", "List only records with this sentiment")
	fs.StringVar(&flags.Category, "category", "", "List only records with this category")
	fs.Float64Var(&flags.MinConfidence, "min-confidence", unset, "List only records at or above this confidence")
	fs.Float64Var(&flags.MaxConfidence, "max-confidence", unset, "List only records at or below this confidence")
	fs.StringVar(&flags.Tag, "tag", "", "List only records carrying this tag")
	fs.StringVar(&flags.Since, "since", "", "List only records created at or after this time (YYYY-MM-DD or RFC 3339)")
	fs.StringVar(&flags.Until, "until", "", "List only records created at or before this time (YYYY-MM-DD or RFC 3339)")

	fs.BoolVar(&flags.SkipHealthCheck, "skip-health-check", false, "Do not check the model service before the batch")
	fs.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")

	_ = fs.Parse(args)
	return flags
}

// RecordFilter builds the store query described by the listing flags
func (f *CLIFlags) RecordFilter() (core.RecordFilter, error) {
	var filter core.RecordFilter

	if f.Sentiment != "" {
		sentiment, ok := core.MatchSentiment(f.Sentiment)
		if !ok {
			return filter, fmt.Errorf("%w: unknown sentiment %q", core.ErrValidation, f.Sentiment)
		}
		filter.Sentiment = sentiment
	}
	if f.Category != "" {
		category, ok := core.MatchCategory(f.Category)
		if !ok {
			return filter, fmt.Errorf("%w: unknown category %q", core.ErrValidation, f.Category)
		}
		filter.Classification = category
	}
	if f.MinConfidence != unset {
		v := f.MinConfidence
		filter.MinConfidence = &v
	}
	if f.MaxConfidence != unset {
		v := f.MaxConfidence
		filter.MaxConfidence = &v
	}
	filter.Tag = strings.TrimSpace(f.Tag)

	var err error
	if filter.Since, err = parseTime(f.Since, false); err != nil {
		return filter, err
	}
	if filter.Until, err = parseTime(f.Until, true); err != nil {
		return filter, err
	}
	return filter, nil
}

// parseTime accepts RFC3339 or a bare date. A bare date used as an upper
// bound covers the whole day.
func parseTime(value string, endOfDay bool) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		if endOfDay {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: invalid time %q", core.ErrValidation, value)
}

// BuildCLIContainer creates and configures a dependency injection container for the CLI application
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		cfg, err := config.NewWithFile(flags.ConfigFile)
		if err != nil {
			return nil, err
		}
		if used := cfg.GetViper().ConfigFileUsed(); used != "" {
			logger.Info("Loaded configuration from file", zap.String("file", used))
		}

		applyFlags(cfg, flags)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}); err != nil {
		return nil, err
	}

	if err := provideAnalysis(container); err != nil {
		return nil, err
	}

	// Register reporter
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) ports.Reporter {
		return report.NewConsoleReporter(os.Stdout, logger, flags.Verbose)
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// applyFlags overrides configuration values with the flags that were set
func applyFlags(cfg *config.Config, flags *CLIFlags) {
	if flags.Provider != "" {
		cfg.Set("llm.provider", flags.Provider)
	}
	if flags.Model != "" {
		switch cfg.GetLLM().Provider {
		case "bedrock":
			cfg.Set("bedrock.model_id", flags.Model)
		default:
			cfg.Set(cfg.GetLLM().Provider+".model_name", flags.Model)
		}
	}

	if flags.Threshold != unset {
		cfg.Set("analysis.confidence_threshold", flags.Threshold)
	}
	if flags.MaxRetries != unset {
		cfg.Set("analysis.max_retries", flags.MaxRetries)
	}
	if flags.RetryStrategy != "" {
		cfg.Set("analysis.retry_strategy", flags.RetryStrategy)
	}
	if flags.MaxEmails != unset {
		cfg.Set("batch.max_emails", flags.MaxEmails)
	}

	if flags.SourceType != "" {
		cfg.Set("sources.type", flags.SourceType)
	}
	if flags.Input != "" {
		switch cfg.GetSource().Type {
		case "eml":
			cfg.Set("sources.eml_dir", flags.Input)
		default:
			cfg.Set("sources.csv_path", flags.Input)
		}
	}

	if flags.StoreType != "" {
		cfg.Set("store.type", flags.StoreType)
	}
	if flags.SQLitePath != "" {
		cfg.Set("store.sqlite_path", flags.SQLitePath)
	}
	if flags.SkipHealthCheck {
		cfg.Set("gateway.check_on_start", false)
	}
}

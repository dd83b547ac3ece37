package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mikey/llm-email-analyzer/internal/core"
	"github.com/mikey/llm-email-analyzer/internal/exclusion"
	"go.uber.org/zap"
)

var requiredColumns = []string{"date", "body"}

// CSVSource reads emails from a CSV corpus with a header row
type CSVSource struct {
	path    string
	checker *exclusion.Checker
	logger  *zap.Logger
}

// NewCSVSource creates a new CSV email source
func NewCSVSource(path string, checker *exclusion.Checker, logger *zap.Logger) *CSVSource {
	return &CSVSource{
		path:    path,
		checker: checker,
		logger:  logger,
	}
}

// Load reads every row of the file. A missing file or a header lacking the
// date or body column is an error; nothing is returned in that case.
func (s *CSVSource) Load(ctx context.Context) ([]core.EmailInput, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv source: %w", err)
	}
	defer f.Close()

	emails, err := s.read(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	s.logger.Info("Loaded emails from csv",
		zap.String("path", s.path),
		zap.Int("count", len(emails)))
	return emails, nil
}

func (s *CSVSource) read(ctx context.Context, r io.Reader) ([]core.EmailInput, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: csv has no header row", core.ErrValidation)
	}
	if err != nil {
		return nil, err
	}

	columns := indexColumns(header)
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required columns %v", core.ErrValidation, missing)
	}

	var emails []core.EmailInput
	excluded := 0
	for row := 1; ; row++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		field := func(name string) string {
			idx, ok := columns[name]
			if !ok || idx >= len(fields) {
				return ""
			}
			return fields[idx]
		}

		email := core.EmailInput{
			ID:       strings.TrimSpace(field("id")),
			Date:     strings.TrimSpace(field("date")),
			Subject:  field("subject"),
			Body:     field("body"),
			Sender:   strings.TrimSpace(field("from")),
			Category: strings.TrimSpace(field("category")),
		}
		if email.ID == "" {
			email.ID = "row-" + strconv.Itoa(row)
		}

		if s.checker.IsExcluded(email.Sender) {
			excluded++
			continue
		}
		emails = append(emails, email)
	}

	if excluded > 0 {
		s.logger.Info("Skipped emails from excluded senders", zap.Int("count", excluded))
	}
	return emails, nil
}

func indexColumns(header []string) map[string]int {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, seen := columns[name]; !seen {
			columns[name] = i
		}
	}
	return columns
}

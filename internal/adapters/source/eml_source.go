package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/mikey/llm-email-analyzer/internal/core"
	"github.com/mikey/llm-email-analyzer/internal/exclusion"
	"go.uber.org/zap"
)

// EMLSource reads every .eml file in a directory, in file name order
type EMLSource struct {
	dir     string
	checker *exclusion.Checker
	logger  *zap.Logger
	newID   func() string
}

// NewEMLSource creates a new .eml directory source
func NewEMLSource(dir string, checker *exclusion.Checker, logger *zap.Logger) *EMLSource {
	return &EMLSource{
		dir:     dir,
		checker: checker,
		logger:  logger,
		newID:   uuid.NewString,
	}
}

// Load parses the messages in the directory. An unreadable directory is an
// error; a single unparseable file is logged and skipped.
func (s *EMLSource) Load(ctx context.Context) ([]core.EmailInput, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read eml directory: %w", err)
	}

	var emails []core.EmailInput
	skipped, excluded := 0, 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".eml") {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		email, err := s.parseFile(path)
		if err != nil {
			skipped++
			s.logger.Warn("Skipping unreadable message", zap.String("path", path), zap.Error(err))
			continue
		}

		if s.checker.IsExcluded(email.Sender) {
			excluded++
			continue
		}
		emails = append(emails, email)
	}

	s.logger.Info("Loaded emails from eml directory",
		zap.String("dir", s.dir),
		zap.Int("count", len(emails)),
		zap.Int("skipped", skipped),
		zap.Int("excluded", excluded))
	return emails, nil
}

func (s *EMLSource) parseFile(path string) (core.EmailInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return core.EmailInput{}, err
	}
	defer f.Close()

	return ParseMessage(f, s.newID)
}

package ports

import (
	"context"

	"github.com/mikey/llm-email-analyzer/internal/core"
)

// EmailSource defines the interface for loading a batch of emails to analyze
type EmailSource interface {
	// Load reads every email from the source in its natural order
	Load(ctx context.Context) ([]core.EmailInput, error)
}

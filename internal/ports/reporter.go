package ports

import (
	"github.com/mikey/llm-email-analyzer/internal/core"
)

// Reporter defines the interface for presenting batch progress and results
type Reporter interface {
	// Progress is called after every email of a run
	Progress(p core.Progress)

	// Summary prints the final statistics of a run
	Summary(stats *core.RunStats)

	// Records lists stored analysis records
	Records(records []core.AnalysisRecord)

	// Stats prints aggregate statistics over stored records
	Stats(insights *core.RecordInsights)
}

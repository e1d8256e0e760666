package extract

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/gmsas95/moneychat/internal/finance"
	"github.com/gmsas95/moneychat/internal/prompts"
)

const (
	markerDuplicate = "DUPLICATE"
	markerDifferent = "DIFFERENT"
)

// DuplicateAnalysis is the verdict on a re-uploaded file
type DuplicateAnalysis struct {
	IsDuplicate bool
	Explanation string
	ExactMatch  bool
}

// AnalyzeDuplicateFile decides whether current is a re-upload of previous.
// Identical metadata is a duplicate without asking the model. Otherwise the
// model must answer starting with DUPLICATE; anything else is not a duplicate.
func (e *Extractor) AnalyzeDuplicateFile(ctx context.Context, current, previous finance.FileMeta) (DuplicateAnalysis, error) {
	if current.SameAs(previous) {
		return DuplicateAnalysis{
			IsDuplicate: true,
			ExactMatch:  true,
			Explanation: "the file name, size and modification time are identical to the previous upload",
		}, nil
	}

	prompt, err := e.prompts.Render(prompts.DuplicateFile, struct {
		Current          finance.FileMeta
		Previous         finance.FileMeta
		CurrentModified  string
		PreviousModified string
	}{
		Current:          current,
		Previous:         previous,
		CurrentModified:  current.ModifiedAt().Format("2006-01-02 15:04:05 MST"),
		PreviousModified: previous.ModifiedAt().Format("2006-01-02 15:04:05 MST"),
	})
	if err != nil {
		return DuplicateAnalysis{}, err
	}

	raw, err := e.llm.Generate(ctx, prompt)
	if err != nil {
		return DuplicateAnalysis{}, err
	}

	analysis := ParseDuplicateVerdict(raw)
	e.logger.Debug("Duplicate analysis",
		zap.String("file", current.Name),
		zap.Bool("duplicate", analysis.IsDuplicate),
	)
	return analysis, nil
}

// ParseDuplicateVerdict reads a marker-prefixed model answer
func ParseDuplicateVerdict(raw string) DuplicateAnalysis {
	s := strings.TrimSpace(raw)

	switch {
	case strings.HasPrefix(s, markerDuplicate):
		return DuplicateAnalysis{IsDuplicate: true, Explanation: afterMarker(s, markerDuplicate)}
	case strings.HasPrefix(s, markerDifferent):
		return DuplicateAnalysis{Explanation: afterMarker(s, markerDifferent)}
	default:
		return DuplicateAnalysis{Explanation: s}
	}
}

func afterMarker(s, marker string) string {
	s = strings.TrimPrefix(s, marker)
	s = strings.TrimLeft(s, ": -")
	return strings.TrimSpace(s)
}

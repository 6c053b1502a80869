// internal/reporting/markdown_reporter.go
package reporting

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mlvn23/patentflow/internal/observability"
	"github.com/mlvn23/patentflow/internal/results"
)

// MarkdownReporter renders a human-readable summary with per-step and
// per-patent tables. It is thread safe.
type MarkdownReporter struct {
	mu     sync.Mutex
	writer io.WriteCloser
	logger *zap.Logger
}

// NewMarkdownReporter creates a reporter that takes ownership of the writer.
func NewMarkdownReporter(writer io.WriteCloser) *MarkdownReporter {
	return &MarkdownReporter{
		writer: writer,
		logger: observability.GetLogger().Named("markdown_reporter"),
	}
}

func (r *MarkdownReporter) Write(report *results.Report) error {
	if report == nil {
		return errors.New("cannot write a nil report")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := io.WriteString(r.writer, render(report)); err != nil {
		r.logger.Error("Failed to write report", zap.Error(err))
		return fmt.Errorf("failed to write markdown report: %w", err)
	}

	r.logger.Debug("Wrote markdown report",
		zap.String("workflow_id", report.WorkflowID),
		zap.Int("patents", len(report.Patents)))
	return nil
}

func (r *MarkdownReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.writer.Close(); err != nil {
		return fmt.Errorf("failed to close output writer: %w", err)
	}
	return nil
}

func render(report *results.Report) string {
	var b strings.Builder

	outcome := "failed"
	if report.Success {
		outcome = "succeeded"
	}

	fmt.Fprintf(&b, "# Workflow report: %s\n\n", report.WorkflowID)
	fmt.Fprintf(&b, "- Outcome: %s\n", outcome)
	fmt.Fprintf(&b, "- Duration: %s\n", report.Duration)
	fmt.Fprintf(&b, "- Steps completed: %s\n", strings.Join(report.StepsCompleted, ", "))
	fmt.Fprintf(&b, "- Unique patents: %d\n\n", report.Summary.UniquePatents)

	b.WriteString("## Summary\n\n")
	b.WriteString("| Step | Envelopes |\n|------|-----------|\n")
	for _, step := range report.StepsCompleted {
		fmt.Fprintf(&b, "| %s | %d |\n", step, report.Summary.ByStep[step])
	}
	b.WriteString("\n| Data type | Count |\n|-----------|-------|\n")
	types := make([]string, 0, len(report.Summary.ByType))
	for t := range report.Summary.ByType {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(&b, "| %s | %d |\n", t, report.Summary.ByType[t])
	}

	if len(report.Patents) > 0 {
		b.WriteString("\n## Patents\n\n")
		b.WriteString("| Patent | Title | Relevance | Steps | Mentions |\n")
		b.WriteString("|--------|-------|-----------|-------|----------|\n")
		for _, p := range report.Patents {
			fmt.Fprintf(&b, "| %s | %s | %.2f | %s | %d |\n",
				patentCell(p), escapeCell(p.Title), p.RelevanceScore,
				strings.Join(p.Steps, ", "), p.Mentions)
		}
	}

	if len(report.Errors) > 0 {
		b.WriteString("\n## Errors\n\n")
		for i, msg := range report.Errors {
			fmt.Fprintf(&b, "%d. %s\n", i+1, escapeCell(msg))
		}
	}

	b.WriteString("\n")
	return b.String()
}

// patentCell links the publication number to its source when a URL was
// captured during the run.
func patentCell(p results.PatentRecord) string {
	if p.URL == "" {
		return p.PatentNumber
	}
	return fmt.Sprintf("[%s](%s)", p.PatentNumber, p.URL)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// internal/reporting/json_reporter.go
package reporting

import (
	"errors"
	"fmt"
	"io"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/mlvn23/patentflow/internal/observability"
	"github.com/mlvn23/patentflow/internal/results"
)

// JSONReporter writes each report as an indented JSON document. It is thread
// safe.
type JSONReporter struct {
	mu     sync.Mutex
	writer io.WriteCloser
	logger *zap.Logger
}

// NewJSONReporter creates a reporter that takes ownership of the writer.
func NewJSONReporter(writer io.WriteCloser) *JSONReporter {
	return &JSONReporter{
		writer: writer,
		logger: observability.GetLogger().Named("json_reporter"),
	}
}

func (r *JSONReporter) Write(report *results.Report) error {
	if report == nil {
		return errors.New("cannot write a nil report")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	encoder := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		r.logger.Error("Failed to encode report", zap.Error(err))
		return fmt.Errorf("failed to encode report as JSON: %w", err)
	}

	r.logger.Debug("Wrote JSON report",
		zap.String("workflow_id", report.WorkflowID),
		zap.Int("patents", len(report.Patents)))
	return nil
}

func (r *JSONReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.writer.Close(); err != nil {
		return fmt.Errorf("failed to close output writer: %w", err)
	}
	return nil
}

// Package cli formats answers, build reports and status for the terminal.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat maps a flag value to an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return OutputText, nil
	case "json":
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text or json)", s)
}

// Status is the snapshot printed by "kotae status".
type Status struct {
	IndexPath  string              `json:"index_path"`
	IndexType  string              `json:"index_type"`
	Entries    int                 `json:"entries"`
	Dimensions int                 `json:"dimensions"`
	Documents  int64               `json:"documents"`
	Chunks     int64               `json:"chunks"`
	DiskUsage  int64               `json:"disk_usage_bytes"`
	LastBuild  *models.BuildReport `json:"last_build,omitempty"`
}

// CollectStatus gathers a status snapshot. index may be nil when nothing is loaded.
func CollectStatus(ctx context.Context, cfg *config.Config, store storage.Storage, index vector.VectorIndex) (*Status, error) {
	s := &Status{
		IndexPath: cfg.Storage.IndexPath,
		IndexType: cfg.Vector.Type,
	}
	if index != nil {
		s.IndexType = index.Type()
		s.Entries = index.Size()
		s.Dimensions = index.Dimensions()
	}
	docs, err := store.CountDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	s.Documents = docs
	if s.Chunks, err = store.CountChunks(ctx); err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}
	last, err := store.LastBuild(ctx)
	switch {
	case err == nil:
		s.LastBuild = last
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("last build: %w", err)
	}
	usage, err := storage.IndexUsage(cfg.Storage.DatabasePath, cfg.Storage.IndexPath, cfg.Storage.BleveIndexPath)
	if err != nil {
		return nil, fmt.Errorf("disk usage: %w", err)
	}
	s.DiskUsage = usage.Total
	return s, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAnswer writes an answer and, with showSources, the contexts it was grounded on.
func WriteAnswer(w io.Writer, answer *models.Answer, format OutputFormat, showSources bool) error {
	if format == OutputJSON {
		return writeJSON(w, answer)
	}
	fmt.Fprintf(w, "\n%s\n\n", answer.Text)
	fmt.Fprintf(w, "(%s answer, %d contexts, %dms)\n", answer.Mode, len(answer.Contexts), answer.QueryTime)
	if !showSources || len(answer.Hits) == 0 {
		return nil
	}
	fmt.Fprintln(w, "\n--- Sources ---")
	for i, hit := range answer.Hits {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "[%d] %s | Score: %.4f\n", i+1, hit.Record.ChunkID, hit.Score)
		fmt.Fprintf(w, "%s\n\n", Truncate(hit.Record.Preview, 300))
	}
	return nil
}

// WriteBuildReport writes the outcome of an index build.
func WriteBuildReport(w io.Writer, report *models.BuildReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	fmt.Fprintf(w, "Build %s finished in %s\n", report.BuildID, report.Duration.Round(1e6))
	fmt.Fprintf(w, "  documents:  %d\n", report.Documents)
	fmt.Fprintf(w, "  chunks:     %d indexed (%d produced, %d duplicates removed)\n",
		report.ChunksIndexed, report.ChunksProduced, report.DuplicatesFound)
	fmt.Fprintf(w, "  dimensions: %d\n", report.Dimensions)
	for _, s := range report.Skipped {
		fmt.Fprintf(w, "  skipped %s: %s\n", s.Filename, s.Reason)
	}
	return nil
}

// WritePassages writes keyword lookup results.
func WritePassages(w io.Writer, passages []*keyword.Passage, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, passages)
	}
	if len(passages) == 0 {
		fmt.Fprintln(w, "No passages found.")
		return nil
	}
	for _, p := range passages {
		fmt.Fprintf(w, "[%s] Score: %.4f\n%s\n\n", p.ChunkID, p.Score, TruncateWords(p.Text, 60))
	}
	return nil
}

// WriteStatus writes an index status snapshot.
func WriteStatus(w io.Writer, s *Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, s)
	}
	fmt.Fprintf(w, "Index:      %s (%s)\n", s.IndexPath, s.IndexType)
	fmt.Fprintf(w, "Entries:    %d\n", s.Entries)
	fmt.Fprintf(w, "Dimensions: %d\n", s.Dimensions)
	fmt.Fprintf(w, "Documents:  %d\n", s.Documents)
	fmt.Fprintf(w, "Chunks:     %d\n", s.Chunks)
	fmt.Fprintf(w, "Disk usage: %s\n", FormatBytes(s.DiskUsage))
	if s.LastBuild != nil {
		fmt.Fprintf(w, "Last build: %s (%s)\n", s.LastBuild.BuildID, s.LastBuild.StartedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// Truncate truncates s to maxLen characters and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	return utils.Truncate(s, maxLen)
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}

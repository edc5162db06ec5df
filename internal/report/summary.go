package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// SummaryReport is the digest of one run journal
type SummaryReport struct {
	GeneratedAt time.Time
	RunID       string
	Tool        string
	StartedAt   time.Time
	FinishedAt  time.Time

	// Cleanup
	DeletedByType map[string]int64
	DeletedTotal  int64

	// Table download
	Tables       []TableOutcome
	BytesWritten int64

	// Settings import
	Databases []string

	// Conversion
	Converted int64
	Skipped   []SkippedPost
	Anomalies []Anomaly

	TopErrors   []ErrorSummary
	JournalPath string
}

// TableOutcome is the result of one table download
type TableOutcome struct {
	Table string
	Path  string
	Bytes int64
	Error string
}

// SkippedPost is a post left unconverted
type SkippedPost struct {
	PostID int64
	Reason string
}

// Anomaly is an update that did not affect exactly one row
type Anomaly struct {
	PostID   int64
	Affected int64
	Query    string
}

// ErrorSummary represents an error with its count
type ErrorSummary struct {
	Error string
	Count int
}

// GenerateSummaryReport builds the summary of a journal
func GenerateSummaryReport(journalPath string) (*SummaryReport, error) {
	events, err := ReadEvents(journalPath)
	if err != nil {
		return nil, err
	}
	report := Summarize(events)
	report.JournalPath = journalPath
	return report, nil
}

// Summarize folds the events of a run
func Summarize(events []Event) *SummaryReport {
	report := &SummaryReport{
		GeneratedAt:   time.Now(),
		DeletedByType: make(map[string]int64),
	}

	errorCounts := make(map[string]int)
	for _, e := range events {
		if report.RunID == "" {
			report.RunID = e.RunID
			report.Tool = e.Tool
		}
		if report.StartedAt.IsZero() || e.Timestamp.Before(report.StartedAt) {
			report.StartedAt = e.Timestamp
		}
		if e.Timestamp.After(report.FinishedAt) {
			report.FinishedAt = e.Timestamp
		}

		switch e.Event {
		case EventDelete:
			report.DeletedByType[e.PostType] += e.Count
			report.DeletedTotal += e.Count
		case EventDownload:
			report.Tables = append(report.Tables, TableOutcome{Table: e.Table, Path: e.Path, Bytes: e.BytesWritten, Error: e.Error})
			report.BytesWritten += e.BytesWritten
		case EventImport:
			report.Databases = append(report.Databases, e.PostType)
		case EventConvert:
			report.Converted++
		case EventSkip:
			report.Skipped = append(report.Skipped, SkippedPost{PostID: e.PostID, Reason: e.Reason})
		case EventAnomaly:
			report.Anomalies = append(report.Anomalies, Anomaly{PostID: e.PostID, Affected: e.Count, Query: e.Query})
		case EventSummary:
			if report.Tool == "convert" {
				report.Converted = e.Count
			}
		}
		if e.Error != "" {
			errorCounts[e.Error]++
		}
	}

	report.TopErrors = topErrors(errorCounts, 10)
	return report
}

// topErrors returns the most common errors
func topErrors(counts map[string]int, limit int) []ErrorSummary {
	errors := make([]ErrorSummary, 0, len(counts))
	for err, count := range counts {
		errors = append(errors, ErrorSummary{Error: err, Count: count})
	}

	sort.Slice(errors, func(i, j int) bool {
		if errors[i].Count != errors[j].Count {
			return errors[i].Count > errors[j].Count
		}
		return errors[i].Error < errors[j].Error
	})

	if len(errors) > limit {
		errors = errors[:limit]
	}
	return errors
}

// WriteMarkdownReport writes the summary report as Markdown
func WriteMarkdownReport(report *SummaryReport, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var md strings.Builder

	md.WriteString("# Migration Prisme 2015 - Run Report\n\n")
	md.WriteString(fmt.Sprintf("**Generated:** %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05")))
	if report.Tool != "" {
		md.WriteString(fmt.Sprintf("**Tool:** `%s`\n\n", report.Tool))
	}
	if report.RunID != "" {
		md.WriteString(fmt.Sprintf("**Run:** `%s`\n\n", report.RunID))
	}
	if report.JournalPath != "" {
		md.WriteString(fmt.Sprintf("**Journal:** `%s`\n\n", report.JournalPath))
	}
	if !report.StartedAt.IsZero() {
		md.WriteString(fmt.Sprintf("**Duration:** %s\n\n", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond)))
	}

	md.WriteString("---\n\n")

	if len(report.DeletedByType) > 0 {
		md.WriteString("## Deleted posts\n\n")
		md.WriteString("| Post type | Deleted |\n")
		md.WriteString("|-----------|---------|\n")
		types := make([]string, 0, len(report.DeletedByType))
		for t := range report.DeletedByType {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			md.WriteString(fmt.Sprintf("| `%s` | %d |\n", t, report.DeletedByType[t]))
		}
		md.WriteString(fmt.Sprintf("| **Total** | %d |\n\n", report.DeletedTotal))
	}

	if len(report.Tables) > 0 {
		md.WriteString("## Tables\n\n")
		md.WriteString("| Table | File | Size | Status |\n")
		md.WriteString("|-------|------|------|--------|\n")
		for _, t := range report.Tables {
			status := "ok"
			if t.Error != "" {
				status = "failed: " + t.Error
			}
			md.WriteString(fmt.Sprintf("| %s | `%s` | %s | %s |\n", t.Table, t.Path, humanize.Bytes(uint64(t.Bytes)), status))
		}
		md.WriteString(fmt.Sprintf("\n**Downloaded:** %s\n\n", humanize.Bytes(uint64(report.BytesWritten))))
	}

	if len(report.Databases) > 0 {
		md.WriteString("## Imported settings\n\n")
		for _, db := range report.Databases {
			md.WriteString(fmt.Sprintf("- `%s`\n", db))
		}
		md.WriteString("\n")
	}

	if report.Converted > 0 || len(report.Skipped) > 0 || len(report.Anomalies) > 0 {
		md.WriteString("## Conversion\n\n")
		md.WriteString("| Metric | Value |\n")
		md.WriteString("|--------|-------|\n")
		md.WriteString(fmt.Sprintf("| Converted | %s |\n", humanize.Comma(report.Converted)))
		md.WriteString(fmt.Sprintf("| Skipped | %d |\n", len(report.Skipped)))
		md.WriteString(fmt.Sprintf("| Update anomalies | %d |\n\n", len(report.Anomalies)))

		for _, s := range report.Skipped {
			md.WriteString(fmt.Sprintf("- post %d skipped: %s\n", s.PostID, s.Reason))
		}
		for _, a := range report.Anomalies {
			md.WriteString(fmt.Sprintf("- post %d: %d rows affected by `%s`\n", a.PostID, a.Affected, a.Query))
		}
		if len(report.Skipped) > 0 || len(report.Anomalies) > 0 {
			md.WriteString("\n")
		}
	}

	if len(report.TopErrors) > 0 {
		md.WriteString("## Top Errors\n\n")
		md.WriteString("| Count | Error |\n")
		md.WriteString("|-------|-------|\n")
		for _, err := range report.TopErrors {
			md.WriteString(fmt.Sprintf("| %d | %s |\n", err.Count, err.Error))
		}
		md.WriteString("\n")
	}

	if err := os.WriteFile(outputPath, []byte(md.String()), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}

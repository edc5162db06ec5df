package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/docalist/migration-prisme-2015/internal/report"
	"github.com/docalist/migration-prisme-2015/internal/util"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report <journal.jsonl>",
	Short: "Generate a summary report from a run journal",
	Long: `Generate a Markdown summary of a tool run from its journal.

The report includes deleted post types, downloaded tables, imported
databases, conversion counts, skipped posts, update anomalies and the most
frequent errors.

The report is written next to the journal unless --out is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().String("out", "", "output file (default: <journal>.md)")
}

func runReport(cmd *cobra.Command, args []string) error {
	journalPath := args[0]

	util.InfoLog("=== Generating Summary Report ===")
	util.InfoLog("Journal: %s", journalPath)

	summary, err := report.GenerateSummaryReport(journalPath)
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	outputPath, _ := cmd.Flags().GetString("out")
	if outputPath == "" {
		outputPath = strings.TrimSuffix(journalPath, filepath.Ext(journalPath)) + ".md"
	}

	util.InfoLog("Writing report to: %s", outputPath)
	if err := report.WriteMarkdownReport(summary, outputPath); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	util.SuccessLog("Report generated successfully!")
	util.InfoLog("  Tool: %s (run %s)", summary.Tool, summary.RunID)
	if summary.DeletedTotal > 0 {
		util.InfoLog("  Posts deleted: %s", humanize.Comma(summary.DeletedTotal))
	}
	if len(summary.Tables) > 0 {
		util.InfoLog("  Tables: %d (%s)", len(summary.Tables), humanize.Bytes(uint64(summary.BytesWritten)))
	}
	if summary.Converted > 0 {
		util.InfoLog("  Posts converted: %s", humanize.Comma(summary.Converted))
	}
	if len(summary.Skipped) > 0 {
		util.WarnLog("  Skipped posts: %d", len(summary.Skipped))
	}
	if len(summary.Anomalies) > 0 {
		util.WarnLog("  Anomalies: %d", len(summary.Anomalies))
	}
	return nil
}

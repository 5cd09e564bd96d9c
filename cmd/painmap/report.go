package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/pain-assessment/internal/db"
	"github.com/jonathan/pain-assessment/internal/observability"
	"github.com/jonathan/pain-assessment/internal/report"
)

var (
	reportOut string
)

var reportCmd = &cobra.Command{
	Use:   "report <assessment-id>",
	Short: "Export a stored assessment as HTML or PDF",
	Long: `Load an assessment from DATABASE_URL and write the clinician report. A .pdf output is
printed with a local headless Chrome; any other extension gets the HTML.`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVarP(&reportOut, "out", "o", "", "Output file (.pdf or .html) (required)")
	_ = reportCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid assessment ID %q: %w", args[0], err)
	}
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}

	database, err := db.Connect(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	a, err := database.GetAssessment(ctx, id)
	if err != nil {
		return err
	}
	if a == nil {
		return fmt.Errorf("assessment %s not found", id)
	}

	out, err := renderReport(ctx, a, reportOut)
	if err != nil {
		return err
	}
	if err := os.WriteFile(reportOut, out, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	observability.NewTerminalPrinter(os.Stdout).PrintAssessment(a)
	fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", reportOut)
	return nil
}

// renderReport produces HTML, or PDF when path ends in .pdf.
func renderReport(ctx context.Context, a *db.Assessment, path string) ([]byte, error) {
	html, err := report.RenderHTML(a)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return html, nil
	}
	return report.RenderPDF(ctx, html, report.DefaultPDFTimeout)
}

// analyze-drawing-set runs the roof triage pipeline over a local drawing set
// PDF, prints a summary and writes the full report next to the working
// directory as <name>_roof_analysis.json.
//
// Usage: go run ./scripts/analyze-drawing-set [flags] <pdf_path> [max_pages]
//
// Vision analysis runs when the configured provider has a credential
// (ANTHROPIC_API_KEY by default). Other settings come from config.yaml and the
// environment, as for the server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-roofscan/pkg/config"
	"github.com/ekaya-inc/ekaya-roofscan/pkg/models"
	"github.com/ekaya-inc/ekaya-roofscan/pkg/services"
)

// maxListedSheets bounds the filtered sheets printed to the terminal.
const maxListedSheets = 20

func main() {
	minRelevance := flag.Float64("min-relevance", -1, "override the relevance threshold (0-1)")
	imagesDir := flag.String("images", "", "keep exported page images in this directory")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: analyze-drawing-set [flags] <pdf_path> [max_pages]")
		fmt.Fprintln(os.Stderr, "\nExample:")
		fmt.Fprintln(os.Stderr, "  analyze-drawing-set drawings.pdf")
		fmt.Fprintln(os.Stderr, "  analyze-drawing-set drawings.pdf 100  # first 100 pages only")
		fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}
	pdfPath := flag.Arg(0)

	maxPages := 0
	if flag.NArg() > 1 {
		n, err := strconv.Atoi(flag.Arg(1))
		if err != nil || n < 0 {
			fmt.Fprintf(os.Stderr, "invalid max_pages %q\n", flag.Arg(1))
			os.Exit(1)
		}
		maxPages = n
	}

	logger := zap.NewNop()
	if *verbose {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
			os.Exit(1)
		}
	}

	cfg, err := config.Load("cli")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	parser, err := services.NewDrawingSetParserFromConfig(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up parser: %v\n", err)
		os.Exit(1)
	}

	if !parser.VisionEnabled() {
		fmt.Println("Note: no vision credential configured - running filter-only mode")
		fmt.Println("Set ANTHROPIC_API_KEY (or OPENAI_API_KEY with VISION_PROVIDER=openai) to enable AI vision analysis")
	}

	fmt.Printf("\nParsing: %s\n", pdfPath)
	if maxPages > 0 {
		fmt.Printf("Max pages: %d\n", maxPages)
	} else {
		fmt.Println("Max pages: all")
	}
	fmt.Printf("AI analysis: %s\n", enabledString(parser.VisionEnabled()))
	fmt.Println(strings.Repeat("-", 60))

	opts := services.ParseOptions{
		MaxPages:  maxPages,
		UseVision: true,
		OutputDir: *imagesDir,
	}
	if *minRelevance >= 0 {
		opts.MinRelevanceScore = minRelevance
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	report, err := parser.Parse(ctx, pdfPath, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analysis failed: %v\n", err)
		os.Exit(1)
	}

	printReport(os.Stdout, report)

	out := outputPath(pdfPath)
	if err := writeReport(out, report); err != nil {
		fmt.Fprintf(os.Stderr, "failed to save results: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nFull results saved to: %s\n", out)
}

func enabledString(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

func printReport(w io.Writer, report *models.Report) {
	s := report.Summary
	fmt.Fprintln(w, "\n"+strings.Repeat("=", 60))
	fmt.Fprintln(w, "PARSING RESULTS")
	fmt.Fprintln(w, strings.Repeat("=", 60))

	fmt.Fprintf(w, "\nTotal pages analyzed: %d\n", s.TotalPagesAnalyzed)
	fmt.Fprintf(w, "Roof-related pages found: %d\n", s.RoofRelatedPages)
	fmt.Fprintf(w, "Filter efficiency: %s\n", s.FilterEfficiency)
	fmt.Fprintf(w, "Roof plans: %d\n", s.RoofPlansFound)
	fmt.Fprintf(w, "Roof details: %d\n", s.RoofDetailsFound)
	fmt.Fprintf(w, "Total drains: %d\n", s.TotalDrains)
	fmt.Fprintf(w, "Total scuppers: %d\n", s.TotalScuppers)
	fmt.Fprintf(w, "Total RTUs: %d\n", s.TotalRTUs)
	fmt.Fprintf(w, "AI analyses: %d\n", s.AIAnalysesCompleted)

	fmt.Fprintln(w, "\nFiltered Sheets:")
	for i, sheet := range report.FilteredSheets {
		if i == maxListedSheets {
			fmt.Fprintf(w, "  ... %d more\n", len(report.FilteredSheets)-maxListedSheets)
			break
		}
		fmt.Fprintf(w, "  Page %d: %s - Score: %g\n", sheet.PageNumber, sheet.SheetNumber, sheet.RoofRelevanceScore)
		for _, reason := range sheet.RelevanceReasons {
			fmt.Fprintf(w, "    - %s\n", reason)
		}
	}
}

// outputPath names the report after the PDF's base name, in the working directory.
func outputPath(pdfPath string) string {
	base := filepath.Base(pdfPath)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "_roof_analysis.json"
}

func writeReport(path string, report *models.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

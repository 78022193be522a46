package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf/v2"

	"github.com/Divyansh2602/pdf-agent/internal/domain"
)

// ReportService renders a session's academic analysis into a PDF summary.
type ReportService struct{}

func NewReportService() *ReportService {
	return &ReportService{}
}

func (s *ReportService) Generate(session domain.Session, outPath string) error {
	if len(session.Analyses) == 0 {
		return fmt.Errorf("session has no analyses to report")
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure report directory: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Analysis Report %s", session.ID), false)
	pdf.SetAuthor("pdf-agent", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "Academic Analysis Report")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 6, fmt.Sprintf("Session: %s", session.ID))
	pdf.Ln(6)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", time.Now().Format("02/01/2006 15:04")))
	pdf.Ln(12)

	for filename, analysis := range session.Analyses {
		s.writeSection(pdf, filename, analysis)
		pdf.Ln(8)
	}

	if strings.TrimSpace(session.Recommendations) != "" {
		s.writeSection(pdf, "Journal Recommendations", session.Recommendations)
	}

	if err := pdf.OutputFileAndClose(outPath); err != nil {
		return fmt.Errorf("write report pdf: %w", err)
	}

	return nil
}

func (s *ReportService) writeSection(pdf *gofpdf.Fpdf, title, content string) {
	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 8, title)
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 12)

	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) == 0 {
		pdf.MultiCell(0, 6, "(empty)", "", "L", false)
		return
	}

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		pdf.MultiCell(0, 6, line, "", "L", false)
	}
}

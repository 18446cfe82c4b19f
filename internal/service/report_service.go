package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/scantrack/attendance-api/internal/models"
	"github.com/scantrack/attendance-api/pkg/clock"
	appErrors "github.com/scantrack/attendance-api/pkg/errors"
	"github.com/scantrack/attendance-api/pkg/export"
)

type reportSessionReader interface {
	Get(ctx context.Context, id string) (*models.Session, error)
}

type reportLedgerReader interface {
	ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRow, error)
}

// ReportFormat selects the rendered output type.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// Report is a rendered attendance register ready to be served as a download.
type Report struct {
	FileName    string
	ContentType string
	Content     []byte
}

// ReportService renders a session register into downloadable documents.
type ReportService struct {
	sessions reportSessionReader
	ledger   reportLedgerReader
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	clk      clock.Clock
	logger   *zap.Logger
}

// NewReportService constructs the report service.
func NewReportService(sessions reportSessionReader, ledger reportLedgerReader, clk clock.Clock, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		sessions: sessions,
		ledger:   ledger,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		clk:      clk,
		logger:   logger,
	}
}

// Generate renders the session's register in the requested format.
func (s *ReportService) Generate(ctx context.Context, sessionID string, format ReportFormat) (*Report, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rows, err := s.ledger.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session attendance")
	}

	register := buildRegister(rows)
	date := session.Date.Format("2006-01-02")
	title := fmt.Sprintf("Attendance Register %s", date)
	if session.Scoped() {
		title = fmt.Sprintf("Attendance Register %s %s-%s", date, session.Class, session.Section)
	}

	switch format {
	case ReportFormatCSV:
		content, err := s.csv.Render(register)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv report")
		}
		return &Report{
			FileName:    fmt.Sprintf("attendance-%s.csv", date),
			ContentType: "text/csv",
			Content:     content,
		}, nil
	case ReportFormatPDF:
		footer := fmt.Sprintf("Generated at %s", s.clk.Now().Format(time.RFC3339))
		content, err := s.pdf.Render(register, title, footer)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf report")
		}
		return &Report{
			FileName:    fmt.Sprintf("attendance-%s.pdf", date),
			ContentType: "application/pdf",
			Content:     content,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
}

func buildRegister(rows []models.AttendanceRow) export.Register {
	reg := export.Register{
		Headers: []string{"Admission No", "Name", "Class", "Section", "Status", "Scan Time", "Reason"},
	}
	for _, row := range rows {
		reason := ""
		if row.Reason != nil {
			reason = *row.Reason
		}
		reg.Rows = append(reg.Rows, []string{
			row.StudentID,
			row.StudentName,
			row.Class,
			row.Section,
			string(row.Status),
			row.ScanTime.Format("15:04:05"),
			reason,
		})
	}
	return reg
}

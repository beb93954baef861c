package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/sjperalta/lendcore-api/internal/models"
	"github.com/xuri/excelize/v2"
)

// Export formats
const (
	ExportFormatCSV  = "csv"
	ExportFormatXLSX = "xlsx"
	ExportFormatPDF  = "pdf"
)

// ExportFile is a rendered report ready to be downloaded
type ExportFile struct {
	Data        []byte
	Filename    string
	ContentType string
}

// report is a titled list of tables, rendered the same way in every format
type report struct {
	name     string
	title    string
	sections []reportSection
}

type reportSection struct {
	title  string
	header []string
	rows   [][]interface{}
}

// ExportService renders analytics as CSV, XLSX or PDF downloads
type ExportService struct {
	now func() time.Time
}

func NewExportService() *ExportService {
	return &ExportService{now: time.Now}
}

// ExportPortfolio renders a portfolio summary
func (s *ExportService) ExportPortfolio(ctx context.Context, summary *models.PortfolioSummary, format string) (*ExportFile, error) {
	overview := reportSection{
		title:  "Overview",
		header: []string{"Metric", "Value"},
		rows: [][]interface{}{
			{"Branch", branchLabel(summary.BranchID)},
			{"Period", periodLabel(summary.From, summary.To)},
			{"Active loans", summary.ActiveLoans},
			{"Outstanding balance", summary.OutstandingBalance},
			{"Collected", summary.CollectedAmount},
			{"Repayments", summary.RepaymentCount},
			{"Overdue installments", summary.OverdueItems},
			{"Overdue amount", summary.OverdueAmount},
		},
	}

	statuses := make([]string, 0, len(summary.LoansByStatus))
	for status := range summary.LoansByStatus {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)

	byStatus := reportSection{title: "Loans by status", header: []string{"Status", "Loans"}}
	for _, status := range statuses {
		byStatus.rows = append(byStatus.rows, []interface{}{status, summary.LoansByStatus[status]})
	}

	return s.render(report{
		name:     "portfolio",
		title:    "Portfolio report",
		sections: []reportSection{overview, byStatus},
	}, format)
}

// ExportCollections renders the per-branch collections ranking
func (s *ExportService) ExportCollections(ctx context.Context, rows []models.BranchCollection, from, to *time.Time, format string) (*ExportFile, error) {
	section := reportSection{
		title:  "Collections by branch, " + periodLabel(from, to),
		header: []string{"Branch ID", "Branch", "Collected", "Repayments"},
	}
	total := decimal.Zero
	var count int64
	for _, row := range rows {
		section.rows = append(section.rows, []interface{}{row.BranchID, row.BranchName, row.Collected, row.Count})
		total = total.Add(row.Collected)
		count += row.Count
	}
	section.rows = append(section.rows, []interface{}{"", "Total", total, count})

	return s.render(report{
		name:     "collections",
		title:    "Collections report",
		sections: []reportSection{section},
	}, format)
}

func (s *ExportService) render(r report, format string) (*ExportFile, error) {
	var (
		data        []byte
		contentType string
		err         error
	)

	switch strings.ToLower(format) {
	case ExportFormatCSV:
		data, err = s.renderCSV(r)
		contentType = "text/csv"
	case ExportFormatXLSX:
		data, err = s.renderXLSX(r)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ExportFormatPDF:
		data, err = s.renderPDF(r)
		contentType = "application/pdf"
	default:
		return nil, fmt.Errorf("%w: format must be csv, xlsx or pdf", ErrInvalidInput)
	}
	if err != nil {
		return nil, err
	}

	return &ExportFile{
		Data:        data,
		Filename:    fmt.Sprintf("%s_report_%s.%s", r.name, s.now().Format("2006-01-02"), strings.ToLower(format)),
		ContentType: contentType,
	}, nil
}

func (s *ExportService) renderCSV(r report) ([]byte, error) {
	buf := new(bytes.Buffer)
	writer := csv.NewWriter(buf)

	_ = writer.Write([]string{r.title, s.now().Format("2006-01-02 15:04")})
	for _, section := range r.sections {
		_ = writer.Write([]string{""})
		_ = writer.Write([]string{section.title})
		_ = writer.Write(section.header)
		for _, row := range section.rows {
			record := make([]string, len(row))
			for i, v := range row {
				record[i] = cellText(v)
			}
			_ = writer.Write(record)
		}
	}

	writer.Flush()
	return buf.Bytes(), writer.Error()
}

func (s *ExportService) renderXLSX(r report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Report"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 14},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	headerStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})

	_ = f.SetCellValue(sheet, "A1", r.title)
	_ = f.SetCellStyle(sheet, "A1", "A1", titleStyle)

	row := 3
	for _, section := range r.sections {
		_ = f.SetCellValue(sheet, cellName(1, row), section.title)
		_ = f.SetCellStyle(sheet, cellName(1, row), cellName(1, row), headerStyle)
		row++

		for col, h := range section.header {
			_ = f.SetCellValue(sheet, cellName(col+1, row), h)
		}
		_ = f.SetCellStyle(sheet, cellName(1, row), cellName(len(section.header), row), headerStyle)
		row++

		for _, values := range section.rows {
			for col, v := range values {
				if d, ok := v.(decimal.Decimal); ok {
					v = d.InexactFloat64()
				}
				if err := f.SetCellValue(sheet, cellName(col+1, row), v); err != nil {
					return nil, err
				}
			}
			row++
		}
		row++
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *ExportService) renderPDF(r report) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, r.title)
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 9)
	pdf.Cell(40, 10, "Generated "+s.now().Format("2006-01-02 15:04"))
	pdf.Ln(12)

	for _, section := range r.sections {
		pdf.SetFont("Arial", "B", 12)
		pdf.Cell(40, 10, section.title)
		pdf.Ln(8)

		width := 180 / float64(len(section.header))
		pdf.SetFont("Arial", "B", 10)
		for _, h := range section.header {
			pdf.CellFormat(width, 7, h, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Arial", "", 10)
		for _, values := range section.rows {
			for _, v := range values {
				pdf.CellFormat(width, 7, cellText(v), "1", 0, "L", false, 0, "")
			}
			pdf.Ln(-1)
		}
		pdf.Ln(6)
	}

	buf := new(bytes.Buffer)
	if err := pdf.Output(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func cellText(v interface{}) string {
	switch value := v.(type) {
	case decimal.Decimal:
		return value.StringFixed(2)
	case string:
		return value
	default:
		return fmt.Sprint(value)
	}
}

func branchLabel(branchID *uint) string {
	if branchID == nil {
		return "All branches"
	}
	return fmt.Sprintf("Branch %d", *branchID)
}

func periodLabel(from, to *time.Time) string {
	switch {
	case from == nil && to == nil:
		return "all time"
	case from == nil:
		return "until " + to.Format("2006-01-02")
	case to == nil:
		return "since " + from.Format("2006-01-02")
	default:
		return from.Format("2006-01-02") + " to " + to.Format("2006-01-02")
	}
}

package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/xuri/excelize/v2"

	"popdesk/internal/normalize"
)

// ExportService renders a lookup result as a formatted workbook: one styled
// sheet per dataset, bold frozen header row, columns sized to content.
type ExportService interface {
	// Export returns the workbook bytes and a suggested filename for the
	// code. Datasets without matches still get a sheet with headers only.
	Export(ctx context.Context, code string) ([]byte, string, error)
}

type exportService struct {
	search  SearchService
	archive ArchiveService // may be nil
}

// NewExportService creates the workbook exporter. archive may be nil.
func NewExportService(search SearchService, archive ArchiveService) ExportService {
	return &exportService{search: search, archive: archive}
}

func (s *exportService) Export(ctx context.Context, code string) ([]byte, string, error) {
	results, err := s.search.Lookup(ctx, code, nil)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"305496"}},
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to build header style: %v", err)
	}

	for i, result := range results {
		sheet := sheetTitle(result.Tab)
		if i == 0 {
			f.SetSheetName(f.GetSheetName(0), sheet)
		} else {
			if _, err := f.NewSheet(sheet); err != nil {
				return nil, "", fmt.Errorf("failed to add sheet %q: %v", sheet, err)
			}
		}

		header := make([]interface{}, len(result.Columns))
		widths := make([]int, len(result.Columns))
		for j, col := range result.Columns {
			header[j] = col
			widths[j] = len(col)
		}
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			return nil, "", fmt.Errorf("failed to write header row: %v", err)
		}

		for r, row := range result.Rows {
			cells := make([]interface{}, len(result.Columns))
			for j, col := range result.Columns {
				v := row[col]
				cells[j] = v
				if len(v) > widths[j] {
					widths[j] = len(v)
				}
			}
			axis, _ := excelize.CoordinatesToCellName(1, r+2)
			if err := f.SetSheetRow(sheet, axis, &cells); err != nil {
				return nil, "", fmt.Errorf("failed to write row %d: %v", r+2, err)
			}
		}

		if len(result.Columns) > 0 {
			last, _ := excelize.CoordinatesToCellName(len(result.Columns), 1)
			if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
				return nil, "", fmt.Errorf("failed to style header row: %v", err)
			}
			for j, w := range widths {
				colName, _ := excelize.ColumnNumberToName(j + 1)
				width := float64(w) + 2
				if width > 60 {
					width = 60
				}
				_ = f.SetColWidth(sheet, colName, colName, width)
			}
		}

		// Keep the header visible while scrolling.
		_ = f.SetPanes(sheet, &excelize.Panes{
			Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
		})
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", fmt.Errorf("failed to serialize workbook: %v", err)
	}

	filename := fmt.Sprintf("pop_%s_%s.xlsx", normalize.Fold(code), time.Now().UTC().Format("20060102"))

	if s.archive != nil {
		if _, err := s.archive.StoreExport(ctx, normalize.Fold(code), buf.Bytes()); err != nil {
			log.Printf("WARN: failed to archive export for %s: %v", code, err)
		}
	}
	return buf.Bytes(), filename, nil
}

// sheetTitle keeps tab names inside the 31-character worksheet name limit.
func sheetTitle(tab string) string {
	if len(tab) > 31 {
		return tab[:31]
	}
	return tab
}

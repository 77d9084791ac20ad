package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/shenikar/alerto360/internal/models"
	"github.com/xuri/excelize/v2"
)

const (
	IncidentsSheet = "Incidents"
	SummarySheet   = "Summary"

	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var incidentHeaders = []string{
	"ID", "Reported By", "Type", "Description", "Latitude", "Longitude",
	"Responder", "Status", "Accepted By", "Accepted At", "Completed At", "Created At", "Image",
}

var incidentColumnWidths = []float64{8, 12, 12, 48, 12, 12, 12, 12, 12, 20, 20, 20, 40}

// IncidentsXLSX формирует книгу с листом происшествий и листом сводки по статусам
func IncidentsXLSX(incidents []*models.Incident, counts []models.StatusCount) ([]byte, error) {
	f := excelize.NewFile()
	// Close вызывается после записи в буфер

	if _, err := f.NewSheet(IncidentsSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}
	index, err := f.GetSheetIndex(IncidentsSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to look up sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#FDE9D9"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeHeader(f, IncidentsSheet, incidentHeaders, incidentColumnWidths, headerStyle); err != nil {
		f.Close()
		return nil, err
	}

	for i, incident := range incidents {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetSheetRow(IncidentsSheet, cell, incidentRow(incident)); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write incident %d: %w", incident.ID, err)
		}
	}

	if err := f.SetPanes(IncidentsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	if err := writeSummary(f, counts, headerStyle); err != nil {
		f.Close()
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeHeader(f *excelize.File, sheet string, headers []string, widths []float64, style int) error {
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}
	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(sheet, col, col, w); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}
	return nil
}

func writeSummary(f *excelize.File, counts []models.StatusCount, style int) error {
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}
	if err := writeHeader(f, SummarySheet, []string{"Status", "Count"}, []float64{16, 10}, style); err != nil {
		return err
	}

	byStatus := make(map[models.IncidentStatus]int64, len(counts))
	var total int64
	for _, c := range counts {
		byStatus[c.Status] = c.Count
		total += c.Count
	}

	// все статусы закрытого набора, даже с нулем
	row := 2
	for _, status := range models.IncidentStatuses() {
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(SummarySheet, cell, &[]any{string(status), byStatus[status]}); err != nil {
			return fmt.Errorf("failed to write summary row: %w", err)
		}
		row++
	}
	cell, _ := excelize.CoordinatesToCellName(1, row)
	if err := f.SetSheetRow(SummarySheet, cell, &[]any{"total", total}); err != nil {
		return fmt.Errorf("failed to write summary total: %w", err)
	}
	return nil
}

func incidentRow(incident *models.Incident) *[]any {
	return &[]any{
		incident.ID,
		incident.UserID,
		string(incident.Type),
		incident.Description,
		floatOrEmpty(incident.Latitude),
		floatOrEmpty(incident.Longitude),
		string(incident.ResponderType),
		string(incident.Status),
		int64OrEmpty(incident.AcceptedBy),
		timeOrEmpty(incident.AcceptedAt),
		timeOrEmpty(incident.CompletedAt),
		incident.CreatedAt.UTC().Format(time.DateTime),
		stringOrEmpty(incident.ImagePath),
	}
}

func floatOrEmpty(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

func int64OrEmpty(v *int64) any {
	if v == nil {
		return ""
	}
	return *v
}

func timeOrEmpty(v *time.Time) string {
	if v == nil {
		return ""
	}
	return v.UTC().Format(time.DateTime)
}

func stringOrEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

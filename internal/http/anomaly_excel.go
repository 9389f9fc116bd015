package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/alexlav17/SafeWatch-ReceiveData/internal/models"
)

// AnomalyExportHeader 导出表头（与归档 CSV 列一致）
var AnomalyExportHeader = []string{
	"Start Time",
	"End Time",
	"Duration (s)",
	"Anomaly Type",
	"BPM Min",
	"BPM Max",
	"BPM Avg",
	"Accel X Max",
	"Accel Y Max",
	"Accel Z Max",
	"Severity",
	"Description",
}

// ExportAnomalies 把异常事件归档导出为 .xlsx 下载
func (h *Handlers) ExportAnomalies(w http.ResponseWriter, r *http.Request) {
	records, err := h.archive.All()
	if err != nil {
		h.logger.Error("Failed to read anomaly archive", zap.Error(err))
		fail(w, http.StatusInternalServerError, "archive error")
		return
	}

	data, err := generateAnomalyExcel(records)
	if err != nil {
		h.logger.Error("Failed to generate anomaly export", zap.Error(err))
		fail(w, http.StatusInternalServerError, "export error")
		return
	}

	filename := fmt.Sprintf("anomalies_%s.xlsx", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// generateAnomalyExcel 生成异常事件 Excel 文件；records 为空时只生成表头
func generateAnomalyExcel(records []models.EpisodeRecord) ([]byte, error) {
	f := excelize.NewFile()

	sheetName := "Anomalies"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range AnomalyExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}

	for row, rec := range records {
		values := []string{
			rec.StartTime,
			rec.EndTime,
			rec.DurationSeconds,
			rec.AnomalyType,
			rec.BPMMin,
			rec.BPMMax,
			rec.BPMAvg,
			rec.AccelXMax,
			rec.AccelYMax,
			rec.AccelZMax,
			rec.Severity,
			rec.Description,
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
	}

	// 时间列较宽，描述列最宽
	widths := []float64{22, 22, 12, 18, 10, 10, 10, 12, 12, 12, 12, 48}
	for col, width := range widths {
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to resolve column name: %w", err)
		}
		if err := f.SetColWidth(sheetName, name, name, width); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close workbook: %w", err)
	}
	return buf.Bytes(), nil
}

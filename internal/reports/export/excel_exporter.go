package export

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// ExcelOptions configures workbook styling
type ExcelOptions struct {
	FreezeHeader bool
	AutoFilter   bool
	AutoWidth    bool
	NumberFormat string
	HeaderStyle  *ExcelStyleConfig
	DataStyle    *ExcelStyleConfig
}

// ExcelStyleConfig defines style for cells
type ExcelStyleConfig struct {
	FontBold  bool
	FontSize  int
	FontColor string
	FillColor string
	Alignment string // left, center, right
	Border    bool
}

// DefaultExcelOptions returns default Excel export options
func DefaultExcelOptions() ExcelOptions {
	return ExcelOptions{
		FreezeHeader: true,
		AutoFilter:   true,
		AutoWidth:    true,
		NumberFormat: "#,##0.00####",
		HeaderStyle: &ExcelStyleConfig{
			FontBold:  true,
			FontSize:  11,
			FillColor: "4472C4",
			FontColor: "FFFFFF",
			Alignment: "center",
			Border:    true,
		},
		DataStyle: &ExcelStyleConfig{
			FontSize:  11,
			Alignment: "left",
			Border:    true,
		},
	}
}

// Workbook writes one styled table per sheet
type Workbook struct {
	file    *excelize.File
	options ExcelOptions
	first   bool

	headerStyle int
	dataStyle   int
	numberStyle int
	dateStyle   int
}

// NewWorkbook creates an empty workbook
func NewWorkbook(options ExcelOptions) (*Workbook, error) {
	w := &Workbook{file: excelize.NewFile(), options: options, first: true}

	var err error
	if options.HeaderStyle != nil {
		if w.headerStyle, err = w.createStyle(options.HeaderStyle, nil, 0); err != nil {
			return nil, fmt.Errorf("failed to create header style: %w", err)
		}
	}
	if w.dataStyle, err = w.createStyle(options.DataStyle, nil, 0); err != nil {
		return nil, fmt.Errorf("failed to create data style: %w", err)
	}
	numFmt := options.NumberFormat
	if w.numberStyle, err = w.createStyle(options.DataStyle, &numFmt, 0); err != nil {
		return nil, fmt.Errorf("failed to create number style: %w", err)
	}
	// 22 is the builtin m/d/yy h:mm format
	if w.dateStyle, err = w.createStyle(options.DataStyle, nil, 22); err != nil {
		return nil, fmt.Errorf("failed to create date style: %w", err)
	}
	return w, nil
}

// AddSheet writes columns and rows to a new sheet. The first sheet replaces
// the default one.
func (w *Workbook) AddSheet(name string, columns []string, rows [][]any) error {
	if w.first {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("failed to rename sheet: %w", err)
		}
		w.first = false
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	widths := make([]float64, len(columns))
	for i, col := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := w.file.SetCellValue(name, cell, col); err != nil {
			return err
		}
		if w.headerStyle > 0 {
			w.file.SetCellStyle(name, cell, cell, w.headerStyle)
		}
		widths[i] = estimateWidth(col)
	}

	for r, row := range rows {
		for i, val := range row {
			if i >= len(columns) {
				break
			}
			cell, _ := excelize.CoordinatesToCellName(i+1, r+2)
			if err := w.setCellValue(name, cell, val); err != nil {
				return fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
			if width := estimateWidth(val); width > widths[i] {
				widths[i] = width
			}
		}
	}

	if w.options.FreezeHeader {
		w.file.SetPanes(name, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		})
	}
	if w.options.AutoFilter && len(rows) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(columns), len(rows)+1)
		w.file.AutoFilter(name, "A1:"+last, nil)
	}
	if w.options.AutoWidth {
		for i, width := range widths {
			col, _ := excelize.ColumnNumberToName(i + 1)
			// Min width 10, max width 50
			width = min(max(width, 10), 50)
			w.file.SetColWidth(name, col, col, width)
		}
	}
	return nil
}

// WriteTo writes the workbook to a writer
func (w *Workbook) WriteTo(out io.Writer) (int64, error) {
	return w.file.WriteTo(out)
}

// Close closes the workbook
func (w *Workbook) Close() error {
	return w.file.Close()
}

func (w *Workbook) createStyle(config *ExcelStyleConfig, customNumFmt *string, numFmt int) (int, error) {
	style := &excelize.Style{CustomNumFmt: customNumFmt, NumFmt: numFmt}
	if config == nil {
		return w.file.NewStyle(style)
	}

	style.Font = &excelize.Font{
		Bold:  config.FontBold,
		Size:  float64(config.FontSize),
		Color: config.FontColor,
	}
	if config.FillColor != "" {
		style.Fill = excelize.Fill{
			Type:    "pattern",
			Pattern: 1,
			Color:   []string{config.FillColor},
		}
	}
	if config.Alignment != "" {
		style.Alignment = &excelize.Alignment{Horizontal: config.Alignment}
	}
	if config.Border {
		style.Border = []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		}
	}
	return w.file.NewStyle(style)
}

func (w *Workbook) setCellValue(sheet, cell string, val any) error {
	style := w.dataStyle
	switch v := val.(type) {
	case nil:
		val = ""
	case decimal.Decimal:
		val = v.InexactFloat64()
		style = w.numberStyle
	case time.Time:
		if v.IsZero() {
			val = ""
		} else {
			style = w.dateStyle
		}
	}

	if err := w.file.SetCellValue(sheet, cell, val); err != nil {
		return err
	}
	return w.file.SetCellStyle(sheet, cell, cell, style)
}

func estimateWidth(val any) float64 {
	if val == nil {
		return 0
	}
	// Rough estimate: 1 character = 1.2 units of width
	return float64(len(fmt.Sprintf("%v", val))) * 1.2
}

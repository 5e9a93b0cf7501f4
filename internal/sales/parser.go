package sales

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/barstock/internal/recipes"
)

// headerScanRows bounds how far down the sheet the header row is searched.
const headerScanRows = 10

var (
	productHeaders  = []string{"producto", "productos", "nombre", "nombre producto", "product", "item"}
	quantityHeaders = []string{"cantidad", "cantidad vendida", "vendidos", "unidades", "qty", "quantity"}
	variantHeaders  = []string{"variante", "variant", "recipe variant", "receta"}
)

type columns struct {
	product  int
	quantity int
	variant  int
}

// ParseWorkbook reads sale rows from the first sheet of an .xlsx workbook.
// Rows with a zero quantity are dropped; Row carries the sheet row number.
func ParseWorkbook(r io.Reader) ([]Line, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWorkbook, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("%w: no sheets", ErrInvalidWorkbook)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWorkbook, err)
	}

	headerRow, cols, ok := findHeader(rows)
	if !ok {
		return nil, fmt.Errorf("%w: header with product and quantity columns not found", ErrInvalidWorkbook)
	}

	var lines []Line
	for i := headerRow + 1; i < len(rows); i++ {
		row := rows[i]
		rowNum := i + 1
		product := strings.TrimSpace(cell(row, cols.product))
		rawQty := strings.TrimSpace(cell(row, cols.quantity))
		if product == "" && rawQty == "" {
			continue
		}
		if product == "" {
			return nil, fmt.Errorf("%w: row %d has no product", ErrInvalidLine, rowNum)
		}
		qty, err := parseQuantity(rawQty)
		if err != nil || qty < 0 {
			return nil, fmt.Errorf("%w: row %d quantity %q", ErrInvalidLine, rowNum, rawQty)
		}
		if qty == 0 {
			continue
		}
		line := Line{Row: rowNum, Product: product, Quantity: qty}
		if cols.variant >= 0 {
			if raw := strings.TrimSpace(cell(row, cols.variant)); raw != "" {
				v, err := strconv.Atoi(raw)
				if err != nil || v < 0 {
					return nil, fmt.Errorf("%w: row %d variant %q", ErrInvalidLine, rowNum, raw)
				}
				line.Variant = v
			}
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return nil, ErrNoLines
	}
	return lines, nil
}

func findHeader(rows [][]string) (int, columns, bool) {
	limit := len(rows)
	if limit > headerScanRows {
		limit = headerScanRows
	}
	for i := 0; i < limit; i++ {
		cols := columns{product: -1, quantity: -1, variant: -1}
		for j, raw := range rows[i] {
			name := recipes.NormalizeName(strings.Trim(raw, "\"'\t:"))
			switch {
			case cols.product < 0 && matches(name, productHeaders):
				cols.product = j
			case cols.quantity < 0 && matches(name, quantityHeaders):
				cols.quantity = j
			case cols.variant < 0 && matches(name, variantHeaders):
				cols.variant = j
			}
		}
		if cols.product >= 0 && cols.quantity >= 0 {
			return i, cols, true
		}
	}
	return 0, columns{}, false
}

func matches(name string, candidates []string) bool {
	for _, c := range candidates {
		if name == c {
			return true
		}
	}
	return false
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// parseQuantity accepts "3", "2.5" and the decimal comma form "2,5".
func parseQuantity(raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	qty, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
	if err != nil {
		return 0, err
	}
	if math.IsInf(qty, 0) || math.IsNaN(qty) {
		return 0, fmt.Errorf("quantity %q is not finite", raw)
	}
	return qty, nil
}

package sales

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func workbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i := range rows {
		if len(rows[i]) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &rows[i]))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestParseWorkbookFindsHeaderBelowTitle(t *testing.T) {
	data := workbook(t, [][]any{
		{"Reporte de ventas - viernes"},
		{},
		{"Producto", "Cantidad", "Variante"},
		{"Gin Tonic", 3, ""},
		{"Negroni", "2,5", 2},
		{},
		{"Agua", 0},
	})

	lines, err := ParseWorkbook(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, []Line{
		{Row: 4, Product: "Gin Tonic", Quantity: 3},
		{Row: 5, Product: "Negroni", Quantity: 2.5, Variant: 2},
	}, lines)
}

func TestParseWorkbookAcceptsAlternateHeaders(t *testing.T) {
	data := workbook(t, [][]any{
		{"Código", "Nombre", "Unidades"},
		{"A1", "Mojito", 4},
	})
	lines, err := ParseWorkbook(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, []Line{{Row: 2, Product: "Mojito", Quantity: 4}}, lines)
}

func TestParseWorkbookErrors(t *testing.T) {
	_, err := ParseWorkbook(strings.NewReader("producto,cantidad\nmojito,1\n"))
	require.ErrorIs(t, err, ErrInvalidWorkbook)

	_, err = ParseWorkbook(bytes.NewReader(workbook(t, [][]any{{"a", "b"}, {"c", 1}})))
	require.ErrorIs(t, err, ErrInvalidWorkbook)

	_, err = ParseWorkbook(bytes.NewReader(workbook(t, [][]any{{"Producto", "Cantidad"}, {"Mojito", "muchos"}})))
	require.ErrorIs(t, err, ErrInvalidLine)
	require.Contains(t, err.Error(), "row 2")

	_, err = ParseWorkbook(bytes.NewReader(workbook(t, [][]any{{"Producto", "Cantidad"}, {"", 3}})))
	require.ErrorIs(t, err, ErrInvalidLine)

	_, err = ParseWorkbook(bytes.NewReader(workbook(t, [][]any{{"Producto", "Cantidad"}})))
	require.ErrorIs(t, err, ErrNoLines)
}

func TestParseWorkbookRejectsNonFiniteQuantity(t *testing.T) {
	for _, raw := range []string{"inf", "NaN", "-Inf"} {
		_, err := ParseWorkbook(bytes.NewReader(workbook(t, [][]any{{"Producto", "Cantidad"}, {"Gin Tónic", raw}})))
		require.ErrorIs(t, err, ErrInvalidLine, raw)
		require.Contains(t, err.Error(), "row 2")
	}
}

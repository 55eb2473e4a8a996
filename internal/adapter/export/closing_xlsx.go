package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/iho/storeledger/internal/domain"
)

const (
	summarySheet = "resumen"
	entriesSheet = "movimientos"
)

// ClosingReportXLSX renders a session's closing report with its entry log.
// Open sessions export their live figures with no counted amount.
func ClosingReportXLSX(business string, report *domain.ClosingReport, entries []*domain.CashEntry) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(entriesSheet); err != nil {
		return nil, err
	}

	rows := [][]any{
		{business, "Cierre de caja"},
		{},
		{"Sesion", report.SessionID},
		{"Caja", report.RegisterID},
		{"Estado", string(report.Status)},
		{"Apertura", money(report.Opening)},
		{"Esperado", money(report.Expected)},
	}
	if report.Counted != nil {
		rows = append(rows,
			[]any{"Contado", money(*report.Counted)},
			[]any{"Diferencia", money(*report.Variance)},
			[]any{"Diferencia %", report.VariancePct.InexactFloat64()},
			[]any{"Clasificacion", string(report.Classification)},
		)
	}
	if report.ClosedBy != nil && report.ClosedAt != nil {
		rows = append(rows,
			[]any{"Cerrado por", *report.ClosedBy},
			[]any{"Cerrado", report.ClosedAt.Format(time.DateTime)},
		)
	}
	rows = append(rows, []any{}, []any{"Tipo", "Total"})
	for _, t := range report.TotalsByType {
		rows = append(rows, []any{string(t.Type), money(t.Amount)})
	}
	if err := writeRows(f, summarySheet, rows); err != nil {
		return nil, err
	}

	lines := [][]any{{"#", "Tipo", "Importe", "Referencia", "Usuario", "Fecha"}}
	for _, e := range entries {
		lines = append(lines, []any{
			e.Seq, string(e.Type), money(e.Amount), e.Reference, e.CreatedBy, e.CreatedAt.Format(time.DateTime),
		})
	}
	if err := writeRows(f, entriesSheet, lines); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("render closing report %s: %w", report.SessionID, err)
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

// money writes amounts as numbers so the sheet can sum them.
func money(m domain.Money) float64 {
	return m.Decimal().InexactFloat64()
}

package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/iho/storeledger/internal/domain"
)

// ReceiptPDF renders the voucher handed to a customer after an installment
// is collected.
func ReceiptPDF(business string, r *domain.Receipt) ([]byte, error) {
	// 80mm thermal roll
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           gofpdf.SizeType{Wd: 80, Ht: 160},
	})
	pdf.SetMargins(5, 5, 5)
	pdf.SetAutoPageBreak(true, 5)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 6, business, "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 5, "Comprobante de pago de cuota", "", 1, "C", false, 0, "")
	pdf.Ln(3)

	line := func(label, value string) {
		pdf.CellFormat(30, 5, label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 5, value, "", 1, "R", false, 0, "")
	}
	line("Venta", r.SaleID)
	line("Cuota", fmt.Sprintf("#%d", r.PaymentNumber))
	line("Fecha", r.PaidDate.Format(time.DateTime))
	line("Metodo", string(r.Method))
	if r.Reference != nil {
		line("Referencia", *r.Reference)
	}
	line("Cajero", r.CollectedBy)
	pdf.Ln(2)

	pdf.SetFont("Arial", "B", 10)
	line("Importe cuota", r.Amount.String())
	line("Pagado", r.AmountPaid.String())
	line("Saldo", r.RemainingBalance.String())

	pdf.Ln(3)
	pdf.SetFont("Arial", "", 7)
	pdf.CellFormat(0, 4, "Pago "+r.PaymentID, "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render receipt %s: %w", r.PaymentID, err)
	}
	return buf.Bytes(), nil
}

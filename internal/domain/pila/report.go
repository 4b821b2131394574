package pila

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/jung-kurt/gofpdf"
)

type reportLine struct {
	label  string
	amount int64
}

func (r Result) lines() []reportLine {
	out := []reportLine{
		{"Salud empleado", r.HealthEmployee},
		{"Salud empleador", r.HealthEmployer},
		{"Pensión empleado", r.PensionEmployee},
		{"Pensión empleador", r.PensionEmployer},
		{"ARL", r.ARLEmployer},
		{"CCF", r.CCF},
		{"SENA", r.SENA},
		{"ICBF", r.ICBF},
	}
	return out
}

func money(v int64) string {
	return printer.Sprintf("$ %d", v)
}

// RenderText writes a plain-text liquidation summary.
func RenderText(w io.Writer, r Result) error {
	var b strings.Builder
	fmt.Fprintf(&b, "LIQUIDACIÓN PILA %d\n", r.Year)
	fmt.Fprintf(&b, "Tipo de cotizante: %s\n", r.CotizanteType)
	if r.CotizanteType == Dependiente {
		fmt.Fprintf(&b, "Clase de riesgo: %s (tarifa ARL %s%%)\n", r.RiskClass, r.ARLRate.Shift(2).String())
	}
	fmt.Fprintf(&b, "Salario: %s  Días: %d\n", money(r.Salary), r.DaysWorked)
	fmt.Fprintf(&b, "IBC: %s", money(r.IBC))
	if r.IBCAdjusted {
		b.WriteString(" (ajustado al mínimo)")
	}
	if r.IBCCapped {
		b.WriteString(" (tope 25 SMMLV)")
	}
	b.WriteString("\n\n")

	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', tabwriter.AlignRight)
	for _, line := range r.lines() {
		fmt.Fprintf(tw, "%s\t%s\t\n", line.label, money(line.amount))
	}
	fmt.Fprintf(tw, "Total empleado\t%s\t\n", money(r.Totals.Employee))
	fmt.Fprintf(tw, "Total empleador\t%s\t\n", money(r.Totals.Employer))
	fmt.Fprintf(tw, "TOTAL PILA\t%s\t\n", money(r.Totals.Grand))
	fmt.Fprintf(tw, "Salario neto estimado\t%s\t\n", money(r.EstimatedNet))
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(r.Warnings) > 0 {
		b.WriteString("\nAdvertencias:\n")
		for _, warning := range r.Warnings {
			fmt.Fprintf(&b, "- %s\n", warning.Message)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// RenderPDF builds a one-page liquidation report.
func RenderPDF(r Result) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(fmt.Sprintf("Liquidación PILA %d", r.Year), true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, tr(fmt.Sprintf("Liquidación PILA %d", r.Year)))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 7, tr(fmt.Sprintf("Tipo de cotizante: %s", r.CotizanteType)))
	pdf.Ln(6)
	if r.CotizanteType == Dependiente {
		pdf.Cell(0, 7, tr(fmt.Sprintf("Clase de riesgo: %s", r.RiskClass)))
		pdf.Ln(6)
	}
	pdf.Cell(0, 7, tr(fmt.Sprintf("Salario: %s   Días trabajados: %d", money(r.Salary), r.DaysWorked)))
	pdf.Ln(6)
	pdf.Cell(0, 7, tr(fmt.Sprintf("IBC: %s", money(r.IBC))))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(110, 8, tr("Concepto"), "1", 0, "L", false, 0, "")
	pdf.CellFormat(60, 8, "Valor", "1", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	for _, line := range r.lines() {
		pdf.CellFormat(110, 7, tr(line.label), "1", 0, "L", false, 0, "")
		pdf.CellFormat(60, 7, money(line.amount), "1", 1, "R", false, 0, "")
	}
	pdf.SetFont("Helvetica", "B", 11)
	for _, line := range []reportLine{
		{"Total empleado", r.Totals.Employee},
		{"Total empleador", r.Totals.Employer},
		{"TOTAL PILA", r.Totals.Grand},
		{"Salario neto estimado", r.EstimatedNet},
	} {
		pdf.CellFormat(110, 8, tr(line.label), "1", 0, "L", false, 0, "")
		pdf.CellFormat(60, 8, money(line.amount), "1", 1, "R", false, 0, "")
	}

	if len(r.Warnings) > 0 {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.Cell(0, 7, "Advertencias")
		pdf.Ln(7)
		pdf.SetFont("Helvetica", "", 10)
		for _, warning := range r.Warnings {
			pdf.MultiCell(0, 6, tr("- "+warning.Message), "", "L", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

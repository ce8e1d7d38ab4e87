package report

import (
	"github.com/jung-kurt/gofpdf"
)

// WritePDF renders the record as a printable document: title block,
// summary paragraph, then a two-column table of the detail fields.
func WritePDF(rec *Record, meta Meta, path string) error {
	pdf := gofpdf.New("P", "mm", "Letter", "")
	pdf.SetTopMargin(15)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.SetTextColor(0, 0, 128)
	pdf.CellFormat(0, 10, "MEDICAL ASSISTANT REPORT", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 7, meta.GeneratedAt.Format("2006-01-02 15:04:05"), "", 1, "C", false, 0, "")
	if meta.PatientName != "" {
		pdf.CellFormat(0, 7, "Patient: "+meta.PatientName, "", 1, "C", false, 0, "")
	}
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetTextColor(0, 0, 128)
	pdf.CellFormat(0, 8, "SUMMARY OF FINDINGS", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.SetTextColor(0, 0, 0)
	summary := rec.Summary
	if summary == "" {
		summary = NotProvided
	}
	pdf.MultiCell(0, 6, summary, "", "L", false)
	pdf.Ln(6)

	if intake := rec.IntakeFields(); len(intake) > 0 {
		writeTable(pdf, "PATIENT INTAKE DATA", intake)
		pdf.Ln(6)
	}
	writeTable(pdf, "DETAILED SYMPTOM DATA", rec.DetailFields())

	pdf.Ln(10)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.SetTextColor(128, 128, 128)
	pdf.CellFormat(0, 6, "Generated by MediSyn Medical Assistant", "", 1, "C", false, 0, "")

	return pdf.OutputFileAndClose(path)
}

func writeTable(pdf *gofpdf.Fpdf, heading string, rows []Field) {
	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetTextColor(0, 0, 128)
	pdf.CellFormat(0, 8, heading, "", 1, "L", false, 0, "")

	const labelW, valueW = 60.0, 120.0
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(0, 0, 128)
	pdf.SetTextColor(255, 255, 255)
	pdf.CellFormat(labelW, 8, "Category", "1", 0, "L", true, 0, "")
	pdf.CellFormat(valueW, 8, "Information", "1", 1, "L", true, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(0, 0, 0)
	for i, f := range rows {
		if i%2 == 0 {
			pdf.SetFillColor(245, 245, 220)
		} else {
			pdf.SetFillColor(230, 230, 230)
		}
		value := f.Value
		if len(value) > 90 {
			value = value[:90] + "..."
		}
		pdf.CellFormat(labelW, 7, f.Label, "1", 0, "L", true, 0, "")
		pdf.CellFormat(valueW, 7, value, "1", 1, "L", true, 0, "")
	}
}

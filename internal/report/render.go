package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Meta carries report header information not part of the record itself.
type Meta struct {
	PatientName string
	SessionID   string
	GeneratedAt time.Time
}

const banner = "================================================="

// RenderText formats the record as the plain-text report document.
func RenderText(rec *Record, meta Meta) string {
	var b strings.Builder
	b.WriteString(banner + "\n")
	fmt.Fprintf(&b, "MEDICAL ASSISTANT REPORT - %s\n", meta.GeneratedAt.Format("2006-01-02 15:04:05"))
	if meta.PatientName != "" {
		fmt.Fprintf(&b, "Patient: %s\n", meta.PatientName)
	}
	if meta.SessionID != "" {
		fmt.Fprintf(&b, "Session ID: %s\n", meta.SessionID)
	}
	b.WriteString(banner + "\n\n")

	b.WriteString("--- SUMMARY OF FINDINGS ---\n")
	summary := rec.Summary
	if summary == "" {
		summary = NotProvided
	}
	b.WriteString(summary + "\n\n")

	if intake := rec.IntakeFields(); len(intake) > 0 {
		b.WriteString("--- PATIENT INTAKE DATA ---\n")
		for _, f := range intake {
			fmt.Fprintf(&b, "%-25s: %s\n", f.Label, f.Value)
		}
		b.WriteString("\n")
	}

	b.WriteString("--- DETAILED SYMPTOM DATA ---\n")
	for _, f := range rec.DetailFields() {
		fmt.Fprintf(&b, "%-25s: %s\n", f.Label, f.Value)
	}

	if rec.RawResponse != "" {
		b.WriteString("\n--- RAW MODEL OUTPUT ---\n")
		b.WriteString(rec.RawResponse + "\n")
	}
	return b.String()
}

// WriteFiles renders the record to both output formats under dir, writing
// the text and PDF documents concurrently. It returns the two paths.
func WriteFiles(rec *Record, meta Meta, dir, baseName string) (txtPath, pdfPath string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create report dir: %w", err)
	}
	txtPath = filepath.Join(dir, baseName+".txt")
	pdfPath = filepath.Join(dir, baseName+".pdf")

	var g errgroup.Group
	g.Go(func() error {
		if err := os.WriteFile(txtPath, []byte(RenderText(rec, meta)), 0o644); err != nil {
			return fmt.Errorf("write text report: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := WritePDF(rec, meta, pdfPath); err != nil {
			return fmt.Errorf("write pdf report: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return "", "", err
	}
	return txtPath, pdfPath, nil
}

// BaseName builds the report file stem for a session, matching the
// medical_report_<patient>_<timestamp> convention. The patient id is
// caller-supplied and must never steer the target path, so anything
// outside [A-Za-z0-9_-] is stripped.
func BaseName(patientID string, at time.Time) string {
	id := sanitizeStem(patientID)
	if id == "" {
		return "medical_report_" + at.Format("20060102_150405")
	}
	return "medical_report_" + id + "_" + at.Format("20060102_150405")
}

func sanitizeStem(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

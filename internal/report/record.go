package report

import (
	"encoding/json"
	"strings"
)

// NotProvided fills any clinical field the interview did not cover.
const NotProvided = "Not provided"

// FallbackSummary is the summary used when the model reply could not be
// parsed into a structured record.
const FallbackSummary = "Report generation completed but parsing failed"

// Record is the fixed-schema medical report extracted from a completed
// interview. The clinical fields come from the model's JSON reply; the
// intake fields are merged from the appointment's prerequisite data.
// RawResponse is only set on the degraded path, preserving the unparsed
// model output for manual review.
type Record struct {
	Summary            string `json:"summary"`
	Symptoms           string `json:"symptoms"`
	Onset              string `json:"onset"`
	Duration           string `json:"duration"`
	Severity           string `json:"severity"`
	Frequency          string `json:"frequency"`
	Character          string `json:"character"`
	Location           string `json:"location"`
	TriggersRelief     string `json:"triggers_relief"`
	AssociatedSymptoms string `json:"associated_symptoms"`
	MedicalHistory     string `json:"medical_history"`
	FamilyHistory      string `json:"family_history"`
	LifestyleContext   string `json:"lifestyle_context"`

	RawResponse string `json:"raw_response,omitempty"`

	Gender            string `json:"gender,omitempty"`
	Height            string `json:"height,omitempty"`
	Weight            string `json:"weight,omitempty"`
	InsuranceProvider string `json:"insurance_provider,omitempty"`
	InsurancePlan     string `json:"insurance_plan,omitempty"`
	EmergencyContact  string `json:"emergency_contact_phone,omitempty"`
	Allergies         string `json:"allergies,omitempty"`
	Medications       string `json:"medications,omitempty"`
	PriorConditions   string `json:"prior_conditions,omitempty"`
}

// Extract parses the raw model reply into a Record. It slices the first
// balanced {...} span (first '{' to last '}') and unmarshals it. Missing
// braces or malformed JSON never fail: the result degrades to a Record
// carrying only the fallback summary and the original text.
func Extract(raw string) *Record {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return &Record{Summary: FallbackSummary, RawResponse: raw}
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw[start:end+1]), &rec); err != nil {
		return &Record{Summary: FallbackSummary, RawResponse: raw}
	}
	rec.RawResponse = ""
	return &rec
}

// MergePrerequisite copies intake data fetched at session start into the
// record. Keys follow the appointments table column names.
func (r *Record) MergePrerequisite(pre map[string]string) {
	if len(pre) == 0 {
		return
	}
	r.Gender = pre["gender"]
	r.Height = pre["height"]
	r.Weight = pre["weight"]
	r.InsuranceProvider = pre["insurance_provider"]
	r.InsurancePlan = pre["insurance_plan"]
	r.EmergencyContact = pre["emergency_contact_phone"]
	r.Allergies = pre["allergies"]
	r.Medications = pre["medications"]
	r.PriorConditions = pre["medical_history"]
}

// Field is one labelled row for rendering.
type Field struct {
	Key   string
	Label string
	Value string
}

// DetailFields returns the clinical rows in report order, defaulting any
// absent value to NotProvided.
func (r *Record) DetailFields() []Field {
	rows := []Field{
		{"symptoms", "Primary Symptoms", r.Symptoms},
		{"onset", "Onset", r.Onset},
		{"duration", "Duration", r.Duration},
		{"severity", "Severity (1-10)", r.Severity},
		{"frequency", "Frequency", r.Frequency},
		{"character", "Character", r.Character},
		{"location", "Location", r.Location},
		{"triggers_relief", "Triggers/Relief", r.TriggersRelief},
		{"associated_symptoms", "Associated Symptoms", r.AssociatedSymptoms},
		{"medical_history", "Medical History", r.MedicalHistory},
		{"family_history", "Family History", r.FamilyHistory},
		{"lifestyle_context", "Lifestyle/Context", r.LifestyleContext},
	}
	for i := range rows {
		if rows[i].Value == "" {
			rows[i].Value = NotProvided
		}
	}
	return rows
}

// IntakeFields returns the prerequisite-derived rows, skipping empty ones.
func (r *Record) IntakeFields() []Field {
	all := []Field{
		{"gender", "Gender", r.Gender},
		{"height", "Height", r.Height},
		{"weight", "Weight", r.Weight},
		{"insurance_provider", "Insurance Provider", r.InsuranceProvider},
		{"insurance_plan", "Insurance Plan", r.InsurancePlan},
		{"emergency_contact_phone", "Emergency Contact", r.EmergencyContact},
		{"allergies", "Known Allergies", r.Allergies},
		{"medications", "Current Medications", r.Medications},
		{"medical_history", "Conditions on File", r.PriorConditions},
	}
	rows := make([]Field, 0, len(all))
	for _, f := range all {
		if f.Value != "" {
			rows = append(rows, f)
		}
	}
	return rows
}

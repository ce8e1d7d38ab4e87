package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"medisyn/pkg"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("db: not found")

// Repository wraps database operations for accounts, appointments and
// stored reports. A single postgres database backs all of them.
type Repository struct {
	DB *sql.DB
}

// NewRepository constructs a Repository from an existing sql.DB. The
// caller manages the connection lifecycle.
func NewRepository(db *sql.DB) *Repository { return &Repository{DB: db} }

// CreatePatient registers a patient account with an already-hashed
// password.
func (r *Repository) CreatePatient(ctx context.Context, name, email, passwordHash string) (*pkg.Patient, error) {
	var p pkg.Patient
	err := r.DB.QueryRowContext(ctx,
		`INSERT INTO patients (name, email, password_hash)
         VALUES ($1, $2, $3)
         RETURNING id, name, email, created_at`,
		name, email, passwordHash,
	).Scan(&p.ID, &p.Name, &p.Email, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create patient: %w", err)
	}
	return &p, nil
}

// GetPatientByEmail loads a patient account, including the password hash
// for login verification.
func (r *Repository) GetPatientByEmail(ctx context.Context, email string) (*pkg.Patient, error) {
	var p pkg.Patient
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, created_at
         FROM patients WHERE email = $1`, email,
	).Scan(&p.ID, &p.Name, &p.Email, &p.PasswordHash, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetDoctorByEmail loads a doctor account.
func (r *Repository) GetDoctorByEmail(ctx context.Context, email string) (*pkg.Doctor, error) {
	var d pkg.Doctor
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, name, email, specialty, password_hash, created_at
         FROM doctors WHERE email = $1`, email,
	).Scan(&d.ID, &d.Name, &d.Email, &d.Specialty, &d.PasswordHash, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// AppointmentsForPatient lists a patient's appointments with the doctor
// name joined in, newest first.
func (r *Repository) AppointmentsForPatient(ctx context.Context, patientID int64) ([]pkg.Appointment, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT a.id, a.patient_id, a.doctor_id, d.name, a.scheduled_at, a.status, a.created_at
         FROM appointments a
         JOIN doctors d ON d.id = a.doctor_id
         WHERE a.patient_id = $1
         ORDER BY a.scheduled_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []pkg.Appointment
	for rows.Next() {
		var a pkg.Appointment
		if err := rows.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.DoctorName, &a.ScheduledAt, &a.Status, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AppointmentsForDoctor lists a doctor's appointments with the patient
// name joined in, soonest first.
func (r *Repository) AppointmentsForDoctor(ctx context.Context, doctorID int64) ([]pkg.Appointment, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT a.id, a.patient_id, a.doctor_id, p.name, a.scheduled_at, a.status, a.created_at
         FROM appointments a
         JOIN patients p ON p.id = a.patient_id
         WHERE a.doctor_id = $1
         ORDER BY a.scheduled_at ASC`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []pkg.Appointment
	for rows.Next() {
		var a pkg.Appointment
		if err := rows.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.PatientName, &a.ScheduledAt, &a.Status, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetAppointment loads one appointment with both names and the
// prerequisite data.
func (r *Repository) GetAppointment(ctx context.Context, id int64) (*pkg.Appointment, error) {
	var a pkg.Appointment
	var gender, height, weight, provider, plan, contact, allergies, meds, history, reportPath sql.NullString
	err := r.DB.QueryRowContext(ctx,
		`SELECT a.id, a.patient_id, a.doctor_id, p.name, d.name, a.scheduled_at, a.status, a.created_at,
                a.gender, a.height, a.weight, a.insurance_provider, a.insurance_plan,
                a.emergency_contact_phone, a.allergies, a.medications, a.medical_history,
                a.report_pdf_path
         FROM appointments a
         JOIN patients p ON p.id = a.patient_id
         JOIN doctors d ON d.id = a.doctor_id
         WHERE a.id = $1`, id,
	).Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.PatientName, &a.DoctorName, &a.ScheduledAt, &a.Status, &a.CreatedAt,
		&gender, &height, &weight, &provider, &plan, &contact, &allergies, &meds, &history, &reportPath)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if gender.Valid || height.Valid || weight.Valid || provider.Valid {
		a.Prerequisite = &pkg.PrerequisiteData{
			Gender:                gender.String,
			Height:                height.String,
			Weight:                weight.String,
			InsuranceProvider:     provider.String,
			InsurancePlan:         plan.String,
			EmergencyContactPhone: contact.String,
			Allergies:             allergies.String,
			Medications:           meds.String,
			MedicalHistory:        history.String,
		}
	}
	a.ReportPath = reportPath.String
	return &a, nil
}

// UpdateAppointmentStatus moves an appointment through the 0/1/2 lattice.
func (r *Repository) UpdateAppointmentStatus(ctx context.Context, id int64, status int) error {
	if status < pkg.StatusPrerequisite || status > pkg.StatusReported {
		return fmt.Errorf("invalid appointment status %d", status)
	}
	res, err := r.DB.ExecContext(ctx,
		`UPDATE appointments SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdatePrerequisite stores the intake form for an appointment and moves
// it to the screening stage if still at intake.
func (r *Repository) UpdatePrerequisite(ctx context.Context, id int64, pre pkg.PrerequisiteData) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE appointments
         SET gender = $1, height = $2, weight = $3,
             insurance_provider = $4, insurance_plan = $5,
             emergency_contact_phone = $6, allergies = $7,
             medications = $8, medical_history = $9,
             status = GREATEST(status, $10)
         WHERE id = $11`,
		pre.Gender, pre.Height, pre.Weight,
		pre.InsuranceProvider, pre.InsurancePlan,
		pre.EmergencyContactPhone, pre.Allergies,
		pre.Medications, pre.MedicalHistory,
		pkg.StatusScreening, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// PrerequisiteRecord returns the intake data for an appointment as a flat
// key/value record for the interview session. An appointment without
// intake data (or an unknown id) yields an empty record, never an error.
func (r *Repository) PrerequisiteRecord(ctx context.Context, appointmentID int64) (map[string]string, error) {
	a, err := r.GetAppointment(ctx, appointmentID)
	if errors.Is(err, ErrNotFound) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	rec := map[string]string{}
	if a.Prerequisite == nil {
		return rec, nil
	}
	pre := a.Prerequisite
	for k, v := range map[string]string{
		"gender":                  pre.Gender,
		"height":                  pre.Height,
		"weight":                  pre.Weight,
		"insurance_provider":      pre.InsuranceProvider,
		"insurance_plan":          pre.InsurancePlan,
		"emergency_contact_phone": pre.EmergencyContactPhone,
		"allergies":               pre.Allergies,
		"medications":             pre.Medications,
		"medical_history":         pre.MedicalHistory,
	} {
		if v != "" {
			rec[k] = v
		}
	}
	return rec, nil
}

// SaveReport stores the rendered report for an appointment and marks it
// reported.
func (r *Repository) SaveReport(ctx context.Context, appointmentID int64, reportText, pdfPath string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE appointments
         SET report_text = $1, report_pdf_path = $2, status = $3
         WHERE id = $4`,
		reportText, pdfPath, pkg.StatusReported, appointmentID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

package pkg

import "time"

// Appointment status lattice. Appointments move forward only:
// prerequisite intake, then the screening interview, then the report.
const (
	StatusPrerequisite = 0
	StatusScreening    = 1
	StatusReported     = 2
)

// Patient is a registered patient account. PasswordHash never leaves the
// server.
type Patient struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Doctor is a doctor account.
type Doctor struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Specialty    string    `json:"specialty,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Appointment links a patient and a doctor. The joined display names are
// filled by the list queries.
type Appointment struct {
	ID          int64     `json:"id"`
	PatientID   int64     `json:"patient_id"`
	DoctorID    int64     `json:"doctor_id"`
	PatientName string    `json:"patient_name,omitempty"`
	DoctorName  string    `json:"doctor_name,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Status      int       `json:"status"`
	CreatedAt   time.Time `json:"created_at"`

	Prerequisite *PrerequisiteData `json:"prerequisite,omitempty"`
	ReportPath   string            `json:"report_path,omitempty"`
}

// PrerequisiteData is the intake form a patient fills before the
// screening interview. It is read once at chatbot session start and
// merged into the final report.
type PrerequisiteData struct {
	Gender                string `json:"gender"`
	Height                string `json:"height"`
	Weight                string `json:"weight"`
	InsuranceProvider     string `json:"insurance_provider"`
	InsurancePlan         string `json:"insurance_plan"`
	EmergencyContactPhone string `json:"emergency_contact_phone"`
	Allergies             string `json:"allergies,omitempty"`
	Medications           string `json:"medications,omitempty"`
	MedicalHistory        string `json:"medical_history,omitempty"`
}

// SignupRequest registers a new patient account.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest authenticates a patient or doctor.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"` // "patient" or "doctor"
}

// TokenResponse carries the issued access token.
type TokenResponse struct {
	Token  string `json:"access_token"`
	Role   string `json:"role"`
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
}

// StartSessionRequest opens a chatbot interview session. The patient
// fields are accepted for wire compatibility but ignored: the session is
// bound to the identity in the bearer token.
type StartSessionRequest struct {
	PatientName   string `json:"patient_name,omitempty"`
	PatientID     string `json:"patient_id,omitempty"`
	AppointmentID string `json:"appointment_id,omitempty"`
}

// StartSessionResponse returns the new session and its greeting.
type StartSessionResponse struct {
	SessionID      string `json:"session_id"`
	InitialMessage string `json:"initial_message"`
}

// SendMessageRequest carries one patient message.
type SendMessageRequest struct {
	Message string `json:"message"`
}

// SendMessageResponse carries the assistant reply. Error is set when the
// model gateway failed; Response then holds a user-facing apology, not
// assistant content.
type SendMessageResponse struct {
	Response   string `json:"response"`
	IsComplete bool   `json:"is_complete"`
	SessionID  string `json:"session_id"`
	Error      string `json:"error,omitempty"`
}

// UpdateStatusRequest moves an appointment through the status lattice.
type UpdateStatusRequest struct {
	Status int `json:"status"`
}

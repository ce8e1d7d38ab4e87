package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medisyn/internal/auth"
	"medisyn/internal/db"
	"medisyn/internal/interview"
	"medisyn/internal/llm"
	"medisyn/pkg"
)

// stubStore is an in-memory Store for handler tests.
type stubStore struct {
	mu           sync.Mutex
	patients     map[string]*pkg.Patient
	doctors      map[string]*pkg.Doctor
	appointments map[int64]*pkg.Appointment
	savedReports map[int64]string
	nextID       int64
}

func newStubStore() *stubStore {
	return &stubStore{
		patients:     map[string]*pkg.Patient{},
		doctors:      map[string]*pkg.Doctor{},
		appointments: map[int64]*pkg.Appointment{},
		savedReports: map[int64]string{},
		nextID:       1,
	}
}

func (s *stubStore) CreatePatient(_ context.Context, name, email, hash string) (*pkg.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.patients[email]; exists {
		return nil, errors.New("duplicate email")
	}
	p := &pkg.Patient{ID: s.nextID, Name: name, Email: email, PasswordHash: hash, CreatedAt: time.Now()}
	s.nextID++
	s.patients[email] = p
	return p, nil
}

func (s *stubStore) GetPatientByEmail(_ context.Context, email string) (*pkg.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patients[email]
	if !ok {
		return nil, db.ErrNotFound
	}
	return p, nil
}

func (s *stubStore) GetDoctorByEmail(_ context.Context, email string) (*pkg.Doctor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.doctors[email]
	if !ok {
		return nil, db.ErrNotFound
	}
	return d, nil
}

func (s *stubStore) AppointmentsForPatient(_ context.Context, id int64) ([]pkg.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []pkg.Appointment
	for _, a := range s.appointments {
		if a.PatientID == id {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *stubStore) AppointmentsForDoctor(_ context.Context, id int64) ([]pkg.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []pkg.Appointment
	for _, a := range s.appointments {
		if a.DoctorID == id {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *stubStore) GetAppointment(_ context.Context, id int64) (*pkg.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return a, nil
}

func (s *stubStore) UpdateAppointmentStatus(_ context.Context, id int64, status int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return db.ErrNotFound
	}
	a.Status = status
	return nil
}

func (s *stubStore) UpdatePrerequisite(_ context.Context, id int64, pre pkg.PrerequisiteData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return db.ErrNotFound
	}
	a.Prerequisite = &pre
	if a.Status < pkg.StatusScreening {
		a.Status = pkg.StatusScreening
	}
	return nil
}

func (s *stubStore) PrerequisiteRecord(_ context.Context, id int64) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok || a.Prerequisite == nil {
		return map[string]string{}, nil
	}
	return map[string]string{
		"gender":    a.Prerequisite.Gender,
		"allergies": a.Prerequisite.Allergies,
	}, nil
}

func (s *stubStore) SaveReport(_ context.Context, id int64, text, pdfPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return db.ErrNotFound
	}
	s.savedReports[id] = text
	a.Status = pkg.StatusReported
	a.ReportPath = pdfPath
	return nil
}

// scriptedClient mirrors the interview package's test double.
type scriptedClient struct {
	mu      sync.Mutex
	replies []any
}

func (c *scriptedClient) Generate(context.Context, string, []llm.Message, bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.replies) == 0 {
		return "", errors.New("no reply queued")
	}
	next := c.replies[0]
	c.replies = c.replies[1:]
	if err, ok := next.(error); ok {
		return "", err
	}
	return next.(string), nil
}

type testEnv struct {
	e     *echo.Echo
	store *stubStore
	auth  *auth.Manager
	token string
}

func newTestEnv(t *testing.T, client llm.Client) *testEnv {
	t.Helper()
	store := newStubStore()
	authMgr, err := auth.NewManager("test-secret", time.Minute)
	require.NoError(t, err)
	registry := interview.NewRegistry(client, time.Minute, zerolog.Nop())
	t.Cleanup(registry.Close)

	srv := NewServer(store, authMgr, registry, t.TempDir(), zerolog.Nop())
	e := echo.New()
	srv.Register(e)

	// Seed a logged-in patient.
	hash, err := auth.HashPassword("hunter2")
	require.NoError(t, err)
	p, err := store.CreatePatient(context.Background(), "Jane Roe", "jane@example.com", hash)
	require.NoError(t, err)
	token, err := authMgr.IssueToken(p.ID, auth.RolePatient, p.Name)
	require.NoError(t, err)

	return &testEnv{e: e, store: store, auth: authMgr, token: token}
}

func (env *testEnv) do(t *testing.T, method, path string, body any, authorized bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if authorized {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+env.token)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func TestSignupAndLogin(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{})

	rec := env.do(t, http.MethodPost, "/api/auth/signup",
		pkg.SignupRequest{Name: "Bob", Email: "bob@example.com", Password: "pw"}, false)
	require.Equal(t, http.StatusCreated, rec.Code)

	var tok pkg.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tok))
	assert.NotEmpty(t, tok.Token)
	assert.Equal(t, auth.RolePatient, tok.Role)

	rec = env.do(t, http.MethodPost, "/api/auth/login",
		pkg.LoginRequest{Email: "bob@example.com", Password: "pw"}, false)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/auth/login",
		pkg.LoginRequest{Email: "bob@example.com", Password: "wrong"}, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAppointmentsRequireAuth(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{})

	rec := env.do(t, http.MethodGet, "/api/appointments", nil, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/appointments", nil, true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestAppointmentStatusAndPrerequisite(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{})
	env.store.appointments[7] = &pkg.Appointment{ID: 7, PatientID: 1, DoctorID: 2}

	rec := env.do(t, http.MethodPut, "/api/appointments/7/prerequisite",
		pkg.PrerequisiteData{Gender: "female", Allergies: "penicillin"}, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pkg.StatusScreening, env.store.appointments[7].Status)

	rec = env.do(t, http.MethodPut, "/api/appointments/7/status",
		pkg.UpdateStatusRequest{Status: pkg.StatusReported}, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pkg.StatusReported, env.store.appointments[7].Status)

	rec = env.do(t, http.MethodPut, "/api/appointments/999/status",
		pkg.UpdateStatusRequest{Status: 1}, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatbotInterviewFlow(t *testing.T) {
	client := &scriptedClient{replies: []any{
		"How long has this been going on?",
		"Understood. The report is being generated. " + interview.ReportCompleteToken,
		`{"summary":"Patient reports a headache.","symptoms":"headache"}`,
	}}
	env := newTestEnv(t, client)
	env.store.appointments[7] = &pkg.Appointment{
		ID: 7, PatientID: 1, DoctorID: 2,
		Prerequisite: &pkg.PrerequisiteData{Gender: "female", Allergies: "penicillin"},
	}

	// Start.
	rec := env.do(t, http.MethodPost, "/api/chatbot/sessions",
		pkg.StartSessionRequest{PatientName: "Jane Roe", PatientID: "1", AppointmentID: "7"}, true)
	require.Equal(t, http.StatusCreated, rec.Code)
	var started pkg.StartSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	assert.Equal(t, interview.Greeting, started.InitialMessage)

	base := "/api/chatbot/sessions/" + started.SessionID

	// First exchange.
	rec = env.do(t, http.MethodPost, base+"/messages",
		pkg.SendMessageRequest{Message: "I have a headache."}, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var msg pkg.SendMessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.False(t, msg.IsComplete)
	assert.Empty(t, msg.Error)

	// Completion sentinel ends the interview, stripped from the reply.
	rec = env.do(t, http.MethodPost, base+"/messages",
		pkg.SendMessageRequest{Message: "No, that's everything."}, true)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.True(t, msg.IsComplete)
	assert.NotContains(t, msg.Response, interview.ReportCompleteToken)

	// Report generation renders files, persists, evicts the session.
	rec = env.do(t, http.MethodPost, base+"/report", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var rep struct {
		ReportData struct {
			Summary  string `json:"summary"`
			Symptoms string `json:"symptoms"`
			Gender   string `json:"gender"`
		} `json:"report_data"`
		TxtPath string `json:"txt_path"`
		PdfPath string `json:"pdf_path"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Equal(t, "Patient reports a headache.", rep.ReportData.Summary)
	assert.Equal(t, "headache", rep.ReportData.Symptoms)
	assert.Equal(t, "female", rep.ReportData.Gender)
	assert.NotEmpty(t, rep.TxtPath)
	assert.NotEmpty(t, rep.PdfPath)
	assert.Contains(t, env.store.savedReports[7], "headache")
	assert.Equal(t, pkg.StatusReported, env.store.appointments[7].Status)

	rec = env.do(t, http.MethodPost, base+"/messages",
		pkg.SendMessageRequest{Message: "hello?"}, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartSessionBindsIdentityToToken(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{})

	// Body identity is a forgery attempt; the session must carry the
	// authenticated patient instead.
	rec := env.do(t, http.MethodPost, "/api/chatbot/sessions",
		pkg.StartSessionRequest{PatientName: "Mallory", PatientID: "999"}, true)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/chatbot/sessions", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Sessions []struct {
			PatientName string `json:"patient_name"`
		} `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Sessions, 1)
	assert.Equal(t, "Jane Roe", listed.Sessions[0].PatientName)
}

func TestSendMessageGatewayFailure(t *testing.T) {
	client := &scriptedClient{replies: []any{&llm.GatewayError{Status: 503, Body: "down"}}}
	env := newTestEnv(t, client)

	rec := env.do(t, http.MethodPost, "/api/chatbot/sessions", pkg.StartSessionRequest{}, true)
	require.Equal(t, http.StatusCreated, rec.Code)
	var started pkg.StartSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))

	rec = env.do(t, http.MethodPost, "/api/chatbot/sessions/"+started.SessionID+"/messages",
		pkg.SendMessageRequest{Message: "hi"}, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var msg pkg.SendMessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.Equal(t, interview.ApologyMessage, msg.Response)
	assert.False(t, msg.IsComplete)
	assert.NotEmpty(t, msg.Error, "gateway failure must be flagged, not hidden in content")
}

func TestReportGatewayFailure(t *testing.T) {
	client := &scriptedClient{replies: []any{
		"q1",
		&llm.GatewayError{Status: 500, Body: "boom"},
	}}
	env := newTestEnv(t, client)

	rec := env.do(t, http.MethodPost, "/api/chatbot/sessions", pkg.StartSessionRequest{}, true)
	var started pkg.StartSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	env.do(t, http.MethodPost, "/api/chatbot/sessions/"+started.SessionID+"/messages",
		pkg.SendMessageRequest{Message: "hi"}, true)

	rec = env.do(t, http.MethodPost, "/api/chatbot/sessions/"+started.SessionID+"/report", nil, true)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestEndAndListSessions(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{})

	rec := env.do(t, http.MethodPost, "/api/chatbot/sessions", pkg.StartSessionRequest{}, true)
	var started pkg.StartSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))

	rec = env.do(t, http.MethodGet, "/api/chatbot/sessions", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		ActiveSessions int `json:"active_sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Equal(t, 1, listed.ActiveSessions)

	rec = env.do(t, http.MethodDelete, "/api/chatbot/sessions/"+started.SessionID, nil, true)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/chatbot/sessions/"+started.SessionID, nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, &scriptedClient{})
	rec := env.do(t, http.MethodGet, "/healthz", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

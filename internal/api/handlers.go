package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"medisyn/internal/auth"
	"medisyn/internal/db"
	"medisyn/internal/interview"
	"medisyn/internal/report"
	"medisyn/pkg"
)

func (s *Server) handleSignup(c echo.Context) error {
	var req pkg.SignupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name, email and password are required")
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return err
	}
	patient, err := s.store.CreatePatient(c.Request().Context(), req.Name, req.Email, hash)
	if err != nil {
		s.log.Error().Err(err).Msg("signup failed")
		return echo.NewHTTPError(http.StatusConflict, "account could not be created")
	}
	token, err := s.auth.IssueToken(patient.ID, auth.RolePatient, patient.Name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, pkg.TokenResponse{
		Token:  token,
		Role:   auth.RolePatient,
		UserID: patient.ID,
		Name:   patient.Name,
	})
}

func (s *Server) handleLogin(c echo.Context) error {
	var req pkg.LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()

	var (
		id   int64
		name string
		hash string
		role = req.Role
	)
	switch role {
	case auth.RoleDoctor:
		d, err := s.store.GetDoctorByEmail(ctx, req.Email)
		if err != nil {
			return unauthorized()
		}
		id, name, hash = d.ID, d.Name, d.PasswordHash
	default:
		role = auth.RolePatient
		p, err := s.store.GetPatientByEmail(ctx, req.Email)
		if err != nil {
			return unauthorized()
		}
		id, name, hash = p.ID, p.Name, p.PasswordHash
	}

	if !auth.CheckPassword(hash, req.Password) {
		return unauthorized()
	}
	token, err := s.auth.IssueToken(id, role, name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pkg.TokenResponse{Token: token, Role: role, UserID: id, Name: name})
}

func unauthorized() error {
	return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
}

func (s *Server) handleListAppointments(c echo.Context) error {
	claims := auth.ClaimsFrom(c)
	ctx := c.Request().Context()

	var (
		appts []pkg.Appointment
		err   error
	)
	if claims.Role == auth.RoleDoctor {
		appts, err = s.store.AppointmentsForDoctor(ctx, claims.UserID)
	} else {
		appts, err = s.store.AppointmentsForPatient(ctx, claims.UserID)
	}
	if err != nil {
		return err
	}
	if appts == nil {
		appts = []pkg.Appointment{}
	}
	return c.JSON(http.StatusOK, appts)
}

func (s *Server) handleGetAppointment(c echo.Context) error {
	id, err := appointmentID(c)
	if err != nil {
		return err
	}
	appt, err := s.store.GetAppointment(c.Request().Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, appt)
}

func (s *Server) handleUpdateStatus(c echo.Context) error {
	id, err := appointmentID(c)
	if err != nil {
		return err
	}
	var req pkg.UpdateStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	err = s.store.UpdateAppointmentStatus(c.Request().Context(), id, req.Status)
	if errors.Is(err, db.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleUpdatePrerequisite(c echo.Context) error {
	id, err := appointmentID(c)
	if err != nil {
		return err
	}
	var pre pkg.PrerequisiteData
	if err := c.Bind(&pre); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	err = s.store.UpdatePrerequisite(c.Request().Context(), id, pre)
	if errors.Is(err, db.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func appointmentID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid appointment id")
	}
	return id, nil
}

func (s *Server) handleStartSession(c echo.Context) error {
	var req pkg.StartSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	// Identity comes from the verified token, never from the body.
	claims := auth.ClaimsFrom(c)
	opts := []interview.SessionOption{
		interview.WithPatient(claims.Name, strconv.FormatInt(claims.UserID, 10)),
	}
	if req.AppointmentID != "" {
		opts = append(opts, interview.WithAppointment(req.AppointmentID))
		// The prerequisite record is fetched exactly once, here; the
		// session never reads the store again.
		if apptID, err := strconv.ParseInt(req.AppointmentID, 10, 64); err == nil {
			pre, err := s.store.PrerequisiteRecord(c.Request().Context(), apptID)
			if err != nil {
				s.log.Warn().Err(err).Str("appointment_id", req.AppointmentID).Msg("prerequisite lookup failed")
			} else if len(pre) > 0 {
				opts = append(opts, interview.WithPrerequisite(pre))
			}
		}
	}

	sess := s.sessions.Create(opts...)
	greeting := sess.Start()
	return c.JSON(http.StatusCreated, pkg.StartSessionResponse{
		SessionID:      sess.ID,
		InitialMessage: greeting,
	})
}

func (s *Server) handleSendMessage(c echo.Context) error {
	sess, err := s.sessions.Get(c.Param("id"))
	if errors.Is(err, interview.ErrSessionNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	var req pkg.SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	reply, err := sess.Submit(c.Request().Context(), req.Message)
	resp := pkg.SendMessageResponse{
		Response:   reply.Text,
		IsComplete: reply.Done,
		SessionID:  sess.ID,
	}
	if err != nil {
		// The apology text is user-facing; the error field is the
		// machine-readable discriminator.
		resp.Error = err.Error()
	}
	return c.JSON(http.StatusOK, resp)
}

type reportResponse struct {
	*interview.Result
	TxtPath string `json:"txt_path,omitempty"`
	PdfPath string `json:"pdf_path,omitempty"`
}

func (s *Server) handleGenerateReport(c echo.Context) error {
	sess, err := s.sessions.Get(c.Param("id"))
	if errors.Is(err, interview.ErrSessionNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}

	res, err := sess.GenerateReport(c.Request().Context())
	if errors.Is(err, interview.ErrEmptyConversation) {
		return echo.NewHTTPError(http.StatusBadRequest, "conversation is empty")
	}
	if err != nil {
		s.log.Error().Err(err).Str("session_id", sess.ID).Msg("report generation failed")
		return echo.NewHTTPError(http.StatusBadGateway, "report generation failed")
	}

	now := time.Now()
	meta := report.Meta{
		PatientName: res.PatientName,
		SessionID:   res.SessionID,
		GeneratedAt: now,
	}
	txtPath, pdfPath, err := report.WriteFiles(res.Record, meta, s.reportDir, report.BaseName(res.PatientID, now))
	if err != nil {
		return err
	}

	if res.AppointmentID != "" {
		if apptID, perr := strconv.ParseInt(res.AppointmentID, 10, 64); perr == nil {
			text := report.RenderText(res.Record, meta)
			if serr := s.store.SaveReport(c.Request().Context(), apptID, text, pdfPath); serr != nil {
				s.log.Error().Err(serr).Str("appointment_id", res.AppointmentID).Msg("report persist failed")
			}
		}
	}

	// The session has served its purpose; free it.
	s.sessions.Delete(sess.ID)

	return c.JSON(http.StatusOK, reportResponse{Result: res, TxtPath: txtPath, PdfPath: pdfPath})
}

func (s *Server) handleEndSession(c echo.Context) error {
	id := c.Param("id")
	if _, err := s.sessions.Get(id); errors.Is(err, interview.ErrSessionNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	s.sessions.Delete(id)
	return c.JSON(http.StatusOK, map[string]any{"success": true, "message": "session ended"})
}

func (s *Server) handleListSessions(c echo.Context) error {
	infos := s.sessions.List()
	return c.JSON(http.StatusOK, map[string]any{
		"active_sessions": len(infos),
		"sessions":        infos,
	})
}

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"medisyn/internal/auth"
	"medisyn/internal/interview"
	"medisyn/pkg"
)

// Store is the persistence surface the API needs. *db.Repository
// implements it; tests substitute a stub.
type Store interface {
	CreatePatient(ctx context.Context, name, email, passwordHash string) (*pkg.Patient, error)
	GetPatientByEmail(ctx context.Context, email string) (*pkg.Patient, error)
	GetDoctorByEmail(ctx context.Context, email string) (*pkg.Doctor, error)
	AppointmentsForPatient(ctx context.Context, patientID int64) ([]pkg.Appointment, error)
	AppointmentsForDoctor(ctx context.Context, doctorID int64) ([]pkg.Appointment, error)
	GetAppointment(ctx context.Context, id int64) (*pkg.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id int64, status int) error
	UpdatePrerequisite(ctx context.Context, id int64, pre pkg.PrerequisiteData) error
	PrerequisiteRecord(ctx context.Context, appointmentID int64) (map[string]string, error)
	SaveReport(ctx context.Context, appointmentID int64, reportText, pdfPath string) error
}

// Server bundles the dependencies required by the HTTP handlers.
type Server struct {
	store     Store
	auth      *auth.Manager
	sessions  *interview.Registry
	reportDir string
	log       zerolog.Logger
	limiter   *rateLimiter
}

// NewServer constructs the API server.
func NewServer(store Store, authMgr *auth.Manager, sessions *interview.Registry, reportDir string, log zerolog.Logger) *Server {
	return &Server{
		store:     store,
		auth:      authMgr,
		sessions:  sessions,
		reportDir: reportDir,
		log:       log.With().Str("component", "api").Logger(),
		// One chat request per second per client, short bursts allowed.
		limiter: newRateLimiter(rate.Every(time.Second), 5),
	}
}

// Register mounts all routes on the echo instance.
func (s *Server) Register(e *echo.Echo) {
	e.Use(middleware.Recover())
	e.Use(s.requestLogger())

	e.GET("/healthz", s.handleHealth)
	e.POST("/api/auth/signup", s.handleSignup)
	e.POST("/api/auth/login", s.handleLogin)

	api := e.Group("/api", s.auth.Middleware())
	api.GET("/appointments", s.handleListAppointments)
	api.GET("/appointments/:id", s.handleGetAppointment)
	api.PUT("/appointments/:id/status", s.handleUpdateStatus)
	api.PUT("/appointments/:id/prerequisite", s.handleUpdatePrerequisite)

	chat := api.Group("/chatbot", s.limiter.middleware())
	chat.POST("/sessions", s.handleStartSession)
	chat.GET("/sessions", s.handleListSessions)
	chat.POST("/sessions/:id/messages", s.handleSendMessage)
	chat.POST("/sessions/:id/report", s.handleGenerateReport)
	chat.DELETE("/sessions/:id", s.handleEndSession)
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.log.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Msg("request")
			return nil
		},
	})
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

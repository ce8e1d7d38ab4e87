package interview

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"medisyn/internal/llm"
	"medisyn/internal/report"
)

// ErrEmptyConversation is returned by GenerateReport when the session has
// no turns; no remote call is made in that case.
var ErrEmptyConversation = errors.New("interview: conversation is empty")

// Reply is the outcome of one Submit call. Done is true once the interview
// has covered every topic (or the session was already closed).
type Reply struct {
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// Result bundles the extracted record with the session identifiers the
// caller needs to file it.
type Result struct {
	Record        *report.Record `json:"report_data"`
	SessionID     string         `json:"session_id"`
	PatientName   string         `json:"patient_name,omitempty"`
	PatientID     string         `json:"patient_id,omitempty"`
	AppointmentID string         `json:"appointment_id,omitempty"`
}

// Session drives one interview from greeting to completion. All state
// mutation happens under the session mutex: at most one Submit or
// GenerateReport is in flight per session, so concurrent calls serialize
// and turn order can never interleave.
//
// The completed flag is monotonic. Once set the session accepts no further
// turns; the only remaining operation is report generation.
type Session struct {
	ID            string
	PatientName   string
	PatientID     string
	AppointmentID string
	CreatedAt     time.Time

	prereq map[string]string
	llm    llm.Client
	log    zerolog.Logger

	mu        sync.Mutex
	turns     []Turn
	completed bool

	lastActive atomic.Int64 // unix nanos, read without the mutex
}

// SessionOption configures a new session.
type SessionOption func(*Session)

// WithPatient attaches the patient identity supplied at session start.
func WithPatient(name, id string) SessionOption {
	return func(s *Session) {
		s.PatientName = name
		s.PatientID = id
	}
}

// WithAppointment links the session to an appointment.
func WithAppointment(id string) SessionOption {
	return func(s *Session) { s.AppointmentID = id }
}

// WithPrerequisite attaches the read-only intake record fetched once at
// session creation. It is merged into the report, never into the dialogue.
func WithPrerequisite(pre map[string]string) SessionOption {
	return func(s *Session) { s.prereq = pre }
}

// NewSession constructs a session around the given gateway client.
func NewSession(id string, client llm.Client, log zerolog.Logger, opts ...SessionOption) *Session {
	s := &Session{
		ID:        id,
		CreatedAt: time.Now(),
		llm:       client,
		log:       log.With().Str("component", "interview").Str("session_id", id).Logger(),
	}
	s.touch()
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start appends the fixed greeting as an assistant turn and returns it.
// No model call is made.
func (s *Session) Start() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.turns = append(s.turns, Turn{Speaker: SpeakerAssistant, Text: Greeting})
	return Greeting
}

// Submit appends the patient's message, asks the model for the next
// question, and appends the reply. When the reply carries the completion
// sentinel the session closes: the sentinel is stripped, the cleaned turn
// stored, and Done reported.
//
// On a gateway failure the patient turn stays appended, no assistant turn
// is stored, and the apology text is returned together with the typed
// error so callers can tell failure from content. A later Submit resumes
// from that partial state.
func (s *Session) Submit(ctx context.Context, patientText string) (Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if s.completed {
		return Reply{Text: ClosedSessionMessage, Done: true}, nil
	}

	s.turns = append(s.turns, Turn{Speaker: SpeakerPatient, Text: patientText})

	answer, err := s.llm.Generate(ctx, SystemPrompt, toMessages(s.turns), false)
	if err != nil {
		s.log.Error().Err(err).Msg("gateway call failed")
		return Reply{Text: ApologyMessage, Done: false}, fmt.Errorf("interview reply: %w", err)
	}

	if strings.Contains(answer, ReportCompleteToken) {
		cleaned := strings.TrimSpace(strings.ReplaceAll(answer, ReportCompleteToken, ""))
		s.turns = append(s.turns, Turn{Speaker: SpeakerAssistant, Text: cleaned})
		s.completed = true
		s.log.Info().Int("turns", len(s.turns)).Msg("interview complete")
		return Reply{Text: cleaned, Done: true}, nil
	}

	s.turns = append(s.turns, Turn{Speaker: SpeakerAssistant, Text: answer})
	return Reply{Text: answer, Done: false}, nil
}

// MarkComplete force-closes the session without a model call.
func (s *Session) MarkComplete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.completed = true
}

// Completed reports whether the interview has finished.
func (s *Session) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

// Turns returns a copy of the conversation so far.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// GenerateReport asks the model to summarize the conversation into the
// fixed-schema record. The call always recomputes from the current
// conversation; nothing is cached. Parse failures degrade to a fallback
// record rather than erroring, but gateway failures are returned as typed
// errors.
func (s *Session) GenerateReport(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if len(s.turns) == 0 {
		return nil, ErrEmptyConversation
	}

	system := fmt.Sprintf(ReportPromptTemplate, transcript(s.turns))
	if block := prerequisiteBlock(s.prereq); block != "" {
		system += block
	}

	raw, err := s.llm.Generate(ctx, system, toMessages(s.turns), true)
	if err != nil {
		s.log.Error().Err(err).Msg("report generation failed")
		return nil, fmt.Errorf("generate report: %w", err)
	}

	rec := report.Extract(raw)
	if rec.RawResponse != "" {
		s.log.Warn().Msg("report reply was not parseable, using degraded record")
	}
	rec.MergePrerequisite(s.prereq)

	return &Result{
		Record:        rec,
		SessionID:     s.ID,
		PatientName:   s.PatientName,
		PatientID:     s.PatientID,
		AppointmentID: s.AppointmentID,
	}, nil
}

// prerequisiteBlock renders the intake record as a deterministic key:
// value section appended to the report prompt.
func prerequisiteBlock(pre map[string]string) string {
	if len(pre) == 0 {
		return ""
	}
	keys := make([]string, 0, len(pre))
	for k, v := range pre {
		if v != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString("\nPATIENT INTAKE RECORD (collected before the interview):\n---\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, pre[k])
	}
	b.WriteString("---\n")
	return b.String()
}

func (s *Session) touch() { s.lastActive.Store(time.Now().UnixNano()) }

// idleSince reports the last time the session was used. It is lock-free
// so the registry sweeper never waits behind an in-flight model call.
func (s *Session) idleSince() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

package domain

import "time"

type SessionStatus string

const (
	StatusInitializing  SessionStatus = "initializing"
	StatusReadyToRecord SessionStatus = "ready_to_record"
	StatusRecording     SessionStatus = "recording"
	StatusProcessing    SessionStatus = "processing"
	StatusCompleted     SessionStatus = "completed"
	StatusError         SessionStatus = "error"
)

// legalEdges enumerates the allowed lifecycle transitions. The error state
// is reachable from every non-terminal state and is handled separately.
var legalEdges = map[SessionStatus][]SessionStatus{
	StatusInitializing:  {StatusReadyToRecord},
	StatusReadyToRecord: {StatusRecording},
	StatusRecording:     {StatusProcessing},
	StatusProcessing:    {StatusCompleted},
}

// TranscriptSegment is one ordered piece of recognized speech. Segments are
// append-only while the session records and frozen once it completes.
type TranscriptSegment struct {
	Text        string  `json:"text"`
	StartOffset float64 `json:"start_offset"`
	EndOffset   float64 `json:"end_offset"`
	Confidence  float64 `json:"confidence"`
	IsFinal     bool    `json:"is_final"`
}

type Transcript struct {
	Segments []TranscriptSegment `json:"segments"`
	Text     string              `json:"text"`
}

// WordCount counts whitespace-separated words across the full transcript.
func (t Transcript) WordCount() int {
	count := 0
	inWord := false
	for _, r := range t.Text {
		switch r {
		case ' ', '\t', '\n', '\r':
			inWord = false
		default:
			if !inWord {
				count++
			}
			inWord = true
		}
	}
	return count
}

// DurationSeconds is the span between the first segment start and the last
// segment end. Zero when the transcript has no segments.
func (t Transcript) DurationSeconds() float64 {
	if len(t.Segments) == 0 {
		return 0
	}
	return t.Segments[len(t.Segments)-1].EndOffset - t.Segments[0].StartOffset
}

// Session is one team's recorded pitch attempt inside one tenant.
type Session struct {
	ID                string        `json:"id"`
	TenantID          string        `json:"tenant_id"`
	TeamName          string        `json:"team_name"`
	Title             string        `json:"title"`
	Status            SessionStatus `json:"status"`
	AudioRef          string        `json:"audio_ref,omitempty"`
	Transcript        Transcript    `json:"transcript"`
	Error             string        `json:"error,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty"`
	ScoringTriggered  *time.Time    `json:"scoring_triggered_at,omitempty"`
	TranscribeChannel string        `json:"transcribe_channel,omitempty"`
}

// CanTransition reports whether moving to next is a legal lifecycle edge.
func (s *Session) CanTransition(next SessionStatus) bool {
	if next == StatusError {
		return s.Status != StatusCompleted && s.Status != StatusError
	}
	for _, allowed := range legalEdges[s.Status] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition moves the session to next or returns ErrInvalidTransition,
// leaving state untouched on failure.
func (s *Session) Transition(next SessionStatus) error {
	if !s.CanTransition(next) {
		return WrapError(ErrInvalidTransition, "transition session",
			transitionError{from: s.Status, to: next})
	}
	s.Status = next
	return nil
}

// MarkError moves the session to the error terminal state, recording the
// reason. Partial transcript data is always preserved.
func (s *Session) MarkError(reason string) error {
	if err := s.Transition(StatusError); err != nil {
		return err
	}
	s.Error = reason
	return nil
}

// AppendSegment appends in receipt order; only legal while recording.
func (s *Session) AppendSegment(seg TranscriptSegment) error {
	if s.Status != StatusRecording {
		return WrapError(ErrInvalidTransition, "ingest segment",
			transitionError{from: s.Status, to: StatusRecording})
	}
	s.Transcript.Segments = append(s.Transcript.Segments, seg)
	if s.Transcript.Text != "" {
		s.Transcript.Text += " "
	}
	s.Transcript.Text += seg.Text
	return nil
}

type transitionError struct {
	from SessionStatus
	to   SessionStatus
}

func (e transitionError) Error() string {
	return "illegal edge " + string(e.from) + " -> " + string(e.to)
}

package session

import (
	"time"

	"github.com/calloway-health/consultline/internal/models"
)

// Status is the lifecycle state of one call session.
type Status string

const (
	StatusRinging    Status = "ringing"    // created, no transcript yet
	StatusActive     Status = "active"     // at least one turn exchanged
	StatusFinalizing Status = "finalizing" // summary produced, persistence in progress
	StatusCompleted  Status = "completed"  // terminal, durable record written
	StatusFailed     Status = "failed"     // terminal, best-effort record written
)

// Terminal reports whether the status is one of the two end states.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// pastTurns reports whether turn processing is over for this status: once a
// session reaches finalizing, further turns are no-ops.
func (s Status) pastTurns() bool {
	return s == StatusFinalizing || s.Terminal()
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Utterance is one role-tagged entry of a call's dialogue.
type Utterance struct {
	Role string
	Text string
	At   time.Time
}

// History is the immutable, insertion-ordered dialogue of one call. Append
// returns a new value; an older History is never mutated, so snapshots taken
// mid-call stay stable.
type History struct {
	turns []Utterance
}

func (h History) Append(role, text string, at time.Time) History {
	next := make([]Utterance, len(h.turns), len(h.turns)+1)
	copy(next, h.turns)
	return History{turns: append(next, Utterance{Role: role, Text: text, At: at})}
}

func (h History) Turns() []Utterance {
	out := make([]Utterance, len(h.turns))
	copy(out, h.turns)
	return out
}

func (h History) Len() int { return len(h.turns) }

// Last returns the newest utterance with the given role, if any.
func (h History) Last(role string) (Utterance, bool) {
	for i := len(h.turns) - 1; i >= 0; i-- {
		if h.turns[i].Role == role {
			return h.turns[i], true
		}
	}
	return Utterance{}, false
}

// HistoryFromTurns rebuilds a History from snapshot data.
func HistoryFromTurns(turns []Utterance) History {
	next := make([]Utterance, len(turns))
	copy(next, turns)
	return History{turns: next}
}

// CallSession is the orchestrator's record of one phone call, from ring to
// hang-up. Only the orchestrator mutates it, always under the session lock.
type CallSession struct {
	CallSID   string
	CallID    uint
	PatientID *uint

	Status    Status
	History   History
	Summary   *models.ConsultationSummary
	StartedAt time.Time
	EndedAt   *time.Time

	lastOutcome *TurnOutcome
}

// TurnKind classifies what a processed turn produced.
type TurnKind string

const (
	TurnNextQuestion TurnKind = "next_question"
	TurnFinalSummary TurnKind = "final_summary"
	TurnDegraded     TurnKind = "degraded" // dependency failure, apology spoken
)

// TurnOutcome is the caller-facing result of one turn: the text to speak and
// where its audio lives.
type TurnOutcome struct {
	Kind     TurnKind
	Text     string
	AudioURL string
	Summary  *models.ConsultationSummary
}

// FinalizedCall is the durable view of a closed-out call.
type FinalizedCall struct {
	CallID   uint
	CallSID  string
	Start    time.Time
	End      time.Time
	Duration time.Duration
	Summary  *models.ConsultationSummary
}

func (s *CallSession) snapshot() *models.CallSnapshot {
	turns := s.History.Turns()
	hist := make([]models.SnapshotUtterance, len(turns))
	for i, t := range turns {
		hist[i] = models.SnapshotUtterance{Role: t.Role, Text: t.Text, At: t.At}
	}
	return &models.CallSnapshot{
		CallSID:   s.CallSID,
		CallID:    s.CallID,
		PatientID: s.PatientID,
		Status:    string(s.Status),
		History:   hist,
		Summary:   s.Summary,
		StartedAt: s.StartedAt,
	}
}

func sessionFromSnapshot(snap *models.CallSnapshot) *CallSession {
	turns := make([]Utterance, len(snap.History))
	for i, u := range snap.History {
		turns[i] = Utterance{Role: u.Role, Text: u.Text, At: u.At}
	}
	return &CallSession{
		CallSID:   snap.CallSID,
		CallID:    snap.CallID,
		PatientID: snap.PatientID,
		Status:    Status(snap.Status),
		History:   HistoryFromTurns(turns),
		Summary:   snap.Summary,
		StartedAt: snap.StartedAt,
	}
}

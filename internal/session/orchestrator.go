package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/calloway-health/consultline/internal/models"
	"github.com/calloway-health/consultline/internal/providers/export"
	"github.com/calloway-health/consultline/internal/providers/notify"
	"github.com/calloway-health/consultline/internal/providers/reply"
	"github.com/calloway-health/consultline/internal/providers/stt"
	"github.com/calloway-health/consultline/internal/providers/tts"
	mongorepo "github.com/calloway-health/consultline/internal/repositories/mongo"
	pgrepo "github.com/calloway-health/consultline/internal/repositories/postgres"
	"github.com/calloway-health/consultline/internal/utils"
)

// ApologyText is the fixed degraded utterance: a live caller always hears
// something, even when a dependency is down.
const ApologyText = "Sorry, something went wrong while processing your request. Please call back in a few minutes."

const closingText = "Thank you, that is everything I need. A member of the practice team will be in touch. Goodbye."

// Config carries the orchestrator's injected dependencies. Calls, Responses,
// Patients, Snapshots, Reply and TTS are required; Control and Export are
// optional.
type Config struct {
	Calls     pgrepo.CallRepository
	Responses pgrepo.ResponseRepository
	Patients  pgrepo.PatientRepository
	Snapshots mongorepo.SnapshotRepository
	Reply     reply.Provider
	TTS       tts.Provider
	Control   notify.CallController
	Export    export.Exporter
	Logger    *logrus.Logger

	// TurnTimeout bounds each provider call; InactivityTimeout is the
	// fragment gap treated as caller hang-up.
	TurnTimeout       time.Duration
	InactivityTimeout time.Duration

	// Now is a clock override for tests.
	Now func() time.Time
}

// Orchestrator owns every live call session in the process. It enforces one
// session per CallSid, serializes turns within a session, and reconciles
// persisted state at finalization.
type Orchestrator struct {
	cfg Config
	log *logrus.Logger
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

// entry pairs a session with its per-call lock. The lock is held for the
// whole of a turn or finalize, which is what serializes same-call events.
type entry struct {
	mu   sync.Mutex
	sess *CallSession
}

func New(cfg Config) (*Orchestrator, error) {
	if cfg.Calls == nil || cfg.Responses == nil || cfg.Patients == nil || cfg.Snapshots == nil {
		return nil, errors.New("orchestrator: Calls/Responses/Patients/Snapshots repositories must be set")
	}
	if cfg.Reply == nil || cfg.TTS == nil {
		return nil, errors.New("orchestrator: Reply and TTS providers must be set")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 20 * time.Second
	}
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = 45 * time.Second
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		cfg:     cfg,
		log:     cfg.Logger,
		now:     now,
		entries: make(map[string]*entry),
	}, nil
}

// BeginOrResume returns the session for a call identifier, creating one with
// a fresh start time only if none exists in memory, in the snapshot store, or
// in the calls table. Calling it twice for the same identifier yields the
// same session and inserts exactly one Call record.
func (o *Orchestrator) BeginOrResume(ctx context.Context, callSID, callerPhone string) (*CallSession, error) {
	const op = "Orchestrator.BeginOrResume"

	if callSID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "call identifier is required", nil)
	}

	o.mu.Lock()
	e, ok := o.entries[callSID]
	if !ok {
		e = &entry{}
		o.entries[callSID] = e
	}
	o.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess != nil && !e.sess.Status.Terminal() {
		o.log.WithField("call_sid", callSID).Info("resuming existing call session")
		return e.sess, nil
	}

	// A restarted process finds live calls in the snapshot store.
	if snap, err := o.cfg.Snapshots.GetByCallSID(ctx, callSID); err == nil {
		sess := sessionFromSnapshot(snap)
		if !sess.Status.Terminal() {
			o.log.WithFields(logrus.Fields{"call_sid": callSID, "call_id": sess.CallID}).
				Info("resumed call session from snapshot")
			e.sess = sess
			return sess, nil
		}
	} else if !errors.Is(err, utils.ErrNotFound) {
		o.log.WithError(err).WithField("call_sid", callSID).Warn("snapshot lookup failed; starting fresh")
	}

	// A call row without a snapshot still pins the identifier (call_sid is
	// unique); reuse it rather than inserting a duplicate.
	if row, err := o.cfg.Calls.GetBySID(ctx, callSID); err == nil {
		sess := &CallSession{
			CallSID:   callSID,
			CallID:    row.ID,
			PatientID: row.PatientID,
			Status:    StatusRinging,
			StartedAt: row.CallStart,
		}
		if row.CallEnd != nil {
			sess.Status = StatusCompleted
			sess.EndedAt = row.CallEnd
		}
		e.sess = sess
		if !sess.Status.Terminal() {
			o.saveSnapshotLocked(ctx, sess)
		}
		o.log.WithFields(logrus.Fields{"call_sid": callSID, "call_id": row.ID}).
			Info("resumed call session from call record")
		return sess, nil
	} else if !errors.Is(err, utils.ErrNotFound) {
		o.log.WithError(err).WithField("call_sid", callSID).Warn("call record lookup failed")
	}

	sess := &CallSession{
		CallSID:   callSID,
		Status:    StatusRinging,
		StartedAt: o.now().UTC(),
	}

	if callerPhone != "" {
		if patient, err := o.cfg.Patients.GetByPhone(ctx, callerPhone); err == nil {
			sess.PatientID = &patient.ID
		} else if !errors.Is(err, utils.ErrNotFound) {
			o.log.WithError(err).WithField("call_sid", callSID).Warn("patient lookup failed")
		}
	}

	call := &models.Call{
		CallSID:   callSID,
		PatientID: sess.PatientID,
		CallStart: sess.StartedAt,
	}
	if err := o.cfg.Calls.Insert(ctx, call); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to insert call record", err)
	}
	sess.CallID = call.ID

	e.sess = sess
	o.saveSnapshotLocked(ctx, sess)
	o.log.WithFields(logrus.Fields{"call_sid": callSID, "call_id": call.ID}).Info("started new call session")
	return sess, nil
}

// Greet produces the opening question for a just-created session. On resume
// it re-plays the last known outcome instead of advancing the dialogue, so
// duplicate webhook deliveries are harmless. The session stays RINGING: only
// a caller transcript activates it.
func (o *Orchestrator) Greet(ctx context.Context, callSID string) (TurnOutcome, error) {
	const op = "Orchestrator.Greet"

	e, err := o.lookup(callSID, op)
	if err != nil {
		return TurnOutcome{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	sess := e.sess

	if sess.lastOutcome != nil {
		return *sess.lastOutcome, nil
	}
	if sess.Status.pastTurns() {
		// stale redelivery for a call that already ended
		return TurnOutcome{Kind: TurnNextQuestion, Text: closingText}, nil
	}
	if last, ok := sess.History.Last(RoleAssistant); ok {
		// resumed from snapshot mid-call: re-ask the pending question
		out := TurnOutcome{Kind: TurnNextQuestion, Text: last.Text}
		if url, serr := o.synthesize(ctx, last.Text); serr == nil {
			out.AudioURL = url
		}
		sess.lastOutcome = &out
		return out, nil
	}

	text, err := o.callReply(ctx, nil)
	if err != nil {
		return o.failTurnLocked(ctx, sess, op, "reply provider failed for greeting", err), nil
	}

	sess.History = sess.History.Append(RoleAssistant, text, o.now().UTC())

	url, err := o.synthesize(ctx, text)
	if err != nil {
		return o.failTurnLocked(ctx, sess, op, "speech synthesis failed for greeting", err), nil
	}

	out := TurnOutcome{Kind: TurnNextQuestion, Text: text, AudioURL: url}
	sess.lastOutcome = &out
	o.saveSnapshotLocked(ctx, sess)
	return out, nil
}

// ProcessTurn runs one caller-utterance/assistant-reply exchange. Turns for
// the same call are strictly serialized; a turn arriving after the session
// reached FINALIZING is a no-op returning the last outcome.
func (o *Orchestrator) ProcessTurn(ctx context.Context, callSID, utterance string) (TurnOutcome, error) {
	const op = "Orchestrator.ProcessTurn"

	e, err := o.lookup(callSID, op)
	if err != nil {
		return TurnOutcome{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	sess := e.sess

	if sess.Status.pastTurns() {
		if sess.lastOutcome != nil {
			return *sess.lastOutcome, nil
		}
		return TurnOutcome{}, nil
	}

	if sess.Status == StatusRinging {
		sess.Status = StatusActive
	}

	// the question this utterance answers, for the response row
	question := "Introduction"
	if last, ok := sess.History.Last(RoleAssistant); ok {
		question = last.Text
	}

	sess.History = sess.History.Append(RoleUser, utterance, o.now().UTC())

	replyText, err := o.callReply(ctx, sess.History.Turns())
	if err != nil {
		return o.failTurnLocked(ctx, sess, op, "reply provider failed", err), nil
	}
	sess.History = sess.History.Append(RoleAssistant, replyText, o.now().UTC())

	o.persistTurn(ctx, sess, question, utterance)

	classified := ClassifyReply(replyText)

	var out TurnOutcome
	switch classified.Kind {
	case ReplyFinalSummary:
		sess.Summary = classified.Summary
		sess.Status = StatusFinalizing

		url, serr := o.synthesize(ctx, closingText)
		if serr != nil {
			return o.failTurnLocked(ctx, sess, op, "speech synthesis failed for closing", serr), nil
		}
		out = TurnOutcome{Kind: TurnFinalSummary, Text: closingText, AudioURL: url, Summary: classified.Summary}
		sess.lastOutcome = &out

		if _, ferr := o.finalizeLocked(ctx, sess); ferr != nil {
			return out, ferr
		}

	default:
		url, serr := o.synthesize(ctx, classified.Text)
		if serr != nil {
			return o.failTurnLocked(ctx, sess, op, "speech synthesis failed", serr), nil
		}
		out = TurnOutcome{Kind: TurnNextQuestion, Text: classified.Text, AudioURL: url}
		sess.lastOutcome = &out
		o.saveSnapshotLocked(ctx, sess)
	}

	return out, nil
}

// Finalize closes out a session: end timestamp, duration, durable Call
// update, summary Response row when one exists. Repeated calls after the
// session is terminal return the recorded view without re-persisting.
func (o *Orchestrator) Finalize(ctx context.Context, callSID string) (FinalizedCall, error) {
	const op = "Orchestrator.Finalize"

	e, err := o.lookup(callSID, op)
	if err != nil {
		return FinalizedCall{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	sess := e.sess

	if sess.Status.Terminal() && sess.EndedAt != nil {
		return finalizedView(sess), nil
	}
	if sess.Status != StatusFailed {
		sess.Status = StatusFinalizing
	}
	return o.finalizeLocked(ctx, sess)
}

// WatchStream consumes a transcription stream for a call, driving a dialogue
// turn per final fragment and pushing the resulting audio to the live call.
// A fragment gap longer than the inactivity window is treated as hang-up.
func (o *Orchestrator) WatchStream(ctx context.Context, callSID string, stream stt.Stream) error {
	const op = "Orchestrator.WatchStream"
	defer func() { _ = stream.Close() }()

	log := o.log.WithField("call_sid", callSID)

	idle := time.NewTimer(o.cfg.InactivityTimeout)
	defer idle.Stop()

	for {
		select {
		case frag, ok := <-stream.Fragments():
			if !ok {
				if serr := stream.Err(); serr != nil {
					log.WithError(serr).Error("transcription stream failed")
					o.failStream(ctx, callSID, serr)
					return nil
				}
				log.Info("transcription stream closed; treating as hang-up")
				o.hangup(ctx, callSID)
				return nil
			}

			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(o.cfg.InactivityTimeout)

			if !frag.IsFinal || frag.Text == "" {
				continue
			}

			out, err := o.ProcessTurn(ctx, callSID, frag.Text)
			if err != nil {
				log.WithError(err).Error("turn processing failed")
				return err
			}
			if out.AudioURL != "" && o.cfg.Control != nil {
				if perr := o.cfg.Control.PlayAudio(ctx, callSID, out.AudioURL); perr != nil {
					log.WithError(perr).Warn("playback push failed")
				}
			}
			if out.Kind == TurnFinalSummary {
				return nil
			}

		case <-idle.C:
			log.Info("transcription inactivity window elapsed; treating as hang-up")
			o.hangup(ctx, callSID)
			return nil

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Session returns the tracked session for a call identifier, if any.
func (o *Orchestrator) Session(callSID string) (*CallSession, bool) {
	o.mu.Lock()
	e, ok := o.entries[callSID]
	o.mu.Unlock()
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess, e.sess != nil
}

func (o *Orchestrator) lookup(callSID, op string) (*entry, error) {
	o.mu.Lock()
	e, ok := o.entries[callSID]
	o.mu.Unlock()
	if !ok || e.sess == nil {
		return nil, utils.E(utils.CodeNotFound, op, "no session for call identifier", nil)
	}
	return e, nil
}

// failTurnLocked handles a dependency failure at the turn boundary: the
// session goes FAILED, finalize runs best-effort, and the caller still gets
// the apology utterance.
func (o *Orchestrator) failTurnLocked(ctx context.Context, sess *CallSession, op, msg string, cause error) TurnOutcome {
	o.log.WithError(cause).WithFields(logrus.Fields{
		"call_sid": sess.CallSID,
		"call_id":  sess.CallID,
		"op":       op,
	}).Error(msg)

	sess.Status = StatusFailed

	out := TurnOutcome{Kind: TurnDegraded, Text: ApologyText}
	if url, err := o.synthesize(ctx, ApologyText); err == nil {
		out.AudioURL = url
	}
	sess.lastOutcome = &out

	if _, err := o.finalizeLocked(ctx, sess); err != nil {
		o.log.WithError(err).WithField("call_sid", sess.CallSID).Error("best-effort finalize after failure did not persist")
	}
	return out
}

func (o *Orchestrator) finalizeLocked(ctx context.Context, sess *CallSession) (FinalizedCall, error) {
	const op = "Orchestrator.finalize"

	if sess.EndedAt == nil {
		end := o.now().UTC()
		sess.EndedAt = &end
	}
	duration := sess.EndedAt.Sub(sess.StartedAt)

	if err := o.cfg.Calls.Finalize(ctx, sess.CallID, *sess.EndedAt, int64(duration.Seconds())); err != nil {
		o.log.WithError(err).WithFields(logrus.Fields{"call_sid": sess.CallSID, "call_id": sess.CallID}).
			Error("failed to persist finalized call record")
		return FinalizedCall{}, utils.E(utils.CodeInternal, op, "failed to persist call record", err)
	}

	if sess.Summary != nil && sess.Status != StatusFailed {
		payload := sess.Summary.JSON()
		row := &models.Response{
			PatientID: sess.PatientID,
			Question:  "Final Summary",
			Response:  string(payload),
			CallID:    sess.CallID,
			Payload:   datatypes.JSON(payload),
			CreatedAt: *sess.EndedAt,
		}
		if err := o.cfg.Responses.Insert(ctx, row); err != nil {
			o.log.WithError(err).WithFields(logrus.Fields{"call_sid": sess.CallSID, "call_id": sess.CallID}).
				Error("failed to persist final summary")
			return FinalizedCall{}, utils.E(utils.CodeInternal, op, "failed to persist final summary", err)
		}

		// spreadsheet mirror for practice staff, best-effort
		if o.cfg.Export != nil {
			if err := o.cfg.Export.AppendRow(ctx, sess.CallID, row.Question, row.Response); err != nil {
				o.log.WithError(err).WithFields(logrus.Fields{"call_sid": sess.CallSID, "call_id": sess.CallID}).
					Warn("summary export failed")
			}
		}
	}

	if sess.Status != StatusFailed {
		sess.Status = StatusCompleted
	}

	if err := o.cfg.Snapshots.Delete(ctx, sess.CallSID); err != nil {
		o.log.WithError(err).WithField("call_sid", sess.CallSID).Warn("snapshot cleanup failed")
	}

	o.log.WithFields(logrus.Fields{
		"call_sid":         sess.CallSID,
		"call_id":          sess.CallID,
		"status":           sess.Status,
		"duration_seconds": int64(duration.Seconds()),
	}).Info("call finalized")

	return finalizedView(sess), nil
}

func finalizedView(sess *CallSession) FinalizedCall {
	return FinalizedCall{
		CallID:   sess.CallID,
		CallSID:  sess.CallSID,
		Start:    sess.StartedAt,
		End:      *sess.EndedAt,
		Duration: sess.EndedAt.Sub(sess.StartedAt),
		Summary:  sess.Summary,
	}
}

func (o *Orchestrator) hangup(ctx context.Context, callSID string) {
	e, err := o.lookup(callSID, "Orchestrator.hangup")
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	sess := e.sess

	if sess.Status.Terminal() && sess.EndedAt != nil {
		return
	}
	if sess.Summary != nil {
		sess.Status = StatusFinalizing
	} else {
		sess.Status = StatusFailed
	}
	if _, err := o.finalizeLocked(ctx, sess); err != nil {
		o.log.WithError(err).WithField("call_sid", callSID).Error("finalize on hang-up did not persist")
	}
}

func (o *Orchestrator) failStream(ctx context.Context, callSID string, cause error) {
	e, err := o.lookup(callSID, "Orchestrator.failStream")
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess.Status.Terminal() && e.sess.EndedAt != nil {
		return
	}
	o.failTurnLocked(ctx, e.sess, "Orchestrator.WatchStream", "transcription stream error", cause)
}

// persistTurn writes the question/answer pair. A failed row here degrades
// durability of one turn, not the call, so it logs and moves on.
func (o *Orchestrator) persistTurn(ctx context.Context, sess *CallSession, question, answer string) {
	row := &models.Response{
		PatientID: sess.PatientID,
		Question:  question,
		Response:  answer,
		CallID:    sess.CallID,
		CreatedAt: o.now().UTC(),
	}
	if err := o.cfg.Responses.Insert(ctx, row); err != nil {
		o.log.WithError(err).WithFields(logrus.Fields{"call_sid": sess.CallSID, "call_id": sess.CallID}).
			Warn("failed to persist turn response")
	}
}

func (o *Orchestrator) callReply(ctx context.Context, turns []Utterance) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.TurnTimeout)
	defer cancel()

	history := make([]reply.Message, len(turns))
	for i, t := range turns {
		history[i] = reply.Message{Role: t.Role, Text: t.Text}
	}
	return o.cfg.Reply.Reply(ctx, history)
}

func (o *Orchestrator) synthesize(ctx context.Context, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.TurnTimeout)
	defer cancel()
	return o.cfg.TTS.Synthesize(ctx, text)
}

func (o *Orchestrator) saveSnapshotLocked(ctx context.Context, sess *CallSession) {
	if err := o.cfg.Snapshots.Upsert(ctx, sess.snapshot()); err != nil {
		o.log.WithError(err).WithField("call_sid", sess.CallSID).Warn("snapshot save failed")
	}
}

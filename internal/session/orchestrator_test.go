package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calloway-health/consultline/internal/models"
	"github.com/calloway-health/consultline/internal/providers/reply"
	"github.com/calloway-health/consultline/internal/providers/stt"
	"github.com/calloway-health/consultline/internal/utils"
)

type fakeClock struct {
	mu  sync.Mutex
	cur time.Time
}

func newFakeClock(start time.Time) *fakeClock { return &fakeClock{cur: start} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(d)
}

type fakeCallRepo struct {
	mu        sync.Mutex
	nextID    uint
	inserted  []*models.Call
	bySID     map[string]*models.Call
	finalized map[uint]struct {
		end      time.Time
		duration int64
	}
	insertErr   error
	finalizeErr error
}

func newFakeCallRepo() *fakeCallRepo {
	return &fakeCallRepo{
		bySID: make(map[string]*models.Call),
		finalized: make(map[uint]struct {
			end      time.Time
			duration int64
		}),
	}
}

func (r *fakeCallRepo) Insert(_ context.Context, call *models.Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	r.nextID++
	call.ID = r.nextID
	r.inserted = append(r.inserted, call)
	if call.CallSID != "" {
		r.bySID[call.CallSID] = call
	}
	return nil
}

func (r *fakeCallRepo) preload(call *models.Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if call.ID > r.nextID {
		r.nextID = call.ID
	}
	r.bySID[call.CallSID] = call
}

func (r *fakeCallRepo) Finalize(_ context.Context, id uint, end time.Time, durationSeconds int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalizeErr != nil {
		return r.finalizeErr
	}
	r.finalized[id] = struct {
		end      time.Time
		duration int64
	}{end, durationSeconds}
	return nil
}

func (r *fakeCallRepo) GetByID(context.Context, uint) (*models.Call, error) {
	return nil, utils.ErrNotFound
}

func (r *fakeCallRepo) GetBySID(_ context.Context, callSID string) (*models.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.bySID[callSID]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, utils.ErrNotFound
}

func (r *fakeCallRepo) LatestByPatient(context.Context, uint) (*models.Call, error) {
	return nil, utils.ErrNotFound
}

type fakeResponseRepo struct {
	mu        sync.Mutex
	rows      []*models.Response
	insertErr error
}

func (r *fakeResponseRepo) Insert(_ context.Context, row *models.Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	r.rows = append(r.rows, row)
	return nil
}

func (r *fakeResponseRepo) ListByCall(_ context.Context, callID uint) ([]models.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Response
	for _, row := range r.rows {
		if row.CallID == callID {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (r *fakeResponseRepo) summaryRows() []*models.Response {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Response
	for _, row := range r.rows {
		if row.Question == "Final Summary" {
			out = append(out, row)
		}
	}
	return out
}

type fakePatientRepo struct {
	byPhone map[string]*models.Patient
}

func (r *fakePatientRepo) GetByPhone(_ context.Context, phone string) (*models.Patient, error) {
	if p, ok := r.byPhone[phone]; ok {
		return p, nil
	}
	return nil, utils.ErrNotFound
}

func (r *fakePatientRepo) GetByID(context.Context, uint) (*models.Patient, error) {
	return nil, utils.ErrNotFound
}

type fakeSnapshotRepo struct {
	mu   sync.Mutex
	byID map[string]*models.CallSnapshot
}

func newFakeSnapshotRepo() *fakeSnapshotRepo {
	return &fakeSnapshotRepo{byID: make(map[string]*models.CallSnapshot)}
}

func (r *fakeSnapshotRepo) Upsert(_ context.Context, s *models.CallSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.byID[s.CallSID] = &cp
	return nil
}

func (r *fakeSnapshotRepo) GetByCallSID(_ context.Context, callSID string) (*models.CallSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byID[callSID]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, utils.ErrNotFound
}

func (r *fakeSnapshotRepo) Delete(_ context.Context, callSID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, callSID)
	return nil
}

func (r *fakeSnapshotRepo) has(callSID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byID[callSID]
	return ok
}

// fakeReply replays a script of utterances, one per Reply call.
type fakeReply struct {
	mu     sync.Mutex
	script []string
	calls  int
	err    error
}

func (f *fakeReply) Reply(_ context.Context, _ []reply.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if len(f.script) == 0 {
		return "", errors.New("reply script exhausted")
	}
	next := f.script[0]
	f.script = f.script[1:]
	return next, nil
}

func (f *fakeReply) Close() error { return nil }

func (f *fakeReply) replyCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeTTS struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeTTS) Synthesize(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.calls++
	return fmt.Sprintf("https://audio.test/%d.mp3", f.calls), nil
}

type exportedRow struct {
	callID   uint
	question string
	response string
}

type fakeExporter struct {
	mu   sync.Mutex
	rows []exportedRow
	err  error
}

func (f *fakeExporter) AppendRow(_ context.Context, callID uint, question, response string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, exportedRow{callID: callID, question: question, response: response})
	return nil
}

type fakeControl struct {
	mu     sync.Mutex
	played []string
}

func (f *fakeControl) PlayAudio(_ context.Context, _ string, audioURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played = append(f.played, audioURL)
	return nil
}

type orchFixture struct {
	orch      *Orchestrator
	clock     *fakeClock
	calls     *fakeCallRepo
	responses *fakeResponseRepo
	patients  *fakePatientRepo
	snapshots *fakeSnapshotRepo
	reply     *fakeReply
	tts       *fakeTTS
	control   *fakeControl
	export    *fakeExporter
}

func newFixture(t *testing.T, script ...string) *orchFixture {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	f := &orchFixture{
		clock:     newFakeClock(time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)),
		calls:     newFakeCallRepo(),
		responses: &fakeResponseRepo{},
		patients:  &fakePatientRepo{byPhone: map[string]*models.Patient{}},
		snapshots: newFakeSnapshotRepo(),
		reply:     &fakeReply{script: script},
		tts:       &fakeTTS{},
		control:   &fakeControl{},
		export:    &fakeExporter{},
	}

	orch, err := New(Config{
		Calls:     f.calls,
		Responses: f.responses,
		Patients:  f.patients,
		Snapshots: f.snapshots,
		Reply:     f.reply,
		TTS:       f.tts,
		Control:   f.control,
		Export:    f.export,
		Logger:    log,
		Now:       f.clock.Now,
	})
	require.NoError(t, err)
	f.orch = orch
	return f
}

func TestBeginOrResume_DuplicateWebhookInsertsOneCall(t *testing.T) {
	f := newFixture(t, "What is your full name?")
	ctx := context.Background()

	first, err := f.orch.BeginOrResume(ctx, "CA1", "+447700900123")
	require.NoError(t, err)

	second, err := f.orch.BeginOrResume(ctx, "CA1", "+447700900123")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Len(t, f.calls.inserted, 1)
	assert.Equal(t, StatusRinging, first.Status)
}

func TestBeginOrResume_LinksKnownPatientByPhone(t *testing.T) {
	f := newFixture(t)
	f.patients.byPhone["+447700900123"] = &models.Patient{ID: 7, PhoneNumber: "+447700900123"}

	sess, err := f.orch.BeginOrResume(context.Background(), "CA1", "+447700900123")
	require.NoError(t, err)
	require.NotNil(t, sess.PatientID)
	assert.Equal(t, uint(7), *sess.PatientID)
	assert.Equal(t, sess.PatientID, f.calls.inserted[0].PatientID)
}

func TestBeginOrResume_UnknownCallerStillStarts(t *testing.T) {
	f := newFixture(t)

	sess, err := f.orch.BeginOrResume(context.Background(), "CA1", "+15550001111")
	require.NoError(t, err)
	assert.Nil(t, sess.PatientID)
	assert.Len(t, f.calls.inserted, 1)
}

func TestBeginOrResume_RestoresFromSnapshot(t *testing.T) {
	f := newFixture(t)
	started := f.clock.Now().Add(-time.Minute)
	require.NoError(t, f.snapshots.Upsert(context.Background(), &models.CallSnapshot{
		CallSID: "CA9",
		CallID:  42,
		Status:  string(StatusActive),
		History: []models.SnapshotUtterance{
			{Role: RoleAssistant, Text: "What is your date of birth?", At: started},
		},
		StartedAt: started,
	}))

	sess, err := f.orch.BeginOrResume(context.Background(), "CA9", "+447700900123")
	require.NoError(t, err)

	assert.Equal(t, uint(42), sess.CallID)
	assert.Equal(t, StatusActive, sess.Status)
	assert.Empty(t, f.calls.inserted, "resume must not insert a second call record")

	// greeting on resume re-asks the pending question instead of advancing
	out, err := f.orch.Greet(context.Background(), "CA9")
	require.NoError(t, err)
	assert.Equal(t, TurnNextQuestion, out.Kind)
	assert.Equal(t, "What is your date of birth?", out.Text)
	assert.Zero(t, f.reply.replyCalls())
}

func TestBeginOrResume_ReusesExistingCallRow(t *testing.T) {
	f := newFixture(t)
	started := f.clock.Now().Add(-time.Minute)
	pid := uint(7)
	f.calls.preload(&models.Call{ID: 9, CallSID: "CA9", PatientID: &pid, CallStart: started})

	sess, err := f.orch.BeginOrResume(context.Background(), "CA9", "+447700900123")
	require.NoError(t, err)

	assert.Equal(t, uint(9), sess.CallID)
	assert.Equal(t, &pid, sess.PatientID)
	assert.Equal(t, started, sess.StartedAt)
	assert.Equal(t, StatusRinging, sess.Status)
	assert.Empty(t, f.calls.inserted, "existing call row must not be duplicated")
}

func TestBeginOrResume_FinishedCallRowStaysClosed(t *testing.T) {
	f := newFixture(t)
	started := f.clock.Now().Add(-10 * time.Minute)
	ended := started.Add(5 * time.Minute)
	f.calls.preload(&models.Call{ID: 9, CallSID: "CA9", CallStart: started, CallEnd: &ended})

	sess, err := f.orch.BeginOrResume(context.Background(), "CA9", "")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, sess.Status)
	assert.Empty(t, f.calls.inserted)

	out, err := f.orch.Greet(context.Background(), "CA9")
	require.NoError(t, err)
	assert.NotEmpty(t, out.Text)
	assert.Zero(t, f.reply.replyCalls(), "a finished call must not restart the dialogue")
}

func TestGreet_RepeatedDeliveryReplaysSameOutcome(t *testing.T) {
	f := newFixture(t, "What is your full name?")
	ctx := context.Background()

	_, err := f.orch.BeginOrResume(ctx, "CA1", "")
	require.NoError(t, err)

	first, err := f.orch.Greet(ctx, "CA1")
	require.NoError(t, err)
	assert.Equal(t, "What is your full name?", first.Text)
	assert.NotEmpty(t, first.AudioURL)

	second, err := f.orch.Greet(ctx, "CA1")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.reply.replyCalls())

	sess, ok := f.orch.Session("CA1")
	require.True(t, ok)
	assert.Equal(t, StatusRinging, sess.Status, "only a caller transcript activates the session")
}

func TestProcessTurn_FullConsultationFlow(t *testing.T) {
	questions := []string{
		"What is your full name?",
		"What is your date of birth?",
		"What is your phone number?",
		"What is your reason for booking this appointment?",
		"Have you experienced these symptoms before?",
		"How long have you had these symptoms?",
		"Are you currently taking any medication?",
		"Do you have any known allergies?",
		"Is there anything else you would like the doctor to know?",
	}
	script := append(append([]string{}, questions...), completeSummaryJSON)

	f := newFixture(t, script...)
	ctx := context.Background()

	sess, err := f.orch.BeginOrResume(ctx, "CA1", "")
	require.NoError(t, err)
	start := sess.StartedAt

	_, err = f.orch.Greet(ctx, "CA1")
	require.NoError(t, err)

	answers := []string{
		"Ada Lovelace", "10th of December 1990", "07700 900123",
		"persistent headaches", "no", "about two weeks",
		"just ibuprofen", "penicillin",
	}
	for i, answer := range answers {
		f.clock.Advance(15 * time.Second)
		out, err := f.orch.ProcessTurn(ctx, "CA1", answer)
		require.NoError(t, err)
		assert.Equal(t, TurnNextQuestion, out.Kind)
		assert.Equal(t, questions[i+1], out.Text)
		assert.NotEmpty(t, out.AudioURL)
	}
	assert.Equal(t, StatusActive, sess.Status)

	f.clock.Advance(15 * time.Second)
	out, err := f.orch.ProcessTurn(ctx, "CA1", "no, that's everything")
	require.NoError(t, err)

	require.Equal(t, TurnFinalSummary, out.Kind)
	require.NotNil(t, out.Summary)
	assert.Equal(t, "Ada Lovelace", out.Summary.FullName)

	assert.Equal(t, StatusCompleted, sess.Status)
	require.NotNil(t, sess.EndedAt)
	assert.False(t, sess.EndedAt.Before(start))

	// durable call record: end timestamp and duration in whole seconds
	fin, ok := f.calls.finalized[sess.CallID]
	require.True(t, ok)
	assert.Equal(t, *sess.EndedAt, fin.end)
	assert.Equal(t, int64(sess.EndedAt.Sub(start).Seconds()), fin.duration)

	// one response row per turn plus exactly one summary row
	summaries := f.responses.summaryRows()
	require.Len(t, summaries, 1)
	assert.Equal(t, sess.CallID, summaries[0].CallID)
	assert.NotEmpty(t, summaries[0].Payload)
	assert.Len(t, f.responses.rows, len(answers)+1+1)

	// the summary is mirrored to the spreadsheet export
	require.Len(t, f.export.rows, 1)
	assert.Equal(t, sess.CallID, f.export.rows[0].callID)
	assert.Equal(t, "Final Summary", f.export.rows[0].question)
	assert.JSONEq(t, completeSummaryJSON, f.export.rows[0].response)

	// first turn row pairs the greeting question with the caller's answer
	assert.Equal(t, questions[0], f.responses.rows[0].Question)
	assert.Equal(t, "Ada Lovelace", f.responses.rows[0].Response)

	assert.False(t, f.snapshots.has("CA1"), "snapshot cleaned up at finalize")
}

func TestProcessTurn_AfterFinalizingIsNoOp(t *testing.T) {
	f := newFixture(t, "What is your full name?", completeSummaryJSON)
	ctx := context.Background()

	sess, err := f.orch.BeginOrResume(ctx, "CA1", "")
	require.NoError(t, err)
	_, err = f.orch.Greet(ctx, "CA1")
	require.NoError(t, err)

	final, err := f.orch.ProcessTurn(ctx, "CA1", "Ada Lovelace")
	require.NoError(t, err)
	require.Equal(t, TurnFinalSummary, final.Kind)

	turnsBefore := sess.History.Len()
	repliesBefore := f.reply.replyCalls()

	late, err := f.orch.ProcessTurn(ctx, "CA1", "hello? are you still there?")
	require.NoError(t, err)

	assert.Equal(t, final, late, "late turn replays the last outcome")
	assert.Equal(t, turnsBefore, sess.History.Len())
	assert.Equal(t, repliesBefore, f.reply.replyCalls())
}

func TestProcessTurn_ReplyFailureDegradesToApology(t *testing.T) {
	f := newFixture(t, "What is your full name?")
	ctx := context.Background()

	sess, err := f.orch.BeginOrResume(ctx, "CA1", "")
	require.NoError(t, err)
	_, err = f.orch.Greet(ctx, "CA1")
	require.NoError(t, err)

	f.reply.err = errors.New("upstream 500")

	out, err := f.orch.ProcessTurn(ctx, "CA1", "Ada Lovelace")
	require.NoError(t, err, "the caller-facing path must not error")

	assert.Equal(t, TurnDegraded, out.Kind)
	assert.Equal(t, ApologyText, out.Text)
	assert.Equal(t, StatusFailed, sess.Status)
	require.NotNil(t, sess.EndedAt)

	_, finalized := f.calls.finalized[sess.CallID]
	assert.True(t, finalized, "failed call still gets its end timestamp persisted")
	assert.Empty(t, f.responses.summaryRows(), "no summary row for a failed call")
	assert.Empty(t, f.export.rows, "nothing exported for a failed call")
}

func TestFinalize_IsIdempotent(t *testing.T) {
	f := newFixture(t, "What is your full name?", completeSummaryJSON)
	ctx := context.Background()

	_, err := f.orch.BeginOrResume(ctx, "CA1", "")
	require.NoError(t, err)
	_, err = f.orch.Greet(ctx, "CA1")
	require.NoError(t, err)
	_, err = f.orch.ProcessTurn(ctx, "CA1", "Ada Lovelace")
	require.NoError(t, err)

	first, err := f.orch.Finalize(ctx, "CA1")
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	second, err := f.orch.Finalize(ctx, "CA1")
	require.NoError(t, err)

	assert.Equal(t, first, second, "repeat finalize returns the recorded view")
	require.Len(t, f.responses.summaryRows(), 1)
}

func TestFinalize_UnknownCall(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.Finalize(context.Background(), "CA404")
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeNotFound))
}

type scriptedStream struct {
	ch  chan stt.Fragment
	err error
}

func (s *scriptedStream) Fragments() <-chan stt.Fragment { return s.ch }
func (s *scriptedStream) Err() error                     { return s.err }
func (s *scriptedStream) Close() error                   { return nil }

func TestWatchStream_FinalFragmentsDriveTurns(t *testing.T) {
	f := newFixture(t, "What is your full name?", completeSummaryJSON)
	ctx := context.Background()

	_, err := f.orch.BeginOrResume(ctx, "CA1", "")
	require.NoError(t, err)
	_, err = f.orch.Greet(ctx, "CA1")
	require.NoError(t, err)

	stream := &scriptedStream{ch: make(chan stt.Fragment, 4)}
	stream.ch <- stt.Fragment{Text: "Ada", Confidence: 0.4, IsFinal: false}
	stream.ch <- stt.Fragment{Text: "", IsFinal: true}
	stream.ch <- stt.Fragment{Text: "Ada Lovelace", Confidence: 0.93, IsFinal: true}
	close(stream.ch)

	require.NoError(t, f.orch.WatchStream(ctx, "CA1", stream))

	sess, ok := f.orch.Session("CA1")
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, sess.Status)
	assert.Equal(t, 2, f.reply.replyCalls(), "interim and empty fragments must not drive turns")
	assert.NotEmpty(t, f.control.played, "reply audio pushed to the live call")
}

func TestWatchStream_StreamCloseWithoutSummaryFailsCall(t *testing.T) {
	f := newFixture(t, "What is your full name?")
	ctx := context.Background()

	_, err := f.orch.BeginOrResume(ctx, "CA1", "")
	require.NoError(t, err)
	_, err = f.orch.Greet(ctx, "CA1")
	require.NoError(t, err)

	stream := &scriptedStream{ch: make(chan stt.Fragment)}
	close(stream.ch)

	require.NoError(t, f.orch.WatchStream(ctx, "CA1", stream))

	sess, ok := f.orch.Session("CA1")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, sess.Status)
	require.NotNil(t, sess.EndedAt)
}

func TestWatchStream_StreamErrorFailsCall(t *testing.T) {
	f := newFixture(t, "What is your full name?")
	ctx := context.Background()

	_, err := f.orch.BeginOrResume(ctx, "CA1", "")
	require.NoError(t, err)
	_, err = f.orch.Greet(ctx, "CA1")
	require.NoError(t, err)

	stream := &scriptedStream{ch: make(chan stt.Fragment), err: errors.New("websocket: close 1011")}
	close(stream.ch)

	require.NoError(t, f.orch.WatchStream(ctx, "CA1", stream))

	sess, ok := f.orch.Session("CA1")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, sess.Status)
	require.NotNil(t, sess.EndedAt)
	_, finalized := f.calls.finalized[sess.CallID]
	assert.True(t, finalized)
	assert.Empty(t, f.responses.summaryRows())

	require.NotNil(t, sess.lastOutcome)
	assert.Equal(t, TurnDegraded, sess.lastOutcome.Kind)
	assert.Equal(t, ApologyText, sess.lastOutcome.Text)
}

func TestWatchStream_InactivityTreatedAsHangup(t *testing.T) {
	f := newFixture(t, "What is your full name?")
	f.orch.cfg.InactivityTimeout = 20 * time.Millisecond
	ctx := context.Background()

	_, err := f.orch.BeginOrResume(ctx, "CA1", "")
	require.NoError(t, err)
	_, err = f.orch.Greet(ctx, "CA1")
	require.NoError(t, err)

	stream := &scriptedStream{ch: make(chan stt.Fragment)}
	done := make(chan error, 1)
	go func() { done <- f.orch.WatchStream(ctx, "CA1", stream) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not observe the inactivity window")
	}

	sess, ok := f.orch.Session("CA1")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, sess.Status)
}

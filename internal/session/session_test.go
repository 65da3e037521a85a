package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistory_AppendDoesNotMutateOlderValues(t *testing.T) {
	at := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	var empty History
	one := empty.Append(RoleAssistant, "What is your full name?", at)
	two := one.Append(RoleUser, "Ada Lovelace", at.Add(5*time.Second))

	assert.Equal(t, 0, empty.Len())
	assert.Equal(t, 1, one.Len())
	assert.Equal(t, 2, two.Len())

	// a snapshot of one's turns must not see two's append
	turns := one.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, "What is your full name?", turns[0].Text)
}

func TestHistory_TurnsReturnsACopy(t *testing.T) {
	at := time.Now().UTC()
	h := History{}.Append(RoleUser, "hello", at)

	turns := h.Turns()
	turns[0].Text = "mutated"

	again := h.Turns()
	assert.Equal(t, "hello", again[0].Text)
}

func TestHistory_Last(t *testing.T) {
	at := time.Now().UTC()
	h := History{}.
		Append(RoleAssistant, "q1", at).
		Append(RoleUser, "a1", at).
		Append(RoleAssistant, "q2", at)

	last, ok := h.Last(RoleAssistant)
	require.True(t, ok)
	assert.Equal(t, "q2", last.Text)

	lastUser, ok := h.Last(RoleUser)
	require.True(t, ok)
	assert.Equal(t, "a1", lastUser.Text)

	_, ok = History{}.Last(RoleUser)
	assert.False(t, ok)
}

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusRinging.Terminal())
	assert.False(t, StatusActive.Terminal())
	assert.False(t, StatusFinalizing.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestSnapshotRoundTrip(t *testing.T) {
	started := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	pid := uint(7)
	sess := &CallSession{
		CallSID:   "CA123",
		CallID:    42,
		PatientID: &pid,
		Status:    StatusActive,
		History: History{}.
			Append(RoleAssistant, "q1", started).
			Append(RoleUser, "a1", started.Add(10*time.Second)),
		StartedAt: started,
	}

	restored := sessionFromSnapshot(sess.snapshot())

	assert.Equal(t, sess.CallSID, restored.CallSID)
	assert.Equal(t, sess.CallID, restored.CallID)
	assert.Equal(t, sess.PatientID, restored.PatientID)
	assert.Equal(t, sess.Status, restored.Status)
	assert.Equal(t, sess.StartedAt, restored.StartedAt)
	assert.Equal(t, sess.History.Turns(), restored.History.Turns())
}

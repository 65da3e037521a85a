package notify

import (
	"context"
	"time"
)

// Sender delivers appointment reminders to patients.
type Sender interface {
	SendReminder(ctx context.Context, phone string, appointmentTime time.Time) (messageID string, err error)
}

// CallController pushes new playback instructions to a call already in
// progress.
type CallController interface {
	PlayAudio(ctx context.Context, callSID, audioURL string) error
}

package handlers

import (
	"context"
	"encoding/xml"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/calloway-health/consultline/internal/providers/stt"
	"github.com/calloway-health/consultline/internal/session"
)

// CallOrchestrator is the slice of the orchestrator the webhook needs.
type CallOrchestrator interface {
	BeginOrResume(ctx context.Context, callSID, callerPhone string) (*session.CallSession, error)
	Greet(ctx context.Context, callSID string) (session.TurnOutcome, error)
	WatchStream(ctx context.Context, callSID string, stream stt.Stream) error
}

type TwilioHandler struct {
	orch CallOrchestrator
	stt  stt.Provider
	log  *logrus.Logger

	mu      sync.Mutex
	watched map[string]bool
}

func NewTwilioHandler(orch CallOrchestrator, sttProvider stt.Provider, log *logrus.Logger) *TwilioHandler {
	return &TwilioHandler{
		orch:    orch,
		stt:     sttProvider,
		log:     log,
		watched: make(map[string]bool),
	}
}

// TwiML is the playback instruction document returned to Twilio.
type TwiML struct {
	XMLName xml.Name    `xml:"Response"`
	Play    string      `xml:"Play,omitempty"`
	Say     string      `xml:"Say,omitempty"`
	Pause   *TwiMLPause `xml:"Pause,omitempty"`
}

type TwiMLPause struct {
	Length int `xml:"length,attr"`
}

// IncomingCall handles the inbound-call webhook. The response is always a
// well-formed TwiML document: a live caller must hear something even when an
// internal dependency is down, so errors degrade to a spoken apology rather
// than an HTTP error status.
// POST /twilio/calls (form-encoded: CallSid, From)
func (h *TwilioHandler) IncomingCall(c *gin.Context) {
	callSID := c.PostForm("CallSid")
	from := c.PostForm("From")

	log := h.log.WithFields(logrus.Fields{"call_sid": callSID, "from": from})
	log.Info("incoming call webhook")

	if callSID == "" {
		log.Warn("webhook missing CallSid")
		h.writeTwiML(c, TwiML{Say: session.ApologyText})
		return
	}

	ctx := c.Request.Context()

	if _, err := h.orch.BeginOrResume(ctx, callSID, from); err != nil {
		log.WithError(err).Error("failed to begin call session")
		h.writeTwiML(c, TwiML{Say: session.ApologyText})
		return
	}

	out, err := h.orch.Greet(ctx, callSID)
	if err != nil {
		log.WithError(err).Error("failed to greet caller")
		h.writeTwiML(c, TwiML{Say: session.ApologyText})
		return
	}

	h.watchOnce(callSID, log)

	doc := TwiML{Pause: &TwiMLPause{Length: 60}}
	if out.AudioURL != "" {
		doc.Play = out.AudioURL
	} else {
		doc.Say = out.Text
	}
	h.writeTwiML(c, doc)
}

// watchOnce starts the transcription watcher for a call at most once, no
// matter how many times Twilio re-delivers the webhook.
func (h *TwilioHandler) watchOnce(callSID string, log *logrus.Entry) {
	h.mu.Lock()
	already := h.watched[callSID]
	h.watched[callSID] = true
	h.mu.Unlock()
	if already || h.stt == nil {
		return
	}

	// the watcher outlives the webhook request
	ctx := context.Background()
	stream, err := h.stt.Open(ctx, callSID)
	if err != nil {
		log.WithError(err).Error("failed to open transcription stream")
		h.mu.Lock()
		delete(h.watched, callSID)
		h.mu.Unlock()
		return
	}

	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.watched, callSID)
			h.mu.Unlock()
		}()
		if err := h.orch.WatchStream(ctx, callSID, stream); err != nil {
			log.WithError(err).Error("stream watcher exited with error")
		}
	}()
}

func (h *TwilioHandler) writeTwiML(c *gin.Context, doc TwiML) {
	body, err := xml.Marshal(doc)
	if err != nil {
		// last resort, still a valid document
		c.Data(http.StatusOK, "application/xml",
			[]byte(xml.Header+"<Response><Say>"+session.ApologyText+"</Say></Response>"))
		return
	}
	c.Data(http.StatusOK, "application/xml", []byte(xml.Header+string(body)))
}

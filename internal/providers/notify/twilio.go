package notify

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

const twilioBaseURL = "https://api.twilio.com/2010-04-01"

// Twilio is a thin client over the Twilio REST API: outbound SMS reminders
// and TwiML updates to in-progress calls.
type Twilio struct {
	rest       *resty.Client
	accountSID string
	fromNumber string
}

func NewTwilio(accountSID, authToken, fromNumber string) *Twilio {
	rest := resty.New().
		SetBaseURL(twilioBaseURL).
		SetBasicAuth(accountSID, authToken).
		SetTimeout(30 * time.Second)
	return &Twilio{
		rest:       rest,
		accountSID: accountSID,
		fromNumber: fromNumber,
	}
}

type messageResponse struct {
	SID string `json:"sid"`
}

func (t *Twilio) SendReminder(ctx context.Context, phone string, appointmentTime time.Time) (string, error) {
	body := fmt.Sprintf(
		"Reminder: you have an appointment scheduled for %s. Please confirm your attendance.",
		appointmentTime.Format("Monday 2 January at 15:04"),
	)

	form := url.Values{}
	form.Set("To", phone)
	form.Set("From", t.fromNumber)
	form.Set("Body", body)

	var out messageResponse
	resp, err := t.rest.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(form.Encode()).
		SetResult(&out).
		Post(fmt.Sprintf("/Accounts/%s/Messages.json", t.accountSID))
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("twilio: send reminder: status %d: %s", resp.StatusCode(), resp.String())
	}
	return out.SID, nil
}

type playDocument struct {
	XMLName xml.Name  `xml:"Response"`
	Play    string    `xml:"Play"`
	Pause   playPause `xml:"Pause"`
}

type playPause struct {
	Length int `xml:"length,attr"`
}

// PlayAudio redirects a live call to play the given audio URL.
func (t *Twilio) PlayAudio(ctx context.Context, callSID, audioURL string) error {
	twiml, err := xml.Marshal(playDocument{Play: audioURL, Pause: playPause{Length: 60}})
	if err != nil {
		return err
	}

	form := url.Values{}
	form.Set("Twiml", string(twiml))

	resp, err := t.rest.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(form.Encode()).
		Post(fmt.Sprintf("/Accounts/%s/Calls/%s.json", t.accountSID, callSID))
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("twilio: update call %s: status %d: %s", callSID, resp.StatusCode(), resp.String())
	}
	return nil
}

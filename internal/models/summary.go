package models

import "encoding/json"

// ConsultationSummary is the terminal structured payload the assistant
// produces once every consultation question has been answered. The field set
// is fixed by the reply prompt; a reply only counts as a summary when all
// required fields are present.
type ConsultationSummary struct {
	FullName             string `json:"full_name"`
	DateOfBirth          string `json:"date_of_birth"`
	PhoneNumber          string `json:"phone_number"`
	ReasonForAppointment string `json:"reason_for_appointment"`
	ExperiencedBefore    string `json:"experienced_before"`
	DurationOfSymptoms   string `json:"duration_of_symptoms"`
	CurrentMedication    string `json:"current_medication"`
	KnownAllergies       string `json:"known_allergies"`
	AdditionalNotes      string `json:"additional_notes"`
}

// SummaryFields lists the keys a reply must carry to be treated as a final
// summary. additional_notes may legitimately be empty but must be present.
var SummaryFields = []string{
	"full_name",
	"date_of_birth",
	"phone_number",
	"reason_for_appointment",
	"experienced_before",
	"duration_of_symptoms",
	"current_medication",
	"known_allergies",
	"additional_notes",
}

func (s ConsultationSummary) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}

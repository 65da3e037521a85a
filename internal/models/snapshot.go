package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CallSnapshot is the serialized form of an in-flight call session, written
// after every turn so a restarted process can resume a live call instead of
// opening a duplicate session for the same CallSid.
type CallSnapshot struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CallSID   string             `bson:"call_sid" json:"call_sid"`
	CallID    uint               `bson:"call_id" json:"call_id"`
	PatientID *uint              `bson:"patient_id,omitempty" json:"patient_id,omitempty"`

	Status  string               `bson:"status" json:"status"`
	History []SnapshotUtterance  `bson:"history" json:"history"`
	Summary *ConsultationSummary `bson:"summary,omitempty" json:"summary,omitempty"`

	StartedAt time.Time `bson:"started_at" json:"started_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"` // TTL index
}

type SnapshotUtterance struct {
	Role string    `bson:"role" json:"role"` // "user" | "assistant"
	Text string    `bson:"text" json:"text"`
	At   time.Time `bson:"at" json:"at"`
}

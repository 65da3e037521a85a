package models

import (
	"time"

	"gorm.io/datatypes"
)

// Call is the durable record of one phone call attempt. It is inserted at
// session start and updated exactly once at finalization; CallDurationSeconds
// and CallEnd stay null until then.
type Call struct {
	ID                  uint       `gorm:"column:id;primaryKey" json:"id"`
	CallSID             string     `gorm:"column:call_sid;type:varchar(64);uniqueIndex" json:"call_sid"`
	PatientID           *uint      `gorm:"column:patient_id;index" json:"patient_id,omitempty"`
	CallStart           time.Time  `gorm:"column:call_start;not null" json:"call_start"`
	CallEnd             *time.Time `gorm:"column:call_end" json:"call_end,omitempty"`
	CallDurationSeconds *int64     `gorm:"column:call_duration" json:"call_duration,omitempty"`
}

func (Call) TableName() string { return "calls" }

// Response is one question/answer pair captured during a call, or the
// terminal "Final Summary" row. Append-only.
type Response struct {
	ID        uint           `gorm:"column:id;primaryKey" json:"id"`
	PatientID *uint          `gorm:"column:patient_id" json:"patient_id,omitempty"`
	Question  string         `gorm:"column:question;type:varchar(255);not null" json:"question"`
	Response  string         `gorm:"column:response;type:text;not null" json:"response"`
	CallID    uint           `gorm:"column:call_id;index" json:"call_id"`
	Payload   datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload,omitempty"`
	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
}

func (Response) TableName() string { return "responses" }

package models

import "time"

type Appointment struct {
	ID              uint      `gorm:"column:id;primaryKey" json:"id"`
	PatientID       uint      `gorm:"column:patient_id;index" json:"patient_id"`
	AppointmentTime time.Time `gorm:"column:appointment_time;not null;index" json:"appointment_time"`
	ReminderSent    bool      `gorm:"column:reminder_sent;default:false" json:"reminder_sent"`
	CreatedAt       time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Appointment) TableName() string { return "appointments" }

// DueAppointment is the join row used by the reminder sweep: the appointment
// plus the patient's phone number.
type DueAppointment struct {
	ID              uint      `json:"id"`
	PatientID       uint      `json:"patient_id"`
	AppointmentTime time.Time `json:"appointment_time"`
	PhoneNumber     string    `json:"phone_number"`
}

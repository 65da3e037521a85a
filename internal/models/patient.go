package models

type Patient struct {
	ID              uint   `gorm:"column:id;primaryKey" json:"id"`
	PhoneNumber     string `gorm:"column:phone_number;type:varchar(15);uniqueIndex;not null" json:"phone_number"`
	Name            string `gorm:"column:name;type:varchar(100);not null" json:"name"`
	SpelledOutName  string `gorm:"column:spelled_out_name;type:varchar(255)" json:"spelled_out_name"`
	NameCorrectFlag bool   `gorm:"column:name_correct_flag;default:false" json:"name_correct_flag"`
}

func (Patient) TableName() string { return "patients" }

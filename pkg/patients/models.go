package patients

import (
	"time"

	"gorm.io/datatypes"
)

const (
	StatusInquiry    = "inquiry"
	StatusOnboarding = "onboarding"
	StatusActive     = "active"
	StatusChurned    = "churned"
)

var statuses = []string{StatusInquiry, StatusOnboarding, StatusActive, StatusChurned}

func validStatus(s string) bool {
	for _, candidate := range statuses {
		if s == candidate {
			return true
		}
	}
	return false
}

const (
	nameMaxLength        = 50
	addressLineMaxLength = 255
	cityMaxLength        = 100
	stateMaxLength       = 100
	postalCodeMaxLength  = 20
	fieldNameMaxLength   = 100
)

type patientModel struct {
	ID               int64          `gorm:"primaryKey;column:id"`
	FirstName        string         `gorm:"column:first_name;size:50;not null"`
	MiddleName       string         `gorm:"column:middle_name;size:50;not null"`
	LastName         string         `gorm:"column:last_name;size:50;not null"`
	DateOfBirth      time.Time      `gorm:"column:date_of_birth;type:date;not null"`
	LastVisit        *time.Time     `gorm:"column:last_visit;type:date;index"`
	Status           string         `gorm:"column:status;size:10;not null;index"`
	ReadyToDischarge bool           `gorm:"column:ready_to_discharge;not null"`
	AdditionalFields datatypes.JSON `gorm:"column:additional_fields"`
	CreatedAt        time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time      `gorm:"column:updated_at;autoUpdateTime"`

	Addresses         []addressModel          `gorm:"foreignKey:PatientID;constraint:OnDelete:CASCADE"`
	ISIScores         []isiScoreModel         `gorm:"foreignKey:PatientID;constraint:OnDelete:CASCADE"`
	CustomFieldValues []customFieldValueModel `gorm:"foreignKey:PatientID;constraint:OnDelete:CASCADE"`
}

func (patientModel) TableName() string { return "patients" }

type addressModel struct {
	ID           int64   `gorm:"primaryKey;column:id"`
	PatientID    int64   `gorm:"column:patient_id;not null;index"`
	AddressLine1 string  `gorm:"column:address_line1;size:255;not null"`
	AddressLine2 *string `gorm:"column:address_line2;size:255"`
	City         string  `gorm:"column:city;size:100;not null"`
	State        string  `gorm:"column:state;size:100;not null"`
	PostalCode   string  `gorm:"column:postal_code;size:20;not null"`
}

func (addressModel) TableName() string { return "addresses" }

type isiScoreModel struct {
	ID        int64     `gorm:"primaryKey;column:id"`
	PatientID int64     `gorm:"column:patient_id;not null;index:idx_isi_scores_patient_date,priority:1"`
	Score     int       `gorm:"column:score;not null"`
	Date      time.Time `gorm:"column:date;type:date;not null;index:idx_isi_scores_patient_date,priority:2"`
}

func (isiScoreModel) TableName() string { return "isi_scores" }

type customFieldModel struct {
	ID   int64  `gorm:"primaryKey;column:id"`
	Name string `gorm:"column:name;size:100;not null;uniqueIndex"`

	Values []customFieldValueModel `gorm:"foreignKey:FieldDefinitionID;constraint:OnDelete:CASCADE"`
}

func (customFieldModel) TableName() string { return "custom_fields" }

type customFieldValueModel struct {
	ID                int64  `gorm:"primaryKey;column:id"`
	PatientID         int64  `gorm:"column:patient_id;not null;uniqueIndex:uniq_patient_custom_field,priority:1"`
	FieldDefinitionID int64  `gorm:"column:field_definition_id;not null;index;uniqueIndex:uniq_patient_custom_field,priority:2"`
	Value             string `gorm:"column:value;type:text;not null"`
}

func (customFieldValueModel) TableName() string { return "custom_field_values" }

// Validated write shapes passed from the service to the repository.

type AddressFields struct {
	AddressLine1 string
	AddressLine2 *string
	City         string
	State        string
	PostalCode   string
}

type ISIScoreFields struct {
	Score int
	Date  time.Time
}

type CustomFieldValueFields struct {
	FieldDefinitionID int64
	Value             string
}

// PatientWrite lists every writable patient field explicitly. Nil means
// "leave unchanged"; a nil collection pointer leaves that collection alone.
type PatientWrite struct {
	FirstName        *string
	MiddleName       *string
	LastName         *string
	DateOfBirth      *time.Time
	Status           *string
	LastVisitSet     bool
	LastVisit        *time.Time
	ReadyToDischarge *bool
	AdditionalFields datatypes.JSON

	Addresses         *[]AddressFields
	ISIScores         *[]ISIScoreFields
	CustomFieldValues *[]CustomFieldValueFields
}

func (w PatientWrite) apply(row *patientModel) {
	if w.FirstName != nil {
		row.FirstName = *w.FirstName
	}
	if w.MiddleName != nil {
		row.MiddleName = *w.MiddleName
	}
	if w.LastName != nil {
		row.LastName = *w.LastName
	}
	if w.DateOfBirth != nil {
		row.DateOfBirth = *w.DateOfBirth
	}
	if w.Status != nil {
		row.Status = *w.Status
	}
	if w.LastVisitSet {
		row.LastVisit = w.LastVisit
	}
	if w.ReadyToDischarge != nil {
		row.ReadyToDischarge = *w.ReadyToDischarge
	}
	if w.AdditionalFields != nil {
		row.AdditionalFields = w.AdditionalFields
	}
}

func (f AddressFields) row(patientID int64) addressModel {
	return addressModel{
		PatientID:    patientID,
		AddressLine1: f.AddressLine1,
		AddressLine2: f.AddressLine2,
		City:         f.City,
		State:        f.State,
		PostalCode:   f.PostalCode,
	}
}

func (f ISIScoreFields) row(patientID int64) isiScoreModel {
	return isiScoreModel{PatientID: patientID, Score: f.Score, Date: f.Date}
}

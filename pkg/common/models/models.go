package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// Event bus envelope
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // patient.created, address.deleted, ...
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// Read representations. Dates are YYYY-MM-DD strings.

type Patient struct {
	ID                int64              `json:"id"`
	FirstName         string             `json:"first_name"`
	MiddleName        string             `json:"middle_name"`
	LastName          string             `json:"last_name"`
	DateOfBirth       string             `json:"date_of_birth"`
	Status            string             `json:"status"`
	LastVisit         *string            `json:"last_visit"`
	AdditionalFields  json.RawMessage    `json:"additional_fields"`
	ReadyToDischarge  bool               `json:"ready_to_discharge"`
	Addresses         []Address          `json:"addresses"`
	ISIScores         []ISIScore         `json:"isi_scores"`
	CustomFieldValues []CustomFieldValue `json:"custom_field_values"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

type Address struct {
	ID           int64   `json:"id"`
	Patient      *int64  `json:"patient,omitempty"`
	AddressLine1 string  `json:"address_line1"`
	AddressLine2 *string `json:"address_line2"`
	City         string  `json:"city"`
	State        string  `json:"state"`
	PostalCode   string  `json:"postal_code"`
}

type ISIScore struct {
	ID      int64  `json:"id"`
	Patient *int64 `json:"patient,omitempty"`
	Score   int    `json:"score"`
	Date    string `json:"date"`
}

type CustomField struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type CustomFieldValue struct {
	ID              int64  `json:"id"`
	Patient         *int64 `json:"patient,omitempty"`
	FieldDefinition int64  `json:"field_definition"`
	FieldName       string `json:"field_name"`
	Value           string `json:"value"`
}

// Write payloads. Pointer fields distinguish "absent" from a zero value;
// Nullable additionally distinguishes an explicit null.

type PatientInput struct {
	FirstName         Nullable[string]         `json:"first_name"`
	MiddleName        Nullable[string]         `json:"middle_name"`
	LastName          Nullable[string]         `json:"last_name"`
	DateOfBirth       Nullable[string]         `json:"date_of_birth"`
	Status            Nullable[string]         `json:"status"`
	LastVisit         Nullable[string]         `json:"last_visit"`
	ReadyToDischarge  *bool                    `json:"ready_to_discharge"`
	AdditionalFields  json.RawMessage          `json:"additional_fields"`
	Addresses         *[]AddressInput          `json:"addresses"`
	ISIScores         *[]ISIScoreInput         `json:"isi_scores"`
	CustomFieldValues *[]CustomFieldValueInput `json:"custom_field_values"`
}

type AddressInput struct {
	Patient      *int64           `json:"patient"`
	AddressLine1 *string          `json:"address_line1"`
	AddressLine2 Nullable[string] `json:"address_line2"`
	City         *string          `json:"city"`
	State        *string          `json:"state"`
	PostalCode   *string          `json:"postal_code"`
}

type ISIScoreInput struct {
	Patient *int64  `json:"patient"`
	Score   *int    `json:"score"`
	Date    *string `json:"date"`
}

type CustomFieldInput struct {
	Name *string `json:"name"`
}

type CustomFieldValueInput struct {
	Patient         *int64  `json:"patient"`
	FieldDefinition *int64  `json:"field_definition"`
	Value           *string `json:"value"`
}

// Nullable records whether a JSON key was present and whether it was null.
type Nullable[T any] struct {
	Set   bool
	Valid bool
	Value T
}

func (n *Nullable[T]) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.Valid = false
		return nil
	}
	if err := json.Unmarshal(data, &n.Value); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

// Ptr returns the value as a pointer, nil when null or unset.
func (n Nullable[T]) Ptr() *T {
	if !n.Valid {
		return nil
	}
	v := n.Value
	return &v
}

package patients

import (
	"encoding/json"

	"github.com/stellar-sleep/patients-api/pkg/common/models"
)

var emptyJSONList = json.RawMessage("[]")

func toPatient(row patientModel, fieldNames map[int64]string) models.Patient {
	p := models.Patient{
		ID:                row.ID,
		FirstName:         row.FirstName,
		MiddleName:        row.MiddleName,
		LastName:          row.LastName,
		DateOfBirth:       formatDate(row.DateOfBirth),
		Status:            row.Status,
		ReadyToDischarge:  row.ReadyToDischarge,
		AdditionalFields:  emptyJSONList,
		Addresses:         make([]models.Address, 0, len(row.Addresses)),
		ISIScores:         make([]models.ISIScore, 0, len(row.ISIScores)),
		CustomFieldValues: make([]models.CustomFieldValue, 0, len(row.CustomFieldValues)),
		CreatedAt:         row.CreatedAt.UTC(),
		UpdatedAt:         row.UpdatedAt.UTC(),
	}
	if row.LastVisit != nil {
		lv := formatDate(*row.LastVisit)
		p.LastVisit = &lv
	}
	if len(row.AdditionalFields) > 0 {
		p.AdditionalFields = json.RawMessage(row.AdditionalFields)
	}
	for _, a := range row.Addresses {
		p.Addresses = append(p.Addresses, toAddress(a, false))
	}
	for _, s := range row.ISIScores {
		p.ISIScores = append(p.ISIScores, toISIScore(s, false))
	}
	for _, v := range row.CustomFieldValues {
		p.CustomFieldValues = append(p.CustomFieldValues, toCustomFieldValue(v, fieldNames[v.FieldDefinitionID], false))
	}
	return p
}

// Nested children omit the owning patient id; standalone reads include it.

func toAddress(row addressModel, withPatient bool) models.Address {
	a := models.Address{
		ID:           row.ID,
		AddressLine1: row.AddressLine1,
		AddressLine2: row.AddressLine2,
		City:         row.City,
		State:        row.State,
		PostalCode:   row.PostalCode,
	}
	if withPatient {
		id := row.PatientID
		a.Patient = &id
	}
	return a
}

func toISIScore(row isiScoreModel, withPatient bool) models.ISIScore {
	s := models.ISIScore{ID: row.ID, Score: row.Score, Date: formatDate(row.Date)}
	if withPatient {
		id := row.PatientID
		s.Patient = &id
	}
	return s
}

func toCustomField(row customFieldModel) models.CustomField {
	return models.CustomField{ID: row.ID, Name: row.Name}
}

func toCustomFieldValue(row customFieldValueModel, fieldName string, withPatient bool) models.CustomFieldValue {
	v := models.CustomFieldValue{
		ID:              row.ID,
		FieldDefinition: row.FieldDefinitionID,
		FieldName:       fieldName,
		Value:           row.Value,
	}
	if withPatient {
		id := row.PatientID
		v.Patient = &id
	}
	return v
}

// Field views of stored rows, used as the base for partial updates.

func addressFieldsOf(a models.Address) AddressFields {
	return AddressFields{
		AddressLine1: a.AddressLine1,
		AddressLine2: a.AddressLine2,
		City:         a.City,
		State:        a.State,
		PostalCode:   a.PostalCode,
	}
}

func isiScoreFieldsOf(s models.ISIScore) (ISIScoreFields, error) {
	d, err := parseDate(s.Date)
	if err != nil {
		return ISIScoreFields{}, err
	}
	return ISIScoreFields{Score: s.Score, Date: d}, nil
}

func customFieldValueFieldsOf(v models.CustomFieldValue) CustomFieldValueFields {
	return CustomFieldValueFields{FieldDefinitionID: v.FieldDefinition, Value: v.Value}
}

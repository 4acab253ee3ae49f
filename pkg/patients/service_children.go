package patients

import (
	"context"

	"github.com/stellar-sleep/patients-api/pkg/common/models"
	"github.com/stellar-sleep/patients-api/pkg/observability/metrics"
)

// Standalone child writes. Updates load the current record first so a missing
// id is reported before payload errors; PATCH uses it as the base.

func (s *Service) ListAddresses(ctx context.Context, patientID *int64) ([]models.Address, error) {
	return s.repo.ListAddresses(ctx, patientID)
}

func (s *Service) GetAddress(ctx context.Context, id int64) (models.Address, error) {
	return s.repo.GetAddress(ctx, id)
}

func (s *Service) CreateAddress(ctx context.Context, in models.AddressInput) (models.Address, error) {
	fields, fe := validateAddress(in, nil)
	patientID := requirePatient(fe, in.Patient, nil)
	if len(fe) > 0 {
		return models.Address{}, &ValidationError{Fields: fe}
	}
	address, err := s.repo.CreateAddress(ctx, patientID, fields)
	metrics.RecordWrite("address", "create", err)
	if err != nil {
		return models.Address{}, err
	}
	s.publish(ctx, "address.created", patientKey(patientID), map[string]interface{}{"id": address.ID, "patient": patientID})
	return address, nil
}

func (s *Service) UpdateAddress(ctx context.Context, id int64, in models.AddressInput, partial bool) (models.Address, error) {
	current, err := s.repo.GetAddress(ctx, id)
	if err != nil {
		return models.Address{}, err
	}
	var base *AddressFields
	var basePatient *int64
	if partial {
		f := addressFieldsOf(current)
		base, basePatient = &f, current.Patient
	}
	fields, fe := validateAddress(in, base)
	patientID := requirePatient(fe, in.Patient, basePatient)
	if len(fe) > 0 {
		return models.Address{}, &ValidationError{Fields: fe}
	}

	address, err := s.repo.UpdateAddress(ctx, id, patientID, fields)
	metrics.RecordWrite("address", "update", err)
	if err != nil {
		return models.Address{}, err
	}
	s.publish(ctx, "address.updated", patientKey(patientID), map[string]interface{}{"id": id, "patient": patientID})
	return address, nil
}

func (s *Service) DeleteAddress(ctx context.Context, id int64) error {
	current, err := s.repo.GetAddress(ctx, id)
	if err != nil {
		return err
	}
	err = s.repo.DeleteAddress(ctx, id)
	metrics.RecordWrite("address", "delete", err)
	if err != nil {
		return err
	}
	s.publish(ctx, "address.deleted", patientKey(*current.Patient), map[string]interface{}{"id": id, "patient": *current.Patient})
	return nil
}

func (s *Service) ListISIScores(ctx context.Context, filter ISIScoreFilter) ([]models.ISIScore, error) {
	return s.repo.ListISIScores(ctx, filter)
}

func (s *Service) GetISIScore(ctx context.Context, id int64) (models.ISIScore, error) {
	return s.repo.GetISIScore(ctx, id)
}

func (s *Service) CreateISIScore(ctx context.Context, in models.ISIScoreInput) (models.ISIScore, error) {
	fields, fe := validateISIScore(in, nil)
	patientID := requirePatient(fe, in.Patient, nil)
	if len(fe) > 0 {
		return models.ISIScore{}, &ValidationError{Fields: fe}
	}
	score, err := s.repo.CreateISIScore(ctx, patientID, fields)
	metrics.RecordWrite("isi_score", "create", err)
	if err != nil {
		return models.ISIScore{}, err
	}
	s.publish(ctx, "isi_score.created", patientKey(patientID), map[string]interface{}{
		"id":      score.ID,
		"patient": patientID,
		"score":   score.Score,
		"date":    score.Date,
	})
	return score, nil
}

func (s *Service) UpdateISIScore(ctx context.Context, id int64, in models.ISIScoreInput, partial bool) (models.ISIScore, error) {
	current, err := s.repo.GetISIScore(ctx, id)
	if err != nil {
		return models.ISIScore{}, err
	}
	var base *ISIScoreFields
	var basePatient *int64
	if partial {
		f, err := isiScoreFieldsOf(current)
		if err != nil {
			return models.ISIScore{}, err
		}
		base, basePatient = &f, current.Patient
	}
	fields, fe := validateISIScore(in, base)
	patientID := requirePatient(fe, in.Patient, basePatient)
	if len(fe) > 0 {
		return models.ISIScore{}, &ValidationError{Fields: fe}
	}

	score, err := s.repo.UpdateISIScore(ctx, id, patientID, fields)
	metrics.RecordWrite("isi_score", "update", err)
	if err != nil {
		return models.ISIScore{}, err
	}
	s.publish(ctx, "isi_score.updated", patientKey(patientID), map[string]interface{}{
		"id":      id,
		"patient": patientID,
		"score":   score.Score,
		"date":    score.Date,
	})
	return score, nil
}

func (s *Service) DeleteISIScore(ctx context.Context, id int64) error {
	current, err := s.repo.GetISIScore(ctx, id)
	if err != nil {
		return err
	}
	err = s.repo.DeleteISIScore(ctx, id)
	metrics.RecordWrite("isi_score", "delete", err)
	if err != nil {
		return err
	}
	s.publish(ctx, "isi_score.deleted", patientKey(*current.Patient), map[string]interface{}{"id": id, "patient": *current.Patient})
	return nil
}

func (s *Service) ListCustomFieldValues(ctx context.Context, filter CustomFieldValueFilter) ([]models.CustomFieldValue, error) {
	return s.repo.ListCustomFieldValues(ctx, filter)
}

func (s *Service) GetCustomFieldValue(ctx context.Context, id int64) (models.CustomFieldValue, error) {
	return s.repo.GetCustomFieldValue(ctx, id)
}

func (s *Service) CreateCustomFieldValue(ctx context.Context, in models.CustomFieldValueInput) (models.CustomFieldValue, error) {
	fields, fe := validateCustomFieldValue(in, nil)
	patientID := requirePatient(fe, in.Patient, nil)
	if len(fe) > 0 {
		return models.CustomFieldValue{}, &ValidationError{Fields: fe}
	}
	value, err := s.repo.CreateCustomFieldValue(ctx, patientID, fields)
	metrics.RecordWrite("custom_field_value", "create", err)
	if err != nil {
		return models.CustomFieldValue{}, err
	}
	s.publish(ctx, "custom_field_value.created", patientKey(patientID), map[string]interface{}{
		"id":               value.ID,
		"patient":          patientID,
		"field_definition": value.FieldDefinition,
	})
	return value, nil
}

func (s *Service) UpdateCustomFieldValue(ctx context.Context, id int64, in models.CustomFieldValueInput, partial bool) (models.CustomFieldValue, error) {
	current, err := s.repo.GetCustomFieldValue(ctx, id)
	if err != nil {
		return models.CustomFieldValue{}, err
	}
	var base *CustomFieldValueFields
	var basePatient *int64
	if partial {
		f := customFieldValueFieldsOf(current)
		base, basePatient = &f, current.Patient
	}
	fields, fe := validateCustomFieldValue(in, base)
	patientID := requirePatient(fe, in.Patient, basePatient)
	if len(fe) > 0 {
		return models.CustomFieldValue{}, &ValidationError{Fields: fe}
	}

	value, err := s.repo.UpdateCustomFieldValue(ctx, id, patientID, fields)
	metrics.RecordWrite("custom_field_value", "update", err)
	if err != nil {
		return models.CustomFieldValue{}, err
	}
	s.publish(ctx, "custom_field_value.updated", patientKey(patientID), map[string]interface{}{
		"id":               id,
		"patient":          patientID,
		"field_definition": value.FieldDefinition,
	})
	return value, nil
}

func (s *Service) DeleteCustomFieldValue(ctx context.Context, id int64) error {
	current, err := s.repo.GetCustomFieldValue(ctx, id)
	if err != nil {
		return err
	}
	err = s.repo.DeleteCustomFieldValue(ctx, id)
	metrics.RecordWrite("custom_field_value", "delete", err)
	if err != nil {
		return err
	}
	s.publish(ctx, "custom_field_value.deleted", patientKey(*current.Patient), map[string]interface{}{
		"id":               id,
		"patient":          *current.Patient,
		"field_definition": current.FieldDefinition,
	})
	return nil
}

package patients

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stellar-sleep/patients-api/pkg/common/models"
	"gorm.io/gorm"
)

const msgFieldNameTaken = "custom field with this name already exists."

func mustExist(tx *gorm.DB, model interface{}, id int64) error {
	var n int64
	if err := tx.Model(model).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) ensureExists(ctx context.Context, model interface{}, id int64) error {
	return translate(mustExist(r.db.WithContext(ctx), model, id))
}

func patientMissing(tx *gorm.DB, fe FieldErrors, patientID int64) error {
	var n int64
	if err := tx.Model(&patientModel{}).Where("id = ?", patientID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		fe.add("patient", msgMissingPK(patientID))
	}
	return nil
}

func (r *Repository) deleteByID(ctx context.Context, model interface{}, id int64) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(model)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Addresses

func (r *Repository) ListAddresses(ctx context.Context, patientID *int64) ([]models.Address, error) {
	db := r.db.WithContext(ctx).Order("id")
	if patientID != nil {
		db = db.Where("patient_id = ?", *patientID)
	}
	var rows []addressModel
	if err := db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing addresses: %w", err)
	}
	out := make([]models.Address, 0, len(rows))
	for _, row := range rows {
		out = append(out, toAddress(row, true))
	}
	return out, nil
}

func (r *Repository) GetAddress(ctx context.Context, id int64) (models.Address, error) {
	var row addressModel
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return models.Address{}, translate(err)
	}
	return toAddress(row, true), nil
}

func (r *Repository) CreateAddress(ctx context.Context, patientID int64, f AddressFields) (models.Address, error) {
	row := f.row(patientID)
	err := r.transaction(ctx, func(tx *gorm.DB) error {
		fe := FieldErrors{}
		if err := patientMissing(tx, fe, patientID); err != nil {
			return err
		}
		if len(fe) > 0 {
			return &ValidationError{Fields: fe}
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		return models.Address{}, err
	}
	return toAddress(row, true), nil
}

func (r *Repository) UpdateAddress(ctx context.Context, id, patientID int64, f AddressFields) (models.Address, error) {
	row := f.row(patientID)
	row.ID = id
	err := r.transaction(ctx, func(tx *gorm.DB) error {
		if err := mustExist(tx, &addressModel{}, id); err != nil {
			return err
		}
		fe := FieldErrors{}
		if err := patientMissing(tx, fe, patientID); err != nil {
			return err
		}
		if len(fe) > 0 {
			return &ValidationError{Fields: fe}
		}
		return tx.Save(&row).Error
	})
	if err != nil {
		return models.Address{}, err
	}
	return toAddress(row, true), nil
}

func (r *Repository) DeleteAddress(ctx context.Context, id int64) error {
	return r.deleteByID(ctx, &addressModel{}, id)
}

// ISI scores

type ISIScoreFilter struct {
	PatientID *int64
	Date      *time.Time
}

func (r *Repository) ListISIScores(ctx context.Context, filter ISIScoreFilter) ([]models.ISIScore, error) {
	db := r.db.WithContext(ctx).Order("date DESC").Order("id DESC")
	if filter.PatientID != nil {
		db = db.Where("patient_id = ?", *filter.PatientID)
	}
	if filter.Date != nil {
		db = db.Where("date = ?", *filter.Date)
	}
	var rows []isiScoreModel
	if err := db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing isi scores: %w", err)
	}
	out := make([]models.ISIScore, 0, len(rows))
	for _, row := range rows {
		out = append(out, toISIScore(row, true))
	}
	return out, nil
}

func (r *Repository) GetISIScore(ctx context.Context, id int64) (models.ISIScore, error) {
	var row isiScoreModel
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return models.ISIScore{}, translate(err)
	}
	return toISIScore(row, true), nil
}

func (r *Repository) CreateISIScore(ctx context.Context, patientID int64, f ISIScoreFields) (models.ISIScore, error) {
	row := f.row(patientID)
	err := r.transaction(ctx, func(tx *gorm.DB) error {
		fe := FieldErrors{}
		if err := patientMissing(tx, fe, patientID); err != nil {
			return err
		}
		if len(fe) > 0 {
			return &ValidationError{Fields: fe}
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		return models.ISIScore{}, err
	}
	return toISIScore(row, true), nil
}

func (r *Repository) UpdateISIScore(ctx context.Context, id, patientID int64, f ISIScoreFields) (models.ISIScore, error) {
	row := f.row(patientID)
	row.ID = id
	err := r.transaction(ctx, func(tx *gorm.DB) error {
		if err := mustExist(tx, &isiScoreModel{}, id); err != nil {
			return err
		}
		fe := FieldErrors{}
		if err := patientMissing(tx, fe, patientID); err != nil {
			return err
		}
		if len(fe) > 0 {
			return &ValidationError{Fields: fe}
		}
		return tx.Save(&row).Error
	})
	if err != nil {
		return models.ISIScore{}, err
	}
	return toISIScore(row, true), nil
}

func (r *Repository) DeleteISIScore(ctx context.Context, id int64) error {
	return r.deleteByID(ctx, &isiScoreModel{}, id)
}

// Custom field catalog

func (r *Repository) ListCustomFields(ctx context.Context) ([]models.CustomField, error) {
	var rows []customFieldModel
	if err := r.db.WithContext(ctx).Order("name").Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing custom fields: %w", err)
	}
	out := make([]models.CustomField, 0, len(rows))
	for _, row := range rows {
		out = append(out, toCustomField(row))
	}
	return out, nil
}

func (r *Repository) GetCustomField(ctx context.Context, id int64) (models.CustomField, error) {
	var row customFieldModel
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return models.CustomField{}, translate(err)
	}
	return toCustomField(row), nil
}

func nameTaken(tx *gorm.DB, name string, exceptID int64) error {
	var n int64
	if err := tx.Model(&customFieldModel{}).Where("name = ? AND id <> ?", name, exceptID).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return newValidationError("name", msgFieldNameTaken)
	}
	return nil
}

func (r *Repository) CreateCustomField(ctx context.Context, name string) (models.CustomField, error) {
	row := customFieldModel{Name: name}
	err := r.transaction(ctx, func(tx *gorm.DB) error {
		if err := nameTaken(tx, name, 0); err != nil {
			return err
		}
		return tx.Create(&row).Error
	})
	if errors.Is(err, ErrDuplicate) {
		return models.CustomField{}, newValidationError("name", msgFieldNameTaken)
	}
	if err != nil {
		return models.CustomField{}, err
	}
	return toCustomField(row), nil
}

func (r *Repository) UpdateCustomField(ctx context.Context, id int64, name string) (models.CustomField, error) {
	err := r.transaction(ctx, func(tx *gorm.DB) error {
		if err := mustExist(tx, &customFieldModel{}, id); err != nil {
			return err
		}
		if err := nameTaken(tx, name, id); err != nil {
			return err
		}
		return tx.Model(&customFieldModel{}).Where("id = ?", id).Update("name", name).Error
	})
	if errors.Is(err, ErrDuplicate) {
		return models.CustomField{}, newValidationError("name", msgFieldNameTaken)
	}
	if err != nil {
		return models.CustomField{}, err
	}
	return models.CustomField{ID: id, Name: name}, nil
}

// DeleteCustomField removes the definition and every value recorded for it.
func (r *Repository) DeleteCustomField(ctx context.Context, id int64) error {
	return r.transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("field_definition_id = ?", id).Delete(&customFieldValueModel{}).Error; err != nil {
			return fmt.Errorf("deleting values of custom field %d: %w", id, err)
		}
		res := tx.Where("id = ?", id).Delete(&customFieldModel{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Custom field values

type CustomFieldValueFilter struct {
	PatientID         *int64
	FieldDefinitionID *int64
}

func (r *Repository) ListCustomFieldValues(ctx context.Context, filter CustomFieldValueFilter) ([]models.CustomFieldValue, error) {
	db := r.db.WithContext(ctx).Order("id")
	if filter.PatientID != nil {
		db = db.Where("patient_id = ?", *filter.PatientID)
	}
	if filter.FieldDefinitionID != nil {
		db = db.Where("field_definition_id = ?", *filter.FieldDefinitionID)
	}
	var rows []customFieldValueModel
	if err := db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing custom field values: %w", err)
	}
	return r.buildCustomFieldValues(ctx, rows)
}

func (r *Repository) buildCustomFieldValues(ctx context.Context, rows []customFieldValueModel) ([]models.CustomFieldValue, error) {
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.FieldDefinitionID)
	}
	names, err := fieldNames(r.db.WithContext(ctx), ids)
	if err != nil {
		return nil, err
	}
	out := make([]models.CustomFieldValue, 0, len(rows))
	for _, row := range rows {
		out = append(out, toCustomFieldValue(row, names[row.FieldDefinitionID], true))
	}
	return out, nil
}

func (r *Repository) GetCustomFieldValue(ctx context.Context, id int64) (models.CustomFieldValue, error) {
	var row customFieldValueModel
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return models.CustomFieldValue{}, translate(err)
	}
	out, err := r.buildCustomFieldValues(ctx, []customFieldValueModel{row})
	if err != nil {
		return models.CustomFieldValue{}, err
	}
	return out[0], nil
}

// checkValueRefs verifies both references of a standalone value and the
// (patient, field) uniqueness, ignoring the row being updated.
func checkValueRefs(tx *gorm.DB, selfID, patientID int64, f CustomFieldValueFields) error {
	fe := FieldErrors{}
	if err := patientMissing(tx, fe, patientID); err != nil {
		return err
	}
	var n int64
	if err := tx.Model(&customFieldModel{}).Where("id = ?", f.FieldDefinitionID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		fe.add("field_definition", msgMissingPK(f.FieldDefinitionID))
	}
	if len(fe) > 0 {
		return &ValidationError{Fields: fe}
	}

	if err := tx.Model(&customFieldValueModel{}).
		Where("patient_id = ? AND field_definition_id = ? AND id <> ?", patientID, f.FieldDefinitionID, selfID).
		Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return newValidationError("non_field_errors", msgUniquePair)
	}
	return nil
}

func (r *Repository) CreateCustomFieldValue(ctx context.Context, patientID int64, f CustomFieldValueFields) (models.CustomFieldValue, error) {
	row := customFieldValueModel{PatientID: patientID, FieldDefinitionID: f.FieldDefinitionID, Value: f.Value}
	err := r.transaction(ctx, func(tx *gorm.DB) error {
		if err := checkValueRefs(tx, 0, patientID, f); err != nil {
			return err
		}
		return tx.Create(&row).Error
	})
	if errors.Is(err, ErrDuplicate) {
		return models.CustomFieldValue{}, newValidationError("non_field_errors", msgUniquePair)
	}
	if err != nil {
		return models.CustomFieldValue{}, err
	}
	return r.GetCustomFieldValue(ctx, row.ID)
}

func (r *Repository) UpdateCustomFieldValue(ctx context.Context, id, patientID int64, f CustomFieldValueFields) (models.CustomFieldValue, error) {
	row := customFieldValueModel{ID: id, PatientID: patientID, FieldDefinitionID: f.FieldDefinitionID, Value: f.Value}
	err := r.transaction(ctx, func(tx *gorm.DB) error {
		if err := mustExist(tx, &customFieldValueModel{}, id); err != nil {
			return err
		}
		if err := checkValueRefs(tx, id, patientID, f); err != nil {
			return err
		}
		return tx.Save(&row).Error
	})
	if errors.Is(err, ErrDuplicate) {
		return models.CustomFieldValue{}, newValidationError("non_field_errors", msgUniquePair)
	}
	if err != nil {
		return models.CustomFieldValue{}, err
	}
	return r.GetCustomFieldValue(ctx, id)
}

func (r *Repository) DeleteCustomFieldValue(ctx context.Context, id int64) error {
	return r.deleteByID(ctx, &customFieldValueModel{}, id)
}

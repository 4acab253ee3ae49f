package patients

import (
	"context"
	"errors"
	"fmt"

	"github.com/stellar-sleep/patients-api/pkg/common/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&patientModel{},
		&customFieldModel{},
		&addressModel{},
		&isiScoreModel{},
		&customFieldValueModel{},
	)
}

// transaction runs fn in one database transaction. Inside fn only tx may be
// used; the outer handle would deadlock a single-connection pool.
func (r *Repository) transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return translate(r.db.WithContext(ctx).Transaction(fn))
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func withChildren(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Addresses", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("ISIScores", func(db *gorm.DB) *gorm.DB { return db.Order("date DESC").Order("id DESC") }).
		Preload("CustomFieldValues", func(db *gorm.DB) *gorm.DB { return db.Order("id") })
}

func fieldNames(db *gorm.DB, ids []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	var rows []customFieldModel
	if err := db.Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("loading custom field names: %w", err)
	}
	for _, row := range rows {
		names[row.ID] = row.Name
	}
	return names, nil
}

func (r *Repository) buildPatients(ctx context.Context, rows []patientModel) ([]models.Patient, error) {
	seen := make(map[int64]bool)
	var ids []int64
	for _, row := range rows {
		for _, v := range row.CustomFieldValues {
			if !seen[v.FieldDefinitionID] {
				seen[v.FieldDefinitionID] = true
				ids = append(ids, v.FieldDefinitionID)
			}
		}
	}
	names, err := fieldNames(r.db.WithContext(ctx), ids)
	if err != nil {
		return nil, err
	}

	out := make([]models.Patient, 0, len(rows))
	emitted := make(map[int64]bool, len(rows))
	for _, row := range rows {
		if emitted[row.ID] {
			continue
		}
		emitted[row.ID] = true
		out = append(out, toPatient(row, names))
	}
	return out, nil
}

func (r *Repository) GetPatient(ctx context.Context, id int64) (models.Patient, error) {
	var row patientModel
	if err := withChildren(r.db.WithContext(ctx)).First(&row, "id = ?", id).Error; err != nil {
		return models.Patient{}, translate(err)
	}
	out, err := r.buildPatients(ctx, []patientModel{row})
	if err != nil {
		return models.Patient{}, err
	}
	return out[0], nil
}

func (r *Repository) ListPatients(ctx context.Context, q PatientQuery) ([]models.Patient, error) {
	var rows []patientModel
	db := q.scope(r.db.WithContext(ctx).Model(&patientModel{}))
	if err := withChildren(db).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing patients: %w", err)
	}
	return r.buildPatients(ctx, rows)
}

// CreatePatient inserts the patient and every submitted child in one
// transaction.
func (r *Repository) CreatePatient(ctx context.Context, w PatientWrite) (models.Patient, error) {
	row := patientModel{
		Status:           StatusInquiry,
		AdditionalFields: datatypes.JSON(emptyJSONList),
	}
	w.apply(&row)

	err := r.transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&row).Error; err != nil {
			return fmt.Errorf("inserting patient: %w", err)
		}
		return writeChildren(tx, row.ID, w)
	})
	if err != nil {
		return models.Patient{}, err
	}
	return r.GetPatient(ctx, row.ID)
}

// UpdatePatient applies the scalar changes and the submitted child
// collections. Collections left nil in w are not touched.
func (r *Repository) UpdatePatient(ctx context.Context, id int64, w PatientWrite) (models.Patient, error) {
	err := r.transaction(ctx, func(tx *gorm.DB) error {
		var row patientModel
		if err := tx.First(&row, "id = ?", id).Error; err != nil {
			return err
		}
		w.apply(&row)
		if err := tx.Omit(clause.Associations).Save(&row).Error; err != nil {
			return fmt.Errorf("updating patient %d: %w", id, err)
		}
		return writeChildren(tx, id, w)
	})
	if err != nil {
		return models.Patient{}, err
	}
	return r.GetPatient(ctx, id)
}

func (r *Repository) DeletePatient(ctx context.Context, id int64) error {
	return r.transaction(ctx, func(tx *gorm.DB) error {
		for _, child := range []interface{}{&addressModel{}, &isiScoreModel{}, &customFieldValueModel{}} {
			if err := tx.Where("patient_id = ?", id).Delete(child).Error; err != nil {
				return fmt.Errorf("deleting children of patient %d: %w", id, err)
			}
		}
		res := tx.Where("id = ?", id).Delete(&patientModel{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// writeChildren replaces addresses and ISI scores and merges custom field
// values for every collection present in w.
func writeChildren(tx *gorm.DB, patientID int64, w PatientWrite) error {
	if w.Addresses != nil {
		if err := tx.Where("patient_id = ?", patientID).Delete(&addressModel{}).Error; err != nil {
			return fmt.Errorf("clearing addresses: %w", err)
		}
		if len(*w.Addresses) > 0 {
			rows := make([]addressModel, 0, len(*w.Addresses))
			for _, a := range *w.Addresses {
				rows = append(rows, a.row(patientID))
			}
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("inserting addresses: %w", err)
			}
		}
	}

	if w.ISIScores != nil {
		if err := tx.Where("patient_id = ?", patientID).Delete(&isiScoreModel{}).Error; err != nil {
			return fmt.Errorf("clearing isi scores: %w", err)
		}
		if len(*w.ISIScores) > 0 {
			rows := make([]isiScoreModel, 0, len(*w.ISIScores))
			for _, s := range *w.ISIScores {
				rows = append(rows, s.row(patientID))
			}
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("inserting isi scores: %w", err)
			}
		}
	}

	if w.CustomFieldValues != nil {
		if err := checkFieldDefinitions(tx, *w.CustomFieldValues); err != nil {
			return err
		}
		if err := mergeCustomFieldValues(tx, patientID, *w.CustomFieldValues); err != nil {
			return err
		}
	}
	return nil
}

func checkFieldDefinitions(tx *gorm.DB, values []CustomFieldValueFields) error {
	if len(values) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(values))
	for _, v := range values {
		ids = append(ids, v.FieldDefinitionID)
	}
	var found []int64
	if err := tx.Model(&customFieldModel{}).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
		return fmt.Errorf("checking custom fields: %w", err)
	}
	known := make(map[int64]bool, len(found))
	for _, id := range found {
		known[id] = true
	}

	nested := make([]FieldErrors, len(values))
	failed := false
	for i, v := range values {
		nested[i] = FieldErrors{}
		if !known[v.FieldDefinitionID] {
			nested[i].add("field_definition", msgMissingPK(v.FieldDefinitionID))
			failed = true
		}
	}
	if failed {
		return &ValidationError{Fields: FieldErrors{"custom_field_values": nested}}
	}
	return nil
}

// mergeCustomFieldValues keys the stored values on field definition: matching
// rows are updated in place, new keys are inserted and the rest removed.
func mergeCustomFieldValues(tx *gorm.DB, patientID int64, values []CustomFieldValueFields) error {
	var existing []customFieldValueModel
	if err := tx.Where("patient_id = ?", patientID).Find(&existing).Error; err != nil {
		return fmt.Errorf("loading custom field values: %w", err)
	}
	byField := make(map[int64]customFieldValueModel, len(existing))
	for _, row := range existing {
		byField[row.FieldDefinitionID] = row
	}
	submitted := make(map[int64]bool, len(values))
	for _, v := range values {
		submitted[v.FieldDefinitionID] = true
	}

	var stale []int64
	for _, row := range existing {
		if !submitted[row.FieldDefinitionID] {
			stale = append(stale, row.ID)
		}
	}
	if len(stale) > 0 {
		if err := tx.Where("id IN ?", stale).Delete(&customFieldValueModel{}).Error; err != nil {
			return fmt.Errorf("removing custom field values: %w", err)
		}
	}

	var inserts []customFieldValueModel
	for _, v := range values {
		current, ok := byField[v.FieldDefinitionID]
		if !ok {
			inserts = append(inserts, customFieldValueModel{
				PatientID:         patientID,
				FieldDefinitionID: v.FieldDefinitionID,
				Value:             v.Value,
			})
			continue
		}
		if current.Value == v.Value {
			continue
		}
		if err := tx.Model(&customFieldValueModel{}).Where("id = ?", current.ID).Update("value", v.Value).Error; err != nil {
			return fmt.Errorf("updating custom field value %d: %w", current.ID, err)
		}
	}
	if len(inserts) > 0 {
		if err := tx.Create(&inserts).Error; err != nil {
			return fmt.Errorf("inserting custom field values: %w", err)
		}
	}
	return nil
}

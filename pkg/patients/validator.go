package patients

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/stellar-sleep/patients-api/pkg/common/models"
	"gorm.io/datatypes"
)

const dateLayout = "2006-01-02"

const (
	msgRequired   = "This field is required."
	msgBlank      = "This field may not be blank."
	msgNull       = "This field may not be null."
	msgDateFormat = "Date has wrong format. Use one of these formats instead: YYYY-MM-DD."
	msgUniquePair = "The fields patient, field_definition must make a unique set."
	msgDuplicate  = "This custom field appears more than once."
)

func msgMaxLength(n int) string {
	return fmt.Sprintf("Ensure this field has no more than %d characters.", n)
}

func msgInvalidChoice(v string) string {
	return fmt.Sprintf("%q is not a valid choice.", v)
}

func msgMissingPK(id int64) string {
	return fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", id)
}

// FieldErrors maps a field name to either a list of messages or, for nested
// collections, a list of per-item FieldErrors aligned with the payload.
type FieldErrors map[string]interface{}

func (fe FieldErrors) add(field, msg string) {
	list, _ := fe[field].([]string)
	fe[field] = append(list, msg)
}

type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "validation failed: " + strings.Join(keys, ", ")
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func newValidationError(field, msg string) *ValidationError {
	fe := FieldErrors{}
	fe.add(field, msg)
	return &ValidationError{Fields: fe}
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// text validates a trimmed string field. It returns nil when the value is
// absent or invalid; the errors end up in fe.
func text(fe FieldErrors, field string, v *string, maxLen int, required, allowBlank bool) *string {
	if v == nil {
		if required {
			fe.add(field, msgRequired)
		}
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" && !allowBlank {
		fe.add(field, msgBlank)
		return nil
	}
	if len([]rune(s)) > maxLen {
		fe.add(field, msgMaxLength(maxLen))
		return nil
	}
	return &s
}

// nonNull rejects an explicit null. Absent keys come back as nil with ok set.
func nonNull(fe FieldErrors, field string, v models.Nullable[string]) (*string, bool) {
	if v.Set && !v.Valid {
		fe.add(field, msgNull)
		return nil, false
	}
	return v.Ptr(), true
}

func date(fe FieldErrors, field string, v *string, required bool) *time.Time {
	if v == nil {
		if required {
			fe.add(field, msgRequired)
		}
		return nil
	}
	t, err := parseDate(*v)
	if err != nil {
		fe.add(field, msgDateFormat)
		return nil
	}
	return &t
}

// validatePatient turns a patient payload into a PatientWrite. Full writes
// (create and PUT) require the identifying fields; partial writes require
// nothing. Nested items are always validated as complete records.
func validatePatient(in models.PatientInput, partial bool) (PatientWrite, error) {
	fe := FieldErrors{}
	var w PatientWrite

	if v, ok := nonNull(fe, "first_name", in.FirstName); ok {
		w.FirstName = text(fe, "first_name", v, nameMaxLength, !partial, false)
	}
	if v, ok := nonNull(fe, "middle_name", in.MiddleName); ok {
		w.MiddleName = text(fe, "middle_name", v, nameMaxLength, false, true)
	}
	if v, ok := nonNull(fe, "last_name", in.LastName); ok {
		w.LastName = text(fe, "last_name", v, nameMaxLength, !partial, false)
	}
	if v, ok := nonNull(fe, "date_of_birth", in.DateOfBirth); ok {
		w.DateOfBirth = date(fe, "date_of_birth", v, !partial)
	}

	if v, ok := nonNull(fe, "status", in.Status); ok && v != nil {
		if validStatus(*v) {
			w.Status = v
		} else {
			fe.add("status", msgInvalidChoice(*v))
		}
	}

	if in.LastVisit.Set {
		w.LastVisitSet = true
		if in.LastVisit.Valid {
			w.LastVisit = date(fe, "last_visit", &in.LastVisit.Value, false)
		}
	}

	w.ReadyToDischarge = in.ReadyToDischarge

	if len(in.AdditionalFields) > 0 {
		raw := strings.TrimSpace(string(in.AdditionalFields))
		switch {
		case raw == "null":
			fe.add("additional_fields", msgNull)
		case !json.Valid([]byte(raw)):
			fe.add("additional_fields", "Value must be valid JSON.")
		default:
			w.AdditionalFields = datatypes.JSON(raw)
		}
	}

	if in.Addresses != nil {
		items := make([]AddressFields, 0, len(*in.Addresses))
		nested := make([]FieldErrors, len(*in.Addresses))
		failed := false
		for i, a := range *in.Addresses {
			fields, itemErrs := validateAddress(a, nil)
			nested[i] = itemErrs
			if len(itemErrs) > 0 {
				failed = true
				continue
			}
			items = append(items, fields)
		}
		if failed {
			fe["addresses"] = nested
		}
		w.Addresses = &items
	}

	if in.ISIScores != nil {
		items := make([]ISIScoreFields, 0, len(*in.ISIScores))
		nested := make([]FieldErrors, len(*in.ISIScores))
		failed := false
		for i, s := range *in.ISIScores {
			fields, itemErrs := validateISIScore(s, nil)
			nested[i] = itemErrs
			if len(itemErrs) > 0 {
				failed = true
				continue
			}
			items = append(items, fields)
		}
		if failed {
			fe["isi_scores"] = nested
		}
		w.ISIScores = &items
	}

	if in.CustomFieldValues != nil {
		items := make([]CustomFieldValueFields, 0, len(*in.CustomFieldValues))
		nested := make([]FieldErrors, len(*in.CustomFieldValues))
		seen := make(map[int64]bool)
		failed := false
		for i, v := range *in.CustomFieldValues {
			fields, itemErrs := validateCustomFieldValue(v, nil)
			if len(itemErrs) == 0 && seen[fields.FieldDefinitionID] {
				itemErrs.add("field_definition", msgDuplicate)
			}
			nested[i] = itemErrs
			if len(itemErrs) > 0 {
				failed = true
				continue
			}
			seen[fields.FieldDefinitionID] = true
			items = append(items, fields)
		}
		if failed {
			fe["custom_field_values"] = nested
		}
		w.CustomFieldValues = &items
	}

	if len(fe) > 0 {
		return PatientWrite{}, &ValidationError{Fields: fe}
	}
	return w, nil
}

// validateAddress checks an address payload. With a nil base every field is
// required; otherwise absent keys keep the base values.
func validateAddress(in models.AddressInput, base *AddressFields) (AddressFields, FieldErrors) {
	fe := FieldErrors{}
	required := base == nil
	var out AddressFields
	if base != nil {
		out = *base
	}

	if v := text(fe, "address_line1", in.AddressLine1, addressLineMaxLength, required, false); v != nil {
		out.AddressLine1 = *v
	}
	if in.AddressLine2.Set {
		out.AddressLine2 = nil
		if in.AddressLine2.Valid {
			out.AddressLine2 = text(fe, "address_line2", &in.AddressLine2.Value, addressLineMaxLength, false, true)
		}
	}
	if v := text(fe, "city", in.City, cityMaxLength, required, false); v != nil {
		out.City = *v
	}
	if v := text(fe, "state", in.State, stateMaxLength, required, false); v != nil {
		out.State = *v
	}
	if v := text(fe, "postal_code", in.PostalCode, postalCodeMaxLength, required, false); v != nil {
		out.PostalCode = *v
	}
	return out, fe
}

func validateISIScore(in models.ISIScoreInput, base *ISIScoreFields) (ISIScoreFields, FieldErrors) {
	fe := FieldErrors{}
	required := base == nil
	var out ISIScoreFields
	if base != nil {
		out = *base
	}

	if in.Score != nil {
		out.Score = *in.Score
	} else if required {
		fe.add("score", msgRequired)
	}
	if d := date(fe, "date", in.Date, required); d != nil {
		out.Date = *d
	}
	return out, fe
}

func validateCustomField(in models.CustomFieldInput, base *string) (string, FieldErrors) {
	fe := FieldErrors{}
	out := ""
	if base != nil {
		out = *base
	}
	if v := text(fe, "name", in.Name, fieldNameMaxLength, base == nil, false); v != nil {
		out = *v
	}
	return out, fe
}

func validateCustomFieldValue(in models.CustomFieldValueInput, base *CustomFieldValueFields) (CustomFieldValueFields, FieldErrors) {
	fe := FieldErrors{}
	var out CustomFieldValueFields
	if base != nil {
		out = *base
	}

	if in.FieldDefinition != nil {
		out.FieldDefinitionID = *in.FieldDefinition
	} else if base == nil {
		fe.add("field_definition", msgRequired)
	}
	if in.Value != nil {
		out.Value = *in.Value
	}
	return out, fe
}

// requirePatient resolves the owning patient for a standalone child write.
func requirePatient(fe FieldErrors, in *int64, base *int64) int64 {
	if in != nil {
		return *in
	}
	if base != nil {
		return *base
	}
	fe.add("patient", msgRequired)
	return 0
}

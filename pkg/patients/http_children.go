package patients

import (
	"net/http"

	"github.com/stellar-sleep/patients-api/pkg/common/models"
)

func (h *Handler) handleListAddresses(w http.ResponseWriter, r *http.Request) {
	patientID, err := QueryID(r.URL.Query(), "patient")
	if err != nil {
		writeError(w, r, err)
		return
	}
	addresses, err := h.service.ListAddresses(r.Context(), patientID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, addresses)
}

func (h *Handler) handleCreateAddress(w http.ResponseWriter, r *http.Request) {
	var in models.AddressInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	address, err := h.service.CreateAddress(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, address)
}

func (h *Handler) handleGetAddress(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	address, err := h.service.GetAddress(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, address)
}

func (h *Handler) handleUpdateAddress(partial bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var in models.AddressInput
		if err := decodeBody(r, &in); err != nil {
			writeError(w, r, err)
			return
		}
		address, err := h.service.UpdateAddress(r.Context(), id, in, partial)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, address)
	}
}

func (h *Handler) handleDeleteAddress(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteAddress(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListISIScores(w http.ResponseWriter, r *http.Request) {
	var filter ISIScoreFilter
	var err error
	if filter.PatientID, err = QueryID(r.URL.Query(), "patient"); err != nil {
		writeError(w, r, err)
		return
	}
	if filter.Date, err = QueryDate(r.URL.Query(), "date"); err != nil {
		writeError(w, r, err)
		return
	}
	scores, err := h.service.ListISIScores(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scores)
}

func (h *Handler) handleCreateISIScore(w http.ResponseWriter, r *http.Request) {
	var in models.ISIScoreInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	score, err := h.service.CreateISIScore(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, score)
}

func (h *Handler) handleGetISIScore(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	score, err := h.service.GetISIScore(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

func (h *Handler) handleUpdateISIScore(partial bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var in models.ISIScoreInput
		if err := decodeBody(r, &in); err != nil {
			writeError(w, r, err)
			return
		}
		score, err := h.service.UpdateISIScore(r.Context(), id, in, partial)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, score)
	}
}

func (h *Handler) handleDeleteISIScore(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteISIScore(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListCustomFields(w http.ResponseWriter, r *http.Request) {
	fields, err := h.service.ListCustomFields(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fields)
}

func (h *Handler) handleCreateCustomField(w http.ResponseWriter, r *http.Request) {
	var in models.CustomFieldInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	field, err := h.service.CreateCustomField(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, field)
}

func (h *Handler) handleGetCustomField(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	field, err := h.service.GetCustomField(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, field)
}

func (h *Handler) handleUpdateCustomField(partial bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var in models.CustomFieldInput
		if err := decodeBody(r, &in); err != nil {
			writeError(w, r, err)
			return
		}
		field, err := h.service.UpdateCustomField(r.Context(), id, in, partial)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, field)
	}
}

func (h *Handler) handleDeleteCustomField(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteCustomField(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListCustomFieldValues(w http.ResponseWriter, r *http.Request) {
	var filter CustomFieldValueFilter
	var err error
	if filter.PatientID, err = QueryID(r.URL.Query(), "patient"); err != nil {
		writeError(w, r, err)
		return
	}
	if filter.FieldDefinitionID, err = QueryID(r.URL.Query(), "field_definition"); err != nil {
		writeError(w, r, err)
		return
	}
	values, err := h.service.ListCustomFieldValues(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, values)
}

func (h *Handler) handleCreateCustomFieldValue(w http.ResponseWriter, r *http.Request) {
	var in models.CustomFieldValueInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	value, err := h.service.CreateCustomFieldValue(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, value)
}

func (h *Handler) handleGetCustomFieldValue(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	value, err := h.service.GetCustomFieldValue(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, value)
}

func (h *Handler) handleUpdateCustomFieldValue(partial bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var in models.CustomFieldValueInput
		if err := decodeBody(r, &in); err != nil {
			writeError(w, r, err)
			return
		}
		value, err := h.service.UpdateCustomFieldValue(r.Context(), id, in, partial)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, value)
	}
}

func (h *Handler) handleDeleteCustomFieldValue(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteCustomFieldValue(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

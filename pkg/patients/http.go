package patients

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/stellar-sleep/patients-api/pkg/common/logger"
	"github.com/stellar-sleep/patients-api/pkg/common/models"
)

const idPattern = "{id:[0-9]+}"

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/patients/", h.handleListPatients).Methods(http.MethodGet)
	r.HandleFunc("/patients/", h.handleCreatePatient).Methods(http.MethodPost)
	r.HandleFunc("/patients/"+idPattern+"/", h.handleGetPatient).Methods(http.MethodGet)
	r.HandleFunc("/patients/"+idPattern+"/", h.handleUpdatePatient(false)).Methods(http.MethodPut)
	r.HandleFunc("/patients/"+idPattern+"/", h.handleUpdatePatient(true)).Methods(http.MethodPatch)
	r.HandleFunc("/patients/"+idPattern+"/", h.handleDeletePatient).Methods(http.MethodDelete)

	r.HandleFunc("/addresses/", h.handleListAddresses).Methods(http.MethodGet)
	r.HandleFunc("/addresses/", h.handleCreateAddress).Methods(http.MethodPost)
	r.HandleFunc("/addresses/"+idPattern+"/", h.handleGetAddress).Methods(http.MethodGet)
	r.HandleFunc("/addresses/"+idPattern+"/", h.handleUpdateAddress(false)).Methods(http.MethodPut)
	r.HandleFunc("/addresses/"+idPattern+"/", h.handleUpdateAddress(true)).Methods(http.MethodPatch)
	r.HandleFunc("/addresses/"+idPattern+"/", h.handleDeleteAddress).Methods(http.MethodDelete)

	r.HandleFunc("/isi-scores/", h.handleListISIScores).Methods(http.MethodGet)
	r.HandleFunc("/isi-scores/", h.handleCreateISIScore).Methods(http.MethodPost)
	r.HandleFunc("/isi-scores/"+idPattern+"/", h.handleGetISIScore).Methods(http.MethodGet)
	r.HandleFunc("/isi-scores/"+idPattern+"/", h.handleUpdateISIScore(false)).Methods(http.MethodPut)
	r.HandleFunc("/isi-scores/"+idPattern+"/", h.handleUpdateISIScore(true)).Methods(http.MethodPatch)
	r.HandleFunc("/isi-scores/"+idPattern+"/", h.handleDeleteISIScore).Methods(http.MethodDelete)

	r.HandleFunc("/custom-fields/", h.handleListCustomFields).Methods(http.MethodGet)
	r.HandleFunc("/custom-fields/", h.handleCreateCustomField).Methods(http.MethodPost)
	r.HandleFunc("/custom-fields/"+idPattern+"/", h.handleGetCustomField).Methods(http.MethodGet)
	r.HandleFunc("/custom-fields/"+idPattern+"/", h.handleUpdateCustomField(false)).Methods(http.MethodPut)
	r.HandleFunc("/custom-fields/"+idPattern+"/", h.handleUpdateCustomField(true)).Methods(http.MethodPatch)
	r.HandleFunc("/custom-fields/"+idPattern+"/", h.handleDeleteCustomField).Methods(http.MethodDelete)

	r.HandleFunc("/custom-field-values/", h.handleListCustomFieldValues).Methods(http.MethodGet)
	r.HandleFunc("/custom-field-values/", h.handleCreateCustomFieldValue).Methods(http.MethodPost)
	r.HandleFunc("/custom-field-values/"+idPattern+"/", h.handleGetCustomFieldValue).Methods(http.MethodGet)
	r.HandleFunc("/custom-field-values/"+idPattern+"/", h.handleUpdateCustomFieldValue(false)).Methods(http.MethodPut)
	r.HandleFunc("/custom-field-values/"+idPattern+"/", h.handleUpdateCustomFieldValue(true)).Methods(http.MethodPatch)
	r.HandleFunc("/custom-field-values/"+idPattern+"/", h.handleDeleteCustomFieldValue).Methods(http.MethodDelete)
}

func (h *Handler) handleListPatients(w http.ResponseWriter, r *http.Request) {
	q, err := ParsePatientQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	patients, err := h.service.ListPatients(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, patients)
}

func (h *Handler) handleCreatePatient(w http.ResponseWriter, r *http.Request) {
	var in models.PatientInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	patient, err := h.service.CreatePatient(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, patient)
}

func (h *Handler) handleGetPatient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	patient, err := h.service.GetPatient(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, patient)
}

func (h *Handler) handleUpdatePatient(partial bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var in models.PatientInput
		if err := decodeBody(r, &in); err != nil {
			writeError(w, r, err)
			return
		}
		patient, err := h.service.UpdatePatient(r.Context(), id, in, partial)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, patient)
	}
}

func (h *Handler) handleDeletePatient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeletePatient(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// NotFound answers unmatched routes in the same shape as missing records.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, detail("Not found."))
}

type parseError struct {
	err error
}

func (e *parseError) Error() string {
	return "JSON parse error - " + e.err.Error()
}

var errTrailingData = errors.New("unexpected data after the JSON object")

// decodeBody reads exactly one JSON object. An empty body decodes as {}. A
// value of the wrong type is reported against its field, and inside a nested
// collection against the offending item.
func decodeBody(r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return &parseError{err: err}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return typeError(body, dst, typeErr)
		}
		return &parseError{err: err}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errTrailingData
		}
		return &parseError{err: err}
	}
	return nil
}

func msgIncorrectType(e *json.UnmarshalTypeError) string {
	return fmt.Sprintf("Incorrect type. Expected %s, received %s.", e.Type, e.Value)
}

// typeError builds the field errors for a mistyped value. For a nested field
// such as addresses.city every item of the collection is decoded on its own
// so the errors line up with the submitted list.
func typeError(body []byte, dst interface{}, typeErr *json.UnmarshalTypeError) error {
	path := strings.SplitN(typeErr.Field, ".", 2)
	flat := newValidationError(path[0], msgIncorrectType(typeErr))
	if len(path) == 1 {
		return flat
	}
	elem, ok := collectionElem(dst, path[0])
	if !ok {
		return flat
	}

	var top map[string]json.RawMessage
	var items []json.RawMessage
	if json.Unmarshal(body, &top) != nil || json.Unmarshal(top[path[0]], &items) != nil {
		return flat
	}
	nested := make([]FieldErrors, len(items))
	failed := false
	for i, item := range items {
		nested[i] = FieldErrors{}
		var itemErr *json.UnmarshalTypeError
		if err := json.Unmarshal(item, reflect.New(elem).Interface()); errors.As(err, &itemErr) {
			field := strings.SplitN(itemErr.Field, ".", 2)[0]
			if field == "" {
				field = "non_field_errors"
			}
			nested[i].add(field, msgIncorrectType(itemErr))
			failed = true
		}
	}
	if !failed {
		return flat
	}
	return &ValidationError{Fields: FieldErrors{path[0]: nested}}
}

// collectionElem returns the item type of the slice field tagged name on the
// struct dst points to.
func collectionElem(dst interface{}, name string) (reflect.Type, bool) {
	t := reflect.TypeOf(dst)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, false
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if strings.Split(f.Tag.Get("json"), ",")[0] != name {
			continue
		}
		ft := f.Type
		for ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		if ft.Kind() != reflect.Slice {
			return nil, false
		}
		return ft.Elem(), true
	}
	return nil, false
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusNotFound, detail("Not found."))
		return 0, false
	}
	return id, true
}

func detail(msg string) map[string]string {
	return map[string]string{"detail": msg}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *ValidationError
	var pe *parseError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, ve.Fields)
	case errors.As(err, &pe):
		writeJSON(w, http.StatusBadRequest, detail(pe.Error()))
	case errors.As(err, &tooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, detail("Request body is too large."))
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, detail("Not found."))
	case errors.Is(err, ErrDuplicate):
		writeJSON(w, http.StatusBadRequest, FieldErrors{"non_field_errors": []string{msgUniquePair}})
	default:
		logger.FromContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("Request failed")
		writeJSON(w, http.StatusInternalServerError, detail("A server error occurred."))
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Log.WithError(err).Error("failed to encode response")
	}
}

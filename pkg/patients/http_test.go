package patients

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stellar-sleep/patients-api/pkg/common/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()
	svc, _, _ := newTestService(t)
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(NotFound)
	NewHandler(svc).Register(router.PathPrefix("/api").Subrouter())
	return router
}

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateAndFetchJaneSmith(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/patients/", `{
		"first_name": "Jane",
		"last_name": "Smith",
		"date_of_birth": "1990-01-01",
		"status": "active",
		"addresses": [{"address_line1": "100 Main St", "city": "Los Angeles", "state": "CA", "postal_code": "90001"}]
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var created models.Patient
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Len(t, created.Addresses, 1)

	rec = do(t, router, http.MethodGet, fmt.Sprintf("/api/patients/%d/", created.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Jane", body["first_name"])
	assert.Equal(t, "1990-01-01", body["date_of_birth"])
	assert.Nil(t, body["last_visit"])
	addresses := body["addresses"].([]interface{})
	require.Len(t, addresses, 1)
	address := addresses[0].(map[string]interface{})
	assert.Equal(t, "Los Angeles", address["city"])
	assert.NotContains(t, address, "patient")
	assert.Equal(t, []interface{}{}, body["isi_scores"])

	rec = do(t, router, http.MethodGet, "/api/addresses/?patient="+fmt.Sprint(created.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), fmt.Sprintf(`"patient":%d`, created.ID))
}

func TestValidationErrorShape(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/patients/", `{
		"first_name": "Jane",
		"date_of_birth": "1990-01-01",
		"addresses": [{"city": "Austin"}]
	}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []interface{}{msgRequired}, body["last_name"])
	nested := body["addresses"].([]interface{})
	require.Len(t, nested, 1)
	assert.Contains(t, nested[0], "address_line1")
}

func TestMalformedAndMistypedBodies(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/patients/", `{"first_name": `)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "JSON parse error")

	rec = do(t, router, http.MethodPost, "/api/patients/", `{"first_name": 12}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "first_name")

	rec = do(t, router, http.MethodPost, "/api/custom-fields/", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"name": ["This field is required."]}`, rec.Body.String())

	valid := `{"first_name": "Ann", "last_name": "Lee", "date_of_birth": "1990-01-01"}`
	for _, body := range []string{valid + ` garbage`, valid + `{}`} {
		rec = do(t, router, http.MethodPost, "/api/patients/", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Contains(t, rec.Body.String(), "JSON parse error")
	}
	rec = do(t, router, http.MethodGet, "/api/patients/", "")
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/api/patients/", `{"status": null}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":["This field may not be null."]`)
}

func TestNestedTypeErrorsAlignWithItems(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/patients/", `{
		"first_name": "Jane",
		"last_name": "Smith",
		"date_of_birth": "1990-01-01",
		"addresses": [
			{"address_line1": "100 Main St", "city": "Austin", "state": "TX", "postal_code": "73301"},
			{"address_line1": "9 Elm St", "city": 5, "state": "TX", "postal_code": "73301"}
		]
	}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"addresses": [{}, {"city": ["Incorrect type. Expected string, received number."]}]}`, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/api/patients/", `{"isi_scores": [{"score": "high", "date": "2024-01-01"}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"isi_scores": [{"score": ["Incorrect type. Expected int, received string."]}]}`, rec.Body.String())
}

func TestNotFoundResponses(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/api/patients/41/", "/api/isi-scores/41/", "/api/nowhere/"} {
		rec := do(t, router, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.JSONEq(t, `{"detail": "Not found."}`, rec.Body.String())
	}

	rec := do(t, router, http.MethodDelete, "/api/patients/41/", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPatchAndDeleteOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/patients/", janeSmith)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Patient
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	path := fmt.Sprintf("/api/patients/%d/", created.ID)

	rec = do(t, router, http.MethodPatch, path, `{"status": "onboarding", "addresses": []}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var patched models.Patient
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &patched))
	assert.Equal(t, "onboarding", patched.Status)
	assert.Empty(t, patched.Addresses)
	assert.Len(t, patched.ISIScores, 3)

	rec = do(t, router, http.MethodPut, path, `{"status": "active"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/patients/?status=onboarding&ordering=-latest_isi_score", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []models.Patient
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)

	rec = do(t, router, http.MethodGet, "/api/patients/?status=asleep", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/api/isi-scores/?patient="+fmt.Sprint(created.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestCustomFieldEndpoints(t *testing.T) {
	router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/custom-fields/", `{"name": "Chronotype"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var field models.CustomField
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &field))

	rec = do(t, router, http.MethodPost, "/api/custom-fields/", `{"name": "Chronotype"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"name": ["custom field with this name already exists."]}`, rec.Body.String())

	rec = do(t, router, http.MethodPost, "/api/patients/", janeSmith)
	require.Equal(t, http.StatusCreated, rec.Code)
	var patient models.Patient
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &patient))

	valueBody := fmt.Sprintf(`{"patient": %d, "field_definition": %d, "value": "owl"}`, patient.ID, field.ID)
	rec = do(t, router, http.MethodPost, "/api/custom-field-values/", valueBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"field_name":"Chronotype"`)

	rec = do(t, router, http.MethodPost, "/api/custom-field-values/", valueBody)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"non_field_errors": ["The fields patient, field_definition must make a unique set."]}`, rec.Body.String())

	rec = do(t, router, http.MethodGet, fmt.Sprintf("/api/custom-field-values/?field_definition=%d", field.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var values []models.CustomFieldValue
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &values))
	require.Len(t, values, 1)

	rec = do(t, router, http.MethodGet, "/api/custom-field-values/?patient=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/custom-fields/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, fmt.Sprintf(`[{"id": %d, "name": "Chronotype"}]`, field.ID), rec.Body.String())
}

package patients

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/stellar-sleep/patients-api/pkg/common/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrdering(t *testing.T) {
	tests := []struct {
		raw  string
		want []OrderTerm
	}{
		{"", defaultOrdering},
		{"bogus", defaultOrdering},
		{"-last_visit", []OrderTerm{{Key: "last_visit", Desc: true}}},
		{"status, -addresses__city,nope", []OrderTerm{{Key: "status"}, {Key: "addresses__city", Desc: true}}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, parseOrdering(tt.raw))
		})
	}
}

func TestParsePatientQueryRejectsBadValues(t *testing.T) {
	_, err := ParsePatientQuery(url.Values{"status": {"asleep"}, "last_visit_after": {"yesterday"}})

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Fields, "status")
	assert.Contains(t, ve.Fields, "last_visit_after")
}

func TestContainsPatternEscapesWildcards(t *testing.T) {
	assert.Equal(t, `%100\%\_ok%`, containsPattern("100%_OK"))
}

type listFixture struct {
	svc   *Service
	names map[int64]string
}

func (f listFixture) list(t *testing.T, query string) []string {
	t.Helper()
	values, err := url.ParseQuery(query)
	require.NoError(t, err)
	q, err := ParsePatientQuery(values)
	require.NoError(t, err)
	patients, err := f.svc.ListPatients(context.Background(), q)
	require.NoError(t, err)
	out := make([]string, 0, len(patients))
	for _, p := range patients {
		out = append(out, p.FirstName+" "+p.LastName)
	}
	return out
}

func newListFixture(t *testing.T) listFixture {
	t.Helper()
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	payloads := []string{
		`{"first_name": "Jane", "last_name": "Smith", "date_of_birth": "1990-01-01", "status": "active",
		  "last_visit": "2024-03-01",
		  "addresses": [{"address_line1": "1 A", "city": "Austin", "state": "TX", "postal_code": "1"}],
		  "isi_scores": [{"score": 20, "date": "2024-01-01"}, {"score": 5, "date": "2024-02-01"}]}`,
		`{"first_name": "John", "last_name": "Smith", "date_of_birth": "1985-01-01", "status": "inquiry",
		  "last_visit": "2024-01-15",
		  "addresses": [{"address_line1": "2 B", "city": "Austin", "state": "CA", "postal_code": "2"},
		                {"address_line1": "3 C", "city": "Dallas", "state": "TX", "postal_code": "3"}],
		  "isi_scores": [{"score": 12, "date": "2024-01-15"}]}`,
		`{"first_name": "Ada", "last_name": "Jones", "date_of_birth": "1970-01-01", "status": "active",
		  "addresses": [{"address_line1": "4 D", "city": "Boston", "state": "MA", "postal_code": "4"},
		                {"address_line1": "5 E", "city": "Boston", "state": "MA", "postal_code": "5"}]}`,
		`{"first_name": "Janet", "last_name": "Ortiz", "date_of_birth": "2000-01-01", "status": "churned"}`,
	}
	names := make(map[int64]string)
	for _, body := range payloads {
		p, err := svc.CreatePatient(ctx, decode[models.PatientInput](t, body))
		require.NoError(t, err)
		names[p.ID] = p.FirstName
	}
	return listFixture{svc: svc, names: names}
}

func TestListPatientsFilters(t *testing.T) {
	f := newListFixture(t)

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"Ada Jones", "Jane Smith", "Janet Ortiz", "John Smith"}},
		{"status=inquiry", []string{"John Smith"}},
		{"status=active&search=Jane", []string{"Jane Smith"}},
		{"search=smith", []string{"Jane Smith", "John Smith"}},
		{"search=jan+smi", []string{"Jane Smith"}},
		{"search=jan", []string{"Jane Smith", "Janet Ortiz"}},
		{"city=austin", []string{"Jane Smith", "John Smith"}},
		{"city=austin&state=tx", []string{"Jane Smith"}},
		{"state=ma", []string{"Ada Jones"}},
		{"city=bost", []string{"Ada Jones"}},
		{"last_visit=2024-01-15", []string{"John Smith"}},
		{"last_visit_after=2024-01-15", []string{"Jane Smith", "John Smith"}},
		{"last_visit_after=2024-01-16&last_visit_before=2024-03-01", []string{"Jane Smith"}},
		{"search=50%25", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, f.list(t, tt.query))
		})
	}
}

func TestListPatientsOrdering(t *testing.T) {
	f := newListFixture(t)

	tests := []struct {
		query string
		want  []string
	}{
		{"ordering=latest_isi_score", []string{"Jane Smith", "John Smith", "Ada Jones", "Janet Ortiz"}},
		{"ordering=-latest_isi_score", []string{"John Smith", "Jane Smith", "Ada Jones", "Janet Ortiz"}},
		{"ordering=-isi_scores__score", []string{"John Smith", "Jane Smith", "Ada Jones", "Janet Ortiz"}},
		{"ordering=city", []string{"Jane Smith", "John Smith", "Ada Jones", "Janet Ortiz"}},
		{"ordering=-city,first_name", []string{"Ada Jones", "Jane Smith", "John Smith", "Janet Ortiz"}},
		{"ordering=-date_of_birth", []string{"Janet Ortiz", "Jane Smith", "John Smith", "Ada Jones"}},
		{"ordering=last_visit", []string{"John Smith", "Jane Smith", "Ada Jones", "Janet Ortiz"}},
		{"ordering=last_name,-first_name", []string{"Ada Jones", "Janet Ortiz", "John Smith", "Jane Smith"}},
		{"ordering=unknown", []string{"Ada Jones", "Jane Smith", "Janet Ortiz", "John Smith"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, f.list(t, tt.query))
		})
	}
}

func TestListPatientsReturnsEachPatientOnce(t *testing.T) {
	f := newListFixture(t)

	got := f.list(t, "city=o&ordering=city")
	seen := make(map[string]int)
	for _, name := range got {
		seen[name]++
	}
	for name, n := range seen {
		assert.Equal(t, 1, n, fmt.Sprintf("%s listed %d times", name, n))
	}
	assert.Equal(t, []string{"Ada Jones"}, got)
}

package patients

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	cityOrderExpr  = "(SELECT a.city FROM addresses a WHERE a.patient_id = patients.id ORDER BY a.id LIMIT 1)"
	scoreOrderExpr = "(SELECT s.score FROM isi_scores s WHERE s.patient_id = patients.id ORDER BY s.date DESC, s.id DESC LIMIT 1)"
)

type orderKey struct {
	expr     string
	nullable bool
}

var patientOrderKeys = map[string]orderKey{
	"first_name":        {expr: "patients.first_name"},
	"middle_name":       {expr: "patients.middle_name"},
	"last_name":         {expr: "patients.last_name"},
	"status":            {expr: "patients.status"},
	"date_of_birth":     {expr: "patients.date_of_birth"},
	"last_visit":        {expr: "patients.last_visit", nullable: true},
	"created_at":        {expr: "patients.created_at"},
	"updated_at":        {expr: "patients.updated_at"},
	"city":              {expr: cityOrderExpr, nullable: true},
	"addresses__city":   {expr: cityOrderExpr, nullable: true},
	"latest_isi_score":  {expr: scoreOrderExpr, nullable: true},
	"isi_scores__score": {expr: scoreOrderExpr, nullable: true},
}

type OrderTerm struct {
	Key  string
	Desc bool
}

var defaultOrdering = []OrderTerm{{Key: "first_name"}, {Key: "last_name"}}

// PatientQuery is the parsed form of the patient list query string.
type PatientQuery struct {
	Status          string
	City            string
	State           string
	LastVisit       *time.Time
	LastVisitAfter  *time.Time
	LastVisitBefore *time.Time
	Search          []string
	Ordering        []OrderTerm
}

func ParsePatientQuery(values url.Values) (PatientQuery, error) {
	fe := FieldErrors{}
	q := PatientQuery{
		City:   strings.TrimSpace(values.Get("city")),
		State:  strings.TrimSpace(values.Get("state")),
		Search: strings.Fields(values.Get("search")),
	}

	if status := values.Get("status"); status != "" {
		if !validStatus(status) {
			fe.add("status", fmt.Sprintf("Select a valid choice. %s is not one of the available choices.", status))
		}
		q.Status = status
	}

	q.LastVisit = queryDate(fe, values, "last_visit")
	q.LastVisitAfter = queryDate(fe, values, "last_visit_after")
	q.LastVisitBefore = queryDate(fe, values, "last_visit_before")
	q.Ordering = parseOrdering(values.Get("ordering"))

	if len(fe) > 0 {
		return PatientQuery{}, &ValidationError{Fields: fe}
	}
	return q, nil
}

func queryDate(fe FieldErrors, values url.Values, name string) *time.Time {
	raw := values.Get(name)
	if raw == "" {
		return nil
	}
	t, err := parseDate(raw)
	if err != nil {
		fe.add(name, "Enter a valid date.")
		return nil
	}
	return &t
}

// parseOrdering keeps the recognised keys in request order. An ordering with
// no recognised key falls back to the default.
func parseOrdering(raw string) []OrderTerm {
	var terms []OrderTerm
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		term := OrderTerm{Key: strings.TrimPrefix(part, "-"), Desc: strings.HasPrefix(part, "-")}
		if _, ok := patientOrderKeys[term.Key]; ok {
			terms = append(terms, term)
		}
	}
	if len(terms) == 0 {
		return defaultOrdering
	}
	return terms
}

// QueryID parses an integer id filter such as ?patient=3.
func QueryID(values url.Values, name string) (*int64, error) {
	raw := values.Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, newValidationError(name, "Select a valid choice. That choice is not one of the available choices.")
	}
	return &id, nil
}

func QueryDate(values url.Values, name string) (*time.Time, error) {
	fe := FieldErrors{}
	t := queryDate(fe, values, name)
	if len(fe) > 0 {
		return nil, &ValidationError{Fields: fe}
	}
	return t, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}

// scope applies filters, search and ordering. Child predicates are
// correlated subqueries, so each patient row appears at most once.
func (q PatientQuery) scope(db *gorm.DB) *gorm.DB {
	if q.Status != "" {
		db = db.Where("patients.status = ?", q.Status)
	}

	if q.City != "" || q.State != "" {
		sql := "EXISTS (SELECT 1 FROM addresses a WHERE a.patient_id = patients.id"
		var args []interface{}
		if q.City != "" {
			sql += ` AND LOWER(a.city) LIKE ? ESCAPE '\'`
			args = append(args, containsPattern(q.City))
		}
		if q.State != "" {
			sql += ` AND LOWER(a.state) LIKE ? ESCAPE '\'`
			args = append(args, containsPattern(q.State))
		}
		db = db.Where(sql+")", args...)
	}

	if q.LastVisit != nil {
		db = db.Where("patients.last_visit = ?", *q.LastVisit)
	}
	if q.LastVisitAfter != nil {
		db = db.Where("patients.last_visit >= ?", *q.LastVisitAfter)
	}
	if q.LastVisitBefore != nil {
		db = db.Where("patients.last_visit <= ?", *q.LastVisitBefore)
	}

	for _, term := range q.Search {
		p := containsPattern(term)
		db = db.Where(`(LOWER(patients.first_name) LIKE ? ESCAPE '\' OR LOWER(patients.last_name) LIKE ? ESCAPE '\')`, p, p)
	}

	ordering := q.Ordering
	if len(ordering) == 0 {
		ordering = defaultOrdering
	}
	for _, term := range ordering {
		key := patientOrderKeys[term.Key]
		dir := "ASC"
		if term.Desc {
			dir = "DESC"
		}
		if key.nullable {
			db = db.Order(fmt.Sprintf("%s IS NULL, %s %s", key.expr, key.expr, dir))
			continue
		}
		db = db.Order(fmt.Sprintf("%s %s", key.expr, dir))
	}
	return db.Order("patients.id")
}

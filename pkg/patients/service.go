package patients

import (
	"context"
	"errors"
	"strconv"

	"github.com/stellar-sleep/patients-api/pkg/common/logger"
	"github.com/stellar-sleep/patients-api/pkg/common/models"
	"github.com/stellar-sleep/patients-api/pkg/observability/metrics"
)

// EventPublisher receives change events after a write has committed.
type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType string, entityKey string, data map[string]interface{}) error
}

// CatalogCache stores JSON documents by name, plus counters that version them.
type CatalogCache interface {
	Get(ctx context.Context, name string, dest interface{}) error
	Set(ctx context.Context, name string, value interface{}) error
	Version(ctx context.Context, name string) (int64, error)
	Bump(ctx context.Context, name string) (int64, error)
}

type Service struct {
	repo   *Repository
	cache  CatalogCache
	events EventPublisher
}

// NewService wires the repository with optional cache and event publisher;
// either may be nil.
func NewService(repo *Repository, cache CatalogCache, events EventPublisher) *Service {
	return &Service{repo: repo, cache: cache, events: events}
}

func (s *Service) publish(ctx context.Context, eventType, key string, data map[string]interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishEvent(ctx, eventType, key, data); err != nil {
		logger.FromContext(ctx).WithError(err).WithField("event_type", eventType).Warn("Change event not published")
	}
}

func patientKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// duplicateAsValidation reports a unique violation that slipped past the
// pre-checks as a client error.
func duplicateAsValidation(err error) error {
	if errors.Is(err, ErrDuplicate) {
		return newValidationError("non_field_errors", msgUniquePair)
	}
	return err
}

func (s *Service) ListPatients(ctx context.Context, q PatientQuery) ([]models.Patient, error) {
	return s.repo.ListPatients(ctx, q)
}

func (s *Service) GetPatient(ctx context.Context, id int64) (models.Patient, error) {
	return s.repo.GetPatient(ctx, id)
}

func (s *Service) CreatePatient(ctx context.Context, in models.PatientInput) (models.Patient, error) {
	w, err := validatePatient(in, false)
	if err != nil {
		return models.Patient{}, err
	}
	patient, err := s.repo.CreatePatient(ctx, w)
	err = duplicateAsValidation(err)
	metrics.RecordWrite("patient", "create", err)
	if err != nil {
		return models.Patient{}, err
	}

	logger.FromContext(ctx).WithFields(map[string]interface{}{
		"patient_id": patient.ID,
		"addresses":  len(patient.Addresses),
		"isi_scores": len(patient.ISIScores),
	}).Info("Patient created")
	s.publish(ctx, "patient.created", patientKey(patient.ID), map[string]interface{}{
		"id":     patient.ID,
		"status": patient.Status,
	})
	return patient, nil
}

// UpdatePatient handles both PUT (partial=false) and PATCH.
func (s *Service) UpdatePatient(ctx context.Context, id int64, in models.PatientInput, partial bool) (models.Patient, error) {
	if err := s.repo.ensureExists(ctx, &patientModel{}, id); err != nil {
		return models.Patient{}, err
	}
	w, err := validatePatient(in, partial)
	if err != nil {
		return models.Patient{}, err
	}
	patient, err := s.repo.UpdatePatient(ctx, id, w)
	err = duplicateAsValidation(err)
	metrics.RecordWrite("patient", "update", err)
	if err != nil {
		return models.Patient{}, err
	}

	s.publish(ctx, "patient.updated", patientKey(id), map[string]interface{}{
		"id":     id,
		"status": patient.Status,
	})
	return patient, nil
}

func (s *Service) DeletePatient(ctx context.Context, id int64) error {
	err := s.repo.DeletePatient(ctx, id)
	metrics.RecordWrite("patient", "delete", err)
	if err != nil {
		return err
	}
	logger.FromContext(ctx).WithField("patient_id", id).Info("Patient deleted")
	s.publish(ctx, "patient.deleted", patientKey(id), map[string]interface{}{"id": id})
	return nil
}

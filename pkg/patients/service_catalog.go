package patients

import (
	"context"
	"errors"
	"strconv"

	"github.com/stellar-sleep/patients-api/pkg/common/cache"
	"github.com/stellar-sleep/patients-api/pkg/common/logger"
	"github.com/stellar-sleep/patients-api/pkg/common/models"
	"github.com/stellar-sleep/patients-api/pkg/observability/metrics"
)

const catalogVersionKey = "custom_fields:version"

// catalogKey names the catalog document for one version. Writes bump the
// version, so a fill that loaded before a write lands under a key no reader
// asks for again.
func catalogKey(version int64) string {
	return "custom_fields:" + strconv.FormatInt(version, 10)
}

func customFieldKey(id int64) string {
	return "custom_field:" + strconv.FormatInt(id, 10)
}

// ListCustomFields serves the catalog from the cache when possible. Cache
// failures fall through to the database.
func (s *Service) ListCustomFields(ctx context.Context) ([]models.CustomField, error) {
	var (
		key       string
		cacheable bool
	)
	if s.cache != nil {
		version, err := s.cache.Version(ctx, catalogVersionKey)
		if err != nil {
			metrics.RecordCacheLookup("error")
			logger.FromContext(ctx).WithError(err).Warn("Custom field cache version read failed")
		} else {
			key = catalogKey(version)
			cacheable = true
			var cached []models.CustomField
			err := s.cache.Get(ctx, key, &cached)
			switch {
			case err == nil:
				metrics.RecordCacheLookup("hit")
				return cached, nil
			case errors.Is(err, cache.ErrMiss):
				metrics.RecordCacheLookup("miss")
			default:
				metrics.RecordCacheLookup("error")
				logger.FromContext(ctx).WithError(err).Warn("Custom field cache read failed")
			}
		}
	}

	fields, err := s.repo.ListCustomFields(ctx)
	if err != nil {
		return nil, err
	}
	if cacheable {
		if err := s.cache.Set(ctx, key, fields); err != nil {
			logger.FromContext(ctx).WithError(err).Warn("Custom field cache write failed")
		}
	}
	return fields, nil
}

func (s *Service) invalidateCatalog(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.Bump(ctx, catalogVersionKey); err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Custom field cache invalidation failed")
	}
}

func (s *Service) GetCustomField(ctx context.Context, id int64) (models.CustomField, error) {
	return s.repo.GetCustomField(ctx, id)
}

func (s *Service) CreateCustomField(ctx context.Context, in models.CustomFieldInput) (models.CustomField, error) {
	name, fe := validateCustomField(in, nil)
	if len(fe) > 0 {
		return models.CustomField{}, &ValidationError{Fields: fe}
	}
	field, err := s.repo.CreateCustomField(ctx, name)
	metrics.RecordWrite("custom_field", "create", err)
	if err != nil {
		return models.CustomField{}, err
	}
	s.invalidateCatalog(ctx)
	s.publish(ctx, "custom_field.created", customFieldKey(field.ID), map[string]interface{}{"id": field.ID, "name": field.Name})
	return field, nil
}

func (s *Service) UpdateCustomField(ctx context.Context, id int64, in models.CustomFieldInput, partial bool) (models.CustomField, error) {
	current, err := s.repo.GetCustomField(ctx, id)
	if err != nil {
		return models.CustomField{}, err
	}
	var base *string
	if partial {
		base = &current.Name
	}
	name, fe := validateCustomField(in, base)
	if len(fe) > 0 {
		return models.CustomField{}, &ValidationError{Fields: fe}
	}

	field, err := s.repo.UpdateCustomField(ctx, id, name)
	metrics.RecordWrite("custom_field", "update", err)
	if err != nil {
		return models.CustomField{}, err
	}
	s.invalidateCatalog(ctx)
	s.publish(ctx, "custom_field.updated", customFieldKey(id), map[string]interface{}{"id": id, "name": field.Name})
	return field, nil
}

func (s *Service) DeleteCustomField(ctx context.Context, id int64) error {
	err := s.repo.DeleteCustomField(ctx, id)
	metrics.RecordWrite("custom_field", "delete", err)
	if err != nil {
		return err
	}
	s.invalidateCatalog(ctx)
	s.publish(ctx, "custom_field.deleted", customFieldKey(id), map[string]interface{}{"id": id})
	return nil
}

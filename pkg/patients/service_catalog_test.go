package patients

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stellar-sleep/patients-api/pkg/common/cache"
	"github.com/stellar-sleep/patients-api/pkg/common/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCachedService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	catalog := cache.NewRedisCache(client, "patients", time.Minute)
	return NewService(NewRepository(newTestDB(t)), catalog, nil), mr
}

func TestCustomFieldCatalogIsCached(t *testing.T) {
	svc, mr := newCachedService(t)
	ctx := context.Background()

	_, err := svc.CreateCustomField(ctx, models.CustomFieldInput{Name: ptr("Referral")})
	require.NoError(t, err)
	_, err = svc.CreateCustomField(ctx, models.CustomFieldInput{Name: ptr("Chronotype")})
	require.NoError(t, err)
	version, err := mr.Get("patients:custom_fields:version")
	require.NoError(t, err)
	assert.Equal(t, "2", version)
	assert.False(t, mr.Exists("patients:custom_fields:2"))

	fields, err := svc.ListCustomFields(ctx)
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, "Chronotype", fields[0].Name)
	require.True(t, mr.Exists("patients:custom_fields:2"))
	assert.Equal(t, time.Minute, mr.TTL("patients:custom_fields:2"))

	// A stale document proves the second read is served from Redis.
	require.NoError(t, mr.Set("patients:custom_fields:2", `[{"id": 77, "name": "Cached"}]`))
	fields, err = svc.ListCustomFields(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.CustomField{{ID: 77, Name: "Cached"}}, fields)
}

func TestCustomFieldWritesInvalidateCatalog(t *testing.T) {
	svc, mr := newCachedService(t)
	ctx := context.Background()

	field, err := svc.CreateCustomField(ctx, models.CustomFieldInput{Name: ptr("Referral")})
	require.NoError(t, err)
	_, err = svc.ListCustomFields(ctx)
	require.NoError(t, err)
	require.True(t, mr.Exists("patients:custom_fields:1"))

	renamed, err := svc.UpdateCustomField(ctx, field.ID, models.CustomFieldInput{Name: ptr("Referrer")}, true)
	require.NoError(t, err)
	assert.Equal(t, "Referrer", renamed.Name)
	assert.False(t, mr.Exists("patients:custom_fields:2"))

	fields, err := svc.ListCustomFields(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Referrer", fields[0].Name)

	require.NoError(t, svc.DeleteCustomField(ctx, field.ID))
	fields, err = svc.ListCustomFields(ctx)
	require.NoError(t, err)
	assert.Empty(t, fields)
}

// racingCatalog runs beforeSet once, between the database read of a cache
// fill and the write of the filled document.
type racingCatalog struct {
	CatalogCache
	beforeSet func()
}

func (c *racingCatalog) Set(ctx context.Context, name string, value interface{}) error {
	if hook := c.beforeSet; hook != nil {
		c.beforeSet = nil
		hook()
	}
	return c.CatalogCache.Set(ctx, name, value)
}

func TestCatalogFillDoesNotOutliveConcurrentWrite(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	catalog := &racingCatalog{CatalogCache: cache.NewRedisCache(client, "patients", time.Minute)}
	svc := NewService(NewRepository(newTestDB(t)), catalog, nil)
	ctx := context.Background()

	_, err := svc.CreateCustomField(ctx, models.CustomFieldInput{Name: ptr("Apnea")})
	require.NoError(t, err)

	catalog.beforeSet = func() {
		_, err := svc.CreateCustomField(ctx, models.CustomFieldInput{Name: ptr("Bruxism")})
		require.NoError(t, err)
	}
	fields, err := svc.ListCustomFields(ctx)
	require.NoError(t, err)
	assert.Len(t, fields, 1)

	fields, err = svc.ListCustomFields(ctx)
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, "Bruxism", fields[1].Name)
}

func TestCustomFieldCatalogSurvivesRedisOutage(t *testing.T) {
	svc, mr := newCachedService(t)
	ctx := context.Background()
	_, err := svc.CreateCustomField(ctx, models.CustomFieldInput{Name: ptr("Referral")})
	require.NoError(t, err)

	mr.Close()

	fields, err := svc.ListCustomFields(ctx)
	require.NoError(t, err)
	assert.Len(t, fields, 1)
}

func TestCustomFieldNameUnique(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateCustomField(ctx, models.CustomFieldInput{Name: ptr("Referral")})
	require.NoError(t, err)

	_, err = svc.CreateCustomField(ctx, models.CustomFieldInput{Name: ptr("Referral")})
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, []string{msgFieldNameTaken}, ve.Fields["name"])

	second, err := svc.CreateCustomField(ctx, models.CustomFieldInput{Name: ptr("Chronotype")})
	require.NoError(t, err)
	_, err = svc.UpdateCustomField(ctx, second.ID, models.CustomFieldInput{Name: ptr("Referral")}, false)
	require.True(t, errors.As(err, &ve))

	same, err := svc.UpdateCustomField(ctx, first.ID, models.CustomFieldInput{Name: ptr("Referral")}, false)
	require.NoError(t, err)
	assert.Equal(t, first, same)

	_, err = svc.UpdateCustomField(ctx, 999, models.CustomFieldInput{Name: ptr("X")}, false)
	assert.ErrorIs(t, err, ErrNotFound)
}

package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNullableTracksPresence(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		set   bool
		valid bool
		value string
	}{
		{name: "absent", body: `{}`},
		{name: "null", body: `{"last_visit": null}`, set: true},
		{name: "value", body: `{"last_visit": "2024-03-01"}`, set: true, valid: true, value: "2024-03-01"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var in PatientInput
			require.NoError(t, json.Unmarshal([]byte(tc.body), &in))
			assert.Equal(t, tc.set, in.LastVisit.Set)
			assert.Equal(t, tc.valid, in.LastVisit.Valid)
			assert.Equal(t, tc.value, in.LastVisit.Value)
		})
	}
}

func TestNestedCollectionsDistinguishEmptyFromAbsent(t *testing.T) {
	var absent, empty PatientInput
	require.NoError(t, json.Unmarshal([]byte(`{"first_name": "Jane"}`), &absent))
	require.NoError(t, json.Unmarshal([]byte(`{"addresses": []}`), &empty))

	assert.Nil(t, absent.Addresses)
	require.NotNil(t, empty.Addresses)
	assert.Empty(t, *empty.Addresses)
}

func TestNullablePtr(t *testing.T) {
	var in PatientInput
	require.NoError(t, json.Unmarshal([]byte(`{"status": null, "first_name": "Jane"}`), &in))

	assert.True(t, in.Status.Set)
	assert.Nil(t, in.Status.Ptr())
	assert.Nil(t, in.LastName.Ptr())
	require.NotNil(t, in.FirstName.Ptr())
	assert.Equal(t, "Jane", *in.FirstName.Ptr())
}

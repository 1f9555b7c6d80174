package record

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/physiocore/clinicsync/internal/common/cnst"
)

func TestValidateFieldsPatient(t *testing.T) {
	err := ValidateFields(cnst.CollectionPatients, map[string]any{
		"name":  "Asha Rao",
		"phone": "9876543210",
	})
	assert.NoError(t, err)

	err = ValidateFields(cnst.CollectionPatients, map[string]any{
		"phone": "9876543210",
	})
	assert.Error(t, err, "missing name must fail")
}

func TestValidateFieldsUserEmail(t *testing.T) {
	err := ValidateFields(cnst.CollectionUsers, map[string]any{
		"name":  "Dr. Rao",
		"email": "not-an-email",
	})
	assert.Error(t, err)

	err = ValidateFields(cnst.CollectionUsers, map[string]any{
		"name":  "Dr. Rao",
		"email": "rao@example.com",
		"role":  "therapist",
	})
	assert.NoError(t, err)
}

func TestValidateFieldsPreservesUnknownFields(t *testing.T) {
	fields := map[string]any{
		"name":       "Asha",
		"customNote": "keeps extra fields",
	}
	assert.NoError(t, ValidateFields(cnst.CollectionPatients, fields))
	assert.Equal(t, "keeps extra fields", fields["customNote"])
}

func TestValidateFieldsFreeFormCollections(t *testing.T) {
	// activity_log has no typed shape and accepts anything serializable.
	assert.NoError(t, ValidateFields(cnst.CollectionActivityLog, map[string]any{"whatever": 1}))
}

func TestValidateFieldsAppointment(t *testing.T) {
	err := ValidateFields(cnst.CollectionAppointments, map[string]any{
		"patientId": "p-1",
		"startsAt":  "2026-09-01T10:00:00Z",
		"status":    "scheduled",
	})
	assert.NoError(t, err)

	err = ValidateFields(cnst.CollectionAppointments, map[string]any{
		"startsAt": "2026-09-01T10:00:00Z",
	})
	assert.Error(t, err, "appointment without patientId must fail")
}

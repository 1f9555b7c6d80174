package record

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/physiocore/clinicsync/internal/common/cnst"
)

// Typed payloads for the collections with real field constraints. Unknown and
// optional fields survive validation untouched because validation runs against
// a copy decoded from the flat JSON object, not against the stored map.
type (
	UserPayload struct {
		Name  string `json:"name" validate:"required"`
		Email string `json:"email" validate:"required,email"`
		Role  string `json:"role" validate:"omitempty,oneof=admin therapist reception"`
	}

	PatientPayload struct {
		Name  string `json:"name" validate:"required"`
		Phone string `json:"phone" validate:"omitempty,min=5"`
		Email string `json:"email" validate:"omitempty,email"`
	}

	AppointmentPayload struct {
		PatientID string `json:"patientId" validate:"required"`
		StartsAt  string `json:"startsAt" validate:"required"`
		Status    string `json:"status" validate:"omitempty,oneof=scheduled confirmed completed cancelled no_show"`
	}

	SessionPayload struct {
		PatientID string `json:"patientId" validate:"required"`
	}

	BillingPayload struct {
		PatientID string  `json:"patientId" validate:"required"`
		Amount    float64 `json:"amount" validate:"gte=0"`
	}

	TagPayload struct {
		Name string `json:"name" validate:"required"`
	}

	PrescriptionPayload struct {
		PatientID string `json:"patientId" validate:"required"`
	}

	OnlineBookingPayload struct {
		Name  string `json:"name" validate:"required"`
		Phone string `json:"phone" validate:"required,min=5"`
	}
)

var validate = validator.New()

// payloadFor returns a fresh typed payload for collections that carry field
// constraints. Collections without an entry are free-form.
func payloadFor(collection string) any {
	switch collection {
	case cnst.CollectionUsers:
		return &UserPayload{}
	case cnst.CollectionPatients:
		return &PatientPayload{}
	case cnst.CollectionAppointments:
		return &AppointmentPayload{}
	case cnst.CollectionSessions:
		return &SessionPayload{}
	case cnst.CollectionBilling:
		return &BillingPayload{}
	case cnst.CollectionTags:
		return &TagPayload{}
	case cnst.CollectionPrescriptions:
		return &PrescriptionPayload{}
	case cnst.CollectionOnlineBookings:
		return &OnlineBookingPayload{}
	default:
		return nil
	}
}

// ValidateFields checks payload fields against the typed shape of the given
// collection. Collections without a typed shape always pass.
func ValidateFields(collection string, fields map[string]any) error {
	payload := payloadFor(collection)
	if payload == nil {
		return nil
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("fields are not JSON-serializable: %w", err)
	}
	if err := json.Unmarshal(data, payload); err != nil {
		return fmt.Errorf("fields do not match %s shape: %w", collection, err)
	}
	if err := validate.Struct(payload); err != nil {
		return fmt.Errorf("invalid %s record: %w", collection, err)
	}
	return nil
}

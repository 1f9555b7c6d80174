package record

import "time"

// Tenant statuses. A tenant is never hard-deleted; Deleted gates resolution.
const (
	TenantStatusActive   = "active"
	TenantStatusPending  = "pending"
	TenantStatusRejected = "rejected"
)

// Tenant is one clinic's settings document, stored locally under the clinic
// key and remotely as the tenant document.
type Tenant struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	BookingSlug string          `json:"bookingSlug"`
	Features    map[string]bool `json:"features,omitempty"`
	Status      string          `json:"status"`
	Deleted     bool            `json:"deleted,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// SlugMapping maps a public booking code to a tenant id. At most one active
// tenant owns a slug; self-healing may recreate a missing mapping from the
// tenant's own stored slug field.
type SlugMapping struct {
	Slug      string    `json:"slug"`
	TenantID  string    `json:"tenantId"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PhoneIndexRef is one (tenant, patient) reference inside a phone index
// document. The list holds at most one element per pair.
type PhoneIndexRef struct {
	TenantID    string `json:"tenantId"`
	TenantName  string `json:"tenantName"`
	PatientID   string `json:"patientId"`
	PatientName string `json:"patientName"`
}

// PhoneIndexDoc is the cross-tenant index document keyed by normalized phone
// digits.
type PhoneIndexDoc struct {
	Phone     string          `json:"phone"`
	Refs      []PhoneIndexRef `json:"refs"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

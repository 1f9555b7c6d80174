package cnst

// Collection names form a closed set shared by the local store and the
// remote document layout. No dynamic collections exist.
const (
	CollectionUsers            = "users"
	CollectionPatients         = "patients"
	CollectionAppointments     = "appointments"
	CollectionSessions         = "sessions"
	CollectionExercises        = "exercises"
	CollectionBilling          = "billing"
	CollectionActivityLog      = "activity_log"
	CollectionTags             = "tags"
	CollectionMessageTemplates = "message_templates"
	CollectionMessageLog       = "message_log"
	CollectionPrescriptions    = "prescriptions"
	CollectionOnlineBookings   = "online_bookings"

	// CollectionPatientMessages holds broadcast messages and exists only
	// remotely, outside the synchronized set.
	CollectionPatientMessages = "patient_messages"
)

// Collections lists every synchronized collection name.
var Collections = []string{
	CollectionUsers,
	CollectionPatients,
	CollectionAppointments,
	CollectionSessions,
	CollectionExercises,
	CollectionBilling,
	CollectionActivityLog,
	CollectionTags,
	CollectionMessageTemplates,
	CollectionMessageLog,
	CollectionPrescriptions,
	CollectionOnlineBookings,
}

var collectionSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(Collections))
	for _, name := range Collections {
		m[name] = struct{}{}
	}
	return m
}()

// IsCollection reports whether name belongs to the synchronized set.
func IsCollection(name string) bool {
	_, ok := collectionSet[name]
	return ok
}

// DefaultTenant is the tenant id legacy single-tenant data is migrated into.
const DefaultTenant = "default"

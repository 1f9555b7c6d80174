package record

import (
	"encoding/json"
	"time"
)

// Reserved field names carried inside the flat JSON object of every record.
const (
	fieldID        = "id"
	fieldDeletedAt = "_deletedAt"
	fieldDeletedBy = "_deletedBy"
)

// Record is the envelope for one domain entity inside a tenant's collection.
// ID is the merge key and is stable across the local and remote copies of the
// same logical record. All other payload fields live in Fields and are
// flattened into the JSON object on marshal, so a record round-trips through
// local text storage and remote documents as one plain JSON object.
type Record struct {
	ID        string
	DeletedAt *time.Time
	DeletedBy string
	Fields    map[string]any
}

// Deleted reports whether the record is in the trash.
func (r Record) Deleted() bool {
	return r.DeletedAt != nil
}

// CascadeDeleted reports whether the record was deleted as a side effect of
// deleting its parent. Such records are not independently restorable.
func (r Record) CascadeDeleted() bool {
	return r.Deleted() && r.DeletedBy != ""
}

// Clone returns a deep-enough copy: Fields is copied one level down, which is
// sufficient because callers replace nested values wholesale.
func (r Record) Clone() Record {
	out := r
	if r.DeletedAt != nil {
		t := *r.DeletedAt
		out.DeletedAt = &t
	}
	out.Fields = make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		out.Fields[k] = v
	}
	return out
}

// MarshalJSON flattens the envelope and payload into a single JSON object.
func (r Record) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(r.Fields)+3)
	for k, v := range r.Fields {
		obj[k] = v
	}
	obj[fieldID] = r.ID
	if r.DeletedAt != nil {
		obj[fieldDeletedAt] = r.DeletedAt.UTC().Format(time.RFC3339Nano)
	}
	if r.DeletedBy != "" {
		obj[fieldDeletedBy] = r.DeletedBy
	}
	return json.Marshal(obj)
}

// UnmarshalJSON splits the reserved fields back out of the flat object.
func (r *Record) UnmarshalJSON(data []byte) error {
	obj := make(map[string]any)
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if v, ok := obj[fieldID].(string); ok {
		r.ID = v
	}
	delete(obj, fieldID)
	if v, ok := obj[fieldDeletedAt].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			r.DeletedAt = &t
		}
	}
	delete(obj, fieldDeletedAt)
	if v, ok := obj[fieldDeletedBy].(string); ok {
		r.DeletedBy = v
	}
	delete(obj, fieldDeletedBy)
	r.Fields = obj
	return nil
}

// String returns a payload field as a string, or "" when absent or non-string.
func (r Record) String(key string) string {
	v, _ := r.Fields[key].(string)
	return v
}

// EncodeCollection serializes an ordered collection as JSON text.
func EncodeCollection(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	return json.Marshal(records)
}

// DecodeCollection parses JSON text back into an ordered collection.
func DecodeCollection(data []byte) ([]Record, error) {
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

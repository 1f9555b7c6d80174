package phone

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/physiocore/clinicsync/internal/record"
	"github.com/physiocore/clinicsync/internal/remote"
	"github.com/physiocore/clinicsync/pkg/utils"
)

// Normalize canonicalizes a phone number for index keys. Non-digit characters
// are stripped; a bare 10-digit national number gets the clinic's country
// calling code prefixed; a number already carrying that prefix is returned
// unchanged. Anything else is left as its bare digits.
func Normalize(raw, countryCode string) string {
	digits := utils.Digits(raw)
	if digits == "" {
		return ""
	}
	cc := utils.Digits(countryCode)
	if cc == "" {
		return digits
	}
	if len(digits) == 10 {
		return cc + digits
	}
	if strings.HasPrefix(digits, cc) && len(digits) == len(cc)+10 {
		return digits
	}
	return digits
}

// Index maintains the cross-tenant phone-to-patients index. Each normalized
// number maps to a list of (tenant, patient) references with at most one
// element per pair; writes update matching elements in place.
//
// Without CAS the read-modify-write races when two tenants update the same
// number concurrently and the whole list is last-writer-wins. The optional
// compare-and-swap closes that window without changing single-writer
// behavior.
type Index struct {
	logger      *zap.Logger
	remote      *remote.Client
	countryCode string
	useCAS      bool
}

func NewIndex(logger *zap.Logger, rc *remote.Client, countryCode string, useCAS bool) *Index {
	return &Index{
		logger:      logger.Named("phone.index"),
		remote:      rc,
		countryCode: countryCode,
		useCAS:      useCAS,
	}
}

// Record upserts one (tenant, patient) reference under the patient's phone
// number. An empty or non-normalizable number is ignored.
func (i *Index) Record(ctx context.Context, rawPhone string, ref record.PhoneIndexRef) error {
	normalized := Normalize(rawPhone, i.countryCode)
	if normalized == "" {
		return nil
	}

	mutate := func(doc *record.PhoneIndexDoc) {
		doc.Phone = normalized
		doc.UpdatedAt = time.Now().UTC()
		for idx := range doc.Refs {
			if doc.Refs[idx].TenantID == ref.TenantID && doc.Refs[idx].PatientID == ref.PatientID {
				doc.Refs[idx] = ref
				return
			}
		}
		doc.Refs = append(doc.Refs, ref)
	}

	if i.useCAS {
		return i.remote.UpdatePhoneIndexCAS(ctx, normalized, mutate)
	}

	doc, ok, err := i.remote.GetPhoneIndex(ctx, normalized)
	if err != nil {
		return err
	}
	if !ok {
		doc = &record.PhoneIndexDoc{Phone: normalized}
	}
	mutate(doc)
	return i.remote.PutPhoneIndex(ctx, doc)
}

// Lookup returns the index document for a raw phone number, normalizing it
// first. ok is false when the number is unknown.
func (i *Index) Lookup(ctx context.Context, rawPhone string) (*record.PhoneIndexDoc, bool, error) {
	normalized := Normalize(rawPhone, i.countryCode)
	if normalized == "" {
		return nil, false, nil
	}
	return i.remote.GetPhoneIndex(ctx, normalized)
}

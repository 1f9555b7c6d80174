package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/physiocore/clinicsync/internal/common/cnst"
	"github.com/physiocore/clinicsync/internal/phone"
	"github.com/physiocore/clinicsync/internal/record"
	"github.com/physiocore/clinicsync/internal/store"
	syncpkg "github.com/physiocore/clinicsync/internal/sync"
	"github.com/physiocore/clinicsync/internal/tenant"
)

// cascadeCollections are the collections whose records reference a patient by
// patientId and are trash-stamped together with the patient. Each write is an
// independent single-collection operation: there is no cross-collection
// transaction, and a crash between writes leaves a partially cascaded state.
var cascadeCollections = []string{
	cnst.CollectionAppointments,
	cnst.CollectionSessions,
	cnst.CollectionBilling,
	cnst.CollectionPrescriptions,
}

// Service is the record-access contract exposed to the presentation layer.
// The local store is synchronous and authoritative; remote mirroring happens
// on the background mirror queue and is never awaited.
type Service struct {
	logger   *zap.Logger
	local    store.Store
	engine   *syncpkg.Engine // nil when running local-only
	mirror   *syncpkg.Mirror
	resolver *tenant.Resolver
	phones   *phone.Index // nil when running local-only
}

func New(logger *zap.Logger, local store.Store, engine *syncpkg.Engine, mirror *syncpkg.Mirror, resolver *tenant.Resolver, phones *phone.Index) *Service {
	return &Service{
		logger:   logger.Named("service"),
		local:    local,
		engine:   engine,
		mirror:   mirror,
		resolver: resolver,
		phones:   phones,
	}
}

// ResolveTenant resolves a clinic code and pins the result in a new session.
// A code that matches nothing anywhere still yields a session on the code
// itself, so login never hard-fails on slug-lookup absence.
func (s *Service) ResolveTenant(ctx context.Context, code, userID string) (*tenant.Session, error) {
	id, err := s.resolver.Resolve(ctx, code)
	if err != nil {
		if !errors.Is(err, cnst.ErrTenantNotFound) {
			return nil, err
		}
		s.logger.Info("clinic code matched no tenant, using it as tenant id",
			zap.String("code", code))
	}
	return tenant.NewSession(id, userID), nil
}

// GetCollection returns the live (non-trashed) records of a collection.
func (s *Service) GetCollection(ctx context.Context, sess *tenant.Session, name string) ([]record.Record, error) {
	records, err := s.readAll(ctx, sess, name)
	if err != nil {
		return nil, err
	}
	live := make([]record.Record, 0, len(records))
	for _, r := range records {
		if !r.Deleted() {
			live = append(live, r)
		}
	}
	return live, nil
}

// Trash returns the trashed records of a collection. Cascade-deleted entries
// appear here but report themselves non-restorable.
func (s *Service) Trash(ctx context.Context, sess *tenant.Session, name string) ([]record.Record, error) {
	records, err := s.readAll(ctx, sess, name)
	if err != nil {
		return nil, err
	}
	trashed := make([]record.Record, 0)
	for _, r := range records {
		if r.Deleted() {
			trashed = append(trashed, r)
		}
	}
	return trashed, nil
}

func (s *Service) readAll(ctx context.Context, sess *tenant.Session, name string) ([]record.Record, error) {
	if !cnst.IsCollection(name) {
		return nil, cnst.ErrUnknownCollection
	}
	return s.local.ReadCollection(ctx, sess.Tenant(), name)
}

// Create validates fields against the collection's typed shape, assigns an
// id, persists locally and mirrors the new record in the background.
func (s *Service) Create(ctx context.Context, sess *tenant.Session, name string, fields map[string]any) (record.Record, error) {
	if !cnst.IsCollection(name) {
		return record.Record{}, cnst.ErrUnknownCollection
	}
	if err := record.ValidateFields(name, fields); err != nil {
		return record.Record{}, err
	}

	r := record.Record{ID: uuid.NewString(), Fields: fields}
	records, err := s.local.ReadCollection(ctx, sess.Tenant(), name)
	if err != nil {
		return record.Record{}, err
	}
	records = append(records, r)
	if err := s.local.WriteCollection(ctx, sess.Tenant(), name, records); err != nil {
		return record.Record{}, err
	}

	s.mirrorSave(sess, name, r)
	s.indexPatientPhone(sess, name, r)
	return r, nil
}

// Update merges fields into an existing record, validates the result and
// persists it.
func (s *Service) Update(ctx context.Context, sess *tenant.Session, name, id string, fields map[string]any) (record.Record, error) {
	if !cnst.IsCollection(name) {
		return record.Record{}, cnst.ErrUnknownCollection
	}

	records, err := s.local.ReadCollection(ctx, sess.Tenant(), name)
	if err != nil {
		return record.Record{}, err
	}
	for i := range records {
		if records[i].ID != id {
			continue
		}
		merged := records[i].Clone()
		for k, v := range fields {
			merged.Fields[k] = v
		}
		if err := record.ValidateFields(name, merged.Fields); err != nil {
			return record.Record{}, err
		}
		records[i] = merged
		if err := s.local.WriteCollection(ctx, sess.Tenant(), name, records); err != nil {
			return record.Record{}, err
		}
		s.mirrorSave(sess, name, merged)
		s.indexPatientPhone(sess, name, merged)
		return merged, nil
	}
	return record.Record{}, cnst.ErrRecordNotFound
}

// SoftDelete moves a record to the trash. Deleting a patient cascades to its
// dependent records, stamping them with the patient's id so the trash view
// can tell cascade deletions apart and block their independent restore.
func (s *Service) SoftDelete(ctx context.Context, sess *tenant.Session, name, id string) error {
	if !cnst.IsCollection(name) {
		return cnst.ErrUnknownCollection
	}
	if err := s.local.SoftDelete(ctx, sess.Tenant(), name, id, ""); err != nil {
		return err
	}
	s.mirrorByID(ctx, sess, name, id)

	if name == cnst.CollectionPatients {
		s.cascadeDelete(ctx, sess, id)
	}
	return nil
}

func (s *Service) cascadeDelete(ctx context.Context, sess *tenant.Session, patientID string) {
	for _, collection := range cascadeCollections {
		records, err := s.local.ReadCollection(ctx, sess.Tenant(), collection)
		if err != nil {
			s.logger.Warn("cascade delete could not read collection",
				zap.String("collection", collection),
				zap.Error(err))
			continue
		}
		for _, r := range records {
			if r.Deleted() || r.String("patientId") != patientID {
				continue
			}
			if err := s.local.SoftDelete(ctx, sess.Tenant(), collection, r.ID, patientID); err != nil {
				s.logger.Warn("cascade delete failed for record",
					zap.String("collection", collection),
					zap.String("id", r.ID),
					zap.Error(err))
				continue
			}
			s.mirrorByID(ctx, sess, collection, r.ID)
		}
	}
}

// Restore brings a directly-deleted record back from the trash. Restoring a
// cascade-deleted record fails with ErrNotRestorable.
func (s *Service) Restore(ctx context.Context, sess *tenant.Session, name, id string) error {
	if !cnst.IsCollection(name) {
		return cnst.ErrUnknownCollection
	}
	if err := s.local.Restore(ctx, sess.Tenant(), name, id); err != nil {
		return err
	}
	s.mirrorByID(ctx, sess, name, id)
	return nil
}

// Purge removes a record irreversibly, locally and (best-effort) remotely.
func (s *Service) Purge(ctx context.Context, sess *tenant.Session, name, id string) error {
	if !cnst.IsCollection(name) {
		return cnst.ErrUnknownCollection
	}
	if err := s.local.Purge(ctx, sess.Tenant(), name, id); err != nil {
		return err
	}
	if s.engine != nil && s.mirror != nil {
		engine, tenantID := s.engine, sess.Tenant()
		_ = s.mirror.Enqueue("delete_doc", func(ctx context.Context) error {
			return engine.DeleteDoc(ctx, tenantID, name, id)
		})
	}
	return nil
}

// SyncPush uploads one collection, or every collection when name is empty.
func (s *Service) SyncPush(ctx context.Context, sess *tenant.Session, name string) error {
	if s.engine == nil {
		return cnst.ErrRemoteUnavailable
	}
	if name == "" {
		return s.engine.PushAll(ctx, sess.Tenant())
	}
	return s.engine.PushCollection(ctx, sess.Tenant(), name)
}

// SyncPull downloads one collection, or every collection when name is empty.
func (s *Service) SyncPull(ctx context.Context, sess *tenant.Session, name string) error {
	if s.engine == nil {
		return cnst.ErrRemoteUnavailable
	}
	if name == "" {
		return s.engine.PullAll(ctx, sess.Tenant())
	}
	return s.engine.PullCollection(ctx, sess.Tenant(), name)
}

// InitialSync decides the sync direction for a fresh login on this device:
// pull when the tenant already has remote data, push otherwise.
func (s *Service) InitialSync(ctx context.Context, sess *tenant.Session) error {
	if s.engine == nil {
		return cnst.ErrRemoteUnavailable
	}
	has, err := s.engine.HasData(ctx, sess.Tenant())
	if err != nil {
		return err
	}
	if has {
		s.logger.Info("remote has data, pulling", zap.String("tenant", sess.Tenant()))
		return s.engine.PullAll(ctx, sess.Tenant())
	}
	s.logger.Info("remote is empty, pushing", zap.String("tenant", sess.Tenant()))
	return s.engine.PushAll(ctx, sess.Tenant())
}

// BroadcastMessages fetches the tenant's broadcast messages. These live only
// remotely, outside the synchronized collection set, so there is no local
// fallback: without a remote connection the call fails.
func (s *Service) BroadcastMessages(ctx context.Context, sess *tenant.Session) ([]record.Record, error) {
	if s.engine == nil {
		return nil, cnst.ErrRemoteUnavailable
	}
	return s.engine.FetchRemote(ctx, sess.Tenant(), cnst.CollectionPatientMessages)
}

// IsFeatureEnabled reads the tenant's settings record for a feature flag.
func (s *Service) IsFeatureEnabled(ctx context.Context, sess *tenant.Session, key string) bool {
	t, ok := s.localTenant(ctx, sess)
	if !ok {
		return false
	}
	return t.Features[key]
}

// SaveTenant persists the tenant settings record locally and mirrors it.
func (s *Service) SaveTenant(ctx context.Context, sess *tenant.Session, t *record.Tenant) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	if err := s.local.SetRaw(ctx, cnst.ClinicKey(sess.Tenant()), data); err != nil {
		return err
	}
	if s.engine != nil && s.mirror != nil {
		engine := s.engine
		_ = s.mirror.Enqueue("save_tenant", func(ctx context.Context) error {
			return engine.SaveTenant(ctx, t)
		})
	}
	return nil
}

func (s *Service) localTenant(ctx context.Context, sess *tenant.Session) (*record.Tenant, bool) {
	data, ok, err := s.local.GetRaw(ctx, cnst.ClinicKey(sess.Tenant()))
	if err != nil || !ok {
		return nil, false
	}
	var t record.Tenant
	if err := json.Unmarshal(data, &t); err != nil {
		s.logger.Warn("corrupt local tenant settings",
			zap.String("tenant", sess.Tenant()),
			zap.Error(err))
		return nil, false
	}
	return &t, true
}

// mirrorSave queues a best-effort remote upsert of one record.
func (s *Service) mirrorSave(sess *tenant.Session, name string, r record.Record) {
	if s.engine == nil || s.mirror == nil {
		return
	}
	engine, tenantID := s.engine, sess.Tenant()
	err := s.mirror.Enqueue("save_doc", func(ctx context.Context) error {
		return engine.SaveDoc(ctx, tenantID, name, r)
	})
	if err != nil {
		s.logger.Warn("could not queue remote mirror write",
			zap.String("collection", name),
			zap.String("id", r.ID),
			zap.Error(err))
	}
}

// mirrorByID re-reads a record after a mutation and queues its mirror write.
func (s *Service) mirrorByID(ctx context.Context, sess *tenant.Session, name, id string) {
	if s.engine == nil || s.mirror == nil {
		return
	}
	records, err := s.local.ReadCollection(ctx, sess.Tenant(), name)
	if err != nil {
		return
	}
	for _, r := range records {
		if r.ID == id {
			s.mirrorSave(sess, name, r)
			return
		}
	}
}

// indexPatientPhone updates the cross-tenant phone index as a side effect of
// a patient write. It runs on the mirror queue: index upkeep is best-effort
// and never delays the local write.
func (s *Service) indexPatientPhone(sess *tenant.Session, name string, r record.Record) {
	if name != cnst.CollectionPatients || s.phones == nil || s.mirror == nil {
		return
	}
	rawPhone := r.String("phone")
	if rawPhone == "" {
		return
	}

	ref := record.PhoneIndexRef{
		TenantID:    sess.Tenant(),
		PatientID:   r.ID,
		PatientName: r.String("name"),
	}
	if t, ok := s.localTenant(context.Background(), sess); ok {
		ref.TenantName = t.Name
	}

	phones := s.phones
	err := s.mirror.Enqueue("phone_index", func(ctx context.Context) error {
		return phones.Record(ctx, rawPhone, ref)
	})
	if err != nil {
		s.logger.Warn("could not queue phone index update",
			zap.String("patient", r.ID),
			zap.Error(err))
	}
}

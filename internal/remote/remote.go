package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/physiocore/clinicsync/internal/common/cnst"
	"github.com/physiocore/clinicsync/internal/common/config"
	"github.com/physiocore/clinicsync/internal/record"
	"github.com/physiocore/clinicsync/pkg/utils"
)

// Remote document layout:
//
//	clinics:{tenant}              tenant settings document (JSON string)
//	clinics:{tenant}:{collection} hash, field = document id, value = JSON
//	clinics:ids                   set of known tenant ids
//	booking_slugs:{slug}          slug mapping document (JSON string)
//	patient_phones:{digits}       cross-tenant phone index document (JSON string)
//
// Legacy (pre-multi-tenant) remote data lives in flat top-level hashes keyed
// by the bare collection name; the migration engine moves it under clinics:.
const (
	tenantDocPrefix = "clinics:"
	tenantSetKey    = "clinics:ids"
	slugDocPrefix   = "booking_slugs:"
	phoneDocPrefix  = "patient_phones:"
)

// Doc is one remote document keyed by its record id.
type Doc struct {
	ID   string
	Data []byte
}

// Client talks to the remote document store.
type Client struct {
	logger *zap.Logger
	rdb    redis.UniversalClient
}

// NewClient creates a remote document store client and verifies connectivity.
func NewClient(logger *zap.Logger, cfg config.RemoteConfig) (*Client, error) {
	addrs := utils.SplitByMultipleDelimiters(cfg.Addr, ";", ",")
	redisOptions := &redis.UniversalOptions{
		Addrs:    addrs,
		Username: cfg.Username,
		Password: cfg.Password,
	}
	if cfg.ClusterType == cnst.RedisClusterTypeSentinel {
		redisOptions.MasterName = cfg.MasterName
	}
	if cfg.ClusterType != cnst.RedisClusterTypeCluster {
		// can not set db in cluster mode
		redisOptions.DB = cfg.DB
	}
	rdb := redis.NewUniversalClient(redisOptions)

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", cnst.ErrRemoteUnavailable, err)
	}

	return &Client{
		logger: logger.Named("remote"),
		rdb:    rdb,
	}, nil
}

func TenantDocKey(tenant string) string {
	return tenantDocPrefix + tenant
}

func CollectionKey(tenant, collection string) string {
	return tenantDocPrefix + tenant + ":" + collection
}

func SlugDocKey(slug string) string {
	return slugDocPrefix + slug
}

func PhoneDocKey(phone string) string {
	return phoneDocPrefix + phone
}

// PutDoc upserts a single document into a tenant's collection.
func (c *Client) PutDoc(ctx context.Context, tenant, collection, id string, doc []byte) error {
	return c.rdb.HSet(ctx, CollectionKey(tenant, collection), id, doc).Err()
}

// DeleteDoc removes a single document from a tenant's collection.
func (c *Client) DeleteDoc(ctx context.Context, tenant, collection, id string) error {
	return c.rdb.HDel(ctx, CollectionKey(tenant, collection), id).Err()
}

// FetchCollection returns every document in a tenant's collection.
func (c *Client) FetchCollection(ctx context.Context, tenant, collection string) (map[string]string, error) {
	return c.rdb.HGetAll(ctx, CollectionKey(tenant, collection)).Result()
}

// CollectionLen returns the number of documents in a tenant's collection.
func (c *Client) CollectionLen(ctx context.Context, tenant, collection string) (int64, error) {
	return c.rdb.HLen(ctx, CollectionKey(tenant, collection)).Result()
}

// WriteBatches commits docs into a tenant's collection in pipeline batches of
// at most batchSize documents. Batches are committed concurrently; each batch
// applies atomically, and the call returns once every batch has succeeded.
func (c *Client) WriteBatches(ctx context.Context, tenant, collection string, docs []Doc, batchSize int) error {
	if len(docs) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = len(docs)
	}

	key := CollectionKey(tenant, collection)
	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(docs); start += batchSize {
		end := start + batchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[start:end]
		g.Go(func() error {
			pipe := c.rdb.TxPipeline()
			for _, d := range batch {
				pipe.HSet(gctx, key, d.ID, d.Data)
			}
			if _, err := pipe.Exec(gctx); err != nil {
				return fmt.Errorf("batch commit of %d docs to %s failed: %w", len(batch), key, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// PutTenant stores a tenant settings document and registers its id.
func (c *Client) PutTenant(ctx context.Context, t *record.Tenant) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, TenantDocKey(t.ID), data, 0).Err(); err != nil {
		return err
	}
	return c.rdb.SAdd(ctx, tenantSetKey, t.ID).Err()
}

// GetTenantRaw returns the raw tenant document, or ok=false when absent.
func (c *Client) GetTenantRaw(ctx context.Context, tenant string) ([]byte, bool, error) {
	data, err := c.rdb.Get(ctx, TenantDocKey(tenant)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// GetTenant returns the decoded tenant document, or ok=false when absent.
func (c *Client) GetTenant(ctx context.Context, tenant string) (*record.Tenant, bool, error) {
	data, ok, err := c.GetTenantRaw(ctx, tenant)
	if err != nil || !ok {
		return nil, ok, err
	}
	var t record.Tenant
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, false, fmt.Errorf("corrupt tenant document %s: %w", tenant, err)
	}
	return &t, true, nil
}

// ListTenantIDs returns every registered tenant id.
func (c *Client) ListTenantIDs(ctx context.Context) ([]string, error) {
	return c.rdb.SMembers(ctx, tenantSetKey).Result()
}

// PutSlug stores a slug mapping document.
func (c *Client) PutSlug(ctx context.Context, m *record.SlugMapping) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, SlugDocKey(m.Slug), data, 0).Err()
}

// GetSlug returns the slug mapping document, or ok=false when absent.
func (c *Client) GetSlug(ctx context.Context, slug string) (*record.SlugMapping, bool, error) {
	data, err := c.rdb.Get(ctx, SlugDocKey(slug)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var m record.SlugMapping
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false, fmt.Errorf("corrupt slug document %s: %w", slug, err)
	}
	return &m, true, nil
}

// GetPhoneIndex returns the phone index document, or ok=false when absent.
func (c *Client) GetPhoneIndex(ctx context.Context, phone string) (*record.PhoneIndexDoc, bool, error) {
	data, err := c.rdb.Get(ctx, PhoneDocKey(phone)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var doc record.PhoneIndexDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, false, fmt.Errorf("corrupt phone index document %s: %w", phone, err)
	}
	return &doc, true, nil
}

// PutPhoneIndex stores a phone index document.
func (c *Client) PutPhoneIndex(ctx context.Context, doc *record.PhoneIndexDoc) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, PhoneDocKey(doc.Phone), data, 0).Err()
}

// UpdatePhoneIndexCAS applies mutate to the phone index document under an
// optimistic WATCH. A concurrent writer aborts the transaction; the update is
// retried a bounded number of times before giving up.
func (c *Client) UpdatePhoneIndexCAS(ctx context.Context, phone string, mutate func(*record.PhoneIndexDoc)) error {
	key := PhoneDocKey(phone)
	const maxRetries = 3

	txf := func(tx *redis.Tx) error {
		doc := &record.PhoneIndexDoc{Phone: phone}
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			if uerr := json.Unmarshal(data, doc); uerr != nil {
				doc = &record.PhoneIndexDoc{Phone: phone}
			}
		}
		mutate(doc)
		out, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxRetries; i++ {
		err := c.rdb.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			c.logger.Debug("phone index CAS conflict, retrying", zap.String("phone", phone))
			continue
		}
		return err
	}
	return fmt.Errorf("phone index update for %s kept conflicting", phone)
}

// FetchFlatCollection reads a legacy flat (un-scoped) remote collection.
func (c *Client) FetchFlatCollection(ctx context.Context, collection string) (map[string]string, error) {
	return c.rdb.HGetAll(ctx, collection).Result()
}

// Ping probes remote connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

package cnst

// Local key scheme. Every locally persisted value lives under a "physio_"
// prefixed key so the store can enumerate its own keys next to unrelated data.
const localPrefix = "physio_"

// CollectionKey returns the local key for a tenant-scoped collection.
func CollectionKey(tenant, collection string) string {
	return localPrefix + tenant + "_" + collection
}

// ClinicKey returns the local key for a tenant's settings record.
func ClinicKey(tenant string) string {
	return localPrefix + "clinic_" + tenant
}

// SlugKey returns the local key caching a slug-to-tenant mapping.
func SlugKey(code string) string {
	return localPrefix + "slug_" + code
}

// FlagKey returns the local key for a one-shot migration or version flag.
func FlagKey(name string) string {
	return localPrefix + name
}

// LegacyCollectionKey returns the pre-multi-tenant flat key for a collection.
// Keys of this shape are what the legacy migration looks for.
func LegacyCollectionKey(collection string) string {
	return localPrefix + collection
}

// One-shot migration flags checked on every boot.
const (
	FlagLegacyMigrated = "migrated_multitenant"
	FlagRemoteMigrated = "migrated_remote"
)

// Redis cluster types for the remote client, matching config values.
const (
	RedisClusterTypeSingle   = "single"
	RedisClusterTypeCluster  = "cluster"
	RedisClusterTypeSentinel = "sentinel"
)

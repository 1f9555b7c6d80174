package config

type (
	// RemoteConfig configures the remote document store connection. When Addr
	// is empty the application runs local-only and every sync operation
	// reports the remote as unavailable.
	RemoteConfig struct {
		ClusterType string `yaml:"cluster_type"` // single, cluster or sentinel
		Addr        string `yaml:"addr"`         // address list, ";" or "," separated
		MasterName  string `yaml:"master_name"`  // sentinel master name
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		DB          int    `yaml:"db"`
	}

	// SyncConfig bounds the cloud sync engine.
	SyncConfig struct {
		BatchSize       int  `yaml:"batch_size"`        // max documents per batch commit, headroom below remote limit
		MirrorQueueSize int  `yaml:"mirror_queue_size"` // buffered capacity of the background mirror queue
		PhoneIndexCAS   bool `yaml:"phone_index_cas"`   // guard phone index writes with compare-and-swap
	}
)

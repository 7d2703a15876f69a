package store

import "time"

// Config holds configuration for the Store.
type Config struct {
	// RegistryTable holds one record per registry plus deployer nonce counters.
	// Default: "fgo_registries"
	RegistryTable string

	// ChildTable holds child template records.
	// Default: "fgo_child_templates"
	ChildTable string

	// ParentTable holds parent template records. Its stream feeds the
	// burn cascade handler.
	// Default: "fgo_parent_templates"
	ParentTable string

	// RelationshipTable links parent templates to the child templates they
	// were created from.
	// Default: "fgo_relationships"
	RelationshipTable string

	// NumShards is the number of shards for the relationship table.
	// Higher values increase write throughput but require more parallel queries.
	// Default: 1 (no sharding, single query)
	// Max: 256
	NumShards int

	// BurnRetention is how long a burned parent template stays readable
	// before DynamoDB TTL expires it.
	// Default: 30 days
	BurnRetention time.Duration
}

// DefaultConfig returns sensible defaults for small datasets.
func DefaultConfig() Config {
	return Config{
		RegistryTable:     "fgo_registries",
		ChildTable:        "fgo_child_templates",
		ParentTable:       "fgo_parent_templates",
		RelationshipTable: "fgo_relationships",
		NumShards:         1,
		BurnRetention:     30 * 24 * time.Hour,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	def := DefaultConfig()
	if c.RegistryTable == "" {
		c.RegistryTable = def.RegistryTable
	}
	if c.ChildTable == "" {
		c.ChildTable = def.ChildTable
	}
	if c.ParentTable == "" {
		c.ParentTable = def.ParentTable
	}
	if c.RelationshipTable == "" {
		c.RelationshipTable = def.RelationshipTable
	}
	if c.NumShards < 1 {
		c.NumShards = 1
	}
	if c.NumShards > 256 {
		c.NumShards = 256
	}
	if c.BurnRetention < 0 {
		c.BurnRetention = 0
	}
}

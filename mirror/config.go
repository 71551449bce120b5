package mirror

import "github.com/jacentio/tablekv/internal/shard"

// Config holds configuration for the Mirror.
type Config struct {
	// Table is the DynamoDB table holding the mirrored catalog and records.
	// It needs a string partition key "pk" and a string sort key "sk".
	// Default: "tablekv_records"
	Table string

	// NumShards is the number of partitions each store table is spread over.
	// Higher values increase write throughput per table but make Load issue
	// more parallel queries.
	// Default: 1 (no sharding, single query per table)
	// Max: 256
	NumShards int

	// MaxTransactItems caps the items sent in one TransactWriteItems call.
	// Updates needing more items fail with ErrTooLarge, except table drops,
	// which are split across several transactions.
	// Default: 100 (the DynamoDB limit)
	MaxTransactItems int
}

// DefaultConfig returns sensible defaults for small datasets.
func DefaultConfig() Config {
	return Config{
		Table:            "tablekv_records",
		NumShards:        1,
		MaxTransactItems: 100,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.Table == "" {
		c.Table = "tablekv_records"
	}
	c.NumShards = shard.Clamp(c.NumShards)
	if c.MaxTransactItems < 1 || c.MaxTransactItems > 100 {
		c.MaxTransactItems = 100
	}
}

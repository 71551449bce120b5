// Package shard provides partition key generation for the DynamoDB mirror table.
package shard

import (
	"fmt"
	"hash/fnv"
)

// CatalogPK is the partition key holding one item per table. Table names
// never contain "|", so it cannot collide with a record partition.
const CatalogPK = "|tables"

// PartitionKey computes the sharded partition key for a record.
// With numShards=1, every record of a table goes to shard "00".
// With numShards>1, records are distributed across shards based on the key hash.
func PartitionKey(table, key string, numShards int) string {
	if numShards <= 1 {
		return ShardPK(table, 0)
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	return ShardPK(table, int(h.Sum32()%uint32(numShards)))
}

// ShardPK returns the partition key of one shard of a table.
func ShardPK(table string, shard int) string {
	return fmt.Sprintf("%s|%02x", table, shard)
}

// Clamp bounds a shard count to 1..256.
func Clamp(numShards int) int {
	if numShards < 1 {
		return 1
	}
	if numShards > 256 {
		return 256
	}
	return numShards
}

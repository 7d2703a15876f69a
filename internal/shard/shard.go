// Package shard spreads the relationship records of one parent template
// across DynamoDB partitions.
package shard

import (
	"fmt"
	"hash/fnv"
)

// RelationshipPK computes the sharded partition key for a relationship record.
// With numShards=1, all records go to shard "00".
// With numShards>1, records are distributed across shards based on childRef hash.
func RelationshipPK(parentRef, childRef string, numShards int) string {
	return PartitionKey(parentRef, Of(childRef, numShards))
}

// Of returns the shard a child reference is assigned to.
func Of(childRef string, numShards int) int {
	if numShards <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(childRef))
	return int(h.Sum32() % uint32(numShards))
}

// PartitionKey formats the partition key of one shard of a parent.
func PartitionKey(parentRef string, shard int) string {
	return fmt.Sprintf("%s#%02x", parentRef, shard)
}

// PartitionKeys returns every partition key a parent's relationships may
// live under, in shard order.
func PartitionKeys(parentRef string, numShards int) []string {
	if numShards < 1 {
		numShards = 1
	}
	keys := make([]string, numShards)
	for i := range keys {
		keys[i] = PartitionKey(parentRef, i)
	}
	return keys
}

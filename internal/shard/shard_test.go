package shard

import (
	"fmt"
	"strings"
	"testing"
)

const jacketRef = "parent#0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512#1"

func TestRelationshipPK_SingleShard(t *testing.T) {
	// With numShards=1, all records should go to shard "00"
	tests := []struct {
		parentRef string
		childRef  string
		expected  string
	}{
		{jacketRef, "child#0x5FbDB2315678afecb367f032d93F642f64180aa3#1", jacketRef + "#00"},
		{jacketRef, "child#0x5FbDB2315678afecb367f032d93F642f64180aa3#2", jacketRef + "#00"},
		{"parent#p2", "child#c1", "parent#p2#00"},
	}

	for _, tt := range tests {
		result := RelationshipPK(tt.parentRef, tt.childRef, 1)
		if result != tt.expected {
			t.Errorf("RelationshipPK(%q, %q, 1) = %q, want %q",
				tt.parentRef, tt.childRef, result, tt.expected)
		}
	}
}

func TestRelationshipPK_ZeroShards(t *testing.T) {
	// Zero or negative shards should be treated as 1
	for _, n := range []int{0, -1} {
		result := RelationshipPK("parent#p1", "child#c1", n)
		if result != "parent#p1#00" {
			t.Errorf("numShards=%d: expected 'parent#p1#00', got %q", n, result)
		}
	}
}

func TestRelationshipPK_Distribution(t *testing.T) {
	tests := []struct {
		numShards int
		minUnique int
	}{
		{numShards: 16, minUnique: 8},
		{numShards: 256, minUnique: 10},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d shards", tt.numShards), func(t *testing.T) {
			seen := make(map[string]int)
			for id := 1; id <= 1000; id++ {
				childRef := fmt.Sprintf("child#0x5FbDB2315678afecb367f032d93F642f64180aa3#%d", id)
				pk := RelationshipPK(jacketRef, childRef, tt.numShards)
				if !strings.HasPrefix(pk, jacketRef+"#") {
					t.Fatalf("expected prefix %q#, got %q", jacketRef, pk)
				}
				seen[pk[len(jacketRef)+1:]]++
			}
			if len(seen) < tt.minUnique {
				t.Errorf("expected at least %d shards in use, got %d", tt.minUnique, len(seen))
			}
		})
	}
}

func TestRelationshipPK_Deterministic(t *testing.T) {
	first := RelationshipPK(jacketRef, "child#c1", 256)
	for i := 0; i < 100; i++ {
		if result := RelationshipPK(jacketRef, "child#c1", 256); result != first {
			t.Errorf("expected deterministic result %q, got %q on iteration %d", first, result, i)
		}
	}
}

func TestRelationshipPK_HexFormat(t *testing.T) {
	result := RelationshipPK(jacketRef, "child#test", 256)
	shard := result[strings.LastIndex(result, "#")+1:]
	if len(shard) != 2 {
		t.Errorf("expected 2-character shard, got %q", shard)
	}
	for _, c := range shard {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			t.Errorf("expected hex character, got %c", c)
		}
	}
}

func TestRelationshipPK_SameChildDifferentParent(t *testing.T) {
	pk1 := RelationshipPK("parent#p1", "child#c1", 256)
	pk2 := RelationshipPK("parent#p2", "child#c1", 256)
	if pk1 == pk2 {
		t.Error("expected different PKs for different parents")
	}
}

func TestOf_WithinRange(t *testing.T) {
	for _, numShards := range []int{2, 4, 16, 256} {
		for id := 0; id < 200; id++ {
			s := Of(fmt.Sprintf("child#c%d", id), numShards)
			if s < 0 || s >= numShards {
				t.Fatalf("numShards=%d: shard %d out of range", numShards, s)
			}
		}
	}
}

func TestPartitionKeys(t *testing.T) {
	tests := []struct {
		numShards int
		expected  []string
	}{
		{numShards: 0, expected: []string{"parent#p1#00"}},
		{numShards: 1, expected: []string{"parent#p1#00"}},
		{numShards: 3, expected: []string{"parent#p1#00", "parent#p1#01", "parent#p1#02"}},
	}

	for _, tt := range tests {
		got := PartitionKeys("parent#p1", tt.numShards)
		if strings.Join(got, ",") != strings.Join(tt.expected, ",") {
			t.Errorf("PartitionKeys(%d) = %v, want %v", tt.numShards, got, tt.expected)
		}
	}

	if keys := PartitionKeys("parent#p1", 256); keys[255] != "parent#p1#ff" {
		t.Errorf("expected last key 'parent#p1#ff', got %q", keys[255])
	}
}

func TestPartitionKeys_CoverEveryRelationship(t *testing.T) {
	keys := make(map[string]bool)
	for _, k := range PartitionKeys(jacketRef, 16) {
		keys[k] = true
	}
	for id := 0; id < 500; id++ {
		pk := RelationshipPK(jacketRef, fmt.Sprintf("child#c%d", id), 16)
		if !keys[pk] {
			t.Fatalf("relationship key %q not among partition keys", pk)
		}
	}
}

func BenchmarkRelationshipPK_SingleShard(b *testing.B) {
	childRef := "child#0x5FbDB2315678afecb367f032d93F642f64180aa3#1"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		RelationshipPK(jacketRef, childRef, 1)
	}
}

func BenchmarkRelationshipPK_256Shards(b *testing.B) {
	childRef := "child#0x5FbDB2315678afecb367f032d93F642f64180aa3#1"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		RelationshipPK(jacketRef, childRef, 256)
	}
}

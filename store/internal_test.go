package store

import (
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/go-cmp/cmp"

	"github.com/jacentio/fgo/ledger"
)

var (
	childAddr  = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	parentAddr = common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
	alice      = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	bob        = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

// --- Entity reference Tests ---

func TestRefs(t *testing.T) {
	if got := ParentRef(parentAddr, 1); got != "parent#0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512#1" {
		t.Errorf("unexpected parent ref %q", got)
	}
	if got := ChildTemplateRef(childAddr, 12); got != "child#0x5FbDB2315678afecb367f032d93F642f64180aa3#12" {
		t.Errorf("unexpected child ref %q", got)
	}
	if got := ParentRefFromKey(templateKey(parentAddr, 1)); got != ParentRef(parentAddr, 1) {
		t.Errorf("expected ParentRefFromKey to invert templateKey, got %q", got)
	}
	if got := ParentRefFromKey(PK{}); got != "" {
		t.Errorf("expected empty ref for empty key, got %q", got)
	}
}

// --- Record conversion Tests ---

func TestRegistryRecord_RoundTrip(t *testing.T) {
	state := ledger.RegistryState{
		Kind:           ledger.KindParent,
		Address:        parentAddr,
		Owner:          alice,
		Name:           ledger.DefaultParentName,
		Symbol:         ledger.DefaultParentSymbol,
		TokenIDPointer: 3,
		ChildContract:  childAddr,
		Operators:      []ledger.OperatorApproval{{Owner: alice, Operator: bob}},
		Version:        4,
	}

	rec := toRegistryRecord(state, time.Unix(0, 0))
	if rec.ChildContract != childAddr.Hex() {
		t.Errorf("expected child_contract %s, got %q", childAddr.Hex(), rec.ChildContract)
	}

	got, err := rec.state()
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if diff := cmp.Diff(state, got); diff != "" {
		t.Errorf("registry mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistryRecord_ChildHasNoChildContract(t *testing.T) {
	rec := toRegistryRecord(ledger.RegistryState{Kind: ledger.KindChild, Address: childAddr, Owner: alice}, time.Now())
	if rec.ChildContract != "" {
		t.Errorf("expected empty child_contract, got %q", rec.ChildContract)
	}
	state, err := rec.state()
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.ChildContract != ledger.ZeroAddress {
		t.Errorf("expected zero child contract, got %s", state.ChildContract.Hex())
	}
}

func TestChildRecord_RoundTrip(t *testing.T) {
	tmpl := ledger.ChildTemplate{
		Registry: childAddr,
		TokenID:  2,
		Name:     "rightArm",
		ImageURI: "data:image/svg+xml;base64,PHN2Zy8+",
		TokenURI: "data:application/json;base64,e30=",
		Amount:   5,
		Owner:    bob,
		Balances: map[ledger.Address]uint64{alice: 2, bob: 3},
		Version:  3,
	}

	rec := toChildRecord(tmpl, time.Now())
	if rec.EntityRef != ChildTemplateRef(childAddr, 2) {
		t.Errorf("unexpected entity_ref %q", rec.EntityRef)
	}

	got, err := rec.template()
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	if diff := cmp.Diff(tmpl, got); diff != "" {
		t.Errorf("child template mismatch (-want +got):\n%s", diff)
	}
}

func TestChildRecord_BurnedOwner(t *testing.T) {
	rec := toChildRecord(ledger.ChildTemplate{Registry: childAddr, TokenID: 1}, time.Now())
	if rec.Owner != "" {
		t.Errorf("expected empty owner for burned template, got %q", rec.Owner)
	}
	tmpl, err := rec.template()
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	if !tmpl.Burned() {
		t.Error("expected restored template to be burned")
	}
}

func TestChildRecord_CorruptBalance(t *testing.T) {
	rec := childRecord{Registry: childAddr.Hex(), Balances: map[string]uint64{"not-an-address": 1}}
	if _, err := rec.template(); !errors.Is(err, ErrCorruptRecord) {
		t.Errorf("expected ErrCorruptRecord, got %v", err)
	}
}

func TestParentRecord_Burned(t *testing.T) {
	s := &Store{config: Config{BurnRetention: time.Hour}}
	burnedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tmpl := ledger.ParentTemplate{
		Registry:      parentAddr,
		TokenID:       1,
		Name:          "long sleeve jacket",
		ChildTokenIDs: []uint64{1, 2},
		BurnedAt:      burnedAt,
		Version:       3,
	}

	rec := s.toParentRecord(tmpl, time.Now())
	if rec.TTL != burnedAt.Add(time.Hour).Unix() {
		t.Errorf("expected ttl %d, got %d", burnedAt.Add(time.Hour).Unix(), rec.TTL)
	}
	if rec.BurnedAt != "2024-03-01T12:00:00Z" {
		t.Errorf("unexpected burned_at %q", rec.BurnedAt)
	}

	got, err := rec.template()
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	if diff := cmp.Diff(tmpl, got); diff != "" {
		t.Errorf("parent template mismatch (-want +got):\n%s", diff)
	}
}

func TestParentRecord_LiveHasNoTTL(t *testing.T) {
	s := &Store{config: DefaultConfig()}
	rec := s.toParentRecord(ledger.ParentTemplate{Registry: parentAddr, TokenID: 1, Owner: alice, Approved: bob}, time.Now())
	if rec.TTL != 0 || rec.BurnedAt != "" {
		t.Errorf("expected no ttl or burned_at, got %d %q", rec.TTL, rec.BurnedAt)
	}
	if rec.Approved != bob.Hex() {
		t.Errorf("expected approved %s, got %q", bob.Hex(), rec.Approved)
	}
}

func TestParentRecord_CorruptBurnedAt(t *testing.T) {
	rec := parentRecord{Registry: parentAddr.Hex(), BurnedAt: "yesterday"}
	if _, err := rec.template(); !errors.Is(err, ErrCorruptRecord) {
		t.Errorf("expected ErrCorruptRecord, got %v", err)
	}
}

// --- versionedPut Tests ---

func TestVersionedPut_New(t *testing.T) {
	item := versionedPut("t", map[string]types.AttributeValue{}, 1)
	if got := aws.ToString(item.Put.ConditionExpression); got != "attribute_not_exists(id)" {
		t.Errorf("expected attribute_not_exists(id), got %q", got)
	}
	if item.Put.ExpressionAttributeValues != nil {
		t.Error("expected no expression values for a new record")
	}
}

func TestVersionedPut_Existing(t *testing.T) {
	item := versionedPut("t", map[string]types.AttributeValue{}, 5)
	if got := aws.ToString(item.Put.ConditionExpression); got != "#version = :expected_version" {
		t.Errorf("expected version condition, got %q", got)
	}
	v, ok := item.Put.ExpressionAttributeValues[":expected_version"].(*types.AttributeValueMemberN)
	if !ok || v.Value != "4" {
		t.Errorf("expected :expected_version 4, got %v", item.Put.ExpressionAttributeValues[":expected_version"])
	}
}

// --- mapTransactionError Tests ---

func TestMapTransactionError_NilError(t *testing.T) {
	s := &Store{}
	if err := s.mapTransactionError(nil, nil); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestMapTransactionError_NonTransactionError(t *testing.T) {
	s := &Store{}
	originalErr := errors.New("some other error")
	if err := s.mapTransactionError(originalErr, nil); err != originalErr {
		t.Errorf("expected original error, got %v", err)
	}
}

func TestMapTransactionError_Reasons(t *testing.T) {
	failed := "ConditionalCheckFailed"
	conflict := "TransactionConflict"
	none := "None"
	refs := []itemRef{{id: "registry", isNew: false}, {id: "child#1", isNew: true}}

	tests := []struct {
		name    string
		reasons []types.CancellationReason
		want    error
	}{
		{"existing record", []types.CancellationReason{{Code: &failed}, {Code: &none}}, ErrConcurrentModification},
		{"new record", []types.CancellationReason{{Code: &none}, {Code: &failed}}, ErrAlreadyExists},
		{"first failure wins", []types.CancellationReason{{Code: &failed}, {Code: &failed}}, ErrConcurrentModification},
		{"nil code skipped", []types.CancellationReason{{Code: nil}, {Code: &failed}}, ErrAlreadyExists},
		{"other code", []types.CancellationReason{{Code: &conflict}, {Code: &none}}, nil},
	}

	s := &Store{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txErr := &types.TransactionCanceledException{CancellationReasons: tt.reasons}
			err := s.mapTransactionError(txErr, refs)
			if tt.want == nil {
				if err != txErr {
					t.Errorf("expected original error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

// --- unmarshalChildRef Tests ---

func TestUnmarshalChildRef_Full(t *testing.T) {
	item := map[string]types.AttributeValue{
		"child_ref":   &types.AttributeValueMemberS{Value: "child#c123"},
		"child_table": &types.AttributeValueMemberS{Value: "fgo_child_templates"},
		"child_key": &types.AttributeValueMemberM{
			Value: map[string]types.AttributeValue{
				"id": &types.AttributeValueMemberS{Value: "c123"},
			},
		},
	}
	shardPK := "parent#p123#00"

	ref := unmarshalChildRef(item, shardPK)

	if ref.Ref != "child#c123" {
		t.Errorf("expected Ref 'child#c123', got %q", ref.Ref)
	}
	if ref.TableName != "fgo_child_templates" {
		t.Errorf("expected TableName 'fgo_child_templates', got %q", ref.TableName)
	}
	if ref.ShardPK != shardPK {
		t.Errorf("expected ShardPK %q, got %q", shardPK, ref.ShardPK)
	}
	if v, ok := ref.Key["id"].(*types.AttributeValueMemberS); !ok || v.Value != "c123" {
		t.Error("expected Key[id] to be 'c123'")
	}
}

func TestUnmarshalChildRef_Minimal(t *testing.T) {
	ref := unmarshalChildRef(map[string]types.AttributeValue{}, "parent#p123#00")

	if ref.Ref != "" || ref.TableName != "" {
		t.Errorf("expected empty ref, got %+v", ref)
	}
	if ref.Key != nil {
		t.Error("expected nil Key")
	}
}

func TestUnmarshalChildRef_WrongKeyType(t *testing.T) {
	item := map[string]types.AttributeValue{
		"child_ref": &types.AttributeValueMemberS{Value: "child#c123"},
		"child_key": &types.AttributeValueMemberS{Value: "not-a-map"},
	}

	ref := unmarshalChildRef(item, "parent#p1#00")
	if ref.Key != nil {
		t.Error("expected nil Key when child_key is wrong type")
	}
}

// --- Config.validate Tests ---

func TestConfigValidate_Defaults(t *testing.T) {
	cfg := Config{}
	cfg.validate()

	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigValidate_Clamps(t *testing.T) {
	tests := []struct {
		name          string
		in            Config
		wantShards    int
		wantRetention time.Duration
	}{
		{"zero shards", Config{NumShards: 0, BurnRetention: time.Hour}, 1, time.Hour},
		{"negative shards", Config{NumShards: -5, BurnRetention: time.Hour}, 1, time.Hour},
		{"over max", Config{NumShards: 1000, BurnRetention: time.Hour}, 256, time.Hour},
		{"at max", Config{NumShards: 256, BurnRetention: time.Hour}, 256, time.Hour},
		{"negative retention", Config{NumShards: 4, BurnRetention: -time.Hour}, 4, 0},
		{"zero retention", Config{NumShards: 4}, 4, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.in
			cfg.validate()
			if cfg.NumShards != tt.wantShards {
				t.Errorf("expected NumShards %d, got %d", tt.wantShards, cfg.NumShards)
			}
			if cfg.BurnRetention != tt.wantRetention {
				t.Errorf("expected BurnRetention %v, got %v", tt.wantRetention, cfg.BurnRetention)
			}
		})
	}
}

func TestConfigValidate_PreservesCustomTableNames(t *testing.T) {
	cfg := Config{
		RegistryTable:     "registries",
		ChildTable:        "children",
		ParentTable:       "parents",
		RelationshipTable: "links",
	}
	cfg.validate()

	if cfg.RegistryTable != "registries" || cfg.ChildTable != "children" ||
		cfg.ParentTable != "parents" || cfg.RelationshipTable != "links" {
		t.Errorf("expected custom table names preserved, got %+v", cfg)
	}
}

func TestStore_RelationshipPK(t *testing.T) {
	s := &Store{config: Config{NumShards: 16}}
	parentRef := ParentRef(parentAddr, 1)

	pk := s.relationshipPK(parentRef, ChildTemplateRef(childAddr, 1))
	if len(pk) != len(parentRef)+3 {
		t.Errorf("expected shard suffix on %q, got %q", parentRef, pk)
	}
	if pk != s.relationshipPK(parentRef, ChildTemplateRef(childAddr, 1)) {
		t.Error("expected deterministic relationship key")
	}
}

// --- TTL Tests ---

func TestExpiredAt(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tests := []struct {
		name     string
		item     map[string]types.AttributeValue
		expected bool
	}{
		{"no TTL attribute", map[string]types.AttributeValue{}, false},
		{"nil item", nil, false},
		{"TTL in past", map[string]types.AttributeValue{
			"ttl": &types.AttributeValueMemberN{Value: "1000000000"},
		}, true},
		{"TTL at now", map[string]types.AttributeValue{
			"ttl": &types.AttributeValueMemberN{Value: "1700000000"},
		}, true},
		{"TTL in future", map[string]types.AttributeValue{
			"ttl": &types.AttributeValueMemberN{Value: "1700003600"},
		}, false},
		{"zero TTL", map[string]types.AttributeValue{
			"ttl": &types.AttributeValueMemberN{Value: "0"},
		}, true},
		{"wrong type", map[string]types.AttributeValue{
			"ttl": &types.AttributeValueMemberS{Value: "not-a-number"},
		}, false},
		{"unparseable", map[string]types.AttributeValue{
			"ttl": &types.AttributeValueMemberN{Value: "invalid"},
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := expiredAt(tt.item, now); result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

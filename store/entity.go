package store

import (
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/fgo/ledger"
)

// PK represents a DynamoDB primary key.
type PK map[string]types.AttributeValue

// ChildRef represents a reference to a child template in the relationship table.
type ChildRef struct {
	// Ref is the child's entity reference.
	Ref string

	// TableName is the DynamoDB table containing the child.
	TableName string

	// Key is the primary key to locate the child.
	Key PK

	// ShardPK is the relationship table partition key (for TTL updates).
	ShardPK string
}

// ParentRef returns the entity reference of a parent template,
// e.g. "parent#0xe7f1...0512#1".
func ParentRef(registry ledger.Address, tokenID uint64) string {
	return "parent#" + templateID(registry, tokenID)
}

// ChildTemplateRef returns the entity reference of a child template.
func ChildTemplateRef(registry ledger.Address, tokenID uint64) string {
	return "child#" + templateID(registry, tokenID)
}

// ParentRefFromKey rebuilds a parent entity reference from a parent table key.
func ParentRefFromKey(key PK) string {
	if v, ok := key["id"].(*types.AttributeValueMemberS); ok && v.Value != "" {
		return "parent#" + v.Value
	}
	return ""
}

// templateID is the table key of a template: registry address and token id.
func templateID(registry ledger.Address, tokenID uint64) string {
	return registry.Hex() + "#" + strconv.FormatUint(tokenID, 10)
}

func templateKey(registry ledger.Address, tokenID uint64) PK {
	return PK{"id": &types.AttributeValueMemberS{Value: templateID(registry, tokenID)}}
}

func nonceID(account ledger.Address) string {
	return "nonce#" + account.Hex()
}

type operatorRecord struct {
	Owner    string `dynamodbav:"owner"`
	Operator string `dynamodbav:"operator"`
}

type registryRecord struct {
	ID             string           `dynamodbav:"id"`
	Kind           string           `dynamodbav:"kind"`
	Owner          string           `dynamodbav:"owner"`
	Name           string           `dynamodbav:"name"`
	Symbol         string           `dynamodbav:"symbol"`
	TokenIDPointer uint64           `dynamodbav:"token_id_pointer"`
	ChildContract  string           `dynamodbav:"child_contract,omitempty"`
	Operators      []operatorRecord `dynamodbav:"operators,omitempty"`
	Version        int64            `dynamodbav:"version"`
	UpdatedAt      string           `dynamodbav:"updated_at"`
}

type childRecord struct {
	ID        string            `dynamodbav:"id"`
	EntityRef string            `dynamodbav:"entity_ref"`
	Registry  string            `dynamodbav:"registry"`
	TokenID   uint64            `dynamodbav:"token_id"`
	Name      string            `dynamodbav:"name"`
	ImageURI  string            `dynamodbav:"image_uri"`
	TokenURI  string            `dynamodbav:"token_uri"`
	Amount    uint64            `dynamodbav:"amount"`
	Owner     string            `dynamodbav:"owner"`
	Balances  map[string]uint64 `dynamodbav:"balances"`
	Version   int64             `dynamodbav:"version"`
	UpdatedAt string            `dynamodbav:"updated_at"`
}

type parentRecord struct {
	ID            string   `dynamodbav:"id"`
	EntityRef     string   `dynamodbav:"entity_ref"`
	Registry      string   `dynamodbav:"registry"`
	TokenID       uint64   `dynamodbav:"token_id"`
	Name          string   `dynamodbav:"name"`
	ImageURI      string   `dynamodbav:"image_uri"`
	TokenURI      string   `dynamodbav:"token_uri"`
	ChildTokenIDs []uint64 `dynamodbav:"child_token_ids"`
	Owner         string   `dynamodbav:"owner"`
	Approved      string   `dynamodbav:"approved,omitempty"`
	BurnedAt      string   `dynamodbav:"burned_at,omitempty"`
	TTL           int64    `dynamodbav:"ttl,omitempty"`
	Version       int64    `dynamodbav:"version"`
	UpdatedAt     string   `dynamodbav:"updated_at"`
}

// addressString leaves the zero address out of stored records.
func addressString(a ledger.Address) string {
	if a == ledger.ZeroAddress {
		return ""
	}
	return a.Hex()
}

func parseAddress(field, s string) (ledger.Address, error) {
	if s == "" {
		return ledger.ZeroAddress, nil
	}
	a, err := ledger.ParseAddress(s)
	if err != nil {
		return ledger.ZeroAddress, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, field, err)
	}
	return a, nil
}

func toRegistryRecord(s ledger.RegistryState, now time.Time) registryRecord {
	rec := registryRecord{
		ID:             s.Address.Hex(),
		Kind:           string(s.Kind),
		Owner:          s.Owner.Hex(),
		Name:           s.Name,
		Symbol:         s.Symbol,
		TokenIDPointer: s.TokenIDPointer,
		ChildContract:  addressString(s.ChildContract),
		Version:        s.Version,
		UpdatedAt:      now.UTC().Format(time.RFC3339),
	}
	for _, op := range s.Operators {
		rec.Operators = append(rec.Operators, operatorRecord{Owner: op.Owner.Hex(), Operator: op.Operator.Hex()})
	}
	return rec
}

func (r registryRecord) state() (ledger.RegistryState, error) {
	s := ledger.RegistryState{
		Kind:           ledger.RegistryKind(r.Kind),
		Name:           r.Name,
		Symbol:         r.Symbol,
		TokenIDPointer: r.TokenIDPointer,
		Version:        r.Version,
	}
	var err error
	if s.Address, err = parseAddress("id", r.ID); err != nil {
		return s, err
	}
	if s.Owner, err = parseAddress("owner", r.Owner); err != nil {
		return s, err
	}
	if s.ChildContract, err = parseAddress("child_contract", r.ChildContract); err != nil {
		return s, err
	}
	for _, op := range r.Operators {
		owner, err := parseAddress("operators.owner", op.Owner)
		if err != nil {
			return s, err
		}
		operator, err := parseAddress("operators.operator", op.Operator)
		if err != nil {
			return s, err
		}
		s.Operators = append(s.Operators, ledger.OperatorApproval{Owner: owner, Operator: operator})
	}
	return s, nil
}

func toChildRecord(t ledger.ChildTemplate, now time.Time) childRecord {
	rec := childRecord{
		ID:        templateID(t.Registry, t.TokenID),
		EntityRef: ChildTemplateRef(t.Registry, t.TokenID),
		Registry:  t.Registry.Hex(),
		TokenID:   t.TokenID,
		Name:      t.Name,
		ImageURI:  t.ImageURI,
		TokenURI:  t.TokenURI,
		Amount:    t.Amount,
		Owner:     addressString(t.Owner),
		Balances:  make(map[string]uint64, len(t.Balances)),
		Version:   t.Version,
		UpdatedAt: now.UTC().Format(time.RFC3339),
	}
	for holder, n := range t.Balances {
		rec.Balances[holder.Hex()] = n
	}
	return rec
}

func (r childRecord) template() (ledger.ChildTemplate, error) {
	t := ledger.ChildTemplate{
		TokenID:  r.TokenID,
		Name:     r.Name,
		ImageURI: r.ImageURI,
		TokenURI: r.TokenURI,
		Amount:   r.Amount,
		Balances: make(map[ledger.Address]uint64, len(r.Balances)),
		Version:  r.Version,
	}
	var err error
	if t.Registry, err = parseAddress("registry", r.Registry); err != nil {
		return t, err
	}
	if t.Owner, err = parseAddress("owner", r.Owner); err != nil {
		return t, err
	}
	for holder, n := range r.Balances {
		a, err := parseAddress("balances", holder)
		if err != nil {
			return t, err
		}
		t.Balances[a] = n
	}
	return t, nil
}

func (s *Store) toParentRecord(t ledger.ParentTemplate, now time.Time) parentRecord {
	rec := parentRecord{
		ID:            templateID(t.Registry, t.TokenID),
		EntityRef:     ParentRef(t.Registry, t.TokenID),
		Registry:      t.Registry.Hex(),
		TokenID:       t.TokenID,
		Name:          t.Name,
		ImageURI:      t.ImageURI,
		TokenURI:      t.TokenURI,
		ChildTokenIDs: append([]uint64{}, t.ChildTokenIDs...),
		Owner:         addressString(t.Owner),
		Approved:      addressString(t.Approved),
		Version:       t.Version,
		UpdatedAt:     now.UTC().Format(time.RFC3339),
	}
	if !t.BurnedAt.IsZero() {
		rec.BurnedAt = t.BurnedAt.UTC().Format(time.RFC3339)
		rec.TTL = burnTTL(t.BurnedAt, s.config.BurnRetention)
	}
	return rec
}

func (r parentRecord) template() (ledger.ParentTemplate, error) {
	t := ledger.ParentTemplate{
		TokenID:       r.TokenID,
		Name:          r.Name,
		ImageURI:      r.ImageURI,
		TokenURI:      r.TokenURI,
		ChildTokenIDs: r.ChildTokenIDs,
		Version:       r.Version,
	}
	var err error
	if t.Registry, err = parseAddress("registry", r.Registry); err != nil {
		return t, err
	}
	if t.Owner, err = parseAddress("owner", r.Owner); err != nil {
		return t, err
	}
	if t.Approved, err = parseAddress("approved", r.Approved); err != nil {
		return t, err
	}
	if r.BurnedAt != "" {
		if t.BurnedAt, err = time.Parse(time.RFC3339, r.BurnedAt); err != nil {
			return t, fmt.Errorf("%w: burned_at: %v", ErrCorruptRecord, err)
		}
	}
	return t, nil
}

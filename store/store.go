package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/jacentio/fgo/internal/shard"
	"github.com/jacentio/fgo/ledger"
)

// maxTransactItems is the DynamoDB limit on actions per TransactWriteItems call.
const maxTransactItems = 100

// API is the subset of the DynamoDB client used by the Store.
// *dynamodb.Client satisfies it.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Store persists template registries in DynamoDB. It implements
// ledger.Persister: every ledger call is written as one transaction.
type Store struct {
	client API
	config Config
	tracer trace.Tracer
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithTracer sets the tracer used for store spans. Defaults to a no-op tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *Store) { s.tracer = t }
}

// WithClock overrides the clock used for updated_at stamps and TTL filters.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a new Store instance.
func New(client API, config Config, opts ...Option) *Store {
	config.validate()
	s := &Store{
		client: client,
		config: config,
		tracer: noop.NewTracerProvider().Tracer("fgo/store"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the validated store configuration.
func (s *Store) Config() Config {
	return s.config
}

// relationshipPK computes the sharded partition key for a relationship record.
func (s *Store) relationshipPK(parentRef, childRef string) string {
	return shard.RelationshipPK(parentRef, childRef, s.config.NumShards)
}

// Persist writes a change set in a single transaction. New records
// (version 1) must not exist yet; existing records must still carry the
// version the change set was staged from.
func (s *Store) Persist(ctx context.Context, cs *ledger.ChangeSet) (err error) {
	op := ""
	if cs.Receipt != nil {
		op = cs.Receipt.Operation
	}
	ctx, span := s.tracer.Start(ctx, "store.Persist", trace.WithAttributes(
		attribute.String("fgo.operation", op),
		attribute.Int("fgo.records", cs.Size()),
	))
	defer func() { endSpan(span, err) }()

	items, refs, err := s.transactItems(cs)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	if len(items) > maxTransactItems {
		return fmt.Errorf("%w: %d items", ErrTransactionTooLarge, len(items))
	}
	span.SetAttributes(attribute.Int("fgo.transact_items", len(items)))

	input := &dynamodb.TransactWriteItemsInput{TransactItems: items}
	if cs.Receipt != nil {
		input.ClientRequestToken = aws.String(cs.Receipt.ID.String())
	}
	_, err = s.client.TransactWriteItems(ctx, input)
	return s.mapTransactionError(err, refs)
}

// itemRef describes one transaction item for error mapping.
type itemRef struct {
	id    string
	isNew bool
}

func (s *Store) transactItems(cs *ledger.ChangeSet) ([]types.TransactWriteItem, []itemRef, error) {
	now := s.now()
	var items []types.TransactWriteItem
	var refs []itemRef

	childContracts := make(map[ledger.Address]ledger.Address)
	for _, reg := range cs.Registries {
		av, err := attributevalue.MarshalMap(toRegistryRecord(reg, now))
		if err != nil {
			return nil, nil, fmt.Errorf("marshal registry %s: %w", reg.Address.Hex(), err)
		}
		items = append(items, versionedPut(s.config.RegistryTable, av, reg.Version))
		refs = append(refs, itemRef{id: reg.Address.Hex(), isNew: reg.Version <= 1})
		if reg.Kind == ledger.KindParent {
			childContracts[reg.Address] = reg.ChildContract
		}
	}

	for _, t := range cs.Children {
		av, err := attributevalue.MarshalMap(toChildRecord(t, now))
		if err != nil {
			return nil, nil, fmt.Errorf("marshal child template %d: %w", t.TokenID, err)
		}
		items = append(items, versionedPut(s.config.ChildTable, av, t.Version))
		refs = append(refs, itemRef{id: ChildTemplateRef(t.Registry, t.TokenID), isNew: t.Version <= 1})
	}

	for _, t := range cs.Parents {
		av, err := attributevalue.MarshalMap(s.toParentRecord(t, now))
		if err != nil {
			return nil, nil, fmt.Errorf("marshal parent template %d: %w", t.TokenID, err)
		}
		items = append(items, versionedPut(s.config.ParentTable, av, t.Version))
		refs = append(refs, itemRef{id: ParentRef(t.Registry, t.TokenID), isNew: t.Version <= 1})

		// Relationship records are written once, when the parent is created.
		if t.Version > 1 || len(t.ChildTokenIDs) == 0 {
			continue
		}
		childRegistry, ok := childContracts[t.Registry]
		if !ok {
			return nil, nil, fmt.Errorf("parent template %d: registry %s missing from change set",
				t.TokenID, t.Registry.Hex())
		}
		parentRef := ParentRef(t.Registry, t.TokenID)
		for _, childID := range t.ChildTokenIDs {
			childRef := ChildTemplateRef(childRegistry, childID)
			items = append(items, types.TransactWriteItem{
				Put: &types.Put{
					TableName: aws.String(s.config.RelationshipTable),
					Item: map[string]types.AttributeValue{
						"pk":          &types.AttributeValueMemberS{Value: s.relationshipPK(parentRef, childRef)},
						"child_ref":   &types.AttributeValueMemberS{Value: childRef},
						"parent_ref":  &types.AttributeValueMemberS{Value: parentRef},
						"child_table": &types.AttributeValueMemberS{Value: s.config.ChildTable},
						"child_key":   &types.AttributeValueMemberM{Value: templateKey(childRegistry, childID)},
					},
				},
			})
			refs = append(refs, itemRef{id: childRef})
		}
	}
	return items, refs, nil
}

// versionedPut writes a full record guarded by its optimistic lock.
func versionedPut(table string, item map[string]types.AttributeValue, version int64) types.TransactWriteItem {
	put := &types.Put{
		TableName: aws.String(table),
		Item:      item,
	}
	if version <= 1 {
		put.ConditionExpression = aws.String("attribute_not_exists(id)")
	} else {
		put.ConditionExpression = aws.String("#version = :expected_version")
		put.ExpressionAttributeNames = map[string]string{"#version": "version"}
		put.ExpressionAttributeValues = map[string]types.AttributeValue{
			":expected_version": &types.AttributeValueMemberN{Value: strconv.FormatInt(version-1, 10)},
		}
	}
	return types.TransactWriteItem{Put: put}
}

// mapTransactionError maps a cancelled transaction to the sentinel of the
// first item whose condition failed.
func (s *Store) mapTransactionError(err error, refs []itemRef) error {
	if err == nil {
		return nil
	}

	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for i, reason := range txErr.CancellationReasons {
			if reason.Code == nil || *reason.Code != "ConditionalCheckFailed" || i >= len(refs) {
				continue
			}
			if refs[i].isNew {
				return fmt.Errorf("%w: %s", ErrAlreadyExists, refs[i].id)
			}
			return fmt.Errorf("%w: %s", ErrConcurrentModification, refs[i].id)
		}
	}
	return err
}

// LoadChild rebuilds a child registry from its stored records. The store
// is installed as the registry's persister ahead of opts.
func (s *Store) LoadChild(ctx context.Context, address ledger.Address, opts ...ledger.Option) (reg *ledger.ChildRegistry, err error) {
	ctx, span := s.tracer.Start(ctx, "store.LoadChild", trace.WithAttributes(
		attribute.String("fgo.registry", address.Hex()),
	))
	defer func() { endSpan(span, err) }()

	state, err := s.getRegistry(ctx, address)
	if err != nil {
		return nil, err
	}
	snap := ledger.ChildSnapshot{State: state}
	err = s.scanTemplates(ctx, s.config.ChildTable, address, func(item map[string]types.AttributeValue) error {
		var rec childRecord
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			return fmt.Errorf("%w: child template: %v", ErrCorruptRecord, err)
		}
		t, err := rec.template()
		if err != nil {
			return err
		}
		snap.Templates = append(snap.Templates, t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("fgo.templates", len(snap.Templates)))
	return ledger.RestoreChildRegistry(snap, append([]ledger.Option{ledger.WithPersister(s)}, opts...)...)
}

// LoadParent rebuilds a parent registry cascading into child. Parent
// templates whose TTL expired are restored as burned.
func (s *Store) LoadParent(ctx context.Context, address ledger.Address, child *ledger.ChildRegistry, opts ...ledger.Option) (reg *ledger.ParentRegistry, err error) {
	ctx, span := s.tracer.Start(ctx, "store.LoadParent", trace.WithAttributes(
		attribute.String("fgo.registry", address.Hex()),
	))
	defer func() { endSpan(span, err) }()

	state, err := s.getRegistry(ctx, address)
	if err != nil {
		return nil, err
	}
	snap := ledger.ParentSnapshot{State: state}
	err = s.scanTemplates(ctx, s.config.ParentTable, address, func(item map[string]types.AttributeValue) error {
		var rec parentRecord
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			return fmt.Errorf("%w: parent template: %v", ErrCorruptRecord, err)
		}
		t, err := rec.template()
		if err != nil {
			return err
		}
		snap.Templates = append(snap.Templates, t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("fgo.templates", len(snap.Templates)))
	return ledger.RestoreParentRegistry(snap, child, append([]ledger.Option{ledger.WithPersister(s)}, opts...)...)
}

// LoadRegistries rebuilds a parent registry together with the child
// registry it cascades into.
func (s *Store) LoadRegistries(ctx context.Context, parent ledger.Address, opts ...ledger.Option) (*ledger.ChildRegistry, *ledger.ParentRegistry, error) {
	state, err := s.getRegistry(ctx, parent)
	if err != nil {
		return nil, nil, err
	}
	if state.Kind != ledger.KindParent {
		return nil, nil, fmt.Errorf("%w: %s is a %s registry", ledger.ErrRegistryMismatch, parent.Hex(), state.Kind)
	}
	child, err := s.LoadChild(ctx, state.ChildContract, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("load child registry: %w", err)
	}
	reg, err := s.LoadParent(ctx, parent, child, opts...)
	if err != nil {
		return nil, nil, err
	}
	return child, reg, nil
}

// getRegistry retrieves a registry record, returning ErrNotFound if missing.
func (s *Store) getRegistry(ctx context.Context, address ledger.Address) (ledger.RegistryState, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.config.RegistryTable),
		Key:            PK{"id": &types.AttributeValueMemberS{Value: address.Hex()}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return ledger.RegistryState{}, err
	}
	if result.Item == nil {
		return ledger.RegistryState{}, fmt.Errorf("%w: registry %s", ErrNotFound, address.Hex())
	}
	var rec registryRecord
	if err := attributevalue.UnmarshalMap(result.Item, &rec); err != nil {
		return ledger.RegistryState{}, fmt.Errorf("%w: registry: %v", ErrCorruptRecord, err)
	}
	return rec.state()
}

// scanTemplates pages through every live template of one registry.
func (s *Store) scanTemplates(ctx context.Context, table string, registry ledger.Address, fn func(map[string]types.AttributeValue) error) error {
	now := s.now()
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:        aws.String(table),
		FilterExpression: aws.String(fmt.Sprintf("#registry = :registry AND (%s)", TTLFilterExpr())),
		ExpressionAttributeNames: merge(
			map[string]string{"#registry": "registry"},
			TTLFilterNames(),
		),
		ExpressionAttributeValues: merge(
			map[string]types.AttributeValue{":registry": &types.AttributeValueMemberS{Value: registry.Hex()}},
			TTLFilterValues(now),
		),
		ConsistentRead: aws.Bool(true),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("scan %s: %w", table, err)
		}
		for _, item := range page.Items {
			if expiredAt(item, now) {
				continue
			}
			if err := fn(item); err != nil {
				return err
			}
		}
	}
	return nil
}

// NextNonce reserves the next deployment nonce of account. Registry
// addresses are derived from the deployer and this nonce.
func (s *Store) NextNonce(ctx context.Context, account ledger.Address) (uint64, error) {
	result, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.config.RegistryTable),
		Key:              PK{"id": &types.AttributeValueMemberS{Value: nonceID(account)}},
		UpdateExpression: aws.String("ADD #nonce :one"),
		ExpressionAttributeNames: map[string]string{
			"#nonce": "nonce",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("reserve nonce: %w", err)
	}
	v, ok := result.Attributes["nonce"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("%w: nonce for %s", ErrCorruptRecord, account.Hex())
	}
	n, err := strconv.ParseUint(v.Value, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("%w: nonce %q", ErrCorruptRecord, v.Value)
	}
	return n - 1, nil
}

// QueryChildRefs returns every child template linked to a parent template,
// including links that already carry a TTL.
func (s *Store) QueryChildRefs(ctx context.Context, parentRef string) (refs []ChildRef, err error) {
	ctx, span := s.tracer.Start(ctx, "store.QueryChildRefs", trace.WithAttributes(
		attribute.String("fgo.parent_ref", parentRef),
	))
	defer func() { endSpan(span, err) }()

	keys := shard.PartitionKeys(parentRef, s.config.NumShards)

	// Fast path for single shard (default)
	if len(keys) == 1 {
		return s.queryShard(ctx, keys[0])
	}

	results := make([][]ChildRef, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	for i, shardPK := range keys {
		g.Go(func() error {
			children, err := s.queryShard(gctx, shardPK)
			if err != nil {
				return fmt.Errorf("shard %02x: %w", i, err)
			}
			results[i] = children
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, children := range results {
		refs = append(refs, children...)
	}
	return refs, nil
}

func (s *Store) queryShard(ctx context.Context, shardPK string) ([]ChildRef, error) {
	var children []ChildRef
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.config.RelationshipTable),
		KeyConditionExpression: aws.String("pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: shardPK},
		},
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			children = append(children, unmarshalChildRef(item, shardPK))
		}
	}
	return children, nil
}

// ExpireRelationship sets TTL on a relationship record. A record that
// already has a TTL is left alone.
func (s *Store) ExpireRelationship(ctx context.Context, ref ChildRef, ttl int64) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.config.RelationshipTable),
		Key: PK{
			"pk":        &types.AttributeValueMemberS{Value: ref.ShardPK},
			"child_ref": &types.AttributeValueMemberS{Value: ref.Ref},
		},
		UpdateExpression:    aws.String("SET #ttl = :ttl"),
		ConditionExpression: aws.String("attribute_exists(pk) AND attribute_not_exists(#ttl)"),
		ExpressionAttributeNames: map[string]string{
			"#ttl": "ttl",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ttl": &types.AttributeValueMemberN{
				Value: strconv.FormatInt(ttl, 10),
			},
		},
	})

	// Ignore condition failure - already has TTL or already gone
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return nil
	}
	return err
}

// unmarshalChildRef converts a relationship item to a ChildRef.
func unmarshalChildRef(item map[string]types.AttributeValue, shardPK string) ChildRef {
	ref := ChildRef{ShardPK: shardPK}

	if v, ok := item["child_ref"].(*types.AttributeValueMemberS); ok {
		ref.Ref = v.Value
	}
	if v, ok := item["child_table"].(*types.AttributeValueMemberS); ok {
		ref.TableName = v.Value
	}
	if v, ok := item["child_key"].(*types.AttributeValueMemberM); ok {
		ref.Key = v.Value
	}

	return ref
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

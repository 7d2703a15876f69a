// Package dynamotest provides an in-memory DynamoDB client for tests.
package dynamotest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Client is an in-memory stand-in for the DynamoDB calls the store makes.
// It understands exactly the expressions the store builds. Transactions
// evaluate every condition before applying any write.
type Client struct {
	mu       sync.Mutex
	tables   map[string]map[string]map[string]types.AttributeValue
	pageSize int

	transactErr   error
	transactCalls int
	tokens        []string
}

// New returns an empty client.
func New() *Client {
	return &Client{tables: make(map[string]map[string]map[string]types.AttributeValue)}
}

// SetPageSize limits Scan and Query pages to n items. Zero means unlimited.
func (f *Client) SetPageSize(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageSize = n
}

// FailTransactions makes every later TransactWriteItems call return err.
// A nil err restores normal behavior.
func (f *Client) FailTransactions(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transactErr = err
}

// TransactCalls returns the number of TransactWriteItems calls so far.
func (f *Client) TransactCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transactCalls
}

// RequestTokens returns the ClientRequestToken of every transaction, in order.
func (f *Client) RequestTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tokens...)
}

// Item returns the stored item under key, or nil. The map is the stored
// item itself, so tests can corrupt it.
func (f *Client) Item(table, key string) map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.table(table)[key]
}

func str(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func num(item map[string]types.AttributeValue, name string) (int64, bool) {
	v, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v.Value, 10, 64)
	return n, err == nil
}

// itemKey works on both full items and key maps.
func itemKey(item map[string]types.AttributeValue) string {
	if ref := str(item, "child_ref"); ref != "" {
		return str(item, "pk") + "|" + ref
	}
	return str(item, "id")
}

func keyOf(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if _, ok := item["child_ref"]; ok {
		return map[string]types.AttributeValue{"pk": item["pk"], "child_ref": item["child_ref"]}
	}
	return map[string]types.AttributeValue{"id": item["id"]}
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func (f *Client) table(name string) map[string]map[string]types.AttributeValue {
	t, ok := f.tables[name]
	if !ok {
		t = make(map[string]map[string]types.AttributeValue)
		f.tables[name] = t
	}
	return t
}

// Items returns a copy of every item in a table, sorted by key.
func (f *Client) Items(table string) []map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sorted(f.table(table), func(map[string]types.AttributeValue) bool { return true })
}

func (f *Client) sorted(t map[string]map[string]types.AttributeValue, keep func(map[string]types.AttributeValue) bool) []map[string]types.AttributeValue {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []map[string]types.AttributeValue
	for _, k := range keys {
		if keep(t[k]) {
			out = append(out, copyItem(t[k]))
		}
	}
	return out
}

// page slices out one page starting after startKey.
func (f *Client) page(items []map[string]types.AttributeValue, startKey map[string]types.AttributeValue) ([]map[string]types.AttributeValue, map[string]types.AttributeValue) {
	start := 0
	if len(startKey) > 0 {
		after := itemKey(startKey)
		for i, item := range items {
			if itemKey(item) == after {
				start = i + 1
				break
			}
		}
	}
	items = items[start:]
	if f.pageSize <= 0 || len(items) <= f.pageSize {
		return items, nil
	}
	items = items[:f.pageSize]
	return items, keyOf(items[len(items)-1])
}

func (f *Client) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.table(aws.ToString(in.TableName))[itemKey(in.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: copyItem(item)}, nil
}

func (f *Client) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.table(aws.ToString(in.TableName))
	key := itemKey(in.Key)
	expr := aws.ToString(in.UpdateExpression)

	switch {
	case strings.HasPrefix(expr, "ADD #nonce"):
		item, ok := t[key]
		if !ok {
			item = copyItem(in.Key)
		}
		n, _ := num(item, "nonce")
		n++
		item["nonce"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
		t[key] = item
		return &dynamodb.UpdateItemOutput{Attributes: map[string]types.AttributeValue{"nonce": item["nonce"]}}, nil

	case strings.HasPrefix(expr, "SET #ttl = :ttl"):
		item, ok := t[key]
		if _, hasTTL := item["ttl"]; !ok || hasTTL {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
		}
		item["ttl"] = in.ExpressionAttributeValues[":ttl"]
		return &dynamodb.UpdateItemOutput{}, nil
	}
	return nil, fmt.Errorf("fake: unsupported update expression %q", expr)
}

func (f *Client) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if aws.ToString(in.KeyConditionExpression) != "pk = :pk" {
		return nil, fmt.Errorf("fake: unsupported key condition %q", aws.ToString(in.KeyConditionExpression))
	}
	pk := str(in.ExpressionAttributeValues, ":pk")
	items := f.sorted(f.table(aws.ToString(in.TableName)), func(item map[string]types.AttributeValue) bool {
		return str(item, "pk") == pk
	})
	page, last := f.page(items, in.ExclusiveStartKey)
	return &dynamodb.QueryOutput{Items: page, Count: int32(len(page)), LastEvaluatedKey: last}, nil
}

func (f *Client) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	registry := str(in.ExpressionAttributeValues, ":registry")
	items := f.sorted(f.table(aws.ToString(in.TableName)), func(item map[string]types.AttributeValue) bool {
		return registry == "" || str(item, "registry") == registry
	})
	page, last := f.page(items, in.ExclusiveStartKey)
	return &dynamodb.ScanOutput{Items: page, Count: int32(len(page)), LastEvaluatedKey: last}, nil
}

func (f *Client) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transactCalls++
	f.tokens = append(f.tokens, aws.ToString(in.ClientRequestToken))
	if f.transactErr != nil {
		return nil, f.transactErr
	}
	if len(in.TransactItems) > 100 {
		return nil, errors.New("fake: ValidationException: too many items")
	}

	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false
	for i, ti := range in.TransactItems {
		reasons[i].Code = aws.String("None")
		if ti.Put == nil {
			return nil, errors.New("fake: only Put is supported in transactions")
		}
		if !f.conditionHolds(ti.Put) {
			reasons[i].Code = aws.String("ConditionalCheckFailed")
			failed = true
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}

	for _, ti := range in.TransactItems {
		f.table(aws.ToString(ti.Put.TableName))[itemKey(ti.Put.Item)] = copyItem(ti.Put.Item)
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *Client) conditionHolds(put *types.Put) bool {
	existing, exists := f.table(aws.ToString(put.TableName))[itemKey(put.Item)]
	switch aws.ToString(put.ConditionExpression) {
	case "":
		return true
	case "attribute_not_exists(id)":
		return !exists
	case "#version = :expected_version":
		if !exists {
			return false
		}
		have, _ := num(existing, "version")
		want, _ := num(put.ExpressionAttributeValues, ":expected_version")
		return have == want
	}
	return false
}

// CreateTable registers an empty table.
func (f *Client) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.TableName)
	if _, ok := f.tables[name]; ok {
		return nil, &types.ResourceInUseException{Message: aws.String("Table already exists: " + name)}
	}
	f.tables[name] = make(map[string]map[string]types.AttributeValue)
	return &dynamodb.CreateTableOutput{TableDescription: &types.TableDescription{
		TableName:   in.TableName,
		TableStatus: types.TableStatusActive,
	}}, nil
}

// DescribeTable reports every known table as active.
func (f *Client) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tables[aws.ToString(in.TableName)]; !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("Requested resource not found")}
	}
	return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{
		TableName:   in.TableName,
		TableStatus: types.TableStatusActive,
	}}, nil
}

func (f *Client) DeleteTable(_ context.Context, in *dynamodb.DeleteTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.TableName)
	if _, ok := f.tables[name]; !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("Requested resource not found")}
	}
	delete(f.tables, name)
	return &dynamodb.DeleteTableOutput{}, nil
}

// UpdateTimeToLive accepts any specification; expiry is not simulated.
func (f *Client) UpdateTimeToLive(_ context.Context, in *dynamodb.UpdateTimeToLiveInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error) {
	return &dynamodb.UpdateTimeToLiveOutput{TimeToLiveSpecification: in.TimeToLiveSpecification}, nil
}

// Tables returns the names of every table, sorted.
func (f *Client) Tables() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.tables))
	for name := range f.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

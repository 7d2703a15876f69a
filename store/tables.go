package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// TableAdmin is the subset of the DynamoDB client used to provision tables.
type TableAdmin interface {
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	DeleteTable(ctx context.Context, params *dynamodb.DeleteTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error)
	UpdateTimeToLive(ctx context.Context, params *dynamodb.UpdateTimeToLiveInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error)
}

// tableSpec describes one table of the schema.
type tableSpec struct {
	name   string
	keys   []string // hash key, then optional range key
	stream bool
	ttl    bool
}

func (c Config) tables() []tableSpec {
	return []tableSpec{
		{name: c.RegistryTable, keys: []string{"id"}},
		{name: c.ChildTable, keys: []string{"id"}},
		{name: c.ParentTable, keys: []string{"id"}, stream: true, ttl: true},
		{name: c.RelationshipTable, keys: []string{"pk", "child_ref"}, ttl: true},
	}
}

// TableNames returns every table the store uses.
func (c Config) TableNames() []string {
	var names []string
	for _, t := range c.tables() {
		names = append(names, t.name)
	}
	return names
}

// CreateTables creates any missing store table and waits until all are
// active. The parent table streams new and old images for the burn
// cascade handler; parent and relationship tables expire items on ttl.
func CreateTables(ctx context.Context, client TableAdmin, config Config) error {
	config.validate()
	for _, spec := range config.tables() {
		if err := createTable(ctx, client, spec); err != nil {
			return err
		}
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	for _, spec := range config.tables() {
		if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{
			TableName: aws.String(spec.name),
		}, 2*time.Minute); err != nil {
			return fmt.Errorf("wait for table %s: %w", spec.name, err)
		}
	}

	for _, spec := range config.tables() {
		if !spec.ttl {
			continue
		}
		_, err := client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
			TableName: aws.String(spec.name),
			TimeToLiveSpecification: &types.TimeToLiveSpecification{
				AttributeName: aws.String("ttl"),
				Enabled:       aws.Bool(true),
			},
		})
		if err != nil && !isTTLAlreadyEnabled(err) {
			return fmt.Errorf("enable ttl on %s: %w", spec.name, err)
		}
	}
	return nil
}

func createTable(ctx context.Context, client TableAdmin, spec tableSpec) error {
	input := &dynamodb.CreateTableInput{
		TableName:   aws.String(spec.name),
		BillingMode: types.BillingModePayPerRequest,
	}
	for i, key := range spec.keys {
		keyType := types.KeyTypeHash
		if i > 0 {
			keyType = types.KeyTypeRange
		}
		input.KeySchema = append(input.KeySchema, types.KeySchemaElement{
			AttributeName: aws.String(key), KeyType: keyType,
		})
		input.AttributeDefinitions = append(input.AttributeDefinitions, types.AttributeDefinition{
			AttributeName: aws.String(key), AttributeType: types.ScalarAttributeTypeS,
		})
	}
	if spec.stream {
		input.StreamSpecification = &types.StreamSpecification{
			StreamEnabled:  aws.Bool(true),
			StreamViewType: types.StreamViewTypeNewAndOldImages,
		}
	}

	_, err := client.CreateTable(ctx, input)
	var inUse *types.ResourceInUseException
	if errors.As(err, &inUse) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create table %s: %w", spec.name, err)
	}
	return nil
}

// isTTLAlreadyEnabled reports the ValidationException DynamoDB returns when
// TTL is already enabled on a table.
func isTTLAlreadyEnabled(err error) bool {
	var apiErr interface{ ErrorCode() string }
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ValidationException"
}

// DeleteTables drops every store table. Missing tables are ignored.
func DeleteTables(ctx context.Context, client TableAdmin, config Config) error {
	config.validate()
	var errs []error
	for _, name := range config.TableNames() {
		_, err := client.DeleteTable(ctx, &dynamodb.DeleteTableInput{TableName: aws.String(name)})
		var notFound *types.ResourceNotFoundException
		if err != nil && !errors.As(err, &notFound) {
			errs = append(errs, fmt.Errorf("delete table %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

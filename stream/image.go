package stream

import (
	"strconv"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/fgo/store"
)

// image is a stream record's old or new item image. Lookups of missing or
// mistyped attributes return zero values.
type image map[string]events.DynamoDBAttributeValue

func (im image) attr(key string, dt events.DynamoDBDataType) (events.DynamoDBAttributeValue, bool) {
	v, ok := im[key]
	if !ok || v.DataType() != dt {
		return events.DynamoDBAttributeValue{}, false
	}
	return v, true
}

func (im image) str(key string) string {
	if v, ok := im.attr(key, events.DataTypeString); ok {
		return v.String()
	}
	return ""
}

// unix reads a number attribute such as ttl.
func (im image) unix(key string) int64 {
	v, ok := im.attr(key, events.DataTypeNumber)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(v.Number(), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// tokenIDs reads a list of unsigned numbers, skipping entries that are not.
func (im image) tokenIDs(key string) []uint64 {
	v, ok := im.attr(key, events.DataTypeList)
	if !ok {
		return nil
	}
	ids := make([]uint64, 0, len(v.List()))
	for _, item := range v.List() {
		if item.DataType() != events.DataTypeNumber {
			continue
		}
		if id, err := strconv.ParseUint(item.Number(), 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// ConvertStreamKey converts a DynamoDB stream key to a store.PK.
func ConvertStreamKey(streamKey map[string]events.DynamoDBAttributeValue) store.PK {
	pk := make(store.PK, len(streamKey))
	for name, v := range streamKey {
		var av types.AttributeValue
		switch v.DataType() {
		case events.DataTypeString:
			av = &types.AttributeValueMemberS{Value: v.String()}
		case events.DataTypeNumber:
			av = &types.AttributeValueMemberN{Value: v.Number()}
		case events.DataTypeBinary:
			av = &types.AttributeValueMemberB{Value: v.Binary()}
		default:
			continue
		}
		pk[name] = av
	}
	return pk
}

package store

import (
	"maps"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ExpiresAt returns the TTL of an item. ok is false when the item has no
// readable TTL.
func ExpiresAt(item map[string]types.AttributeValue) (at time.Time, ok bool) {
	n, isNum := item["ttl"].(*types.AttributeValueMemberN)
	if !isNum {
		return time.Time{}, false
	}
	secs, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(secs, 0), true
}

// expiredAt reports whether an item's TTL has passed at now. DynamoDB
// removes expired items lazily, so reads can still return them.
func expiredAt(item map[string]types.AttributeValue, now time.Time) bool {
	at, ok := ExpiresAt(item)
	return ok && !at.After(now)
}

// TTLFilterExpr is a filter expression that drops items expired at :now.
func TTLFilterExpr() string {
	return "attribute_not_exists(#ttl) OR #ttl > :now"
}

// TTLFilterNames returns the expression attribute names of TTLFilterExpr.
func TTLFilterNames() map[string]string {
	return map[string]string{"#ttl": "ttl"}
}

// TTLFilterValues returns the expression attribute values of TTLFilterExpr
// evaluated at now.
func TTLFilterValues(now time.Time) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
	}
}

// burnTTL is the expiry of a parent template burned at burnedAt.
func burnTTL(burnedAt time.Time, retention time.Duration) int64 {
	return burnedAt.Add(retention).Unix()
}

// merge combines expression attribute maps; later maps win.
func merge[V any](ms ...map[string]V) map[string]V {
	out := make(map[string]V)
	for _, m := range ms {
		maps.Copy(out, m)
	}
	return out
}

package stream

import (
	"context"
	"slices"
	"testing"

	"github.com/aws/aws-lambda-go/events"
)

const parentRef = "parent#0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512#1"

func TestImage_Str(t *testing.T) {
	tests := []struct {
		name     string
		im       image
		expected string
	}{
		{"present", image{"entity_ref": events.NewStringAttribute(parentRef)}, parentRef},
		{"missing key", image{"other": events.NewStringAttribute("value")}, ""},
		{"nil image", nil, ""},
		{"unicode", image{"entity_ref": events.NewStringAttribute("日本語テスト")}, "日本語テスト"},
		{"number attribute", image{"entity_ref": events.NewNumberAttribute("42")}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.im.str("entity_ref"); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestImage_Unix(t *testing.T) {
	tests := []struct {
		name     string
		im       image
		expected int64
	}{
		{"ttl", image{"ttl": events.NewNumberAttribute("1234567890")}, 1234567890},
		{"max int64", image{"ttl": events.NewNumberAttribute("9223372036854775807")}, 9223372036854775807},
		{"missing key", image{"other": events.NewNumberAttribute("42")}, 0},
		{"nil image", nil, 0},
		{"string attribute", image{"ttl": events.NewStringAttribute("not-a-number")}, 0},
		{"fractional", image{"ttl": events.NewNumberAttribute("1.5")}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.im.unix("ttl"); got != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestImage_TokenIDs(t *testing.T) {
	list := func(vs ...events.DynamoDBAttributeValue) image {
		return image{"child_token_ids": events.NewListAttribute(vs)}
	}

	tests := []struct {
		name     string
		im       image
		expected []uint64
	}{
		{"ids", list(events.NewNumberAttribute("1"), events.NewNumberAttribute("2"), events.NewNumberAttribute("12")), []uint64{1, 2, 12}},
		{"empty list", list(), []uint64{}},
		{"mixed", list(events.NewNumberAttribute("1"), events.NewStringAttribute("two"), events.NewNumberAttribute("-3"), events.NewNumberAttribute("4")), []uint64{1, 4}},
		{"missing key", image{}, nil},
		{"not a list", image{"child_token_ids": events.NewNumberAttribute("1")}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.im.tokenIDs("child_token_ids")
			if !slices.Equal(got, tt.expected) || (got == nil) != (tt.expected == nil) {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestProcessRecord_Skips(t *testing.T) {
	owner := func(addr string) map[string]events.DynamoDBAttributeValue {
		return map[string]events.DynamoDBAttributeValue{
			"id":    events.NewStringAttribute("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512#1"),
			"owner": events.NewStringAttribute(addr),
		}
	}
	zeroTTL := owner("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	zeroTTL["ttl"] = events.NewNumberAttribute("0")

	tests := []struct {
		name   string
		record events.DynamoDBEventRecord
	}{
		{"insert", events.DynamoDBEventRecord{EventName: "INSERT"}},
		{"remove", events.DynamoDBEventRecord{EventName: "REMOVE"}},
		{"unknown", events.DynamoDBEventRecord{EventName: "UNKNOWN"}},
		{"transfer", events.DynamoDBEventRecord{
			EventName: "MODIFY",
			Change: events.DynamoDBStreamRecord{
				OldImage: owner("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
				NewImage: owner("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
			},
		}},
		{"zero ttl", events.DynamoDBEventRecord{
			EventName: "MODIFY",
			Change: events.DynamoDBStreamRecord{
				OldImage: owner("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
				NewImage: zeroTTL,
			},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// nil store: any lookup would panic
			h := NewHandler(nil, nil)
			if err := h.processRecord(context.Background(), tt.record); err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}
}

func BenchmarkImage_Unix(b *testing.B) {
	im := image{"ttl": events.NewNumberAttribute("1704067200")}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		im.unix("ttl")
	}
}

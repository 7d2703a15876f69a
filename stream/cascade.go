// Package stream provides DynamoDB Streams handlers for burn cascades.
package stream

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/fgo/store"
)

// RelationshipStore is the part of *store.Store the handler needs.
type RelationshipStore interface {
	QueryChildRefs(ctx context.Context, parentRef string) ([]store.ChildRef, error)
	ExpireRelationship(ctx context.Context, ref store.ChildRef, ttl int64) error
}

// Handler processes parent template stream events.
type Handler struct {
	store  RelationshipStore
	logger *slog.Logger
}

// NewHandler creates a new stream handler.
func NewHandler(s RelationshipStore, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:  s,
		logger: logger,
	}
}

// HandleBurnCascade processes parent table stream events. When a parent
// template is burned its record gains a TTL; the handler copies that TTL
// onto the parent's relationship records so they expire together.
// This function is designed to be used as an AWS Lambda handler.
func (h *Handler) HandleBurnCascade(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"error", err,
			)
			return err // Will retry, eventually DLQ
		}
	}
	return nil
}

// processRecord processes a single DynamoDB stream record.
func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	// Burns are full-record puts over an existing parent: MODIFY only
	if record.EventName != "MODIFY" {
		return nil
	}

	before, after := image(record.Change.OldImage), image(record.Change.NewImage)
	oldTTL, newTTL := before.unix("ttl"), after.unix("ttl")

	// Only process when TTL is newly set (was absent/0, now present)
	if oldTTL != 0 || newTTL == 0 {
		return nil
	}

	parentRef := after.str("entity_ref")
	if parentRef == "" {
		parentRef = store.ParentRefFromKey(ConvertStreamKey(record.Change.Keys))
	}
	if parentRef == "" {
		h.logger.Warn("burned parent without entity reference",
			"eventID", record.EventID,
		)
		return nil
	}

	h.logger.Info("processing burn cascade",
		"parentRef", parentRef,
		"burnedAt", after.str("burned_at"),
		"ttl", newTTL,
	)

	// Includes links that already carry a TTL - idempotent
	children, err := h.store.QueryChildRefs(ctx, parentRef)
	if err != nil {
		return fmt.Errorf("query child refs: %w", err)
	}

	h.logger.Info("found relationships to expire",
		"parentRef", parentRef,
		"childCount", len(children),
	)
	if want := len(after.tokenIDs("child_token_ids")); want != len(children) {
		h.logger.Warn("relationship count differs from parent record",
			"parentRef", parentRef,
			"childTokenIDs", want,
			"relationships", len(children),
		)
	}

	failed := 0
	for _, child := range children {
		if err := h.store.ExpireRelationship(ctx, child, newTTL); err != nil {
			failed++
			h.logger.Warn("failed to expire relationship",
				"parentRef", parentRef,
				"child", child.Ref,
				"error", err,
			)
		}
	}
	if failed > 0 {
		return fmt.Errorf("expire relationships of %s: %d of %d failed", parentRef, failed, len(children))
	}

	h.logger.Info("burn cascade completed",
		"parentRef", parentRef,
		"childrenProcessed", len(children),
	)

	return nil
}

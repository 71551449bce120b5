// Package stream provides a DynamoDB Streams handler that keeps a follower
// store in step with a mirrored primary.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/tablekv/internal/shard"
	"github.com/jacentio/tablekv/store"
)

// Handler applies mirror table stream events to a follower store.
//
// The follower store must not have the mirror registered as a commit hook,
// otherwise every replicated change would be written back to DynamoDB.
//
// Streams order events per item only, so a record write made before its
// table was dropped can arrive after the drop. The handler remembers dropped
// table names until the catalog lists them again, and the seq of each live
// table, and ignores record writes that belong to a gone generation.
type Handler struct {
	store  *store.Store
	logger *slog.Logger

	mu      sync.Mutex
	dropped map[string]bool
	seqs    map[string]int64
}

// NewHandler creates a new stream handler.
func NewHandler(s *store.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:   s,
		logger:  logger,
		dropped: make(map[string]bool),
		seqs:    make(map[string]int64),
	}
}

// HandleReplication processes DynamoDB stream events from the mirror table.
// It is fed by a long-running follower process that owns the store; the
// handler state lives as long as that process.
//
// Every apply is idempotent: record writes create their table when missing
// and removals of absent tables or records succeed.
func (h *Handler) HandleReplication(ctx context.Context, event events.DynamoDBEvent) error {
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

// processRecord applies a single DynamoDB stream record.
func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	pk := getStringAttr(record.Change.Keys, "pk")
	sk := getStringAttr(record.Change.Keys, "sk")
	if pk == "" || sk == "" {
		h.logger.Warn("skipping record without key", "eventID", record.EventID)
		return nil
	}

	var removed bool
	switch record.EventName {
	case "INSERT", "MODIFY":
	case "REMOVE":
		removed = true
	default:
		return nil
	}

	if pk == shard.CatalogPK {
		return h.applyTable(ctx, sk, removed, getNumberAttr(record.Change.NewImage, "seq"))
	}

	table, ok := tableFromPK(pk)
	if !ok {
		h.logger.Warn("skipping record with unknown partition", "pk", pk)
		return nil
	}
	if removed {
		return h.applyRemove(ctx, table, sk)
	}
	image := record.Change.NewImage
	if h.stale(table, getNumberAttr(image, "seq")) {
		h.logger.Debug("skipping record of dropped table",
			"table", table,
			"key", sk,
		)
		return nil
	}
	return h.applyPut(ctx, table, sk, getFieldsAttr(image, "fields"))
}

// stale reports whether a record write with the given seq belongs to a
// dropped table or an earlier generation of a recreated one.
func (h *Handler) stale(table string, seq int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dropped[table] {
		return true
	}
	tableSeq, ok := h.seqs[table]
	return ok && seq < tableSeq
}

func (h *Handler) applyTable(ctx context.Context, name string, removed bool, seq int64) error {
	h.mu.Lock()
	if removed {
		h.dropped[name] = true
		delete(h.seqs, name)
	} else {
		delete(h.dropped, name)
		h.seqs[name] = seq
	}
	h.mu.Unlock()

	err := h.store.Update(ctx, func(tx *store.Tx) error {
		if removed {
			return tx.DropTable(name)
		}
		_, err := tx.EnsureTable(name)
		return err
	})
	if removed && errors.Is(err, store.ErrTableNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("replicate table %q: %w", name, err)
	}

	h.logger.Info("replicated table",
		"table", name,
		"removed", removed,
	)
	return nil
}

func (h *Handler) applyPut(ctx context.Context, table, key string, fields []store.Field) error {
	err := h.store.Update(ctx, func(tx *store.Tx) error {
		if _, err := tx.EnsureTable(table); err != nil {
			return err
		}
		return tx.PutRecord(table, key, fields)
	})
	if err != nil {
		return fmt.Errorf("replicate record %q/%q: %w", table, key, err)
	}

	h.logger.Debug("replicated record",
		"table", table,
		"key", key,
		"fields", len(fields),
	)
	return nil
}

func (h *Handler) applyRemove(ctx context.Context, table, key string) error {
	err := h.store.Update(ctx, func(tx *store.Tx) error {
		return tx.RemoveRecord(table, key)
	})
	if errors.Is(err, store.ErrTableNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("replicate removal %q/%q: %w", table, key, err)
	}

	h.logger.Debug("replicated removal",
		"table", table,
		"key", key,
	)
	return nil
}

// tableFromPK recovers the table name from a "<table>|<shard>" partition key.
func tableFromPK(pk string) (string, bool) {
	i := strings.LastIndex(pk, store.Separator)
	if i <= 0 {
		return "", false
	}
	if _, err := strconv.ParseUint(pk[i+1:], 16, 16); err != nil {
		return "", false
	}
	return pk[:i], true
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}

// getNumberAttr extracts an integer attribute from a DynamoDB stream image.
func getNumberAttr(image map[string]events.DynamoDBAttributeValue, key string) int64 {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeNumber {
		n, err := v.Int64()
		if err == nil {
			return n
		}
	}
	return 0
}

// getFieldsAttr extracts the record fields list, a list of {n, v} maps,
// from a DynamoDB stream image. Malformed entries are skipped.
func getFieldsAttr(image map[string]events.DynamoDBAttributeValue, key string) []store.Field {
	result := []store.Field{}
	v, ok := image[key]
	if !ok || v.DataType() != events.DataTypeList {
		return result
	}
	for _, item := range v.List() {
		if item.DataType() != events.DataTypeMap {
			continue
		}
		m := item.Map()
		name := getStringAttr(m, "n")
		if name == "" {
			continue
		}
		result = append(result, store.Field{Name: name, Value: getStringAttr(m, "v")})
	}
	return result
}

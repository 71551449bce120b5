// Package mirror keeps a DynamoDB copy of a store and loads it back.
//
// A Mirror is registered as a store commit hook. Every committed update is
// written to DynamoDB inside the store's write lock, and a failed write rolls
// the in-memory update back, so the store never runs ahead of its mirror.
//
// An update is written as one DynamoDB transaction, so it needs at most
// MaxTransactItems items; larger updates are refused with ErrTooLarge.
// Dropping tables is the exception. The catalog items go in the first
// transaction and the record deletes follow in as many as needed. Once the
// first transaction succeeds the drop stands; records a later transaction
// failed to delete are logged and stay behind unreachable, since Load only
// reads catalogued tables and skips records older than their table.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/tablekv/internal/shard"
	"github.com/jacentio/tablekv/store"
)

// ErrConflict is returned when DynamoDB cancels a transaction because
// another writer touched the same items.
var ErrConflict = errors.New("tablekv/mirror: concurrent write conflict")

// ErrTooLarge is returned when an update needs more items than one
// DynamoDB transaction can carry.
var ErrTooLarge = errors.New("tablekv/mirror: update exceeds transaction item limit")

// API is the subset of the DynamoDB client the mirror uses.
type API interface {
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Mirror writes store changes to a DynamoDB table.
type Mirror struct {
	client API
	config Config
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	lastSeq int64 // highest seq written or loaded
}

// New creates a new Mirror.
func New(client API, config Config, logger *slog.Logger) *Mirror {
	config.validate()
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{
		client: client,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Config returns the validated configuration.
func (m *Mirror) Config() Config {
	return m.config
}

// tableItem is the catalog entry of one store table.
type tableItem struct {
	PK  string `dynamodbav:"pk"`
	SK  string `dynamodbav:"sk"`
	Seq int64  `dynamodbav:"seq"`
}

// recordItem is one store record. Seq is never below the seq of the table
// generation the record was written to.
type recordItem struct {
	PK     string        `dynamodbav:"pk"`
	SK     string        `dynamodbav:"sk"`
	Seq    int64         `dynamodbav:"seq"`
	Table  string        `dynamodbav:"table"`
	Fields []store.Field `dynamodbav:"fields"`
}

func itemKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: pk},
		"sk": &types.AttributeValueMemberS{Value: sk},
	}
}

// Commit implements store.Committer.
func (m *Mirror) Commit(ctx context.Context, changes []store.Change) error {
	plan, err := m.writeItems(changes)
	if err != nil {
		return err
	}
	items := plan.items
	if len(items) == 0 {
		return nil
	}

	limit := m.config.MaxTransactItems
	if len(items) > limit && !plan.splittable(limit) {
		return fmt.Errorf("%w: %d items, limit %d", ErrTooLarge, len(items), limit)
	}

	chunks := 0
	for start := 0; start < len(items); start += limit {
		end := start + limit
		if end > len(items) {
			end = len(items)
		}
		_, err := m.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: items[start:end],
		})
		if err != nil {
			if chunks > 0 {
				// The catalog items are gone, so the drop stands.
				m.logger.Error("drop left orphaned records",
					"table", m.config.Table,
					"committedChunks", chunks,
					"orphaned", len(items)-start,
					"error", err,
				)
				return nil
			}
			m.logger.Error("mirror transaction failed",
				"table", m.config.Table,
				"items", len(items),
				"error", err,
			)
			return mapTransactionError(err)
		}
		chunks++
	}

	m.logger.Debug("mirrored changes",
		"table", m.config.Table,
		"changes", len(changes),
		"items", len(items),
		"transactions", chunks,
	)
	return nil
}

type pendingItem struct {
	item    types.TransactWriteItem
	catalog bool
	remove  bool
}

// writePlan is the ordered item list of one update.
type writePlan struct {
	items          []types.TransactWriteItem
	dropOnly       bool
	catalogDeletes int
}

// splittable reports whether the plan may span several transactions: only
// pure drops whose catalog deletes all fit in the first one.
func (p writePlan) splittable(limit int) bool {
	return p.dropOnly && p.catalogDeletes <= limit
}

// writeItems coalesces changes to one write per DynamoDB item (the last one
// wins) and orders them catalog puts, then catalog deletes, then records.
func (m *Mirror) writeItems(changes []store.Change) (writePlan, error) {
	var order []string
	pending := make(map[string]pendingItem)
	set := func(pk, sk string, p pendingItem) {
		id := pk + "\x00" + sk
		if _, ok := pending[id]; !ok {
			order = append(order, id)
		}
		pending[id] = p
	}
	del := func(pk, sk string, catalog bool) {
		set(pk, sk, pendingItem{
			item: types.TransactWriteItem{Delete: &types.Delete{
				TableName: aws.String(m.config.Table),
				Key:       itemKey(pk, sk),
			}},
			catalog: catalog,
			remove:  true,
		})
	}

	var creates int64
	dropOnly := len(changes) > 0
	for _, c := range changes {
		if c.Kind == store.ChangeCreateTable {
			creates++
		}
		if c.Kind != store.ChangeDropTable {
			dropOnly = false
		}
	}
	// Tables created here take seq, seq+1, ...; records take the value
	// after the last of them.
	seq := m.reserveSeq(creates)
	recordSeq := seq + creates

	for _, c := range changes {
		switch c.Kind {
		case store.ChangeCreateTable:
			av, err := attributevalue.MarshalMap(tableItem{PK: shard.CatalogPK, SK: c.Table, Seq: seq})
			if err != nil {
				return writePlan{}, fmt.Errorf("marshal table %q: %w", c.Table, err)
			}
			seq++
			set(shard.CatalogPK, c.Table, pendingItem{
				item: types.TransactWriteItem{Put: &types.Put{
					TableName: aws.String(m.config.Table),
					Item:      av,
				}},
				catalog: true,
			})

		case store.ChangeDropTable:
			del(shard.CatalogPK, c.Table, true)
			for _, key := range c.Keys {
				del(shard.PartitionKey(c.Table, key, m.config.NumShards), key, false)
			}

		case store.ChangePutRecord:
			pk := shard.PartitionKey(c.Table, c.Key, m.config.NumShards)
			fields := c.Fields
			if fields == nil {
				fields = []store.Field{}
			}
			av, err := attributevalue.MarshalMap(recordItem{PK: pk, SK: c.Key, Seq: recordSeq, Table: c.Table, Fields: fields})
			if err != nil {
				return writePlan{}, fmt.Errorf("marshal record %q/%q: %w", c.Table, c.Key, err)
			}
			set(pk, c.Key, pendingItem{
				item: types.TransactWriteItem{Put: &types.Put{
					TableName: aws.String(m.config.Table),
					Item:      av,
				}},
			})

		case store.ChangeDeleteRecord:
			del(shard.PartitionKey(c.Table, c.Key, m.config.NumShards), c.Key, false)

		default:
			return writePlan{}, fmt.Errorf("unknown change kind %v", c.Kind)
		}
	}

	plan := writePlan{
		items:    make([]types.TransactWriteItem, 0, len(order)),
		dropOnly: dropOnly,
	}
	for _, phase := range []func(pendingItem) bool{
		func(p pendingItem) bool { return p.catalog && !p.remove },
		func(p pendingItem) bool { return p.catalog && p.remove },
		func(p pendingItem) bool { return !p.catalog },
	} {
		for _, id := range order {
			if p := pending[id]; phase(p) {
				plan.items = append(plan.items, p.item)
				if p.catalog && p.remove {
					plan.catalogDeletes++
				}
			}
		}
	}
	return plan, nil
}

// reserveSeq returns a seq past every seq seen so far and reserves the n
// values after it. Seqs follow the clock but never go backwards.
func (m *Mirror) reserveSeq(n int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	seq := m.now().UnixNano()
	if seq <= m.lastSeq {
		seq = m.lastSeq + 1
	}
	m.lastSeq = seq + n
	return seq
}

func (m *Mirror) observeSeq(seq int64) {
	m.mu.Lock()
	if seq > m.lastSeq {
		m.lastSeq = seq
	}
	m.mu.Unlock()
}

// mapTransactionError maps DynamoDB transaction errors.
func mapTransactionError(err error) error {
	if err == nil {
		return nil
	}

	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for _, reason := range txErr.CancellationReasons {
			if reason.Code != nil && *reason.Code == "TransactionConflict" {
				return fmt.Errorf("%w: %v", ErrConflict, err)
			}
		}
	}
	return fmt.Errorf("mirror write: %w", err)
}

// Load reads the mirrored catalog and every record into a Snapshot. Tables
// come back in creation order, records sorted by key. Records older than
// their table belong to a dropped generation of the same name and are
// skipped.
func (m *Mirror) Load(ctx context.Context) (store.Snapshot, error) {
	tables, err := m.queryCatalog(ctx)
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("load catalog: %w", err)
	}

	snap := store.Snapshot{Tables: make([]store.TableSnapshot, 0, len(tables))}
	for _, t := range tables {
		records, err := m.queryTable(ctx, t.SK, t.Seq)
		if err != nil {
			return store.Snapshot{}, fmt.Errorf("load table %q: %w", t.SK, err)
		}
		snap.Tables = append(snap.Tables, store.TableSnapshot{Name: t.SK, Records: records})
	}

	m.logger.Info("loaded mirror",
		"table", m.config.Table,
		"tables", len(snap.Tables),
	)
	return snap, nil
}

// LoadInto loads the mirror and restores it into s.
func (m *Mirror) LoadInto(ctx context.Context, s *store.Store) error {
	snap, err := m.Load(ctx)
	if err != nil {
		return err
	}
	return s.Restore(snap)
}

func (m *Mirror) queryCatalog(ctx context.Context) ([]tableItem, error) {
	var tables []tableItem
	paginator := dynamodb.NewQueryPaginator(m.client, &dynamodb.QueryInput{
		TableName:              aws.String(m.config.Table),
		KeyConditionExpression: aws.String("pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: shard.CatalogPK},
		},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var items []tableItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshal catalog: %w", err)
		}
		for _, t := range items {
			m.observeSeq(t.Seq)
		}
		tables = append(tables, items...)
	}

	sort.SliceStable(tables, func(i, j int) bool {
		if tables[i].Seq != tables[j].Seq {
			return tables[i].Seq < tables[j].Seq
		}
		return tables[i].SK < tables[j].SK
	})
	return tables, nil
}

// queryTable reads every record of a store table written at or after
// minSeq, one query per shard.
func (m *Mirror) queryTable(ctx context.Context, table string, minSeq int64) ([]store.RecordSnapshot, error) {
	numShards := m.config.NumShards

	// Fast path for single shard (default)
	if numShards == 1 {
		records, err := m.queryShard(ctx, shard.ShardPK(table, 0), minSeq)
		if err != nil {
			return nil, err
		}
		sortRecords(records)
		return records, nil
	}

	// Multi-shard fan-out
	var mu sync.Mutex
	all := []store.RecordSnapshot{}
	var wg sync.WaitGroup
	errs := make(chan error, numShards)

	for shardNum := 0; shardNum < numShards; shardNum++ {
		wg.Add(1)
		go func(shardNum int) {
			defer wg.Done()

			records, err := m.queryShard(ctx, shard.ShardPK(table, shardNum), minSeq)
			if err != nil {
				errs <- fmt.Errorf("shard %02x: %w", shardNum, err)
				return
			}

			mu.Lock()
			all = append(all, records...)
			mu.Unlock()
		}(shardNum)
	}

	go func() {
		wg.Wait()
		close(errs)
	}()

	for err := range errs {
		if err != nil {
			return nil, err
		}
	}

	sortRecords(all)
	return all, nil
}

func (m *Mirror) queryShard(ctx context.Context, pk string, minSeq int64) ([]store.RecordSnapshot, error) {
	records := []store.RecordSnapshot{}
	paginator := dynamodb.NewQueryPaginator(m.client, &dynamodb.QueryInput{
		TableName:              aws.String(m.config.Table),
		KeyConditionExpression: aws.String("pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pk},
		},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range page.Items {
			var item recordItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, fmt.Errorf("unmarshal record: %w", err)
			}
			m.observeSeq(item.Seq)
			if item.Seq < minSeq {
				continue
			}
			fields := item.Fields
			if fields == nil {
				fields = []store.Field{}
			}
			records = append(records, store.RecordSnapshot{Key: item.SK, Fields: fields})
		}
	}
	return records, nil
}

func sortRecords(records []store.RecordSnapshot) {
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
}

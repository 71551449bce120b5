package stream_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/tablekv/store"
	"github.com/jacentio/tablekv/stream"
)

func keys(pk, sk string) map[string]events.DynamoDBAttributeValue {
	return map[string]events.DynamoDBAttributeValue{
		"pk": events.NewStringAttribute(pk),
		"sk": events.NewStringAttribute(sk),
	}
}

func tableEvent(name, table string) events.DynamoDBEventRecord {
	return events.DynamoDBEventRecord{
		EventID:   name + "-" + table,
		EventName: name,
		Change:    events.DynamoDBStreamRecord{Keys: keys("|tables", table)},
	}
}

func recordEvent(name, pk, key string, fields ...store.Field) events.DynamoDBEventRecord {
	list := make([]events.DynamoDBAttributeValue, 0, len(fields))
	for _, f := range fields {
		list = append(list, events.NewMapAttribute(map[string]events.DynamoDBAttributeValue{
			"n": events.NewStringAttribute(f.Name),
			"v": events.NewStringAttribute(f.Value),
		}))
	}
	rec := events.DynamoDBEventRecord{
		EventID:   name + "-" + pk + "-" + key,
		EventName: name,
		Change:    events.DynamoDBStreamRecord{Keys: keys(pk, key)},
	}
	if name != "REMOVE" {
		rec.Change.NewImage = map[string]events.DynamoDBAttributeValue{
			"pk":     events.NewStringAttribute(pk),
			"sk":     events.NewStringAttribute(key),
			"fields": events.NewListAttribute(list),
		}
	}
	return rec
}

// withSeq sets the seq attribute of an INSERT or MODIFY image.
func withSeq(rec events.DynamoDBEventRecord, seq string) events.DynamoDBEventRecord {
	if rec.Change.NewImage == nil {
		rec.Change.NewImage = map[string]events.DynamoDBAttributeValue{}
		for k, v := range rec.Change.Keys {
			rec.Change.NewImage[k] = v
		}
	}
	rec.Change.NewImage["seq"] = events.NewNumberAttribute(seq)
	return rec
}

func tablesOf(s *store.Store) []string {
	var out []string
	_ = s.View(context.Background(), func(tx *store.Tx) error {
		out = tx.ListTables()
		return nil
	})
	return out
}

func handle(t *testing.T, h *stream.Handler, records ...events.DynamoDBEventRecord) {
	t.Helper()
	if err := h.HandleReplication(context.Background(), events.DynamoDBEvent{Records: records}); err != nil {
		t.Fatalf("handle: %v", err)
	}
}

func fieldsOf(s *store.Store, table, key string) []store.Field {
	var out []store.Field
	_ = s.View(context.Background(), func(tx *store.Tx) error {
		out = tx.GetAllFields(table, key)
		return nil
	})
	return out
}

func TestNewHandler(t *testing.T) {
	// Test with nil store and logger (should not panic)
	h := stream.NewHandler(nil, nil)
	if h == nil {
		t.Fatal("expected non-nil Handler")
	}
}

func TestHandleReplication_CreateAndPut(t *testing.T) {
	s := store.New(store.DefaultConfig())
	h := stream.NewHandler(s, nil)

	handle(t, h,
		tableEvent("INSERT", "users"),
		recordEvent("INSERT", "users|00", "u1",
			store.Field{Name: "name", Value: "Ann"},
			store.Field{Name: "age", Value: "30"},
		),
	)

	want := []store.Field{{Name: "name", Value: "Ann"}, {Name: "age", Value: "30"}}
	if got := fieldsOf(s, "users", "u1"); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestHandleReplication_ModifyReplacesRecord(t *testing.T) {
	s := store.New(store.DefaultConfig())
	h := stream.NewHandler(s, nil)

	handle(t, h,
		tableEvent("INSERT", "t"),
		recordEvent("INSERT", "t|00", "k", store.Field{Name: "a", Value: "1"}, store.Field{Name: "b", Value: "2"}),
		recordEvent("MODIFY", "t|00", "k", store.Field{Name: "b", Value: "3"}),
	)

	want := []store.Field{{Name: "b", Value: "3"}}
	if got := fieldsOf(s, "t", "k"); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestHandleReplication_RecordBeforeTable(t *testing.T) {
	// Record and catalog items live in different stream shards, so a record
	// may be seen before its table.
	s := store.New(store.DefaultConfig())
	h := stream.NewHandler(s, nil)

	handle(t, h,
		recordEvent("INSERT", "t|03", "k", store.Field{Name: "a", Value: "1"}),
		tableEvent("INSERT", "t"),
	)

	_ = s.View(context.Background(), func(tx *store.Tx) error {
		if n, err := tx.TableSize("t"); err != nil || n != 1 {
			t.Errorf("expected 1 record, got %d (%v)", n, err)
		}
		return nil
	})
}

func TestHandleReplication_RemoveRecord(t *testing.T) {
	s := store.New(store.DefaultConfig())
	h := stream.NewHandler(s, nil)

	handle(t, h,
		tableEvent("INSERT", "t"),
		recordEvent("INSERT", "t|00", "k", store.Field{Name: "a", Value: "1"}),
		recordEvent("REMOVE", "t|00", "k"),
	)

	if got := fieldsOf(s, "t", "k"); len(got) != 0 {
		t.Errorf("expected record removed, got %v", got)
	}
}

func TestHandleReplication_RemovalsAreIdempotent(t *testing.T) {
	s := store.New(store.DefaultConfig())
	h := stream.NewHandler(s, nil)

	// Neither the table nor the record exists.
	handle(t, h,
		recordEvent("REMOVE", "t|00", "k"),
		tableEvent("REMOVE", "t"),
	)
}

func TestHandleReplication_DropTable(t *testing.T) {
	s := store.New(store.DefaultConfig())
	h := stream.NewHandler(s, nil)

	handle(t, h,
		tableEvent("INSERT", "t"),
		recordEvent("INSERT", "t|00", "k", store.Field{Name: "a", Value: "1"}),
		tableEvent("REMOVE", "t"),
	)

	_ = s.View(context.Background(), func(tx *store.Tx) error {
		if _, err := tx.TableSize("t"); !errors.Is(err, store.ErrTableNotFound) {
			t.Errorf("expected ErrTableNotFound, got %v", err)
		}
		return nil
	})
}

func TestHandleReplication_LateRecordAfterDrop(t *testing.T) {
	// The record was written before the drop but reaches the follower after
	// the catalog removal.
	s := store.New(store.DefaultConfig())
	h := stream.NewHandler(s, nil)

	handle(t, h,
		tableEvent("INSERT", "t"),
		tableEvent("REMOVE", "t"),
		recordEvent("INSERT", "t|00", "k", store.Field{Name: "a", Value: "1"}),
		recordEvent("REMOVE", "t|00", "k"),
	)

	if got := tablesOf(s); len(got) != 0 {
		t.Errorf("expected no tables after drop, got %v", got)
	}
}

func TestHandleReplication_RecreatedTableIgnoresOldGeneration(t *testing.T) {
	s := store.New(store.DefaultConfig())
	h := stream.NewHandler(s, nil)

	handle(t, h,
		withSeq(tableEvent("INSERT", "t"), "10"),
		tableEvent("REMOVE", "t"),
		withSeq(tableEvent("INSERT", "t"), "20"),
		withSeq(recordEvent("INSERT", "t|00", "old", store.Field{Name: "a", Value: "1"}), "12"),
		withSeq(recordEvent("INSERT", "t|00", "new", store.Field{Name: "a", Value: "2"}), "21"),
	)

	if got := tablesOf(s); !reflect.DeepEqual(got, []string{"t"}) {
		t.Fatalf("expected [t], got %v", got)
	}
	if got := fieldsOf(s, "t", "old"); len(got) != 0 {
		t.Errorf("expected record of dropped generation skipped, got %v", got)
	}
	if got := fieldsOf(s, "t", "new"); len(got) != 1 {
		t.Errorf("expected record of live generation applied, got %v", got)
	}
}

func TestHandleReplication_StopsOnError(t *testing.T) {
	s := store.New(store.DefaultConfig())
	h := stream.NewHandler(s, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.HandleReplication(ctx, events.DynamoDBEvent{Records: []events.DynamoDBEventRecord{
		tableEvent("INSERT", "t"),
	}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

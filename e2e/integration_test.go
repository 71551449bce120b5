//go:build e2e

// Package e2e contains end-to-end integration tests using a real DynamoDB table.
// Run with: go test -tags=e2e -v ./e2e/...
//
// AWS credentials and region come from the default chain; set
// TABLEKV_E2E_PROFILE to use a named shared profile instead.
package e2e

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jacentio/tablekv/dispatch"
	"github.com/jacentio/tablekv/mirror"
	"github.com/jacentio/tablekv/store"
)

// Table names are unique per test run to avoid conflicts.
const tablePrefix = "tablekv-e2e-test"

var (
	testID      string
	mirrorTable string

	ddbClient *dynamodb.Client
)

// --- Test Setup & Teardown ---

func TestMain(m *testing.M) {
	testID = uuid.New().String()[:8]
	mirrorTable = fmt.Sprintf("%s-%s-records", tablePrefix, testID)

	fmt.Printf("Test ID: %s\n", testID)
	fmt.Printf("Mirror table: %s\n", mirrorTable)

	ctx := context.Background()
	var opts []func(*config.LoadOptions) error
	if profile := os.Getenv("TABLEKV_E2E_PROFILE"); profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		fmt.Printf("Failed to load AWS config: %v\n", err)
		os.Exit(1)
	}

	ddbClient = dynamodb.NewFromConfig(cfg)

	if err := createTable(ctx); err != nil {
		fmt.Printf("Failed to create table: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	if err := deleteTable(ctx); err != nil {
		fmt.Printf("Failed to delete table: %v\n", err)
	}

	os.Exit(code)
}

func createTable(ctx context.Context) error {
	fmt.Println("Creating mirror table...")

	_, err := ddbClient.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(mirrorTable),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("pk"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("sk"), KeyType: types.KeyTypeRange},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("pk"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("sk"), AttributeType: types.ScalarAttributeTypeS},
		},
		BillingMode: types.BillingModePayPerRequest,
		StreamSpecification: &types.StreamSpecification{
			StreamEnabled:  aws.Bool(true),
			StreamViewType: types.StreamViewTypeNewAndOldImages,
		},
	})
	if err != nil {
		return fmt.Errorf("create table %s: %w", mirrorTable, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(ddbClient)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(mirrorTable),
	}, 2*time.Minute); err != nil {
		return fmt.Errorf("wait for table %s: %w", mirrorTable, err)
	}

	fmt.Println("Mirror table active")
	return nil
}

func deleteTable(ctx context.Context) error {
	fmt.Println("Deleting mirror table...")
	_, err := ddbClient.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(mirrorTable),
	})
	return err
}

// --- Helpers ---

// uniqueName returns a store table name that no other test uses.
func uniqueName(base string) string {
	return fmt.Sprintf("%s_%s", base, uuid.New().String()[:8])
}

func newMirroredStore(t *testing.T, shards int) (*store.Store, *mirror.Mirror) {
	t.Helper()
	cfg := mirror.DefaultConfig()
	cfg.Table = mirrorTable
	cfg.NumShards = shards
	m := mirror.New(ddbClient, cfg, nil)

	reg := store.NewRegistry()
	reg.Register("dynamodb", m)
	return store.NewWithRegistry(store.DefaultConfig(), reg), m
}

// loadedTable returns one table of a fresh load, sorted by key.
func loadedTable(t *testing.T, m *mirror.Mirror, name string) (store.TableSnapshot, bool) {
	t.Helper()
	snap, err := m.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, ts := range snap.Tables {
		if ts.Name == name {
			return ts, true
		}
	}
	return store.TableSnapshot{}, false
}

func storeTable(s *store.Store, name string) store.TableSnapshot {
	for _, ts := range s.Snapshot().Tables {
		if ts.Name == name {
			sort.Slice(ts.Records, func(i, j int) bool { return ts.Records[i].Key < ts.Records[j].Key })
			return ts
		}
	}
	return store.TableSnapshot{}
}

// --- Mirror Tests ---

func TestMirror_WriteThroughRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, m := newMirroredStore(t, 1)
	name := uniqueName("users")

	err := s.Update(ctx, func(tx *store.Tx) error {
		if err := tx.CreateTable(name); err != nil {
			return err
		}
		if err := tx.InsertRecord(name, "u1", []store.Field{{Name: "name", Value: "Ann"}, {Name: "age", Value: "30"}}); err != nil {
			return err
		}
		return tx.InsertRecord(name, "u2", []store.Field{{Name: "name", Value: "Bo"}})
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	got, ok := loadedTable(t, m, name)
	if !ok {
		t.Fatalf("table %s not found in mirror", name)
	}
	if want := storeTable(s, name); !reflect.DeepEqual(got, want) {
		t.Errorf("mirror differs\n got: %+v\nwant: %+v", got, want)
	}
}

func TestMirror_ShardedLoad(t *testing.T) {
	ctx := context.Background()
	s, m := newMirroredStore(t, 8)
	name := uniqueName("sharded")

	err := s.Update(ctx, func(tx *store.Tx) error {
		if err := tx.CreateTable(name); err != nil {
			return err
		}
		for i := 0; i < 40; i++ {
			if err := tx.Insert(name, fmt.Sprintf("k%03d", i), "n", fmt.Sprint(i)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	got, ok := loadedTable(t, m, name)
	if !ok {
		t.Fatalf("table %s not found in mirror", name)
	}
	if len(got.Records) != 40 {
		t.Errorf("expected 40 records, got %d", len(got.Records))
	}
}

func TestMirror_DropLargeTable(t *testing.T) {
	ctx := context.Background()
	s, m := newMirroredStore(t, 4)
	name := uniqueName("large")

	// Written in two batches; the drop then needs more items than one
	// DynamoDB transaction allows.
	for batch := 0; batch < 2; batch++ {
		err := s.Update(ctx, func(tx *store.Tx) error {
			if _, err := tx.EnsureTable(name); err != nil {
				return err
			}
			for i := 0; i < 75; i++ {
				if err := tx.Insert(name, fmt.Sprintf("k%d-%03d", batch, i), "f", "v"); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("batch %d: %v", batch, err)
		}
	}

	if err := s.Update(ctx, func(tx *store.Tx) error { return tx.DropTable(name) }); err != nil {
		t.Fatalf("drop: %v", err)
	}

	if _, ok := loadedTable(t, m, name); ok {
		t.Errorf("expected %s gone from mirror", name)
	}
}

func TestMirror_OversizedUpdateRefused(t *testing.T) {
	ctx := context.Background()
	s, m := newMirroredStore(t, 4)
	name := uniqueName("oversized")

	err := s.Update(ctx, func(tx *store.Tx) error {
		if err := tx.CreateTable(name); err != nil {
			return err
		}
		for i := 0; i < 150; i++ {
			if err := tx.Insert(name, fmt.Sprintf("k%03d", i), "f", "v"); err != nil {
				return err
			}
		}
		return nil
	})
	if !errors.Is(err, mirror.ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if _, ok := loadedTable(t, m, name); ok {
		t.Errorf("expected nothing of %s written", name)
	}
}

func TestMirror_FailedWriteRollsBack(t *testing.T) {
	ctx := context.Background()
	cfg := mirror.DefaultConfig()
	cfg.Table = mirrorTable + "-missing"
	m := mirror.New(ddbClient, cfg, nil)

	reg := store.NewRegistry()
	reg.Register("dynamodb", m)
	s := store.NewWithRegistry(store.DefaultConfig(), reg)

	err := s.Update(ctx, func(tx *store.Tx) error { return tx.CreateTable("orphan") })
	var commitErr *store.CommitError
	if !errors.As(err, &commitErr) {
		t.Fatalf("expected CommitError, got %v", err)
	}
	if tables := s.Snapshot().Tables; len(tables) != 0 {
		t.Errorf("expected rollback, got %v", tables)
	}
}

// --- Dispatcher Tests ---

func TestDispatcher_ScenarioSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	s, m := newMirroredStore(t, 1)
	d := dispatch.New(s)
	name := uniqueName("scenario")

	steps := []struct {
		what string
		got  int
		want int
	}{
		{"create_table", d.CreateTable(ctx, name), 200},
		{"insert name", d.Insert(ctx, name, "u1", "name", "Ann"), 200},
		{"update missing", d.Update(ctx, name, "u1", "age", "30"), 404},
		{"insert age", d.Insert(ctx, name, "u1", "age", "30"), 200},
		{"update age", d.Update(ctx, name, "u1", "age", "31"), 200},
	}
	for _, st := range steps {
		if st.got != st.want {
			t.Errorf("%s: expected %d, got %d", st.what, st.want, st.got)
		}
	}

	restarted := store.New(store.DefaultConfig())
	if err := m.LoadInto(ctx, restarted); err != nil {
		t.Fatalf("load into: %v", err)
	}
	var fields []store.Field
	_ = restarted.View(ctx, func(tx *store.Tx) error {
		fields = tx.GetAllFields(name, "u1")
		return nil
	})
	want := []store.Field{{Name: "name", Value: "Ann"}, {Name: "age", Value: "31"}}
	if !reflect.DeepEqual(fields, want) {
		t.Errorf("expected %v after restart, got %v", want, fields)
	}

	if status := d.DropTable(ctx, name); status != 200 {
		t.Errorf("drop_table: expected 200, got %d", status)
	}
}

// Package dispatch exposes a store as a flat set of named operations that
// report outcomes as integer status codes.
//
// Every operation is either a mutation or a query. Mutations run inside
// store.Update and hold the write lock for their whole duration, queries run
// inside store.View. Failures never leave partial state behind.
package dispatch

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jacentio/tablekv/store"
	"github.com/jacentio/tablekv/tools"
)

// Status codes returned by mutating operations.
const (
	StatusOK         = 200
	StatusBadRequest = 400
	StatusNotFound   = 404
	StatusConflict   = 409
	StatusInternal   = 500
)

// Errors returned by Call.
var (
	ErrUnknownOperation = tools.ErrUnknownOperation
	ErrInvalidArguments = tools.ErrInvalidArguments
)

const tracerName = "github.com/jacentio/tablekv/dispatch"

// Dispatcher runs named operations against a store.
type Dispatcher struct {
	store  *store.Store
	logger *slog.Logger
	tracer trace.Tracer
	ops    map[string]operation
	specs  []tools.Spec
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithTracer sets the tracer. The default comes from the global provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(d *Dispatcher) {
		if tracer != nil {
			d.tracer = tracer
		}
	}
}

// New creates a Dispatcher over s.
func New(s *store.Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:  s,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
		ops:    make(map[string]operation, len(operations)),
		specs:  make([]tools.Spec, 0, len(operations)),
	}
	for _, opt := range opts {
		opt(d)
	}
	for _, op := range operations {
		d.ops[op.spec.Name] = op
		d.specs = append(d.specs, op.spec)
	}
	return d
}

// Specs describes every operation, in table order.
func (d *Dispatcher) Specs() []tools.Spec {
	out := make([]tools.Spec, len(d.specs))
	copy(out, d.specs)
	return out
}

// MethodKinds maps every operation name to "mutate" or "query".
func (d *Dispatcher) MethodKinds() map[string]tools.Kind {
	return tools.Kinds(d.specs)
}

// Status maps an error from the store to a status code.
func Status(err error) int {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, store.ErrNotFound):
		return StatusNotFound
	case errors.Is(err, store.ErrAlreadyExists):
		return StatusConflict
	case errors.Is(err, store.ErrInvalidName), errors.Is(err, store.ErrInvalidInput):
		return StatusBadRequest
	default:
		return StatusInternal
	}
}

// run executes fn for the named operation inside View or Update, depending
// on the operation's kind, and reports the resulting status.
func (d *Dispatcher) run(ctx context.Context, name string, fn func(tx *store.Tx) error) (int, error) {
	kind := d.ops[name].spec.Kind
	id := uuid.NewString()

	ctx, span := d.tracer.Start(ctx, "tablekv."+name, trace.WithAttributes(
		attribute.String("tablekv.op", name),
		attribute.String("tablekv.kind", string(kind)),
		attribute.String("tablekv.invocation_id", id),
	))
	defer span.End()

	var err error
	if kind == tools.KindMutate {
		err = d.store.Update(ctx, fn)
	} else {
		err = d.store.View(ctx, fn)
	}
	status := Status(err)

	span.SetAttributes(attribute.Int("tablekv.status", status))
	if status >= StatusInternal {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.logger.Warn("operation failed",
			"op", name,
			"kind", kind,
			"invocation_id", id,
			"status", status,
			"error", err,
		)
	} else {
		d.logger.Debug("operation",
			"op", name,
			"kind", kind,
			"invocation_id", id,
			"status", status,
		)
	}
	return status, err
}

// CreateTable creates an empty table.
// Returns 200, 409 if it exists, or 400 for an invalid name.
func (d *Dispatcher) CreateTable(ctx context.Context, tableName string) int {
	status, _ := d.run(ctx, opCreateTable, func(tx *store.Tx) error {
		return tx.CreateTable(tableName)
	})
	return status
}

// DropTable removes a table and all its records.
// Returns 200 or 404.
func (d *Dispatcher) DropTable(ctx context.Context, tableName string) int {
	status, _ := d.run(ctx, opDropTable, func(tx *store.Tx) error {
		return tx.DropTable(tableName)
	})
	return status
}

// ListTables returns every table name in creation order.
func (d *Dispatcher) ListTables(ctx context.Context) []string {
	names := []string{}
	_, _ = d.run(ctx, opListTables, func(tx *store.Tx) error {
		names = tx.ListTables()
		return nil
	})
	return names
}

// TableSize returns the number of records in the table, or 404.
func (d *Dispatcher) TableSize(ctx context.Context, tableName string) int {
	var n int
	status, _ := d.run(ctx, opTableSize, func(tx *store.Tx) error {
		var err error
		n, err = tx.TableSize(tableName)
		return err
	})
	if status != StatusOK {
		return status
	}
	return n
}

// Insert writes one field of a record, creating the record when needed.
// Returns 200, 404 for a missing table, or 400 for an invalid key or field.
func (d *Dispatcher) Insert(ctx context.Context, table, key, field, value string) int {
	status, _ := d.run(ctx, opInsert, func(tx *store.Tx) error {
		return tx.Insert(table, key, field, value)
	})
	return status
}

// Update overwrites one field of an existing record.
// Returns 200 or 404.
func (d *Dispatcher) Update(ctx context.Context, table, key, field, value string) int {
	status, _ := d.run(ctx, opUpdate, func(tx *store.Tx) error {
		return tx.Update(table, key, field, value)
	})
	return status
}

// GetValue returns one field value. Absence is not an error.
func (d *Dispatcher) GetValue(ctx context.Context, table, key, field string) (string, bool) {
	var (
		value string
		ok    bool
	)
	_, _ = d.run(ctx, opGetValue, func(tx *store.Tx) error {
		value, ok = tx.GetValue(table, key, field)
		return nil
	})
	return value, ok
}

// RemoveField deletes one field. Removing an absent field succeeds.
// Returns 200 or 404 for a missing table or record.
func (d *Dispatcher) RemoveField(ctx context.Context, table, key, field string) int {
	status, _ := d.run(ctx, opRemoveField, func(tx *store.Tx) error {
		return tx.RemoveField(table, key, field)
	})
	return status
}

// RemoveRecord deletes a whole record. Removing an absent record succeeds.
// Returns 200 or 404 for a missing table.
func (d *Dispatcher) RemoveRecord(ctx context.Context, table, key string) int {
	status, _ := d.run(ctx, opRemoveRecord, func(tx *store.Tx) error {
		return tx.RemoveRecord(table, key)
	})
	return status
}

// InsertRecord writes every field of one record, all or nothing.
// Returns 200, 404 for a missing table, or 400 for invalid input.
func (d *Dispatcher) InsertRecord(ctx context.Context, table, key string, fields []store.Field) int {
	status, _ := d.run(ctx, opInsertRecord, func(tx *store.Tx) error {
		return tx.InsertRecord(table, key, fields)
	})
	return status
}

// InsertRecords writes a batch of records and returns how many were
// written. A missing table writes nothing.
func (d *Dispatcher) InsertRecords(ctx context.Context, table string, records []store.RecordInput) int {
	var written int
	status, _ := d.run(ctx, opInsertRecords, func(tx *store.Tx) error {
		var err error
		written, err = tx.InsertRecords(table, records)
		return err
	})
	if status != StatusOK {
		return 0
	}
	return written
}

// GetFields returns the requested fields that exist, in request order.
func (d *Dispatcher) GetFields(ctx context.Context, table, key string, fields []string) []store.Field {
	out := []store.Field{}
	_, _ = d.run(ctx, opGetFields, func(tx *store.Tx) error {
		got, err := tx.GetFields(table, key, fields)
		if err == nil {
			out = got
		}
		return nil
	})
	return out
}

// GetAllFields returns every field of a record in insertion order.
func (d *Dispatcher) GetAllFields(ctx context.Context, table, key string) []store.Field {
	out := []store.Field{}
	_, _ = d.run(ctx, opGetAllFields, func(tx *store.Tx) error {
		out = tx.GetAllFields(table, key)
		return nil
	})
	return out
}

// Tools returns the descriptor JSON of every operation.
func (d *Dispatcher) Tools(ctx context.Context) string {
	var out string
	_, _ = d.run(ctx, opTools, func(*store.Tx) error {
		var err error
		out, err = tools.JSON(d.specs)
		return err
	})
	return out
}

// Prompts returns the prompt catalog. It is always empty.
func (d *Dispatcher) Prompts(ctx context.Context) string {
	_, _ = d.run(ctx, opPrompts, func(*store.Tx) error { return nil })
	return `{"prompts":[]}`
}

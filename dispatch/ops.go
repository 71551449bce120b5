package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/jacentio/tablekv/store"
	"github.com/jacentio/tablekv/tools"
)

const (
	opCreateTable   = "create_table"
	opDropTable     = "drop_table"
	opListTables    = "list_tables"
	opTableSize     = "table_size"
	opInsert        = "insert"
	opUpdate        = "update"
	opGetValue      = "get_value"
	opRemoveField   = "remove_field"
	opRemoveRecord  = "remove_record"
	opInsertRecord  = "insert_record"
	opInsertRecords = "insert_records"
	opGetFields     = "get_fields"
	opGetAllFields  = "get_all_fields"
	opTools         = "tools"
	opPrompts       = "prompts"
)

type operation struct {
	spec tools.Spec
	call func(d *Dispatcher, ctx context.Context, args json.RawMessage) (any, error)
}

// Argument shapes accepted by Call.
type (
	tableNameArgs struct {
		TableName string `json:"table_name"`
	}
	recordArgs struct {
		Table string `json:"table"`
		Key   string `json:"key"`
	}
	fieldArgs struct {
		Table string `json:"table"`
		Key   string `json:"key"`
		Field string `json:"field"`
	}
	valueArgs struct {
		Table string `json:"table"`
		Key   string `json:"key"`
		Field string `json:"field"`
		Value string `json:"value"`
	}
	fieldsArgs struct {
		Table  string   `json:"table"`
		Key    string   `json:"key"`
		Fields []string `json:"fields"`
	}
	insertRecordArgs struct {
		Table  string        `json:"table"`
		Key    string        `json:"key"`
		Fields []store.Field `json:"fields"`
	}
	insertRecordsArgs struct {
		Table   string              `json:"table"`
		Records []store.RecordInput `json:"records"`
	}
)

var (
	paramTableName = tools.String("table_name", "name of the table\n")
	paramTable     = tools.String("table", "name of the table\n")
	paramKey       = tools.String("key", "the key / primary key of the record\n")

	pairSchema = &jsonschema.Schema{
		Type:        "array",
		Description: "a [field, value] pair",
		Items:       &jsonschema.Schema{Type: "string"},
		MinItems:    intPtr(2),
		MaxItems:    intPtr(2),
	}
	pairsParam = tools.Array("fields", "list of [field, value] pairs\n", pairSchema)
)

func intPtr(n int) *int { return &n }

// operations is the operation table. Descriptors, method kinds and Call
// routing are all derived from it.
var operations = []operation{
	{
		spec: tools.Spec{
			Name:        opCreateTable,
			Kind:        tools.KindMutate,
			Description: "creates a table (returns 200 success, 409 already exists, 400 invalid name)\n",
			Params:      []tools.Param{tools.String("table_name", "name of the table to be created\n")},
		},
		call: func(d *Dispatcher, ctx context.Context, raw json.RawMessage) (any, error) {
			var a tableNameArgs
			if err := decode(raw, &a); err != nil {
				return nil, err
			}
			return d.CreateTable(ctx, a.TableName), nil
		},
	},
	{
		spec: tools.Spec{
			Name:        opDropTable,
			Kind:        tools.KindMutate,
			Description: "drops/deletes a table (returns 200 success, 404 table not found)\n",
			Params:      []tools.Param{tools.String("table_name", "name of the table to be deleted\n")},
		},
		call: func(d *Dispatcher, ctx context.Context, raw json.RawMessage) (any, error) {
			var a tableNameArgs
			if err := decode(raw, &a); err != nil {
				return nil, err
			}
			return d.DropTable(ctx, a.TableName), nil
		},
	},
	{
		spec: tools.Spec{
			Name:        opListTables,
			Kind:        tools.KindQuery,
			Description: "list all the tables present in db now (returns list of table names, empty if none)\n",
		},
		call: func(d *Dispatcher, ctx context.Context, _ json.RawMessage) (any, error) {
			return d.ListTables(ctx), nil
		},
	},
	{
		spec: tools.Spec{
			Name:        opTableSize,
			Kind:        tools.KindQuery,
			Description: "gives size of any table (returns record count, 404 table not found)\n",
			Params:      []tools.Param{paramTableName},
		},
		call: func(d *Dispatcher, ctx context.Context, raw json.RawMessage) (any, error) {
			var a tableNameArgs
			if err := decode(raw, &a); err != nil {
				return nil, err
			}
			return d.TableSize(ctx, a.TableName), nil
		},
	},
	{
		spec: tools.Spec{
			Name:        opInsert,
			Kind:        tools.KindMutate,
			Description: "inserts field-value pair for a given key (returns 200 success, 404 table missing, 400 invalid input)\n",
			Params: []tools.Param{
				paramTable,
				paramKey,
				tools.String("field", "the field name inside the record\n"),
				tools.String("value", "the value associated with the field\n"),
			},
		},
		call: func(d *Dispatcher, ctx context.Context, raw json.RawMessage) (any, error) {
			var a valueArgs
			if err := decode(raw, &a); err != nil {
				return nil, err
			}
			return d.Insert(ctx, a.Table, a.Key, a.Field, a.Value), nil
		},
	},
	{
		spec: tools.Spec{
			Name:        opUpdate,
			Kind:        tools.KindMutate,
			Description: "updates a field value for a given key (returns 200 success, 404 table or record missing)\n",
			Params: []tools.Param{
				paramTable,
				paramKey,
				tools.String("field", "the field name to update\n"),
				tools.String("value", "the new value of the field\n"),
			},
		},
		call: func(d *Dispatcher, ctx context.Context, raw json.RawMessage) (any, error) {
			var a valueArgs
			if err := decode(raw, &a); err != nil {
				return nil, err
			}
			return d.Update(ctx, a.Table, a.Key, a.Field, a.Value), nil
		},
	},
	{
		spec: tools.Spec{
			Name:        opGetValue,
			Kind:        tools.KindQuery,
			Description: "get a single field value (returns the value if found, null otherwise)\n",
			Params: []tools.Param{
				paramTable,
				paramKey,
				tools.String("field", "the field name whose value is requested\n"),
			},
		},
		call: func(d *Dispatcher, ctx context.Context, raw json.RawMessage) (any, error) {
			var a fieldArgs
			if err := decode(raw, &a); err != nil {
				return nil, err
			}
			if v, ok := d.GetValue(ctx, a.Table, a.Key, a.Field); ok {
				return v, nil
			}
			return nil, nil
		},
	},
	{
		spec: tools.Spec{
			Name:        opRemoveField,
			Kind:        tools.KindMutate,
			Description: "removes a field from a record (returns 200 success, 404 table or record missing)\n",
			Params: []tools.Param{
				paramTable,
				paramKey,
				tools.String("field", "the field name to be removed\n"),
			},
		},
		call: func(d *Dispatcher, ctx context.Context, raw json.RawMessage) (any, error) {
			var a fieldArgs
			if err := decode(raw, &a); err != nil {
				return nil, err
			}
			return d.RemoveField(ctx, a.Table, a.Key, a.Field), nil
		},
	},
	{
		spec: tools.Spec{
			Name:        opRemoveRecord,
			Kind:        tools.KindMutate,
			Description: "removes a complete record (returns 200 success, 404 table missing)\n",
			Params:      []tools.Param{paramTable, paramKey},
		},
		call: func(d *Dispatcher, ctx context.Context, raw json.RawMessage) (any, error) {
			var a recordArgs
			if err := decode(raw, &a); err != nil {
				return nil, err
			}
			return d.RemoveRecord(ctx, a.Table, a.Key), nil
		},
	},
	{
		spec: tools.Spec{
			Name:        opInsertRecord,
			Kind:        tools.KindMutate,
			Description: "inserts a whole record at once, all fields or none (returns 200 success, 404 table missing, 400 invalid input)\n",
			Params:      []tools.Param{paramTable, paramKey, pairsParam},
		},
		call: func(d *Dispatcher, ctx context.Context, raw json.RawMessage) (any, error) {
			var a insertRecordArgs
			if err := decode(raw, &a); err != nil {
				return nil, err
			}
			return d.InsertRecord(ctx, a.Table, a.Key, a.Fields), nil
		},
	},
	{
		spec: tools.Spec{
			Name:        opInsertRecords,
			Kind:        tools.KindMutate,
			Description: "inserts many records at once, skipping invalid ones (returns number of records written, 0 if table missing)\n",
			Params: []tools.Param{
				paramTable,
				tools.Array("records", "list of records to insert\n", &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"key":    {Type: "string", Description: "the key / primary key of the record"},
						"fields": {Type: "array", Description: "list of [field, value] pairs", Items: pairSchema},
					},
					Required: []string{"key", "fields"},
				}),
			},
		},
		call: func(d *Dispatcher, ctx context.Context, raw json.RawMessage) (any, error) {
			var a insertRecordsArgs
			if err := decode(raw, &a); err != nil {
				return nil, err
			}
			return d.InsertRecords(ctx, a.Table, a.Records), nil
		},
	},
	{
		spec: tools.Spec{
			Name:        opGetFields,
			Kind:        tools.KindQuery,
			Description: "retrieve multiple fields from a record (returns list of existing field-value pairs)\n",
			Params: []tools.Param{
				paramTable,
				paramKey,
				tools.Array("fields", "list of field names to retrieve\n", &jsonschema.Schema{Type: "string"}),
			},
		},
		call: func(d *Dispatcher, ctx context.Context, raw json.RawMessage) (any, error) {
			var a fieldsArgs
			if err := decode(raw, &a); err != nil {
				return nil, err
			}
			return d.GetFields(ctx, a.Table, a.Key, a.Fields), nil
		},
	},
	{
		spec: tools.Spec{
			Name:        opGetAllFields,
			Kind:        tools.KindQuery,
			Description: "retrieve the full record (returns all field-value pairs, empty if record missing)\n",
			Params:      []tools.Param{paramTable, paramKey},
		},
		call: func(d *Dispatcher, ctx context.Context, raw json.RawMessage) (any, error) {
			var a recordArgs
			if err := decode(raw, &a); err != nil {
				return nil, err
			}
			return d.GetAllFields(ctx, a.Table, a.Key), nil
		},
	},
	{
		spec: tools.Spec{
			Name:        opTools,
			Kind:        tools.KindQuery,
			Description: "describes every operation (returns tool descriptors as JSON)\n",
		},
		call: func(d *Dispatcher, ctx context.Context, _ json.RawMessage) (any, error) {
			return d.Tools(ctx), nil
		},
	},
	{
		spec: tools.Spec{
			Name:        opPrompts,
			Kind:        tools.KindQuery,
			Description: "lists prompt templates (returns an empty prompt catalog)\n",
		},
		call: func(d *Dispatcher, ctx context.Context, _ json.RawMessage) (any, error) {
			return d.Prompts(ctx), nil
		},
	},
}

// Call runs the named operation with JSON arguments and returns its JSON
// result: a status code, a count, a list, a string, or null.
func (d *Dispatcher) Call(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	op, ok := d.ops[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, name)
	}
	result, err := op.call(d, ctx, args)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", name, err)
	}
	return out, nil
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}

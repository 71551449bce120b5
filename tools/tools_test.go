package tools

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
)

var testSpecs = []Spec{
	{
		Name:        "create_table",
		Kind:        KindMutate,
		Description: "creates a table\n",
		Params:      []Param{String("table_name", "name of the table\n")},
	},
	{
		Name:        "list_tables",
		Kind:        KindQuery,
		Description: "lists tables\n",
	},
	{
		Name:        "get_fields",
		Kind:        KindQuery,
		Description: "retrieve multiple fields\n",
		Params: []Param{
			String("table", "name of the table\n"),
			Array("fields", "list of field names\n", &jsonschema.Schema{Type: "string"}),
			Integer("limit", "how many\n"),
		},
	},
}

func TestSchema_RequiresEveryParam(t *testing.T) {
	schema := testSpecs[2].Schema()

	if schema.Type != "object" {
		t.Errorf("expected object schema, got %q", schema.Type)
	}
	want := []string{"table", "fields", "limit"}
	if !reflect.DeepEqual(schema.Required, want) {
		t.Errorf("expected required %v, got %v", want, schema.Required)
	}
	fields := schema.Properties["fields"]
	if fields == nil || fields.Type != "array" || fields.Items == nil || fields.Items.Type != "string" {
		t.Errorf("unexpected fields schema %+v", fields)
	}
	limit := schema.Properties["limit"]
	if limit == nil || limit.Minimum == nil || *limit.Minimum != 0 {
		t.Errorf("expected non-negative limit, got %+v", limit)
	}
}

func TestSchema_NoParams(t *testing.T) {
	schema := testSpecs[1].Schema()
	if len(schema.Properties) != 0 || len(schema.Required) != 0 {
		t.Errorf("expected empty schema, got %+v", schema)
	}
}

func TestSchema_Enum(t *testing.T) {
	p := String("level", "one of the levels")
	p.Enum = []string{"low", "high"}
	schema := Spec{Name: "x", Params: []Param{p}}.Schema()

	want := []any{"low", "high"}
	if got := schema.Properties["level"].Enum; !reflect.DeepEqual(got, want) {
		t.Errorf("expected enum %v, got %v", want, got)
	}
}

func TestJSON_Shape(t *testing.T) {
	out, err := JSON(testSpecs)
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}

	var decoded []struct {
		Type     string `json:"type"`
		Function struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			Parameters  struct {
				Type       string                     `json:"type"`
				Properties map[string]json.RawMessage `json:"properties"`
				Required   []string                   `json:"required"`
			} `json:"parameters"`
		} `json:"function"`
	}
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}

	if len(decoded) != len(testSpecs) {
		t.Fatalf("expected %d descriptors, got %d", len(testSpecs), len(decoded))
	}
	for i, d := range decoded {
		if d.Type != "function" {
			t.Errorf("descriptor %d: expected type function, got %q", i, d.Type)
		}
		if d.Function.Name != testSpecs[i].Name {
			t.Errorf("descriptor %d: expected name %q, got %q", i, testSpecs[i].Name, d.Function.Name)
		}
		if d.Function.Parameters.Type != "object" {
			t.Errorf("descriptor %d: expected object parameters", i)
		}
		if len(d.Function.Parameters.Properties) != len(testSpecs[i].Params) {
			t.Errorf("descriptor %d: expected %d properties, got %d",
				i, len(testSpecs[i].Params), len(d.Function.Parameters.Properties))
		}
	}
}

func TestKinds(t *testing.T) {
	kinds := Kinds(testSpecs)
	want := map[string]Kind{
		"create_table": KindMutate,
		"list_tables":  KindQuery,
		"get_fields":   KindQuery,
	}
	if !reflect.DeepEqual(kinds, want) {
		t.Errorf("expected %v, got %v", want, kinds)
	}
}

func TestNames_Sorted(t *testing.T) {
	want := []string{"create_table", "get_fields", "list_tables"}
	if got := Names(testSpecs); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

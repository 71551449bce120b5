// Package tools describes callable operations and renders them as
// function-calling descriptors for external invocation layers.
//
// Descriptors are generated from Spec values so that the advertised
// parameters cannot drift from the operations that implement them.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/jsonschema-go/jsonschema"
)

var (
	// ErrUnknownOperation is returned by Call for a name no Spec declares.
	ErrUnknownOperation = errors.New("tablekv: unknown operation")

	// ErrInvalidArguments is returned by Call when the arguments do not
	// decode into the operation's parameters.
	ErrInvalidArguments = errors.New("tablekv: invalid arguments")
)

// Caller is a set of operations callable by name with JSON arguments.
type Caller interface {
	Specs() []Spec
	Call(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error)
}

// Kind tells whether an operation changes persisted state.
type Kind string

const (
	// KindMutate operations change state and run exclusively.
	KindMutate Kind = "mutate"

	// KindQuery operations only read state.
	KindQuery Kind = "query"
)

// Param is one named argument of an operation. Every param is required.
type Param struct {
	Name        string
	Type        string // JSON schema type: string, integer, number, array, object
	Description string
	Items       *jsonschema.Schema // element schema when Type is array
	Enum        []string
	Minimum     *float64
}

// String returns a string param.
func String(name, description string) Param {
	return Param{Name: name, Type: "string", Description: description}
}

// Integer returns a non-negative integer param.
func Integer(name, description string) Param {
	return Param{Name: name, Type: "integer", Description: description, Minimum: zero()}
}

// Number returns a non-negative number param.
func Number(name, description string) Param {
	return Param{Name: name, Type: "number", Description: description, Minimum: zero()}
}

// Array returns an array param whose elements match items.
func Array(name, description string, items *jsonschema.Schema) Param {
	return Param{Name: name, Type: "array", Description: description, Items: items}
}

func zero() *float64 {
	z := 0.0
	return &z
}

// Spec describes one operation.
type Spec struct {
	Name        string
	Kind        Kind
	Description string
	Params      []Param
}

// Schema builds the JSON schema of the operation's argument object.
func (s Spec) Schema() *jsonschema.Schema {
	schema := &jsonschema.Schema{
		Type:       "object",
		Properties: make(map[string]*jsonschema.Schema, len(s.Params)),
		Required:   make([]string, 0, len(s.Params)),
	}
	for _, p := range s.Params {
		prop := &jsonschema.Schema{
			Type:        p.Type,
			Description: p.Description,
			Items:       p.Items,
			Minimum:     p.Minimum,
		}
		for _, e := range p.Enum {
			prop.Enum = append(prop.Enum, e)
		}
		schema.Properties[p.Name] = prop
		schema.Required = append(schema.Required, p.Name)
	}
	return schema
}

// Function is the body of a Descriptor.
type Function struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
}

// Descriptor is a function-calling tool descriptor:
// {"type":"function","function":{"name","description","parameters"}}.
type Descriptor struct {
	Type     string   `json:"type"`
	Function Function `json:"function"`
}

// Describe returns the descriptor of one spec.
func (s Spec) Describe() Descriptor {
	return Descriptor{
		Type: "function",
		Function: Function{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  s.Schema(),
		},
	}
}

// Descriptors returns one descriptor per spec, in spec order.
func Descriptors(specs []Spec) []Descriptor {
	out := make([]Descriptor, 0, len(specs))
	for _, s := range specs {
		out = append(out, s.Describe())
	}
	return out
}

// JSON renders the descriptors of specs as an indented JSON array.
func JSON(specs []Spec) (string, error) {
	data, err := json.MarshalIndent(Descriptors(specs), "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal descriptors: %w", err)
	}
	return string(data), nil
}

// Kinds maps every operation name to its kind.
func Kinds(specs []Spec) map[string]Kind {
	out := make(map[string]Kind, len(specs))
	for _, s := range specs {
		out[s.Name] = s.Kind
	}
	return out
}

// Names returns the sorted operation names.
func Names(specs []Spec) []string {
	out := make([]string, 0, len(specs))
	for _, s := range specs {
		out = append(out, s.Name)
	}
	sort.Strings(out)
	return out
}

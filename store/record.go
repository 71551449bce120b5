package store

import (
	"encoding/json"
	"fmt"
)

// Field is one field/value pair of a record.
//
// It encodes to JSON as a two element array, ["name","value"], which is
// the tuple shape callers of the operation surface expect.
type Field struct {
	Name  string `dynamodbav:"n"`
	Value string `dynamodbav:"v"`
}

// MarshalJSON encodes the pair as ["name","value"].
func (f Field) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{f.Name, f.Value})
}

// UnmarshalJSON accepts ["name","value"].
func (f *Field) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decode field pair: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("decode field pair: want 2 elements, got %d", len(pair))
	}
	f.Name, f.Value = pair[0], pair[1]
	return nil
}

// record maps field names to values and remembers insertion order.
type record struct {
	values map[string]string
	order  []string
}

func newRecord() *record {
	return &record{values: make(map[string]string)}
}

func (r *record) len() int {
	return len(r.order)
}

func (r *record) get(name string) (string, bool) {
	v, ok := r.values[name]
	return v, ok
}

// set writes the field, appending it to the order when new.
func (r *record) set(name, value string) (prev string, existed bool) {
	prev, existed = r.values[name]
	if !existed {
		r.order = append(r.order, name)
	}
	r.values[name] = value
	return prev, existed
}

// remove deletes the field and reports where it sat in the order.
func (r *record) remove(name string) (prev string, pos int, existed bool) {
	prev, existed = r.values[name]
	if !existed {
		return "", -1, false
	}
	delete(r.values, name)
	for i, n := range r.order {
		if n == name {
			pos = i
			break
		}
	}
	r.order = append(r.order[:pos], r.order[pos+1:]...)
	return prev, pos, true
}

// insertAt puts a removed field back at its old position.
func (r *record) insertAt(pos int, name, value string) {
	if pos < 0 || pos > len(r.order) {
		pos = len(r.order)
	}
	r.order = append(r.order, "")
	copy(r.order[pos+1:], r.order[pos:])
	r.order[pos] = name
	r.values[name] = value
}

func (r *record) fields() []Field {
	out := make([]Field, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, Field{Name: name, Value: r.values[name]})
	}
	return out
}

// pick returns the requested fields that exist, in request order.
func (r *record) pick(names []string) []Field {
	out := make([]Field, 0, len(names))
	for _, name := range names {
		if v, ok := r.values[name]; ok {
			out = append(out, Field{Name: name, Value: v})
		}
	}
	return out
}

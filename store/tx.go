package store

import (
	"fmt"
	"strings"
)

// ChangeKind identifies what a committed Change did.
type ChangeKind int

const (
	// ChangeCreateTable records a new, empty table.
	ChangeCreateTable ChangeKind = iota + 1

	// ChangeDropTable records a dropped table; Keys lists the records it held.
	ChangeDropTable

	// ChangePutRecord carries the full post-image of a record in Fields.
	ChangePutRecord

	// ChangeDeleteRecord records a removed record.
	ChangeDeleteRecord
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeCreateTable:
		return "create_table"
	case ChangeDropTable:
		return "drop_table"
	case ChangePutRecord:
		return "put_record"
	case ChangeDeleteRecord:
		return "delete_record"
	default:
		return fmt.Sprintf("change(%d)", int(k))
	}
}

// Change is one state transition made by a committed transaction.
type Change struct {
	Kind   ChangeKind
	Table  string
	Key    string
	Fields []Field
	Keys   []string
}

// RecordInput is one record of a batch insert.
type RecordInput struct {
	Key    string  `json:"key"`
	Fields []Field `json:"fields"`
}

// Tx is the view of the store handed to View and Update callbacks.
// A Tx must not be used after its callback returns.
type Tx struct {
	cat      *catalog
	config   *Config
	writable bool
	undo     []func()
	changes  []Change
}

func (tx *Tx) checkWritable() error {
	if !tx.writable {
		return ErrReadOnly
	}
	return nil
}

func (tx *Tx) validTableName(name string) error {
	if name == "" || len(name) > tx.config.MaxNameLength || strings.Contains(name, Separator) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func (tx *Tx) validKey(key string) error {
	if key == "" || len(key) > tx.config.MaxNameLength || strings.Contains(key, Separator) {
		return fmt.Errorf("%w: key %q", ErrInvalidInput, key)
	}
	return nil
}

func (tx *Tx) validField(name string) error {
	if name == "" || len(name) > tx.config.MaxNameLength {
		return fmt.Errorf("%w: field %q", ErrInvalidInput, name)
	}
	return nil
}

func (tx *Tx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
	tx.changes = nil
}

func (tx *Tx) putChange(t *table, key string, r *record) {
	tx.changes = append(tx.changes, Change{
		Kind:   ChangePutRecord,
		Table:  t.name,
		Key:    key,
		Fields: r.fields(),
	})
}

// CreateTable adds an empty table.
func (tx *Tx) CreateTable(name string) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	if err := tx.validTableName(name); err != nil {
		return err
	}
	if _, err := tx.cat.create(name); err != nil {
		return err
	}
	tx.undo = append(tx.undo, func() { tx.cat.uncreate(name) })
	tx.changes = append(tx.changes, Change{Kind: ChangeCreateTable, Table: name})
	return nil
}

// EnsureTable creates the table unless it exists and reports whether it did.
func (tx *Tx) EnsureTable(name string) (bool, error) {
	if err := tx.checkWritable(); err != nil {
		return false, err
	}
	if _, err := tx.cat.resolve(name); err == nil {
		return false, nil
	}
	if err := tx.CreateTable(name); err != nil {
		return false, err
	}
	return true, nil
}

// DropTable removes the table and every record in it.
func (tx *Tx) DropTable(name string) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	t, pos, err := tx.cat.drop(name)
	if err != nil {
		return err
	}
	tx.undo = append(tx.undo, func() { tx.cat.restore(t, pos) })
	tx.changes = append(tx.changes, Change{Kind: ChangeDropTable, Table: name, Keys: t.keyList()})
	return nil
}

// ListTables returns table names in creation order.
func (tx *Tx) ListTables() []string {
	return tx.cat.list()
}

// TableSize returns the number of records in the table.
func (tx *Tx) TableSize(name string) (int, error) {
	t, err := tx.cat.resolve(name)
	if err != nil {
		return 0, err
	}
	return t.size(), nil
}

// Keys returns the record keys of the table.
func (tx *Tx) Keys(name string) ([]string, error) {
	t, err := tx.cat.resolve(name)
	if err != nil {
		return nil, err
	}
	return t.keyList(), nil
}

// set writes one field, creating the record when needed.
func (tx *Tx) set(t *table, key, field, value string) {
	r, ok := t.get(key)
	if !ok {
		r = newRecord()
		t.add(key, r)
		tx.undo = append(tx.undo, func() { t.remove(key) })
	}
	prev, existed := r.set(field, value)
	tx.undo = append(tx.undo, func() {
		if existed {
			r.values[field] = prev
			return
		}
		r.remove(field)
	})
}

// Insert writes field=value on the record, creating the record if needed
// and overwriting the field if present.
func (tx *Tx) Insert(tableName, key, field, value string) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	t, err := tx.cat.resolve(tableName)
	if err != nil {
		return err
	}
	if err := tx.validKey(key); err != nil {
		return err
	}
	if err := tx.validField(field); err != nil {
		return err
	}
	tx.set(t, key, field, value)
	r, _ := t.get(key)
	tx.putChange(t, key, r)
	return nil
}

// Update overwrites an existing field. Under UpdateRequireField the field
// must have been inserted before; under UpdateUpsertField only the record
// has to exist.
func (tx *Tx) Update(tableName, key, field, value string) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	t, err := tx.cat.resolve(tableName)
	if err != nil {
		return err
	}
	r, ok := t.get(key)
	if !ok {
		return ErrRecordNotFound
	}
	if _, ok := r.get(field); !ok {
		if tx.config.UpdatePolicy == UpdateRequireField {
			return ErrFieldNotFound
		}
		if err := tx.validField(field); err != nil {
			return err
		}
	}
	tx.set(t, key, field, value)
	tx.putChange(t, key, r)
	return nil
}

// GetValue returns the field value, or false when the table, record or
// field is absent.
func (tx *Tx) GetValue(tableName, key, field string) (string, bool) {
	t, err := tx.cat.resolve(tableName)
	if err != nil {
		return "", false
	}
	r, ok := t.get(key)
	if !ok {
		return "", false
	}
	return r.get(field)
}

// RemoveField deletes one field. The table and record must exist; a missing
// field is not an error.
func (tx *Tx) RemoveField(tableName, key, field string) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	t, err := tx.cat.resolve(tableName)
	if err != nil {
		return err
	}
	r, ok := t.get(key)
	if !ok {
		return ErrRecordNotFound
	}
	prev, pos, existed := r.remove(field)
	if !existed {
		return nil
	}
	tx.undo = append(tx.undo, func() { r.insertAt(pos, field, prev) })

	if r.len() == 0 && tx.config.DropEmptyRecords {
		return tx.removeRecord(t, key)
	}
	tx.putChange(t, key, r)
	return nil
}

// RemoveRecord deletes the record and all its fields. The table must exist;
// a missing record is not an error.
func (tx *Tx) RemoveRecord(tableName, key string) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	t, err := tx.cat.resolve(tableName)
	if err != nil {
		return err
	}
	return tx.removeRecord(t, key)
}

func (tx *Tx) removeRecord(t *table, key string) error {
	r, pos, ok := t.remove(key)
	if !ok {
		return nil
	}
	tx.undo = append(tx.undo, func() { t.restore(key, r, pos) })
	tx.changes = append(tx.changes, Change{Kind: ChangeDeleteRecord, Table: t.name, Key: key})
	return nil
}

// InsertRecord writes every field of one record, all or nothing.
func (tx *Tx) InsertRecord(tableName, key string, fields []Field) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	t, err := tx.cat.resolve(tableName)
	if err != nil {
		return err
	}
	if err := tx.validRecord(key, fields); err != nil {
		return err
	}
	for _, f := range fields {
		tx.set(t, key, f.Name, f.Value)
	}
	r, _ := t.get(key)
	tx.putChange(t, key, r)
	return nil
}

func (tx *Tx) validRecord(key string, fields []Field) error {
	if err := tx.validKey(key); err != nil {
		return err
	}
	if len(fields) == 0 {
		return fmt.Errorf("%w: record %q has no fields", ErrInvalidInput, key)
	}
	for _, f := range fields {
		if err := tx.validField(f.Name); err != nil {
			return err
		}
	}
	return nil
}

// InsertRecords writes a batch of records and returns how many were
// written. Records with an invalid key, no fields or an empty field name
// are skipped.
func (tx *Tx) InsertRecords(tableName string, records []RecordInput) (int, error) {
	if err := tx.checkWritable(); err != nil {
		return 0, err
	}
	t, err := tx.cat.resolve(tableName)
	if err != nil {
		return 0, err
	}
	written := 0
	for _, rec := range records {
		if tx.validRecord(rec.Key, rec.Fields) != nil {
			continue
		}
		for _, f := range rec.Fields {
			tx.set(t, rec.Key, f.Name, f.Value)
		}
		r, _ := t.get(rec.Key)
		tx.putChange(t, rec.Key, r)
		written++
	}
	return written, nil
}

// PutRecord replaces the record with exactly the given fields.
func (tx *Tx) PutRecord(tableName, key string, fields []Field) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	t, err := tx.cat.resolve(tableName)
	if err != nil {
		return err
	}
	if err := tx.validKey(key); err != nil {
		return err
	}
	for _, f := range fields {
		if err := tx.validField(f.Name); err != nil {
			return err
		}
	}
	if old, pos, ok := t.remove(key); ok {
		tx.undo = append(tx.undo, func() { t.restore(key, old, pos) })
	}
	r := newRecord()
	for _, f := range fields {
		r.set(f.Name, f.Value)
	}
	t.add(key, r)
	tx.undo = append(tx.undo, func() { t.remove(key) })
	tx.putChange(t, key, r)
	return nil
}

// GetFields returns the requested fields that exist, in request order.
// Only a missing table is an error.
func (tx *Tx) GetFields(tableName, key string, fields []string) ([]Field, error) {
	t, err := tx.cat.resolve(tableName)
	if err != nil {
		return nil, err
	}
	r, ok := t.get(key)
	if !ok {
		return []Field{}, nil
	}
	return r.pick(fields), nil
}

// GetAllFields returns every field of the record in insertion order, or an
// empty slice when the table or record is absent.
func (tx *Tx) GetAllFields(tableName, key string) []Field {
	t, err := tx.cat.resolve(tableName)
	if err != nil {
		return []Field{}
	}
	r, ok := t.get(key)
	if !ok {
		return []Field{}
	}
	return r.fields()
}

package store

import "fmt"

// Snapshot is a full copy of the store's contents.
type Snapshot struct {
	Tables []TableSnapshot
}

// TableSnapshot is one table of a Snapshot.
type TableSnapshot struct {
	Name    string
	Records []RecordSnapshot
}

// RecordSnapshot is one record of a TableSnapshot.
type RecordSnapshot struct {
	Key    string
	Fields []Field
}

// Snapshot copies every table and record. Tables come in creation order.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{Tables: make([]TableSnapshot, 0, len(s.cat.names))}
	for _, name := range s.cat.names {
		t := s.cat.tables[name]
		ts := TableSnapshot{Name: name, Records: make([]RecordSnapshot, 0, t.size())}
		for _, key := range t.keys {
			ts.Records = append(ts.Records, RecordSnapshot{Key: key, Fields: t.records[key].fields()})
		}
		snap.Tables = append(snap.Tables, ts)
	}
	return snap
}

// Restore replaces the whole store with snap. Commit hooks are not called.
// Names are checked as a transaction would check them; nothing changes if
// snap holds an invalid or duplicate name.
func (s *Store) Restore(snap Snapshot) error {
	check := &Tx{config: &s.config}
	cat := newCatalog()
	for _, ts := range snap.Tables {
		if err := check.validTableName(ts.Name); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		t, err := cat.create(ts.Name)
		if err != nil {
			return fmt.Errorf("restore %q: %w", ts.Name, err)
		}
		for _, rs := range ts.Records {
			if err := check.validKey(rs.Key); err != nil {
				return fmt.Errorf("restore %q: %w", ts.Name, err)
			}
			if _, dup := t.get(rs.Key); dup {
				return fmt.Errorf("restore %q: %w: duplicate key %q", ts.Name, ErrInvalidInput, rs.Key)
			}
			r := newRecord()
			for _, f := range rs.Fields {
				if err := check.validField(f.Name); err != nil {
					return fmt.Errorf("restore %q/%q: %w", ts.Name, rs.Key, err)
				}
				r.set(f.Name, f.Value)
			}
			t.add(rs.Key, r)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cat = cat
	return nil
}

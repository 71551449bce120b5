package store

// table owns the records of one named table.
//
// keys/index form a dense key list so removal is O(1): the last key is
// moved into the freed slot.
type table struct {
	name    string
	records map[string]*record
	keys    []string
	index   map[string]int
}

func newTable(name string) *table {
	return &table{
		name:    name,
		records: make(map[string]*record),
		index:   make(map[string]int),
	}
}

func (t *table) size() int {
	return len(t.keys)
}

func (t *table) get(key string) (*record, bool) {
	r, ok := t.records[key]
	return r, ok
}

// add registers a new record under key. The key must not exist.
func (t *table) add(key string, r *record) {
	t.index[key] = len(t.keys)
	t.keys = append(t.keys, key)
	t.records[key] = r
}

// remove deletes key with swap-and-pop and returns the slot it occupied.
func (t *table) remove(key string) (*record, int, bool) {
	r, ok := t.records[key]
	if !ok {
		return nil, -1, false
	}
	pos := t.index[key]
	last := len(t.keys) - 1
	if pos != last {
		moved := t.keys[last]
		t.keys[pos] = moved
		t.index[moved] = pos
	}
	t.keys = t.keys[:last]
	delete(t.index, key)
	delete(t.records, key)
	return r, pos, true
}

// restore undoes remove: the key returns to pos and whatever key was
// moved into pos goes back to the tail.
func (t *table) restore(key string, r *record, pos int) {
	if pos < 0 || pos >= len(t.keys) {
		t.add(key, r)
		return
	}
	moved := t.keys[pos]
	t.index[moved] = len(t.keys)
	t.keys = append(t.keys, moved)
	t.keys[pos] = key
	t.index[key] = pos
	t.records[key] = r
}

func (t *table) keyList() []string {
	return append([]string(nil), t.keys...)
}

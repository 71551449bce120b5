package store

// catalog owns every table, keeping creation order for listing.
type catalog struct {
	tables map[string]*table
	names  []string
}

func newCatalog() *catalog {
	return &catalog{tables: make(map[string]*table)}
}

func (c *catalog) resolve(name string) (*table, error) {
	t, ok := c.tables[name]
	if !ok {
		return nil, ErrTableNotFound
	}
	return t, nil
}

func (c *catalog) create(name string) (*table, error) {
	if _, ok := c.tables[name]; ok {
		return nil, ErrAlreadyExists
	}
	t := newTable(name)
	c.tables[name] = t
	c.names = append(c.names, name)
	return t, nil
}

// drop removes the table and reports its position in the listing order.
func (c *catalog) drop(name string) (*table, int, error) {
	t, ok := c.tables[name]
	if !ok {
		return nil, -1, ErrTableNotFound
	}
	pos := 0
	for i, n := range c.names {
		if n == name {
			pos = i
			break
		}
	}
	c.names = append(c.names[:pos], c.names[pos+1:]...)
	delete(c.tables, name)
	return t, pos, nil
}

// restore puts a dropped table back at pos.
func (c *catalog) restore(t *table, pos int) {
	if pos < 0 || pos > len(c.names) {
		pos = len(c.names)
	}
	c.names = append(c.names, "")
	copy(c.names[pos+1:], c.names[pos:])
	c.names[pos] = t.name
	c.tables[t.name] = t
}

// uncreate undoes create; the table is always the newest name.
func (c *catalog) uncreate(name string) {
	delete(c.tables, name)
	if n := len(c.names); n > 0 && c.names[n-1] == name {
		c.names = c.names[:n-1]
	}
}

func (c *catalog) list() []string {
	return append([]string{}, c.names...)
}

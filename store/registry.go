package store

import "context"

// Committer receives the changes of every successful Update before the
// write lock is released. Returning an error rolls the transaction back.
//
// Hooks run in registration order and the first failure stops the rest.
// Hooks that already ran are not told about the rollback, so any side
// effect they made stays. Register the hook whose failure must undo the
// update (the durable mirror) first, and keep later hooks free of side
// effects that depend on the update standing.
type Committer interface {
	Commit(ctx context.Context, changes []Change) error
}

// CommitterFunc adapts a function to Committer.
type CommitterFunc func(ctx context.Context, changes []Change) error

// Commit calls f.
func (f CommitterFunc) Commit(ctx context.Context, changes []Change) error {
	return f(ctx, changes)
}

type registration struct {
	name      string
	committer Committer
}

// Registry holds the commit hooks of a Store, in registration order.
type Registry struct {
	registrations []registration
	byName        map[string]Committer
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		registrations: []registration{},
		byName:        make(map[string]Committer),
	}
}

// Register adds a named commit hook. Registering a name twice replaces the
// earlier hook in place.
func (r *Registry) Register(name string, c Committer) {
	if _, ok := r.byName[name]; ok {
		for i := range r.registrations {
			if r.registrations[i].name == name {
				r.registrations[i].committer = c
			}
		}
		r.byName[name] = c
		return
	}
	r.registrations = append(r.registrations, registration{name: name, committer: c})
	r.byName[name] = c
}

// Lookup returns the hook registered under name.
func (r *Registry) Lookup(name string) (Committer, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// Names returns the registered hook names in order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.registrations))
	for _, reg := range r.registrations {
		names = append(names, reg.name)
	}
	return names
}

// Len returns the number of registered hooks.
func (r *Registry) Len() int {
	return len(r.registrations)
}

// commit runs the hooks in order. Earlier hooks are not undone when a later
// one fails.
func (r *Registry) commit(ctx context.Context, changes []Change) error {
	for _, reg := range r.registrations {
		if err := reg.committer.Commit(ctx, changes); err != nil {
			return &CommitError{Hook: reg.name, Err: err}
		}
	}
	return nil
}

// CommitError reports which hook refused a transaction.
type CommitError struct {
	Hook string
	Err  error
}

func (e *CommitError) Error() string {
	return "tablekv: commit hook " + e.Hook + ": " + e.Err.Error()
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

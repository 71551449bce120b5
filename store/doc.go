// Package store provides an embedded, transactional, multi-table key-value store.
//
// A Store holds a catalog of named tables. Each table maps a primary key to a
// record, and each record maps field names to opaque string values.
//
// # Transactions
//
// All access goes through a [Tx] handed to a callback:
//
//	err := s.Update(ctx, func(tx *store.Tx) error {
//	    if err := tx.CreateTable("users"); err != nil {
//	        return err
//	    }
//	    return tx.Insert("users", "u1", "name", "Ann")
//	})
//
// [Store.View] takes a shared lock and any number of views run together.
// [Store.Update] takes the exclusive lock. If the callback or a commit hook
// fails, every change made by the callback is undone, so readers only ever
// see the state before or after a whole update.
//
// # Key Features
//
//   - Tables listed in creation order, records counted by key
//   - Field insertion order preserved for enumeration
//   - Strict update (field must exist) or upsert policy
//   - Optional deletion of records whose last field is removed
//   - Commit hooks for write-through mirrors, run in registration order;
//     a failing hook rolls the update back but earlier hooks are not undone
//   - Snapshot and Restore of the whole store
//
// # Configuration
//
// Use [DefaultConfig] for the strict update policy with empty records kept:
//
//	cfg := store.DefaultConfig()
//	cfg.DropEmptyRecords = true
//
// # Errors
//
//   - [ErrNotFound] - table, record or field absent; matches the specific
//     [ErrTableNotFound], [ErrRecordNotFound] and [ErrFieldNotFound]
//   - [ErrAlreadyExists] - table name taken
//   - [ErrInvalidName] - empty, oversized or "|"-bearing table name
//   - [ErrInvalidInput] - empty or malformed key or field name
//   - [ErrReadOnly] - mutation attempted inside View
package store

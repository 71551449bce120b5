package store

import (
	"fmt"
	"strings"
)

// UpdatePolicy selects how Update treats a field that does not exist yet.
type UpdatePolicy int

const (
	// UpdateRequireField makes Update fail with ErrFieldNotFound unless the
	// field was inserted before. This is the default.
	UpdateRequireField UpdatePolicy = iota

	// UpdateUpsertField lets Update write a missing field as long as the
	// record exists.
	UpdateUpsertField
)

func (p UpdatePolicy) String() string {
	switch p {
	case UpdateUpsertField:
		return "upsert"
	default:
		return "require"
	}
}

// ParseUpdatePolicy maps "require" or "upsert" to an UpdatePolicy.
func ParseUpdatePolicy(s string) (UpdatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "require", "strict":
		return UpdateRequireField, nil
	case "upsert":
		return UpdateUpsertField, nil
	default:
		return UpdateRequireField, fmt.Errorf("unknown update policy %q", s)
	}
}

// Separator is reserved: table names and record keys may not contain it
// because the durable mirror uses it to build composite keys.
const Separator = "|"

// Config holds configuration for the Store.
type Config struct {
	// UpdatePolicy decides whether Update requires the field to exist.
	// Default: UpdateRequireField
	UpdatePolicy UpdatePolicy

	// DropEmptyRecords deletes a record when RemoveField removes its last field.
	// Default: false (the record stays, with zero fields)
	DropEmptyRecords bool

	// MaxNameLength bounds table names, record keys and field names in bytes.
	// Default: 1024 (the DynamoDB sort key limit, so every record can be mirrored)
	// Max: 1024
	MaxNameLength int
}

// DefaultConfig returns the strict update policy with empty records kept.
func DefaultConfig() Config {
	return Config{
		UpdatePolicy:     UpdateRequireField,
		DropEmptyRecords: false,
		MaxNameLength:    1024,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.UpdatePolicy != UpdateUpsertField {
		c.UpdatePolicy = UpdateRequireField
	}
	if c.MaxNameLength < 1 || c.MaxNameLength > 1024 {
		c.MaxNameLength = 1024
	}
}

// Package registry persists every pipeline entity in SQLite and is the
// single source of truth. Status fields are mutated only through
// conditional updates; a lost race surfaces as ErrConflict, which callers
// treat as benign.
package registry

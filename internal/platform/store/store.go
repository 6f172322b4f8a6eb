// Package store defines the keyed-record persistence capability the rest of
// the service is written against. Adapters live in subpackages (REST) and in
// the database package (direct Postgres).
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
)

// Record is one row as a field-name to value map.
type Record map[string]any

type Op string

const (
	OpEq  Op = "eq"
	OpNeq Op = "neq"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
)

type Predicate struct {
	Field string
	Op    Op
	Value any
}

// Filter is a conjunction of predicates. An empty filter matches everything.
type Filter []Predicate

func Eq(field string, value any) Predicate  { return Predicate{Field: field, Op: OpEq, Value: value} }
func Neq(field string, value any) Predicate { return Predicate{Field: field, Op: OpNeq, Value: value} }

func Where(preds ...Predicate) Filter { return Filter(preds) }

type Order struct {
	Field string
	Desc  bool
}

type Query struct {
	Filter Filter
	Select []string // empty selects every field
	Order  []Order
	Limit  int // 0 means unlimited
}

// Gateway is the persistence capability. Insert must return an error wrapping
// common.ErrConflict when a uniqueness constraint is violated; every other
// failure wraps common.ErrUpstream.
type Gateway interface {
	Fetch(ctx context.Context, collection string, q Query) ([]Record, error)
	Insert(ctx context.Context, collection string, records ...Record) ([]Record, error)
	Update(ctx context.Context, collection string, filter Filter, patch Record) ([]Record, error)
	Delete(ctx context.Context, collection string, filter Filter) ([]Record, error)
}

var identifierRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether name is safe to use as a collection or field name.
func ValidIdentifier(name string) bool {
	return identifierRE.MatchString(name)
}

// Decode converts records into out (a pointer to a slice of structs or a
// struct) through their JSON representation.
func Decode(records any, out any) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("store: encode records: %w", err)
	}
	if string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("store: decode records: %w", err)
	}
	return nil
}

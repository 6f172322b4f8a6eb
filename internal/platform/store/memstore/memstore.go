// Package memstore is an in-memory store.Gateway used by tests and local
// development. Records are kept in their JSON form so values compare the way
// they would after a round trip through a real backend.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"algoverse/internal/common"
	"algoverse/internal/platform/store"
)

const (
	OpFetch  = "fetch"
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

type fault struct {
	err       error
	remaining int
}

type Store struct {
	mu     sync.Mutex
	tables map[string][]store.Record
	unique map[string][][]string
	faults map[string]*fault
	calls  map[string]int
}

// New returns an empty store. "id" is unique in every collection; extra
// unique keys are added with Unique.
func New() *Store {
	return &Store{
		tables: make(map[string][]store.Record),
		unique: make(map[string][][]string),
		faults: make(map[string]*fault),
		calls:  make(map[string]int),
	}
}

// Unique declares a (possibly composite) unique key on collection.
func (s *Store) Unique(collection string, fields ...string) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unique[collection] = append(s.unique[collection], fields)
	return s
}

// Fail makes the next times calls of op on collection return err.
func (s *Store) Fail(op, collection string, err error, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op+":"+collection] = &fault{err: err, remaining: times}
}

// Calls counts the calls of op on collection, including failed ones.
func (s *Store) Calls(op, collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op+":"+collection]
}

// Rows returns a copy of every record in collection.
func (s *Store) Rows(collection string) []store.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Record, 0, len(s.tables[collection]))
	for _, r := range s.tables[collection] {
		out = append(out, clone(r))
	}
	return out
}

// Seed inserts records without fault injection or call counting.
func (s *Store) Seed(collection string, records ...store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.insertLocked(collection, records)
	return err
}

func (s *Store) Fetch(ctx context.Context, collection string, q store.Query) ([]store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpFetch, collection); err != nil {
		return nil, err
	}
	filter, err := normalizeFilter(q.Filter)
	if err != nil {
		return nil, err
	}

	var rows []store.Record
	for _, r := range s.tables[collection] {
		if matches(r, filter) {
			rows = append(rows, r)
		}
	}
	if len(q.Order) > 0 {
		sort.SliceStable(rows, func(i, j int) bool {
			for _, o := range q.Order {
				c := compare(rows[i][o.Field], rows[j][o.Field])
				if c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}

	out := make([]store.Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, project(r, q.Select))
	}
	return out, nil
}

func (s *Store) Insert(ctx context.Context, collection string, records ...store.Record) ([]store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpInsert, collection); err != nil {
		return nil, err
	}
	return s.insertLocked(collection, records)
}

func (s *Store) Update(ctx context.Context, collection string, filter store.Filter, patch store.Record) ([]store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpUpdate, collection); err != nil {
		return nil, err
	}
	norm, err := normalizeFilter(filter)
	if err != nil {
		return nil, err
	}
	p, err := normalize(patch)
	if err != nil {
		return nil, err
	}

	var out []store.Record
	for _, r := range s.tables[collection] {
		if !matches(r, norm) {
			continue
		}
		for k, v := range p {
			if k == "id" {
				continue
			}
			r[k] = v
		}
		out = append(out, clone(r))
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, collection string, filter store.Filter) ([]store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, OpDelete, collection); err != nil {
		return nil, err
	}
	norm, err := normalizeFilter(filter)
	if err != nil {
		return nil, err
	}

	var kept, out []store.Record
	for _, r := range s.tables[collection] {
		if matches(r, norm) {
			out = append(out, r)
			continue
		}
		kept = append(kept, r)
	}
	s.tables[collection] = kept
	return out, nil
}

func (s *Store) enter(ctx context.Context, op, collection string) error {
	key := op + ":" + collection
	s.calls[key]++
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memstore %s %s: %w", op, collection, err)
	}
	if f, ok := s.faults[key]; ok && f.remaining > 0 {
		f.remaining--
		return fmt.Errorf("memstore %s %s: %w", op, collection, f.err)
	}
	if !store.ValidIdentifier(collection) {
		return fmt.Errorf("invalid collection %q: %w", collection, common.ErrBadRequest)
	}
	return nil
}

// insertLocked is all-or-nothing across the batch.
func (s *Store) insertLocked(collection string, records []store.Record) ([]store.Record, error) {
	prepared := make([]store.Record, 0, len(records))
	for _, rec := range records {
		r, err := normalize(rec)
		if err != nil {
			return nil, err
		}
		if id, _ := r["id"].(string); id == "" {
			r["id"] = uuid.NewString()
		}
		prepared = append(prepared, r)
	}

	keys := append([][]string{{"id"}}, s.unique[collection]...)
	existing := s.tables[collection]
	for i, r := range prepared {
		for _, key := range keys {
			for _, other := range existing {
				if sameKey(r, other, key) {
					return nil, fmt.Errorf("duplicate %s on %s: %w", strings.Join(key, ","), collection, common.ErrConflict)
				}
			}
			for _, other := range prepared[:i] {
				if sameKey(r, other, key) {
					return nil, fmt.Errorf("duplicate %s on %s: %w", strings.Join(key, ","), collection, common.ErrConflict)
				}
			}
		}
	}

	out := make([]store.Record, 0, len(prepared))
	for _, r := range prepared {
		s.tables[collection] = append(s.tables[collection], r)
		out = append(out, clone(r))
	}
	return out, nil
}

func sameKey(a, b store.Record, fields []string) bool {
	for _, f := range fields {
		av, aok := a[f]
		bv, bok := b[f]
		if !aok || !bok || av == nil || bv == nil || compare(av, bv) != 0 {
			return false
		}
	}
	return true
}

func matches(r store.Record, filter store.Filter) bool {
	for _, p := range filter {
		c := compare(r[p.Field], p.Value)
		var ok bool
		switch p.Op {
		case store.OpEq:
			ok = c == 0
		case store.OpNeq:
			ok = c != 0
		case store.OpGt:
			ok = c > 0
		case store.OpGte:
			ok = c >= 0
		case store.OpLt:
			ok = c < 0
		case store.OpLte:
			ok = c <= 0
		}
		if !ok {
			return false
		}
	}
	return true
}

// compare orders JSON-decoded scalars: nil < bool < number < string.
func compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch av := a.(type) {
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case string:
		return strings.Compare(av, b.(string))
	case nil:
		return 0
	default:
		return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

func normalizeFilter(filter store.Filter) (store.Filter, error) {
	out := make(store.Filter, 0, len(filter))
	for _, p := range filter {
		if !store.ValidIdentifier(p.Field) {
			return nil, fmt.Errorf("invalid filter field %q: %w", p.Field, common.ErrBadRequest)
		}
		v, err := normalizeValue(p.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, store.Predicate{Field: p.Field, Op: p.Op, Value: v})
	}
	return out, nil
}

func normalize(r store.Record) (store.Record, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("memstore: encode record: %w", err)
	}
	var out store.Record
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("memstore: decode record: %w", err)
	}
	if out == nil {
		out = store.Record{}
	}
	return out, nil
}

func normalizeValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("memstore: encode value: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("memstore: decode value: %w", err)
	}
	return out, nil
}

func project(r store.Record, fields []string) store.Record {
	if len(fields) == 0 {
		return clone(r)
	}
	out := make(store.Record, len(fields))
	for _, f := range fields {
		if v, ok := r[f]; ok {
			out[f] = v
		}
	}
	return out
}

func clone(r store.Record) store.Record {
	out := make(store.Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

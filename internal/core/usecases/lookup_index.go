package usecases

import (
	"sort"

	"github.com/samirrijal/parkpass/internal/core/domain"
)

// IsMember reports whether id is listed under tag in table. A nil table
// (not loaded) or a missing tag is never a match. The id goes through
// domain.ParseParkID so numeric and string forms agree.
func IsMember(table domain.LookupTable, tag string, id any) bool {
	if table == nil {
		return false
	}
	ids, ok := table[tag]
	if !ok {
		return false
	}
	want, err := domain.ParseParkID(id)
	if err != nil {
		return false
	}
	for _, candidate := range ids {
		if candidate == want {
			return true
		}
	}
	return false
}

// LookupIndex holds the amenity and facility tables. It is not safe for
// concurrent use; the engine guards it.
type LookupIndex struct {
	tables map[domain.LookupKind]domain.LookupTable
}

// NewLookupIndex creates an index with no tables loaded.
func NewLookupIndex() *LookupIndex {
	return &LookupIndex{tables: make(map[domain.LookupKind]domain.LookupTable, 2)}
}

// Set replaces the table for kind. A nil table is stored as empty so the
// kind still counts as loaded.
func (l *LookupIndex) Set(kind domain.LookupKind, table domain.LookupTable) {
	if table == nil {
		table = domain.LookupTable{}
	}
	l.tables[kind] = table
}

// Table returns the table for kind, or nil if it has not loaded.
func (l *LookupIndex) Table(kind domain.LookupKind) domain.LookupTable {
	return l.tables[kind]
}

// Loaded reports whether kind has been set.
func (l *LookupIndex) Loaded(kind domain.LookupKind) bool {
	_, ok := l.tables[kind]
	return ok
}

// AllLoaded reports whether every lookup kind is present.
func (l *LookupIndex) AllLoaded() bool {
	for _, k := range domain.LookupKinds {
		if !l.Loaded(k) {
			return false
		}
	}
	return true
}

// Matches is the filter predicate: amenity OR facility membership.
func (l *LookupIndex) Matches(tag string, id any) bool {
	return IsMember(l.Table(domain.LookupAmenity), tag, id) ||
		IsMember(l.Table(domain.LookupFacility), tag, id)
}

// HasTag reports whether tag is listed in any loaded table.
func (l *LookupIndex) HasTag(tag string) bool {
	for _, t := range l.tables {
		if _, ok := t[tag]; ok {
			return true
		}
	}
	return false
}

// Predicate binds Matches to tag for ParkCatalog.Filter.
func (l *LookupIndex) Predicate(tag string) func(domain.Park) bool {
	return func(p domain.Park) bool {
		return l.Matches(tag, p.ID)
	}
}

// Tags returns the sorted union of tags across loaded tables.
func (l *LookupIndex) Tags() []string {
	seen := make(map[string]struct{})
	for _, t := range l.tables {
		for tag := range t {
			seen[tag] = struct{}{}
		}
	}
	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

package registry

import (
	"sort"
	"time"

	"fsec/internal/util"
)

// Index is the in-memory registry shared by all backends.
type Index struct {
	records map[string]Record
	aliases map[string]int
	removed map[string]struct{}
}

func NewIndex() *Index {
	return &Index{
		records: map[string]Record{},
		aliases: map[string]int{},
		removed: map[string]struct{}{},
	}
}

func (x *Index) Lookup(key string) (Record, bool) {
	rec, ok := x.records[util.Normalize(key)]
	return rec, ok
}

// Exists reports whether any record carries alias, compared normalized.
func (x *Index) Exists(alias string) bool {
	return x.aliases[util.Normalize(alias)] > 0
}

func (x *Index) Add(key string, rec Record) {
	k := util.Normalize(key)
	if k == "" {
		return
	}
	if old, ok := x.records[k]; ok {
		x.dropAlias(old.Alias)
	}
	rec.NormalizedName = k
	x.records[k] = rec
	x.addAlias(rec.Alias)
	delete(x.removed, k)
}

func (x *Index) Remove(key string) {
	k := util.Normalize(key)
	old, ok := x.records[k]
	if !ok {
		return
	}
	x.dropAlias(old.Alias)
	delete(x.records, k)
	x.removed[k] = struct{}{}
}

// Keys returns the normalized names in lexical order.
func (x *Index) Keys() []string {
	out := make([]string, 0, len(x.records))
	for k := range x.records {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (x *Index) Len() int {
	return len(x.records)
}

// replace resets the index to recs. Keys that collide after normalization
// keep the record with the higher present score.
func (x *Index) replace(recs []Record) {
	x.records = map[string]Record{}
	x.aliases = map[string]int{}
	x.removed = map[string]struct{}{}
	for _, rec := range recs {
		k := util.Normalize(rec.NormalizedName)
		if k == "" {
			k = util.Normalize(rec.Name)
		}
		if k == "" {
			continue
		}
		if cur, ok := x.records[k]; ok && cur.PresentScore >= rec.PresentScore {
			continue
		}
		x.Add(k, rec)
	}
	x.removed = map[string]struct{}{}
}

// merge overwrites or inserts recs without touching other keys.
func (x *Index) merge(recs []Record) int {
	n := 0
	for _, rec := range recs {
		k := util.Normalize(rec.NormalizedName)
		if k == "" {
			continue
		}
		x.Add(k, rec)
		delete(x.removed, k)
		n++
	}
	return n
}

// newest is the latest UpdatedAt held in memory.
func (x *Index) newest() time.Time {
	var t time.Time
	for _, rec := range x.records {
		if rec.UpdatedAt.After(t) {
			t = rec.UpdatedAt
		}
	}
	return t
}

func (x *Index) all() []Record {
	out := make([]Record, 0, len(x.records))
	for _, k := range x.Keys() {
		out = append(out, x.records[k])
	}
	return out
}

func (x *Index) pendingRemovals() []string {
	out := make([]string, 0, len(x.removed))
	for k := range x.removed {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (x *Index) clearRemovals() {
	x.removed = map[string]struct{}{}
}

func (x *Index) addAlias(alias string) {
	if a := util.Normalize(alias); a != "" {
		x.aliases[a]++
	}
}

func (x *Index) dropAlias(alias string) {
	a := util.Normalize(alias)
	if a == "" {
		return
	}
	x.aliases[a]--
	if x.aliases[a] <= 0 {
		delete(x.aliases, a)
	}
}

// sortRecords orders recs by key then raw name so collapsing collisions does
// not depend on map iteration order.
func sortRecords(recs []Record) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].NormalizedName != recs[j].NormalizedName {
			return recs[i].NormalizedName < recs[j].NormalizedName
		}
		return recs[i].Name < recs[j].Name
	})
}

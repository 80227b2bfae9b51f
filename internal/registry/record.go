// Package registry persists resolved operator names. Every backend shares
// one in-memory index; backends differ only in how Load, Save and Refresh
// reach durable storage.
package registry

import (
	"context"
	"time"
)

// Record is what the registry knows about one normalized operator name.
// An empty Alias means the name has not been resolved to one yet.
type Record struct {
	Name           string    `json:"name" yaml:"name"`
	NormalizedName string    `json:"normalized_name" yaml:"normalized_name"`
	Alias          string    `json:"alias,omitempty" yaml:"alias,omitempty"`
	PresentScore   int       `json:"present_score" yaml:"present_score"`
	FuzzyScore     int       `json:"fuzzy_score" yaml:"fuzzy_score"`
	Method         string    `json:"method" yaml:"method"`
	Source         string    `json:"source,omitempty" yaml:"source,omitempty"`
	CreatedAt      time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" yaml:"updated_at"`
}

// Store is the operator registry. Lookup, Exists, Add, Remove and Keys work
// on memory only; Load, Save and Refresh reconcile with the durable copy.
type Store interface {
	Load(ctx context.Context) error
	Save(ctx context.Context) error
	Refresh(ctx context.Context) error
	Lookup(key string) (Record, bool)
	Exists(alias string) bool
	Add(key string, rec Record)
	Remove(key string)
	Keys() []string
	Len() int
	Close() error
}

// Copy loads src and writes every record into dst, then saves dst.
func Copy(ctx context.Context, src, dst Store) (int, error) {
	if err := src.Load(ctx); err != nil {
		return 0, err
	}
	n := 0
	for _, key := range src.Keys() {
		rec, _ := src.Lookup(key)
		dst.Add(key, rec)
		n++
	}
	return n, dst.Save(ctx)
}

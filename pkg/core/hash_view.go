package core

import (
	"sync"

	"multiview/pkg/common"
	"multiview/pkg/core/memory"
	"multiview/pkg/core/structure"
)

// hashView maps encoded keys to handles. mu is the owning MultiIndex lock;
// unexported methods expect the caller to hold it. The bloom filter only
// short-circuits misses.
type hashView struct {
	mu      *sync.RWMutex
	bound   common.StringBound
	name    string
	fields  []common.Field
	entries map[string]memory.Handle
	bloom   *structure.BloomFilter
}

func newHashView(mu *sync.RWMutex, bound common.StringBound, name string, fields []common.Field, expected uint, falseProb float64) *hashView {
	return &hashView{
		mu:      mu,
		bound:   bound,
		name:    name,
		fields:  append([]common.Field(nil), fields...),
		entries: make(map[string]memory.Handle, expected),
		bloom:   structure.NewBloomFilter(expected, falseProb),
	}
}

func (v *hashView) Name() string { return v.name }

func (v *hashView) Fields() []common.Field {
	return append([]common.Field(nil), v.fields...)
}

func (v *hashView) Size() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.entries)
}

func (v *hashView) Type() string { return "Hashed-Unique" }

// Get clamps string components to the index bound before matching, so it
// agrees with Lookup on overlong input.
func (v *hashView) Get(key common.Key) (memory.Handle, bool) {
	clamped := make(common.Key, len(key))
	for i, val := range key {
		if s, ok := val.Str(); ok {
			val = common.StringValue(v.bound.Make(s))
		}
		clamped[i] = val
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.get(clamped.Encode())
}

func (v *hashView) get(enc string) (memory.Handle, bool) {
	if !v.bloom.Contains(enc) {
		return 0, false
	}
	h, ok := v.entries[enc]
	return h, ok
}

// keyOf projects rec onto this view's fields.
func (v *hashView) keyOf(rec *common.Record) common.Key {
	key := make(common.Key, len(v.fields))
	for i, f := range v.fields {
		key[i], _ = rec.Value(f)
	}
	return key
}

func (v *hashView) put(enc string, h memory.Handle) {
	v.entries[enc] = h
	v.bloom.Add(enc)
}

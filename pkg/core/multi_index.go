package core

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"multiview/pkg/common"
	"multiview/pkg/config"
	"multiview/pkg/core/memory"
	"multiview/pkg/logging"
	"multiview/pkg/monitor"
	"multiview/pkg/query"
)

// ViewSpec declares one unique view: its name and the ordered key fields.
type ViewSpec struct {
	Name   string
	Fields []common.Field
}

type Options struct {
	Table           string
	StringBound     common.StringBound
	ExpectedRecords uint
	BloomFalseProb  float64
	Stats           *monitor.WorkloadStats
	Logger          *zap.SugaredLogger
}

// MultiIndex owns a record store and keeps every configured view in step
// with it. An insert lands in all views or in none.
type MultiIndex struct {
	mu     sync.RWMutex
	store  *memory.RecordStore
	views  []*hashView
	byName map[string]*hashView
	bound  common.StringBound
	table  string
	stats  *monitor.WorkloadStats
	logger *zap.SugaredLogger
}

func New(specs []ViewSpec, opts Options) (*MultiIndex, error) {
	if len(specs) == 0 {
		return nil, errors.New("at least one view is required")
	}
	if opts.ExpectedRecords == 0 {
		opts.ExpectedRecords = 1024
	}
	if opts.BloomFalseProb <= 0 || opts.BloomFalseProb >= 1 {
		opts.BloomFalseProb = 0.01
	}
	if opts.Stats == nil {
		opts.Stats = monitor.NewWorkloadStats(nil)
	}

	mi := &MultiIndex{
		store:  memory.NewRecordStore(32),
		byName: make(map[string]*hashView, len(specs)),
		bound:  opts.StringBound,
		table:  opts.Table,
		stats:  opts.Stats,
		logger: logging.OrNop(opts.Logger),
	}

	for _, spec := range specs {
		if spec.Name == "" {
			return nil, errors.New("view name must not be empty")
		}
		if _, dup := mi.byName[spec.Name]; dup {
			return nil, fmt.Errorf("view %q declared twice", spec.Name)
		}
		if len(spec.Fields) == 0 {
			return nil, fmt.Errorf("view %q has no key fields", spec.Name)
		}
		seen := make(map[common.Field]struct{}, len(spec.Fields))
		for _, f := range spec.Fields {
			if !f.Valid() {
				return nil, fmt.Errorf("view %q: unknown field %q", spec.Name, f)
			}
			if _, dup := seen[f]; dup {
				return nil, fmt.Errorf("view %q repeats field %q", spec.Name, f)
			}
			seen[f] = struct{}{}
		}

		v := newHashView(&mi.mu, mi.bound, spec.Name, spec.Fields, opts.ExpectedRecords, opts.BloomFalseProb)
		mi.views = append(mi.views, v)
		mi.byName[spec.Name] = v
		mi.logger.Infow("registered view", "view", spec.Name, "fields", spec.Fields)
	}

	return mi, nil
}

// FromConfig builds an index from the index section of the configuration.
func FromConfig(cfg config.IndexConfig, stats *monitor.WorkloadStats, logger *zap.SugaredLogger) (*MultiIndex, error) {
	specs := make([]ViewSpec, 0, len(cfg.Views))
	for _, vc := range cfg.Views {
		fields, err := vc.ViewFields()
		if err != nil {
			return nil, err
		}
		specs = append(specs, ViewSpec{Name: vc.Name, Fields: fields})
	}
	return New(specs, Options{
		Table:           cfg.Name,
		StringBound:     cfg.StringBound(),
		ExpectedRecords: cfg.ExpectedRecords,
		BloomFalseProb:  cfg.BloomFalseProb,
		Stats:           stats,
		Logger:          logger,
	})
}

// NewRecord builds a record whose string fields are already clamped to the
// index's bound.
func (mi *MultiIndex) NewRecord(id uint16, name string, age uint16, nickname, language string) common.Record {
	return common.Record{
		ID:       id,
		Name:     mi.bound.Make(name),
		Age:      age,
		Nickname: mi.bound.Make(nickname),
		Language: mi.bound.Make(language),
	}
}

// Insert adds rec to the store and to every view. All view keys are checked
// before anything is written, so a *DuplicateKeyError leaves the index
// exactly as it was.
func (mi *MultiIndex) Insert(rec common.Record) (memory.Handle, error) {
	rec = rec.Bounded(mi.bound)

	keys := make([]common.Key, len(mi.views))
	encoded := make([]string, len(mi.views))
	for i, v := range mi.views {
		keys[i] = v.keyOf(&rec)
		encoded[i] = keys[i].Encode()
	}

	mi.mu.Lock()
	defer mi.mu.Unlock()

	for i, v := range mi.views {
		if _, exists := v.entries[encoded[i]]; exists {
			mi.stats.RecordReject(v.name)
			mi.logger.Warnw("insert rejected", "view", v.name, "key", keys[i].String())
			return 0, &DuplicateKeyError{View: v.name, Key: keys[i]}
		}
	}

	h := mi.store.Put(rec)
	for i, v := range mi.views {
		v.put(encoded[i], h)
	}
	mi.stats.RecordWrite()
	mi.logger.Debugw("inserted record", "handle", h, "id", rec.ID, "name", rec.Name.String())
	return h, nil
}

// InsertAll inserts recs in order and stops at the first rejection. The
// handles of the records inserted so far are returned alongside the error.
func (mi *MultiIndex) InsertAll(recs []common.Record) ([]memory.Handle, error) {
	handles := make([]memory.Handle, 0, len(recs))
	for i, rec := range recs {
		h, err := mi.Insert(rec)
		if err != nil {
			return handles, fmt.Errorf("record %d: %w", i, err)
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// Lookup finds the record whose key in the named view equals key. The key
// must have one value per view field, in view order. Numeric fields accept
// any Go integer type; string fields accept string or common.BoundedString
// and are clamped to the index bound before comparison.
func (mi *MultiIndex) Lookup(view string, key ...any) (Entry, error) {
	v, ok := mi.byName[view]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrUnknownView, view)
	}
	k, possible, err := mi.buildKey(v, key)
	if err != nil {
		return Entry{}, err
	}

	var h memory.Handle
	found := false
	if possible {
		mi.mu.RLock()
		h, found = v.get(k.Encode())
		mi.mu.RUnlock()
	}

	mi.stats.RecordLookup(view, found)
	if !found {
		return Entry{}, fmt.Errorf("%w: view %q key %v", ErrNotFound, view, key)
	}
	rec, ok := mi.store.Get(h)
	if !ok {
		return Entry{}, fmt.Errorf("view %q references missing handle %d", view, h)
	}
	return Entry{Handle: h, Record: rec}, nil
}

// Get is Lookup reduced to a found flag.
func (mi *MultiIndex) Get(view string, key ...any) (common.Record, bool) {
	e, err := mi.Lookup(view, key...)
	if err != nil {
		return common.Record{}, false
	}
	return e.Record, true
}

// Query resolves a parsed point query to the view whose key fields are
// exactly the constrained fields, then performs the lookup.
func (mi *MultiIndex) Query(stmt *query.SelectStmt) (Entry, error) {
	if mi.table != "" && !strings.EqualFold(stmt.Table, mi.table) {
		return Entry{}, fmt.Errorf("%w: %q", ErrUnknownTable, stmt.Table)
	}
	for _, v := range mi.views {
		if vals, ok := stmt.ValuesFor(v.fields); ok {
			return mi.Lookup(v.name, vals...)
		}
	}
	return Entry{}, fmt.Errorf("%w: %v", ErrNoMatchingView, stmt.Fields())
}

// Scan visits records in insertion order until fn returns false. fn runs
// outside the store lock, so it may call back into the index.
func (mi *MultiIndex) Scan(fn func(e Entry) bool) {
	entries := make([]Entry, 0, mi.store.Count())
	mi.store.Ascend(func(h memory.Handle, rec common.Record) bool {
		entries = append(entries, Entry{Handle: h, Record: rec})
		return true
	})
	for _, e := range entries {
		if !fn(e) {
			return
		}
	}
}

func (mi *MultiIndex) Len() int {
	return mi.store.Count()
}

// Views returns the view names in declaration order.
func (mi *MultiIndex) Views() []string {
	names := make([]string, len(mi.views))
	for i, v := range mi.views {
		names[i] = v.name
	}
	return names
}

func (mi *MultiIndex) View(name string) (View, bool) {
	v, ok := mi.byName[name]
	if !ok {
		return nil, false
	}
	return v, true
}

func (mi *MultiIndex) ViewFields(name string) ([]common.Field, bool) {
	v, ok := mi.byName[name]
	if !ok {
		return nil, false
	}
	return v.Fields(), true
}

// KeyOf projects rec onto the named view's key, applying the string bound.
func (mi *MultiIndex) KeyOf(view string, rec common.Record) (common.Key, error) {
	v, ok := mi.byName[view]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownView, view)
	}
	rec = rec.Bounded(mi.bound)
	return v.keyOf(&rec), nil
}

func (mi *MultiIndex) Bound() common.StringBound {
	return mi.bound
}

func (mi *MultiIndex) WorkloadStats() *monitor.WorkloadStats {
	return mi.stats
}

func (mi *MultiIndex) Stats() map[string]interface{} {
	mi.mu.RLock()
	defer mi.mu.RUnlock()

	views := make(map[string]interface{}, len(mi.views))
	for _, v := range mi.views {
		views[v.name] = map[string]interface{}{
			"fields": v.Fields(),
			"size":   len(v.entries),
			"type":   v.Type(),
			"bloom":  v.bloom.Stats(),
		}
	}
	return map[string]interface{}{
		"record_count":   mi.store.Count(),
		"views":          views,
		"max_string_len": int(mi.bound),
		"hits":           mi.stats.Hits(),
		"rw_ratio":       mi.stats.GetReadWriteRatio(),
	}
}

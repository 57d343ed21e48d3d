package core

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multiview/pkg/common"
	"multiview/pkg/config"
	"multiview/pkg/core/memory"
	"multiview/pkg/query"
	"multiview/pkg/storage"
)

func newPersonIndex(t testing.TB) *MultiIndex {
	t.Helper()
	mi, err := FromConfig(config.Default().Index, nil, nil)
	require.NoError(t, err)
	return mi
}

func loadScenario(t testing.TB, mi *MultiIndex) []memory.Handle {
	t.Helper()
	handles, err := mi.InsertAll([]common.Record{
		mi.NewRecord(1, "Alice", 20, "Ali", "English"),
		mi.NewRecord(2, "Bob", 30, "Bobby", "French"),
		mi.NewRecord(3, "Cathy", 40, "Cat", "Spanish"),
		mi.NewRecord(4, "David", 50, "Dave", "German"),
	})
	require.NoError(t, err)
	return handles
}

// snapshot records the handle every record resolves to under every view.
func snapshot(t *testing.T, mi *MultiIndex) map[string]memory.Handle {
	t.Helper()
	out := make(map[string]memory.Handle)
	mi.Scan(func(e Entry) bool {
		for _, view := range mi.Views() {
			key, err := mi.KeyOf(view, e.Record)
			require.NoError(t, err)
			got, ok := mi.byName[view].Get(key)
			require.True(t, ok)
			out[view+key.String()] = got
		}
		return true
	})
	return out
}

func TestEndToEndScenario(t *testing.T) {
	mi := newPersonIndex(t)
	handles := loadScenario(t, mi)

	e, err := mi.Lookup("by_name", "Bob")
	require.NoError(t, err)
	assert.Equal(t, handles[1], e.Handle)
	assert.Equal(t, uint16(2), e.Record.ID)

	e, err = mi.Lookup("by_id", 3)
	require.NoError(t, err)
	assert.Equal(t, "Cathy", e.Record.Name.String())

	e, err = mi.Lookup("by_name_nickname", "Bob", "Bobby")
	require.NoError(t, err)
	assert.Equal(t, handles[1], e.Handle)

	e, err = mi.Lookup("by_age_nickname", 30, "Bobby")
	require.NoError(t, err)
	assert.Equal(t, handles[1], e.Handle)

	_, err = mi.Lookup("by_id", 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCrossViewConsistency(t *testing.T) {
	mi := newPersonIndex(t)
	handles := loadScenario(t, mi)
	require.Equal(t, len(handles), mi.Len())

	i := 0
	mi.Scan(func(e Entry) bool {
		assert.Equal(t, handles[i], e.Handle)
		for _, view := range mi.Views() {
			key, err := mi.KeyOf(view, e.Record)
			require.NoError(t, err)
			args := make([]any, len(key))
			for j, v := range key {
				args[j] = v.Interface()
			}
			got, err := mi.Lookup(view, args...)
			require.NoError(t, err, "view %s", view)
			assert.Equal(t, e.Handle, got.Handle, "view %s", view)
			assert.Equal(t, e.Record, got.Record)
		}
		i++
		return true
	})

	for _, view := range mi.Views() {
		v, ok := mi.View(view)
		require.True(t, ok)
		assert.Equal(t, len(handles), v.Size(), "view %s", view)
	}
}

func TestInsertRejectsDuplicateAtomically(t *testing.T) {
	cases := []struct {
		name string
		rec  func(mi *MultiIndex) common.Record
		view string
	}{
		{"name", func(mi *MultiIndex) common.Record { return mi.NewRecord(10, "Bob", 31, "B", "Dutch") }, "by_name"},
		{"id", func(mi *MultiIndex) common.Record { return mi.NewRecord(3, "Zed", 31, "Z", "Dutch") }, "by_id"},
		{"age and nickname", func(mi *MultiIndex) common.Record { return mi.NewRecord(11, "Eve", 30, "Bobby", "Dutch") }, "by_age_nickname"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mi := newPersonIndex(t)
			loadScenario(t, mi)
			before := snapshot(t, mi)

			rec := tc.rec(mi)
			h, err := mi.Insert(rec)
			require.Error(t, err)
			assert.Equal(t, memory.Handle(0), h)
			assert.ErrorIs(t, err, ErrDuplicateKey)

			var dup *DuplicateKeyError
			require.True(t, errors.As(err, &dup))
			assert.Equal(t, tc.view, dup.View)

			assert.Equal(t, 4, mi.Len())
			assert.Equal(t, before, snapshot(t, mi))
			for _, view := range mi.Views() {
				key, err := mi.KeyOf(view, rec)
				require.NoError(t, err)
				if got, ok := mi.byName[view].Get(key); ok {
					assert.NotEqual(t, memory.Handle(5), got, "rejected record leaked into %s", view)
				}
			}
			_, err = mi.Lookup("by_id_name", rec.ID, rec.Name)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestNotFoundIsDistinguishable(t *testing.T) {
	mi := newPersonIndex(t)
	loadScenario(t, mi)

	e, err := mi.Lookup("by_name", "bob")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, Entry{}, e)
	assert.Equal(t, memory.Handle(0), e.Handle)

	_, ok := mi.Get("by_name_nickname", "Bob", "Bob")
	assert.False(t, ok)
	_, err = mi.Lookup("by_id", -1)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = mi.Lookup("by_id", 70000)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookupRejectsMalformedKeys(t *testing.T) {
	mi := newPersonIndex(t)
	loadScenario(t, mi)

	_, err := mi.Lookup("by_language", "French")
	assert.ErrorIs(t, err, ErrUnknownView)

	_, err = mi.Lookup("by_name_nickname", "Bob")
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = mi.Lookup("by_age_nickname", "30", "Bobby")
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = mi.Lookup("by_name", 2)
	assert.ErrorIs(t, err, ErrInvalidKey)

	e, err := mi.Lookup("by_age_nickname", common.IntValue(30), common.DefaultStringBound.Make("Bobby"))
	require.NoError(t, err)
	assert.Equal(t, uint16(2), e.Record.ID)
}

func TestBoundedStringTruncation(t *testing.T) {
	mi, err := New([]ViewSpec{
		{Name: "by_id", Fields: []common.Field{common.FieldID}},
		{Name: "by_name", Fields: []common.Field{common.FieldName}},
	}, Options{StringBound: 8})
	require.NoError(t, err)

	h, err := mi.Insert(common.Record{ID: 1, Name: common.StringBound(0).Make("Alexandra the Great")})
	require.NoError(t, err)

	e, err := mi.Lookup("by_name", "Alexandr")
	require.NoError(t, err)
	assert.Equal(t, h, e.Handle)
	assert.Equal(t, "Alexandr", e.Record.Name.String())

	e, err = mi.Lookup("by_name", "Alexandra the Great")
	require.NoError(t, err)
	assert.Equal(t, h, e.Handle)

	_, err = mi.Insert(mi.NewRecord(2, "Alexandra II", 0, "", ""))
	var dup *DuplicateKeyError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "by_name", dup.View)
	assert.Equal(t, 1, mi.Len())

	_, err = mi.Lookup("by_name", "Alexand")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewRejectsBadViews(t *testing.T) {
	_, err := New(nil, Options{})
	assert.Error(t, err)

	_, err = New([]ViewSpec{{Name: "", Fields: []common.Field{common.FieldID}}}, Options{})
	assert.Error(t, err)

	_, err = New([]ViewSpec{
		{Name: "by_id", Fields: []common.Field{common.FieldID}},
		{Name: "by_id", Fields: []common.Field{common.FieldName}},
	}, Options{})
	assert.Error(t, err)

	_, err = New([]ViewSpec{{Name: "by_x", Fields: []common.Field{"x"}}}, Options{})
	assert.Error(t, err)

	_, err = New([]ViewSpec{{Name: "by_id_id", Fields: []common.Field{common.FieldID, common.FieldID}}}, Options{})
	assert.Error(t, err)

	_, err = New([]ViewSpec{{Name: "by_nothing"}}, Options{})
	assert.Error(t, err)
}

func TestQuery(t *testing.T) {
	mi := newPersonIndex(t)
	handles := loadScenario(t, mi)

	run := func(sql string) (Entry, error) {
		stmt, err := query.Parse(sql)
		require.NoError(t, err)
		return mi.Query(stmt)
	}

	e, err := run("SELECT * FROM persons WHERE nickname = 'Bobby' AND age = 30")
	require.NoError(t, err)
	assert.Equal(t, handles[1], e.Handle)

	e, err = run("SELECT * FROM PERSONS WHERE name = 'Cathy'")
	require.NoError(t, err)
	assert.Equal(t, handles[2], e.Handle)

	_, err = run("SELECT * FROM persons WHERE id = 99")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = run("SELECT * FROM persons WHERE language = 'French'")
	assert.ErrorIs(t, err, ErrNoMatchingView)

	_, err = run("SELECT * FROM animals WHERE id = 1")
	assert.ErrorIs(t, err, ErrUnknownTable)
}

func TestStatsTrackLookupsAndRejections(t *testing.T) {
	mi := newPersonIndex(t)
	loadScenario(t, mi)

	mi.Get("by_name", "Bob")
	mi.Get("by_name", "Nobody")
	mi.Insert(mi.NewRecord(1, "Other", 1, "O", "X"))

	ws := mi.WorkloadStats()
	assert.Equal(t, uint64(1), ws.Hits())
	assert.Equal(t, 1.0, testutil.ToFloat64(ws.LookupCounter("by_name", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ws.LookupCounter("by_name", "miss")))
	assert.Equal(t, 4.0, testutil.ToFloat64(ws.InsertCounter()))
	assert.Equal(t, 1.0, testutil.ToFloat64(ws.RejectionCounter("by_id")))

	stats := mi.Stats()
	assert.Equal(t, 4, stats["record_count"])
	assert.Len(t, stats["views"], 5)
}

// TestAgainstSQLiteMirror replays a random workload with many collisions
// into both the index and a SQLite table carrying the same unique indexes.
func TestAgainstSQLiteMirror(t *testing.T) {
	cfg := config.Default().Index
	cfg.MaxStringLen = 4
	mi, err := FromConfig(cfg, nil, nil)
	require.NoError(t, err)

	var defs []storage.ViewDef
	for _, name := range mi.Views() {
		fields, _ := mi.ViewFields(name)
		defs = append(defs, storage.ViewDef{Name: name, Fields: fields})
	}
	mirror, err := storage.NewMirror(defs, nil)
	require.NoError(t, err)
	t.Cleanup(mirror.Close)

	names := []string{"Alice", "Alicia", "Bob", "Bobby", "Cat", "Catherine", "Dan", "Daniel", "Eve", "Evelyn", "Fay", "Gus"}
	nicks := []string{"A", "B", "C", "D", "E"}
	rng := rand.New(rand.NewSource(42))

	var inserted []common.Record
	for i := 0; i < 300; i++ {
		rec := common.Record{
			ID:       uint16(rng.Intn(40)),
			Name:     common.StringBound(0).Make(names[rng.Intn(len(names))]),
			Age:      uint16(rng.Intn(6)),
			Nickname: common.StringBound(0).Make(nicks[rng.Intn(len(nicks))]),
			Language: common.StringBound(0).Make("L"),
		}
		h, err := mi.Insert(rec)
		mirrorHandle := uint64(h)
		if err != nil {
			mirrorHandle = uint64(1_000_000 + i)
		}
		merr := mirror.Insert(mirrorHandle, rec.Bounded(mi.Bound()))
		require.Equal(t, err == nil, merr == nil, "record %d %s: index=%v mirror=%v", i, rec.String(), err, merr)
		if err == nil {
			inserted = append(inserted, rec)
		}
	}
	require.NotEmpty(t, inserted)

	n, err := mirror.Count()
	require.NoError(t, err)
	assert.Equal(t, mi.Len(), n)

	for _, rec := range inserted {
		for _, view := range mi.Views() {
			key, err := mi.KeyOf(view, rec)
			require.NoError(t, err)
			args := make([]any, len(key))
			for j, v := range key {
				args[j] = v.Interface()
			}
			e, err := mi.Lookup(view, args...)
			require.NoError(t, err)
			mh, err := mirror.Lookup(view, args...)
			require.NoError(t, err)
			assert.Equal(t, uint64(e.Handle), mh, "view %s key %s", view, key)
		}
	}
}

func TestConcurrentLookupsDuringInserts(t *testing.T) {
	mi := newPersonIndex(t)
	loadScenario(t, mi)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				e, err := mi.Lookup("by_name", "Bob")
				if assert.NoError(t, err) {
					assert.Equal(t, uint16(2), e.Record.ID)
				}
			}
		}()
	}
	for i := 0; i < 100; i++ {
		_, err := mi.Insert(mi.NewRecord(uint16(100+i), fmt.Sprintf("p%d", i), uint16(i), "n", "x"))
		require.NoError(t, err)
	}
	wg.Wait()
	assert.Equal(t, 104, mi.Len())
}

func BenchmarkInsert(b *testing.B) {
	mi, err := FromConfig(config.Default().Index, nil, nil)
	require.NoError(b, err)
	recs := make([]common.Record, b.N)
	for i := range recs {
		recs[i] = mi.NewRecord(uint16(i), fmt.Sprintf("name-%d", i), uint16(i), fmt.Sprintf("nick-%d", i), "en")
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mi.Insert(recs[i])
	}
}

func BenchmarkLookupComposite(b *testing.B) {
	mi := newPersonIndex(b)
	loadScenario(b, mi)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mi.Lookup("by_age_nickname", 30, "Bobby")
	}
}

func TestStatsDoesNotExposeViewFields(t *testing.T) {
	mi, err := New([]ViewSpec{{Name: "by_name", Fields: []common.Field{common.FieldName}}}, Options{})
	require.NoError(t, err)
	_, err = mi.Insert(mi.NewRecord(1, "Bob", 30, "Bobby", "French"))
	require.NoError(t, err)

	views := mi.Stats()["views"].(map[string]interface{})
	fields := views["by_name"].(map[string]interface{})["fields"].([]common.Field)
	fields[0] = common.FieldNickname

	got, ok := mi.ViewFields("by_name")
	require.True(t, ok)
	assert.Equal(t, []common.Field{common.FieldName}, got)

	_, err = mi.Insert(mi.NewRecord(2, "Bob", 31, "Robert", "Dutch"))
	assert.ErrorIs(t, err, ErrDuplicateKey)
	assert.Equal(t, 1, mi.Len())
}

func TestViewGetMatchesLookupOnOverlongInput(t *testing.T) {
	mi, err := New([]ViewSpec{{Name: "by_name", Fields: []common.Field{common.FieldName}}}, Options{StringBound: 8})
	require.NoError(t, err)
	h, err := mi.Insert(mi.NewRecord(1, "Alexandra the Great", 0, "", ""))
	require.NoError(t, err)

	full := common.Key{common.StringValue(common.StringBound(0).Make("Alexandra the Great"))}
	v, ok := mi.View("by_name")
	require.True(t, ok)
	got, found := v.Get(full)
	require.True(t, found)
	assert.Equal(t, h, got)

	e, err := mi.Lookup("by_name", "Alexandra the Great")
	require.NoError(t, err)
	assert.Equal(t, got, e.Handle)
}

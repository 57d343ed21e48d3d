package memory

import (
	"multiview/pkg/common"
	"sync"

	"github.com/google/btree"
)

// Handle is the stable identifier of a record inside a RecordStore.
// The zero handle never refers to a record.
type Handle uint64

type Item struct {
	Handle Handle
	Rec    common.Record
}

func lessItem(a, b Item) bool {
	return a.Handle < b.Handle
}

// RecordStore owns record storage. Views elsewhere hold only handles into it.
type RecordStore struct {
	tree *btree.BTreeG[Item]
	lock sync.RWMutex
	next Handle
}

func NewRecordStore(degree int) *RecordStore {
	return &RecordStore{
		tree: btree.NewG(degree, lessItem),
	}
}

// Put stores rec under a freshly assigned handle. Handles grow monotonically,
// so ascending order is insertion order.
func (rs *RecordStore) Put(rec common.Record) Handle {
	rs.lock.Lock()
	defer rs.lock.Unlock()

	rs.next++
	rs.tree.ReplaceOrInsert(Item{Handle: rs.next, Rec: rec})
	return rs.next
}

// Get returns a copy of the record stored under h.
func (rs *RecordStore) Get(h Handle) (common.Record, bool) {
	rs.lock.RLock()
	defer rs.lock.RUnlock()

	item, ok := rs.tree.Get(Item{Handle: h})
	if !ok {
		return common.Record{}, false
	}
	return item.Rec, true
}

func (rs *RecordStore) Ascend(fn func(h Handle, rec common.Record) bool) {
	rs.lock.RLock()
	defer rs.lock.RUnlock()

	rs.tree.Ascend(func(item Item) bool {
		return fn(item.Handle, item.Rec)
	})
}

func (rs *RecordStore) Count() int {
	rs.lock.RLock()
	defer rs.lock.RUnlock()
	return rs.tree.Len()
}

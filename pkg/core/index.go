package core

import (
	"errors"
	"fmt"

	"multiview/pkg/common"
	"multiview/pkg/core/memory"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateKey   = errors.New("duplicate key")
	ErrUnknownView    = errors.New("unknown view")
	ErrInvalidKey     = errors.New("invalid key")
	ErrNoMatchingView = errors.New("no view matches the query fields")
	ErrUnknownTable   = errors.New("unknown table")
)

// DuplicateKeyError reports the view whose uniqueness an insert would break.
type DuplicateKeyError struct {
	View string
	Key  common.Key
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key %s in view %q", e.Key, e.View)
}

func (e *DuplicateKeyError) Is(target error) bool {
	return target == ErrDuplicateKey
}

// Entry is the result of a lookup: the record's handle in the owning store
// and a copy of the record itself.
type Entry struct {
	Handle memory.Handle
	Record common.Record
}

// View 抽象接口，同一份记录集合上的唯一键查找视图
type View interface {
	Name() string
	Fields() []common.Field
	Get(key common.Key) (memory.Handle, bool)
	Size() int
	Type() string
}

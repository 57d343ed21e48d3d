package core

import (
	"fmt"
	"math"

	"multiview/pkg/common"
)

// buildKey converts caller values into a key shaped like v. possible is false
// when a numeric component lies outside the field's range, in which case no
// stored record can match.
func (mi *MultiIndex) buildKey(v *hashView, args []any) (common.Key, bool, error) {
	if len(args) != len(v.fields) {
		return nil, false, fmt.Errorf("%w: view %q takes %d values, got %d", ErrInvalidKey, v.name, len(v.fields), len(args))
	}
	key := make(common.Key, len(args))
	possible := true
	for i, f := range v.fields {
		val, inRange, err := mi.coerce(f, args[i])
		if err != nil {
			return nil, false, fmt.Errorf("%w: view %q field %q: %v", ErrInvalidKey, v.name, f, err)
		}
		key[i] = val
		possible = possible && inRange
	}
	return key, possible, nil
}

func (mi *MultiIndex) coerce(f common.Field, arg any) (common.Value, bool, error) {
	switch f.Kind() {
	case common.KindInt:
		n, ok, err := toUint(arg)
		if err != nil {
			return common.Value{}, false, err
		}
		// Numeric fields are stored as uint16.
		return common.IntValue(n), ok && n <= math.MaxUint16, nil
	case common.KindString:
		switch s := arg.(type) {
		case string:
			return common.StringValue(mi.bound.Make(s)), true, nil
		case common.BoundedString:
			return common.StringValue(mi.bound.Clamp(s)), true, nil
		case common.Value:
			str, ok := s.Str()
			if !ok {
				return common.Value{}, false, fmt.Errorf("expected string, got %s", s.Kind())
			}
			return common.StringValue(mi.bound.Make(str)), true, nil
		}
		return common.Value{}, false, fmt.Errorf("expected string, got %T", arg)
	}
	return common.Value{}, false, fmt.Errorf("unknown field kind")
}

// toUint widens any integer to uint64. ok is false for negative input.
func toUint(arg any) (uint64, bool, error) {
	switch n := arg.(type) {
	case uint8:
		return uint64(n), true, nil
	case uint16:
		return uint64(n), true, nil
	case uint32:
		return uint64(n), true, nil
	case uint64:
		return n, true, nil
	case uint:
		return uint64(n), true, nil
	case int8:
		return uint64(n), n >= 0, nil
	case int16:
		return uint64(n), n >= 0, nil
	case int32:
		return uint64(n), n >= 0, nil
	case int64:
		return uint64(n), n >= 0, nil
	case int:
		return uint64(n), n >= 0, nil
	case common.Value:
		if u, ok := n.Int(); ok {
			return u, true, nil
		}
		return 0, false, fmt.Errorf("expected integer, got %s", n.Kind())
	}
	return 0, false, fmt.Errorf("expected integer, got %T", arg)
}

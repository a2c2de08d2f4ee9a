package atomicstore

import (
	"context"
	"encoding/json"
	"fmt"
)

// Number is the set of field types MergeObject can add.
type Number interface {
	~int | ~int32 | ~int64 | ~float32 | ~float64
}

// MergeMode selects how MergeObject combines a partial field with the stored one.
type MergeMode int

const (
	// MergeAdd adds partial values to stored values.
	MergeAdd MergeMode = iota
	// MergeReplace overwrites stored values.
	MergeReplace
)

func decode[T any](raw []byte, found bool, def T) (T, error) {
	if !found || len(raw) == 0 {
		return def, nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return def, fmt.Errorf("decode: %w", err)
	}
	return v, nil
}

func encode[T any](v T) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return raw, nil
}

// Read returns the decoded value at key, or def when it is missing. It does
// not take the key lock.
func Read[T any](ctx context.Context, s *Store, key string, def T) (T, error) {
	raw, found, err := s.backend.Get(ctx, key)
	if err != nil {
		return def, &OpError{Op: "read", Key: key, Attempts: 1, Err: err}
	}
	v, err := decode(raw, found, def)
	if err != nil {
		return def, &OpError{Op: "read", Key: key, Attempts: 1, Err: err}
	}
	return v, nil
}

// ReadModifyWrite applies fn to the current value under the key lock and stores
// the result. An error from fn aborts the write and is returned as is.
func ReadModifyWrite[T any](ctx context.Context, s *Store, key string, def T, fn func(T) (T, error)) (T, error) {
	var out T
	_, err := s.mutate(ctx, "read_modify_write", key, func(raw []byte, found bool) ([]byte, error) {
		cur, err := decode(raw, found, def)
		if err != nil {
			return nil, err
		}
		next, err := fn(cur)
		if err != nil {
			return nil, abortError{err: err}
		}
		enc, err := encode(next)
		if err != nil {
			return nil, err
		}
		out = next
		return enc, nil
	})
	if err != nil {
		return def, err
	}
	return out, nil
}

// Write replaces the value at key under the key lock.
func Write[T any](ctx context.Context, s *Store, key string, value T) error {
	enc, err := encode(value)
	if err != nil {
		return &OpError{Op: "write", Key: key, Attempts: 0, Err: err}
	}
	_, err = s.mutate(ctx, "write", key, func([]byte, bool) ([]byte, error) {
		return enc, nil
	})
	return err
}

// AppendBounded appends item to the list at key, dropping the oldest entries
// once the list is longer than maxLength. maxLength <= 0 means unbounded.
func AppendBounded[T any](ctx context.Context, s *Store, key string, item T, maxLength int) error {
	_, err := s.mutate(ctx, "array_append", key, func(raw []byte, found bool) ([]byte, error) {
		list, err := decode[[]T](raw, found, nil)
		if err != nil {
			return nil, err
		}
		list = append(list, item)
		if maxLength > 0 && len(list) > maxLength {
			list = append([]T(nil), list[len(list)-maxLength:]...)
		}
		return encode(list)
	})
	return err
}

// MergeObject merges partial into the object at key field by field. Fields in
// def that are missing from the stored object are filled in first.
func MergeObject[V Number](ctx context.Context, s *Store, key string, partial map[string]V, mode MergeMode, def map[string]V) (map[string]V, error) {
	var out map[string]V
	_, err := s.mutate(ctx, "object_merge", key, func(raw []byte, found bool) ([]byte, error) {
		cur, err := decode[map[string]V](raw, found, nil)
		if err != nil {
			return nil, err
		}
		merged := make(map[string]V, len(def)+len(cur)+len(partial))
		for k, v := range def {
			merged[k] = v
		}
		for k, v := range cur {
			merged[k] = v
		}
		for k, v := range partial {
			if mode == MergeAdd {
				merged[k] += v
			} else {
				merged[k] = v
			}
		}
		enc, err := encode(merged)
		if err != nil {
			return nil, err
		}
		out = merged
		return enc, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

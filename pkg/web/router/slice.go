package router

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"time"
)

// errStepZero is returned for start:stop:step reads and writes with a zero
// step.
var errStepZero = errors.New("slice step must not be zero")

// parseIndex parses a decimal list index. Negative values are allowed and
// count from the end of the list.
func parseIndex(raw string) (int, error) {
	idx, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid index %q", raw)
	}
	return idx, nil
}

// normalizeIndex resolves a possibly negative index against a list of
// length n. Indexes that fall outside the list are an error, unlike slice
// bounds, which saturate.
func normalizeIndex(idx, n int) (int, error) {
	k := idx
	if k < 0 {
		k += n
	}
	if k < 0 || k >= n {
		return 0, fmt.Errorf("index %d out of range", idx)
	}
	return k, nil
}

// sliceIndices adjusts start and stop the way Python's slice.indices does:
// negative bounds count from the end and out-of-range bounds saturate
// instead of failing. It returns the adjusted bounds along with the number
// of elements the slice selects.
func sliceIndices(start, stop, step, n int) (int, int, int, error) {
	if step == 0 {
		return 0, 0, 0, errStepZero
	}

	if start < 0 {
		start += n
		if start < 0 {
			if step < 0 {
				start = -1
			} else {
				start = 0
			}
		}
	} else if start >= n {
		if step < 0 {
			start = n - 1
		} else {
			start = n
		}
	}

	if stop < 0 {
		stop += n
		if stop < 0 {
			if step < 0 {
				stop = -1
			} else {
				stop = 0
			}
		}
	} else if stop >= n {
		if step < 0 {
			stop = n - 1
		} else {
			stop = n
		}
	}

	count := 0
	if step < 0 {
		if stop < start {
			count = (start-stop-1)/(-step) + 1
		}
	} else if start < stop {
		count = (stop-start-1)/step + 1
	}
	return start, stop, count, nil
}

// sliceElements copies the elements a start:stop:step slice selects. The
// bounds must already be adjusted by sliceIndices.
func sliceElements(list []interface{}, start, count, step int) []interface{} {
	out := make([]interface{}, 0, count)
	for i, k := 0, start; i < count; i, k = i+1, k+step {
		out = append(out, list[k])
	}
	return out
}

// spliceElements assigns values to the slice a start:stop:step selects and
// returns the resulting list. A unit step splices like list[a:b] = values
// and may grow or shrink the list; any other step requires exactly as many
// values as the slice selects.
func spliceElements(list []interface{}, start, stop, step int, values []interface{}) ([]interface{}, error) {
	adjStart, adjStop, count, err := sliceIndices(start, stop, step, len(list))
	if err != nil {
		return nil, err
	}

	if step == 1 {
		if adjStop < adjStart {
			adjStop = adjStart
		}
		out := make([]interface{}, 0, len(list)-(adjStop-adjStart)+len(values))
		out = append(out, list[:adjStart]...)
		out = append(out, values...)
		out = append(out, list[adjStop:]...)
		return out, nil
	}

	if len(values) != count {
		return nil, fmt.Errorf("attempt to assign sequence of size %d to extended slice of size %d", len(values), count)
	}
	out := append([]interface{}(nil), list...)
	for i, k := 0, adjStart; i < count; i, k = i+1, k+step {
		out[k] = values[i]
	}
	return out, nil
}

// insertAt inserts value before idx, clamping the index to the list bounds
// the way Python's list.insert does.
func insertAt(list []interface{}, idx int, value interface{}) []interface{} {
	n := len(list)
	if idx < 0 {
		idx += n
		if idx < 0 {
			idx = 0
		}
	} else if idx > n {
		idx = n
	}
	out := make([]interface{}, 0, n+1)
	out = append(out, list[:idx]...)
	out = append(out, value)
	out = append(out, list[idx:]...)
	return out
}

// popAt removes the element at a possibly negative index and returns the
// shortened list together with the removed element.
func popAt(list []interface{}, idx int) ([]interface{}, interface{}, error) {
	k, err := normalizeIndex(idx, len(list))
	if err != nil {
		return nil, nil, err
	}
	v := list[k]
	out := make([]interface{}, 0, len(list)-1)
	out = append(out, list[:k]...)
	out = append(out, list[k+1:]...)
	return out, v, nil
}

// removeValue deletes the first element equal to value. The second return
// reports whether a match was found.
func removeValue(list []interface{}, value interface{}) ([]interface{}, bool) {
	for i, v := range list {
		if valuesEqual(v, value) {
			out := make([]interface{}, 0, len(list)-1)
			out = append(out, list[:i]...)
			out = append(out, list[i+1:]...)
			return out, true
		}
	}
	return list, false
}

// valuesEqual compares two canonical field values. Timestamps compare with
// time.Equal so equal instants in different locations still match.
func valuesEqual(a, b interface{}) bool {
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}
	return reflect.DeepEqual(a, b)
}

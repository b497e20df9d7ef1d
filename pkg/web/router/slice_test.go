package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intList(n int) []interface{} {
	out := make([]interface{}, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestSliceIndices(t *testing.T) {
	tests := []struct {
		name                 string
		start, stop, step, n int
		want                 []interface{}
	}{
		{"full", 0, 3, 1, 3, []interface{}{0, 1, 2}},
		{"stop clamps", 0, 100, 1, 3, []interface{}{0, 1, 2}},
		{"negative start", -2, 3, 1, 3, []interface{}{1, 2}},
		{"start beyond end", 5, 10, 1, 3, []interface{}{}},
		{"stride", 0, 5, 2, 5, []interface{}{0, 2, 4}},
		{"reverse", 3, 0, -1, 5, []interface{}{3, 2, 1}},
		{"reverse all", -1, -6, -1, 5, []interface{}{4, 3, 2, 1, 0}},
		{"negative past front", -10, 2, 1, 3, []interface{}{0, 1}},
		{"empty forward", 2, 1, 1, 5, []interface{}{}},
		{"reverse stride", -1, -6, -2, 5, []interface{}{4, 2, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, _, count, err := sliceIndices(tt.start, tt.stop, tt.step, tt.n)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sliceElements(intList(tt.n), start, count, tt.step))
		})
	}
}

func TestSliceIndicesRejectsZeroStep(t *testing.T) {
	_, _, _, err := sliceIndices(0, 3, 0, 3)
	require.Error(t, err)
	assert.Equal(t, errStepZero, err)
}

func TestSpliceElements(t *testing.T) {
	tests := []struct {
		name              string
		list              []interface{}
		start, stop, step int
		values            []interface{}
		want              []interface{}
	}{
		{"replace middle", intList(5), 1, 4, 1, []interface{}{"X"}, []interface{}{0, "X", 4}},
		{"grow middle", intList(3), 1, 1, 1, []interface{}{"a", "b"}, []interface{}{0, "a", "b", 1, 2}},
		{"stop before start inserts", intList(5), 3, 1, 1, []interface{}{"Z"}, []interface{}{0, 1, 2, "Z", 3, 4}},
		{"extended forward", intList(5), 0, 5, 2, []interface{}{"a", "b", "c"}, []interface{}{"a", 1, "b", 3, "c"}},
		{"extended reverse", intList(5), -1, -6, -1, []interface{}{"a", "b", "c", "d", "e"}, []interface{}{"e", "d", "c", "b", "a"}},
		{"clear all", intList(3), 0, 3, 1, []interface{}{}, []interface{}{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := spliceElements(tt.list, tt.start, tt.stop, tt.step, tt.values)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSpliceElementsLengthMismatch(t *testing.T) {
	_, err := spliceElements(intList(5), 0, 5, 2, []interface{}{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "size 1")
	assert.Contains(t, err.Error(), "extended slice of size 3")
}

func TestSpliceElementsLeavesInputAlone(t *testing.T) {
	list := intList(5)
	_, err := spliceElements(list, 0, 5, 2, []interface{}{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, intList(5), list)
}

func TestInsertAt(t *testing.T) {
	base := []interface{}{"a", "b", "c"}

	assert.Equal(t, []interface{}{"a", "x", "b", "c"}, insertAt(base, 1, "x"))
	assert.Equal(t, []interface{}{"a", "b", "x", "c"}, insertAt(base, -1, "x"))
	assert.Equal(t, []interface{}{"x", "a", "b", "c"}, insertAt(base, -99, "x"))
	assert.Equal(t, []interface{}{"a", "b", "c", "x"}, insertAt(base, 99, "x"))
	assert.Equal(t, []interface{}{"a", "b", "c"}, base, "input untouched")
}

func TestPopAt(t *testing.T) {
	base := []interface{}{"a", "b", "c"}

	rest, popped, err := popAt(base, -1)
	require.NoError(t, err)
	assert.Equal(t, "c", popped)
	assert.Equal(t, []interface{}{"a", "b"}, rest)

	rest, popped, err = popAt(base, 0)
	require.NoError(t, err)
	assert.Equal(t, "a", popped)
	assert.Equal(t, []interface{}{"b", "c"}, rest)

	_, _, err = popAt(base, 3)
	require.Error(t, err)

	_, _, err = popAt(nil, -1)
	require.Error(t, err)

	assert.Equal(t, []interface{}{"a", "b", "c"}, base, "input untouched")
}

func TestRemoveValue(t *testing.T) {
	base := []interface{}{"a", "b", "a"}

	rest, found := removeValue(base, "a")
	assert.True(t, found)
	assert.Equal(t, []interface{}{"b", "a"}, rest, "only the first match goes")

	_, found = removeValue(base, "zz")
	assert.False(t, found)
}

func TestNormalizeIndex(t *testing.T) {
	k, err := normalizeIndex(0, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, k)

	k, err = normalizeIndex(-1, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, k)

	_, err = normalizeIndex(3, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index 3 out of range")

	_, err = normalizeIndex(-4, 3)
	require.Error(t, err)

	_, err = normalizeIndex(0, 0)
	require.Error(t, err)
}

func TestParseIndex(t *testing.T) {
	k, err := parseIndex("-12")
	require.NoError(t, err)
	assert.Equal(t, -12, k)

	_, err = parseIndex("1:3")
	require.Error(t, err)

	_, err = parseIndex("")
	require.Error(t, err)
}

func TestValuesEqual(t *testing.T) {
	utc := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	shifted := utc.In(time.FixedZone("plus2", 2*3600))

	assert.True(t, valuesEqual(utc, shifted), "equal instants match across zones")
	assert.False(t, valuesEqual(utc, utc.Add(time.Second)))
	assert.True(t, valuesEqual([]interface{}{int64(1)}, []interface{}{int64(1)}))
	assert.False(t, valuesEqual(int64(1), float64(1)))
	assert.False(t, valuesEqual(utc, "2024-06-01T12:00:00Z"))
}

// Copyright 2024 The ArangoDB-Go Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package aql

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brennv/arangodb/rowbatch"
)

// intBatch builds a one-register batch of int values.
func intBatch(vals ...int64) *rowbatch.Batch {
	b := rowbatch.NewBatch(len(vals), 1)
	for i, v := range vals {
		b.SetValue(i, 0, rowbatch.IntValue(v))
	}
	return b
}

// markedBatch builds a two-register batch: the sort value in register 0 and
// an origin marker in register 1.
func markedBatch(marker string, vals ...int64) *rowbatch.Batch {
	b := rowbatch.NewBatch(len(vals), 2)
	for i, v := range vals {
		b.SetValue(i, 0, rowbatch.IntValue(v))
		b.SetValue(i, 1, rowbatch.StringValue(marker))
	}
	return b
}

func intColumn(t *testing.T, b *rowbatch.Batch, reg rowbatch.RegisterID) []int64 {
	t.Helper()
	vals := make([]int64, b.Size())
	for i := 0; i < b.Size(); i++ {
		vals[i] = b.GetValue(i, reg).IntVal()
	}
	return vals
}

func drainInts(t *testing.T, block ExecutionBlock, atMost int) []int64 {
	t.Helper()
	var out []int64
	for {
		batch, err := block.GetSome(1, atMost)
		require.NoError(t, err)
		if batch == nil {
			return out
		}
		out = append(out, intColumn(t, batch, 0)...)
	}
}

func TestGatherPlainConcatenation(t *testing.T) {
	dep1 := NewValuesBlock(intBatch(1, 2), intBatch(3))
	dep2 := NewValuesBlock(intBatch(4, 5, 6))
	query := NewQuery("Q1", "test")
	g := NewGatherBlock(query, nil, dep1, dep2)
	require.NoError(t, g.Initialize())
	require.NoError(t, g.InitializeCursor(nil, 0))

	batch, err := g.GetSome(1, 10)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, intColumn(t, batch, 0))

	batch, err = g.GetSome(1, 10)
	require.NoError(t, err)
	require.Equal(t, []int64{3}, intColumn(t, batch, 0))

	batch, err = g.GetSome(1, 10)
	require.NoError(t, err)
	require.Equal(t, []int64{4, 5, 6}, intColumn(t, batch, 0))

	batch, err = g.GetSome(1, 10)
	require.NoError(t, err)
	require.Nil(t, batch)
}

func TestGatherSortedMerge(t *testing.T) {
	depA := NewValuesBlock(markedBatch("A", 1, 3, 5))
	depB := NewValuesBlock(markedBatch("B", 2, 3, 4))
	query := NewQuery("Q1", "test")
	g := NewGatherBlock(query, []SortElement{{Reg: 0, Ascending: true}}, depA, depB)
	require.NoError(t, g.Initialize())
	require.NoError(t, g.InitializeCursor(nil, 0))

	batch, err := g.GetSome(1, 10)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3, 3, 4, 5}, intColumn(t, batch, 0))

	// ties break towards the lower dependency index
	require.Equal(t, "A", batch.GetValue(2, 1).StringVal())
	require.Equal(t, "B", batch.GetValue(3, 1).StringVal())

	batch, err = g.GetSome(1, 10)
	require.NoError(t, err)
	require.Nil(t, batch)
}

func TestGatherSortedMergeDescending(t *testing.T) {
	depA := NewValuesBlock(intBatch(5, 3, 1))
	depB := NewValuesBlock(intBatch(4, 3, 2))
	query := NewQuery("Q1", "test")
	g := NewGatherBlock(query, []SortElement{{Reg: 0, Ascending: false}}, depA, depB)
	require.NoError(t, g.Initialize())
	require.NoError(t, g.InitializeCursor(nil, 0))

	require.Equal(t, []int64{5, 4, 3, 3, 2, 1}, drainInts(t, g, 10))
}

func TestGatherSortedMergeSmallAtMost(t *testing.T) {
	depA := NewValuesBlock(intBatch(1, 4), intBatch(6))
	depB := NewValuesBlock(intBatch(2, 3, 5))
	query := NewQuery("Q1", "test")
	g := NewGatherBlock(query, []SortElement{{Reg: 0, Ascending: true}}, depA, depB)
	require.NoError(t, g.Initialize())
	require.NoError(t, g.InitializeCursor(nil, 0))

	require.Equal(t, []int64{1, 2, 3, 4, 5, 6}, drainInts(t, g, 2))
}

func TestGatherSkipSome(t *testing.T) {
	depA := NewValuesBlock(intBatch(1, 3, 5))
	depB := NewValuesBlock(intBatch(2, 4, 6))
	query := NewQuery("Q1", "test")
	g := NewGatherBlock(query, []SortElement{{Reg: 0, Ascending: true}}, depA, depB)
	require.NoError(t, g.Initialize())
	require.NoError(t, g.InitializeCursor(nil, 0))

	skipped, err := g.SkipSome(1, 2)
	require.NoError(t, err)
	require.Equal(t, 2, skipped)

	require.Equal(t, []int64{3, 4, 5, 6}, drainInts(t, g, 10))
}

func TestGatherCountAndRemaining(t *testing.T) {
	dep1 := NewValuesBlock(intBatch(1, 2), intBatch(3))
	dep2 := NewValuesBlock(intBatch(4, 5, 6))
	query := NewQuery("Q1", "test")
	g := NewGatherBlock(query, nil, dep1, dep2)
	require.NoError(t, g.Initialize())
	require.NoError(t, g.InitializeCursor(nil, 0))

	count, err := g.Count()
	require.NoError(t, err)
	require.Equal(t, int64(6), count)

	remaining, err := g.Remaining()
	require.NoError(t, err)
	require.Equal(t, int64(6), remaining)
}

// unknownCountBlock makes count and remaining unknown for one dependency.
type unknownCountBlock struct {
	*ValuesBlock
}

func (u *unknownCountBlock) Count() (int64, error) {
	return -1, nil
}

func (u *unknownCountBlock) Remaining() (int64, error) {
	return -1, nil
}

func TestGatherCountUnknownPropagates(t *testing.T) {
	dep1 := NewValuesBlock(intBatch(1))
	dep2 := &unknownCountBlock{NewValuesBlock(intBatch(2))}
	query := NewQuery("Q1", "test")
	g := NewGatherBlock(query, nil, dep1, dep2)
	require.NoError(t, g.Initialize())
	require.NoError(t, g.InitializeCursor(nil, 0))

	count, err := g.Count()
	require.NoError(t, err)
	require.Equal(t, int64(-1), count)

	remaining, err := g.Remaining()
	require.NoError(t, err)
	require.Equal(t, int64(-1), remaining)
}

func TestGatherHasMore(t *testing.T) {
	dep := NewValuesBlock(intBatch(1))
	query := NewQuery("Q1", "test")
	g := NewGatherBlock(query, []SortElement{{Reg: 0, Ascending: true}}, dep)
	require.NoError(t, g.Initialize())
	require.NoError(t, g.InitializeCursor(nil, 0))

	hasMore, err := g.HasMore()
	require.NoError(t, err)
	require.True(t, hasMore)

	drainInts(t, g, 10)

	hasMore, err = g.HasMore()
	require.NoError(t, err)
	require.False(t, hasMore)
}

func TestGatherInitializeCursorRewinds(t *testing.T) {
	dep1 := NewValuesBlock(intBatch(1, 3))
	dep2 := NewValuesBlock(intBatch(2, 4))
	query := NewQuery("Q1", "test")
	g := NewGatherBlock(query, []SortElement{{Reg: 0, Ascending: true}}, dep1, dep2)
	require.NoError(t, g.Initialize())
	require.NoError(t, g.InitializeCursor(nil, 0))

	first := drainInts(t, g, 10)
	require.NoError(t, g.InitializeCursor(nil, 0))
	second := drainInts(t, g, 10)
	require.Equal(t, first, second)
	require.Equal(t, []int64{1, 2, 3, 4}, second)
}

func TestGatherShutdownReachesDependencies(t *testing.T) {
	dep1 := NewValuesBlock(intBatch(1))
	dep2 := NewValuesBlock(intBatch(2))
	query := NewQuery("Q1", "test")
	g := NewGatherBlock(query, nil, dep1, dep2)
	require.NoError(t, g.Initialize())
	require.NoError(t, g.InitializeCursor(nil, 0))
	require.NoError(t, g.Shutdown(0))
	require.Equal(t, 1, dep1.ShutdownCalls)
	require.Equal(t, 1, dep2.ShutdownCalls)
}

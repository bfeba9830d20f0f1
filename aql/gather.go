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
	"github.com/brennv/arangodb/rowbatch"
)

// SortElement is one component of a gather sort key.
type SortElement struct {
	Reg       rowbatch.RegisterID
	Ascending bool
}

// gatherCursor addresses the next unconsumed row of one dependency: dep is
// the dependency index, row the position in the front batch of that
// dependency's buffer.
type gatherCursor struct {
	dep int
	row int
}

// GatherBlock merges N upstream streams into one. With an empty sort key it
// concatenates the dependencies in list order; with a sort key it runs a
// k-way merge assuming each dependency is already sorted under that key.
type GatherBlock struct {
	blockBase
	sortRegisters []SortElement
	isSimple      bool
	atDep         int
	gatherBuffer  [][]*rowbatch.Batch
	gatherPos     []gatherCursor
}

var _ ExecutionBlock = (*GatherBlock)(nil)

func NewGatherBlock(query *Query, sortBy []SortElement, dependencies ...ExecutionBlock) *GatherBlock {
	return &GatherBlock{
		blockBase:     newBlockBase(query, dependencies...),
		sortRegisters: sortBy,
		isSimple:      len(sortBy) == 0,
	}
}

func (g *GatherBlock) Initialize() error {
	g.atDep = 0
	return g.initializeDependencies()
}

func (g *GatherBlock) InitializeCursor(items *rowbatch.Batch, pos int) error {
	if err := g.initializeCursor(items, pos); err != nil {
		return err
	}
	g.atDep = 0
	if !g.isSimple {
		g.gatherBuffer = make([][]*rowbatch.Batch, len(g.dependencies))
		g.gatherPos = make([]gatherCursor, len(g.dependencies))
		for i := range g.dependencies {
			g.gatherPos[i] = gatherCursor{dep: i, row: 0}
		}
	}
	g.done = false
	return nil
}

// Shutdown releases the per-dependency buffers; the generic buffer of the
// base is not used by this block.
func (g *GatherBlock) Shutdown(errorCode int) error {
	err := g.shutdownDependencies(errorCode)
	if !g.isSimple {
		g.gatherBuffer = nil
		g.gatherPos = nil
	}
	return err
}

// Count is the sum over the dependencies, or -1 if any is unknown.
func (g *GatherBlock) Count() (int64, error) {
	var sum int64
	for _, dep := range g.dependencies {
		count, err := dep.Count()
		if err != nil {
			return 0, err
		}
		if count == -1 {
			return -1, nil
		}
		sum += count
	}
	return sum, nil
}

// Remaining is the sum over the dependencies, or -1 if any is unknown.
func (g *GatherBlock) Remaining() (int64, error) {
	var sum int64
	for _, dep := range g.dependencies {
		remaining, err := dep.Remaining()
		if err != nil {
			return 0, err
		}
		if remaining == -1 {
			return -1, nil
		}
		sum += remaining
	}
	return sum, nil
}

func (g *GatherBlock) HasMore() (bool, error) {
	if g.done {
		return false, nil
	}
	if g.isSimple {
		for _, dep := range g.dependencies {
			hasMore, err := dep.HasMore()
			if err != nil {
				return false, err
			}
			if hasMore {
				return true, nil
			}
		}
	} else {
		for i := range g.gatherBuffer {
			if len(g.gatherBuffer[i]) > 0 {
				return true, nil
			}
			ok, err := g.getBlockForDep(i, DefaultBatchSize, DefaultBatchSize)
			if err != nil {
				return false, err
			}
			if ok {
				g.gatherPos[i] = gatherCursor{dep: i, row: 0}
				return true, nil
			}
		}
	}
	g.done = true
	return false, nil
}

func (g *GatherBlock) GetSome(atLeast int, atMost int) (*rowbatch.Batch, error) {
	if g.done {
		return nil, nil
	}

	// the simple case: exhaust one dependency after the other
	if g.isSimple {
		res, err := g.dependencies[g.atDep].GetSome(atLeast, atMost)
		if err != nil {
			return nil, err
		}
		for res == nil && g.atDep < len(g.dependencies)-1 {
			g.atDep++
			res, err = g.dependencies[g.atDep].GetSome(atLeast, atMost)
			if err != nil {
				return nil, err
			}
		}
		if res == nil {
			g.done = true
		}
		return res, nil
	}

	available, index, err := g.fillBuffers(atLeast, atMost)
	if err != nil {
		return nil, err
	}
	if available == 0 {
		g.done = true
		return nil, nil
	}

	toSend := available
	if toSend > atMost {
		toSend = atMost
	}

	// cache so that a source value re-occurring within this call is cloned
	// only once into the output batch
	cache := make(map[string]rowbatch.Value)

	nrRegs := g.gatherBuffer[index][0].NrRegs()
	res := rowbatch.NewBatch(toSend, nrRegs)

	for i := 0; i < toSend; i++ {
		val := g.minCursor()
		front := g.gatherBuffer[val.dep][0]
		for reg := 0; reg < nrRegs; reg++ {
			x := front.GetValue(val.row, rowbatch.RegisterID(reg))
			if x.IsEmpty() {
				continue
			}
			key := x.Fingerprint()
			cloned, ok := cache[key]
			if !ok {
				cloned = x.Clone()
				cache[key] = cloned
			}
			res.SetValue(i, rowbatch.RegisterID(reg), cloned)
		}
		g.advanceCursor(val.dep)
	}

	return res, nil
}

func (g *GatherBlock) SkipSome(atLeast int, atMost int) (int, error) {
	if g.done {
		return 0, nil
	}

	if g.isSimple {
		skipped, err := g.dependencies[g.atDep].SkipSome(atLeast, atMost)
		if err != nil {
			return 0, err
		}
		for skipped == 0 && g.atDep < len(g.dependencies)-1 {
			g.atDep++
			skipped, err = g.dependencies[g.atDep].SkipSome(atLeast, atMost)
			if err != nil {
				return 0, err
			}
		}
		if skipped == 0 {
			g.done = true
		}
		return skipped, nil
	}

	available, _, err := g.fillBuffers(atLeast, atMost)
	if err != nil {
		return 0, err
	}
	if available == 0 {
		g.done = true
		return 0, nil
	}

	skipped := available
	if skipped > atMost {
		skipped = atMost
	}
	for i := 0; i < skipped; i++ {
		val := g.minCursor()
		g.advanceCursor(val.dep)
	}
	return skipped, nil
}

// fillBuffers tops up every empty per-dependency buffer and returns the
// total number of buffered rows plus the index of some non-empty buffer.
func (g *GatherBlock) fillBuffers(atLeast int, atMost int) (int, int, error) {
	available := 0
	index := 0
	for i := range g.dependencies {
		if len(g.gatherBuffer[i]) == 0 {
			ok, err := g.getBlockForDep(i, atLeast, atMost)
			if err != nil {
				return 0, 0, err
			}
			if ok {
				index = i
				g.gatherPos[i] = gatherCursor{dep: i, row: 0}
			}
		} else {
			index = i
		}

		cur := g.gatherBuffer[i]
		if len(cur) > 0 {
			available += cur[0].Size() - g.gatherPos[i].row
			for j := 1; j < len(cur); j++ {
				available += cur[j].Size()
			}
		}
	}
	return available, index, nil
}

// getBlockForDep pulls one batch from dependency i into its buffer.
func (g *GatherBlock) getBlockForDep(i int, atLeast int, atMost int) (bool, error) {
	docs, err := g.dependencies[i].GetSome(atLeast, atMost)
	if err != nil {
		return false, err
	}
	if docs == nil {
		return false, nil
	}
	g.gatherBuffer[i] = append(g.gatherBuffer[i], docs)
	return true, nil
}

// advanceCursor moves the cursor of dependency dep one row forward and pops
// the front batch when it is fully consumed.
func (g *GatherBlock) advanceCursor(dep int) {
	g.gatherPos[dep].row++
	if g.gatherPos[dep].row == g.gatherBuffer[dep][0].Size() {
		g.gatherBuffer[dep] = g.gatherBuffer[dep][1:]
		g.gatherPos[dep] = gatherCursor{dep: dep, row: 0}
	}
}

// minCursor scans the cursors left to right and returns the one pointing at
// the smallest row under the sort key. The linear scan ties break towards
// the lower dependency index, which keeps the merge stable.
func (g *GatherBlock) minCursor() gatherCursor {
	best := 0
	for i := 1; i < len(g.gatherPos); i++ {
		if g.lessCursor(g.gatherPos[i], g.gatherPos[best]) {
			best = i
		}
	}
	return g.gatherPos[best]
}

// lessCursor orders two cursors by the rows they point at. A cursor over an
// empty buffer compares as +infinity.
func (g *GatherBlock) lessCursor(a gatherCursor, b gatherCursor) bool {
	if len(g.gatherBuffer[a.dep]) == 0 {
		return false
	}
	if len(g.gatherBuffer[b.dep]) == 0 {
		return true
	}
	rowA := g.gatherBuffer[a.dep][0]
	rowB := g.gatherBuffer[b.dep][0]
	for _, elem := range g.sortRegisters {
		cmp := rowbatch.Compare(rowA.GetValue(a.row, elem.Reg), rowB.GetValue(b.row, elem.Reg))
		if cmp < 0 {
			return elem.Ascending
		}
		if cmp > 0 {
			return !elem.Ascending
		}
	}
	return false
}

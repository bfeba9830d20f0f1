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

// ValuesBlock yields a scripted sequence of batches; it is the upstream
// stand-in used in tests. Batches are handed out one at a time, cut down to
// the caller's atMost.
type ValuesBlock struct {
	batches       []*rowbatch.Batch
	atBatch       int
	atRow         int
	ShutdownCalls int
	LastErrorCode int
}

var _ ExecutionBlock = (*ValuesBlock)(nil)

func NewValuesBlock(batches ...*rowbatch.Batch) *ValuesBlock {
	return &ValuesBlock{batches: batches}
}

func (v *ValuesBlock) Initialize() error {
	return nil
}

func (v *ValuesBlock) InitializeCursor(*rowbatch.Batch, int) error {
	v.atBatch = 0
	v.atRow = 0
	return nil
}

func (v *ValuesBlock) Shutdown(errorCode int) error {
	v.ShutdownCalls++
	v.LastErrorCode = errorCode
	return nil
}

func (v *ValuesBlock) GetSome(_ int, atMost int) (*rowbatch.Batch, error) {
	if v.atBatch >= len(v.batches) {
		return nil, nil
	}
	cur := v.batches[v.atBatch]
	end := cur.Size()
	if end-v.atRow > atMost {
		end = v.atRow + atMost
	}
	res := cur.Slice(v.atRow, end)
	v.atRow = end
	if v.atRow == cur.Size() {
		v.atBatch++
		v.atRow = 0
	}
	return res, nil
}

func (v *ValuesBlock) SkipSome(_ int, atMost int) (int, error) {
	if v.atBatch >= len(v.batches) {
		return 0, nil
	}
	cur := v.batches[v.atBatch]
	skipped := cur.Size() - v.atRow
	if skipped > atMost {
		skipped = atMost
	}
	v.atRow += skipped
	if v.atRow == cur.Size() {
		v.atBatch++
		v.atRow = 0
	}
	return skipped, nil
}

func (v *ValuesBlock) HasMore() (bool, error) {
	return v.atBatch < len(v.batches), nil
}

func (v *ValuesBlock) Count() (int64, error) {
	var sum int64
	for _, batch := range v.batches {
		sum += int64(batch.Size())
	}
	return sum, nil
}

func (v *ValuesBlock) Remaining() (int64, error) {
	var sum int64
	for i := v.atBatch; i < len(v.batches); i++ {
		sum += int64(v.batches[i].Size())
	}
	if v.atBatch < len(v.batches) {
		sum -= int64(v.atRow)
	}
	return sum, nil
}

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

package rowbatch

import (
	"encoding/json"
	"fmt"
)

// Batch is a rectangular rows x registers array of tagged values shipped
// between execution blocks. Slicing clones values so the result owns its
// cells; concatenation copies the cell values but shares document bytes with
// the input batches.
type Batch struct {
	nrRegs int
	values []Value
}

func NewBatch(nrItems int, nrRegs int) *Batch {
	if nrItems <= 0 || nrRegs < 0 {
		panic(fmt.Sprintf("invalid batch dimensions %d x %d", nrItems, nrRegs))
	}
	return &Batch{
		nrRegs: nrRegs,
		values: make([]Value, nrItems*nrRegs),
	}
}

func (b *Batch) Size() int {
	if b.nrRegs == 0 {
		return 0
	}
	return len(b.values) / b.nrRegs
}

func (b *Batch) NrRegs() int {
	return b.nrRegs
}

func (b *Batch) cellIndex(row int, reg RegisterID) int {
	if row < 0 || row >= b.Size() || int(reg) < 0 || int(reg) >= b.nrRegs {
		panic(fmt.Sprintf("cell (%d, %d) out of bounds for batch %d x %d", row, reg, b.Size(), b.nrRegs))
	}
	return row*b.nrRegs + int(reg)
}

func (b *Batch) GetValue(row int, reg RegisterID) Value {
	return b.values[b.cellIndex(row, reg)]
}

// GetValueReference returns a pointer into the batch storage, avoiding a
// copy. The reference is invalidated by SetValue/DestroyValue on that cell.
func (b *Batch) GetValueReference(row int, reg RegisterID) *Value {
	return &b.values[b.cellIndex(row, reg)]
}

// SetValue stores a value. The cell must be empty unless v is empty; the
// batch takes over ownership of v's backing storage.
func (b *Batch) SetValue(row int, reg RegisterID, v Value) {
	idx := b.cellIndex(row, reg)
	if !b.values[idx].IsEmpty() && !v.IsEmpty() {
		panic(fmt.Sprintf("cell (%d, %d) already occupied", row, reg))
	}
	b.values[idx] = v
}

func (b *Batch) DestroyValue(row int, reg RegisterID) {
	b.values[b.cellIndex(row, reg)].Destroy()
}

// Slice copies the row range [from, to) into a new batch. A clone cache
// keyed on value content makes sure a source value appearing in several
// cells is cloned only once.
func (b *Batch) Slice(from int, to int) *Batch {
	if from < 0 || to > b.Size() || from >= to {
		panic(fmt.Sprintf("invalid slice range [%d, %d) for batch of size %d", from, to, b.Size()))
	}
	cache := make(map[string]Value)
	res := NewBatch(to-from, b.nrRegs)
	for row := from; row < to; row++ {
		b.copyRow(res, row-from, row, cache)
	}
	return res
}

// SliceRows copies the listed rows, in list order, into a new batch.
func (b *Batch) SliceRows(rows []int) *Batch {
	if len(rows) == 0 {
		panic("empty row projection")
	}
	cache := make(map[string]Value)
	res := NewBatch(len(rows), b.nrRegs)
	for i, row := range rows {
		b.copyRow(res, i, row, cache)
	}
	return res
}

func (b *Batch) copyRow(dst *Batch, dstRow int, srcRow int, cache map[string]Value) {
	for reg := 0; reg < b.nrRegs; reg++ {
		v := b.values[b.cellIndex(srcRow, RegisterID(reg))]
		if v.IsEmpty() {
			continue
		}
		key := v.Fingerprint()
		cloned, ok := cache[key]
		if !ok {
			cloned = v.Clone()
			cache[key] = cloned
		}
		dst.SetValue(dstRow, RegisterID(reg), cloned)
	}
}

// Concatenate stacks the given batches vertically. All batches must have the
// same register count.
func Concatenate(batches []*Batch) *Batch {
	if len(batches) == 0 {
		panic("nothing to concatenate")
	}
	nrRegs := batches[0].nrRegs
	totalRows := 0
	for _, blk := range batches {
		if blk.nrRegs != nrRegs {
			panic(fmt.Sprintf("register count mismatch in concatenate: %d != %d", blk.nrRegs, nrRegs))
		}
		totalRows += blk.Size()
	}
	res := NewBatch(totalRows, nrRegs)
	at := 0
	for _, blk := range batches {
		copy(res.values[at*nrRegs:], blk.values)
		at += blk.Size()
	}
	return res
}

// Wire is the JSON form of a batch. Embedding it into a response struct
// inlines the batch fields into the response object.
type Wire struct {
	NrItems int     `json:"nrItems"`
	NrRegs  int     `json:"nrRegs"`
	Data    []Value `json:"data"`
}

func (b *Batch) ToWire() Wire {
	data := make([]Value, len(b.values))
	copy(data, b.values)
	return Wire{
		NrItems: b.Size(),
		NrRegs:  b.nrRegs,
		Data:    data,
	}
}

func FromWire(w Wire) (*Batch, error) {
	if w.NrItems <= 0 || w.NrRegs < 0 {
		return nil, fmt.Errorf("invalid wire batch dimensions %d x %d", w.NrItems, w.NrRegs)
	}
	if len(w.Data) != w.NrItems*w.NrRegs {
		return nil, fmt.Errorf("wire batch has %d cells, expected %d", len(w.Data), w.NrItems*w.NrRegs)
	}
	res := NewBatch(w.NrItems, w.NrRegs)
	copy(res.values, w.Data)
	return res, nil
}

func (b *Batch) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.ToWire())
}

func (b *Batch) UnmarshalJSON(data []byte) error {
	var w Wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	decoded, err := FromWire(w)
	if err != nil {
		return err
	}
	*b = *decoded
	return nil
}

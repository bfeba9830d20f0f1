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

// Package aql holds the cluster execution blocks: the operators that move
// batches of tuples between the coordinator and the data-bearing nodes.
package aql

import (
	"github.com/brennv/arangodb/rowbatch"
)

// DefaultBatchSize is the row count blocks pull when the caller has not
// constrained them.
const DefaultBatchSize = 1000

// ExecutionBlock is the uniform pull contract every operator implements.
// GetSome returns between atLeast and atMost rows; fewer than atLeast only
// at end of stream, and a nil batch once the stream is exhausted for the
// current cursor cycle. The caller owns a returned batch.
type ExecutionBlock interface {
	Initialize() error
	// InitializeCursor rewinds the block; it may be called repeatedly with a
	// new seed row.
	InitializeCursor(items *rowbatch.Batch, pos int) error
	Shutdown(errorCode int) error
	GetSome(atLeast int, atMost int) (*rowbatch.Batch, error)
	SkipSome(atLeast int, atMost int) (int, error)
	HasMore() (bool, error)
	// Count returns the total row count if known, -1 otherwise.
	Count() (int64, error)
	// Remaining returns the not yet delivered row count if known, -1 otherwise.
	Remaining() (int64, error)
}

// blockBase carries what every block shares: the owning query, the upstream
// dependencies and the generic batch buffer some blocks stage pulls in.
type blockBase struct {
	query        *Query
	dependencies []ExecutionBlock
	buffer       []*rowbatch.Batch
	done         bool
}

func newBlockBase(query *Query, dependencies ...ExecutionBlock) blockBase {
	return blockBase{
		query:        query,
		dependencies: dependencies,
	}
}

func (b *blockBase) initializeDependencies() error {
	for _, dep := range b.dependencies {
		if err := dep.Initialize(); err != nil {
			return err
		}
	}
	return nil
}

// initializeCursor forwards the rewind to every dependency, then resets the
// local buffer.
func (b *blockBase) initializeCursor(items *rowbatch.Batch, pos int) error {
	for _, dep := range b.dependencies {
		if err := dep.InitializeCursor(items, pos); err != nil {
			return err
		}
	}
	b.buffer = nil
	b.done = false
	return nil
}

// shutdownDependencies walks every dependency even if one fails and reports
// the first failure.
func (b *blockBase) shutdownDependencies(errorCode int) error {
	var firstErr error
	for _, dep := range b.dependencies {
		if err := dep.Shutdown(errorCode); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	b.buffer = nil
	return firstErr
}

// getBlock pulls one batch from the first dependency into the shared buffer.
func (b *blockBase) getBlock(atLeast int, atMost int) (bool, error) {
	docs, err := b.dependencies[0].GetSome(atLeast, atMost)
	if err != nil {
		return false, err
	}
	if docs == nil {
		return false, nil
	}
	b.buffer = append(b.buffer, docs)
	return true, nil
}

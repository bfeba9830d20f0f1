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
	"github.com/brennv/arangodb/errors"
	"github.com/brennv/arangodb/rowbatch"
)

// MultiClientBlock is the contract of blocks serving several downstream
// consumers, each addressed by a shard id.
type MultiClientBlock interface {
	ExecutionBlock
	GetSomeForShard(atLeast int, atMost int, shardID string) (*rowbatch.Batch, error)
	SkipSomeForShard(atLeast int, atMost int, shardID string) (int, error)
	// SkipForShard skips number rows and reports whether the shard is
	// exhausted afterwards.
	SkipForShard(number int, shardID string) (bool, error)
	HasMoreForShard(shardID string) (bool, error)
	RemainingForShard(shardID string) (int64, error)
}

// clientDispatch is the part a concrete multi-client block provides: the
// shared get-or-skip routine and the per-shard exhaustion check.
type clientDispatch interface {
	getOrSkipSomeForShard(atLeast int, atMost int, skipping bool, shardID string) (*rowbatch.Batch, int, error)
	HasMoreForShard(shardID string) (bool, error)
}

// blockWithClients multiplexes one upstream over N named clients, keeping
// per-client end-of-stream flags. Client numbering follows the stable order
// of the shard id list handed to the constructor.
type blockWithClients struct {
	blockBase
	nrClients     int
	shardIDMap    map[string]int
	doneForClient []bool
	dispatch      clientDispatch
}

func newBlockWithClients(query *Query, dependency ExecutionBlock, shardIDs []string) blockWithClients {
	shardIDMap := make(map[string]int, len(shardIDs))
	for i, shardID := range shardIDs {
		shardIDMap[shardID] = i
	}
	return blockWithClients{
		blockBase:  newBlockBase(query, dependency),
		nrClients:  len(shardIDs),
		shardIDMap: shardIDMap,
	}
}

func (b *blockWithClients) Initialize() error {
	return b.initializeDependencies()
}

func (b *blockWithClients) InitializeCursor(items *rowbatch.Batch, pos int) error {
	if err := b.initializeCursor(items, pos); err != nil {
		return err
	}
	b.doneForClient = make([]bool, b.nrClients)
	return nil
}

func (b *blockWithClients) Shutdown(errorCode int) error {
	b.doneForClient = nil
	return b.shutdownDependencies(errorCode)
}

// getClientID resolves a shard id to the client number. Unknown or empty
// shard ids are planning errors.
func (b *blockWithClients) getClientID(shardID string) (int, error) {
	if shardID == "" {
		return 0, errors.NewInternalError("got empty shard id")
	}
	clientID, ok := b.shardIDMap[shardID]
	if !ok {
		return 0, errors.NewAQLErrorf(errors.Internal, "AQL: unknown shard id %s", shardID)
	}
	return clientID, nil
}

func (b *blockWithClients) GetSomeForShard(atLeast int, atMost int, shardID string) (*rowbatch.Batch, error) {
	result, _, err := b.dispatch.getOrSkipSomeForShard(atLeast, atMost, false, shardID)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (b *blockWithClients) SkipSomeForShard(atLeast int, atMost int, shardID string) (int, error) {
	_, skipped, err := b.dispatch.getOrSkipSomeForShard(atLeast, atMost, true, shardID)
	return skipped, err
}

// SkipForShard keeps skipping until number rows are gone or the shard runs
// dry. It reports true when the shard has nothing left.
func (b *blockWithClients) SkipForShard(number int, shardID string) (bool, error) {
	skipped, err := b.SkipSomeForShard(number, number, shardID)
	if err != nil {
		return false, err
	}
	nr := skipped
	for nr != 0 && skipped < number {
		nr, err = b.SkipSomeForShard(number-skipped, number-skipped, shardID)
		if err != nil {
			return false, err
		}
		skipped += nr
	}
	if nr == 0 {
		return true, nil
	}
	hasMore, err := b.dispatch.HasMoreForShard(shardID)
	if err != nil {
		return false, err
	}
	return !hasMore, nil
}

// The plain single-stream operations are not meaningful on a multi-client
// block; using them is a planning error.

func (b *blockWithClients) GetSome(int, int) (*rowbatch.Batch, error) {
	return nil, errors.NewInternalError("getSome cannot be used on a block with clients")
}

func (b *blockWithClients) SkipSome(int, int) (int, error) {
	return 0, errors.NewInternalError("skipSome cannot be used on a block with clients")
}

func (b *blockWithClients) HasMore() (bool, error) {
	return false, errors.NewInternalError("hasMore cannot be used on a block with clients")
}

func (b *blockWithClients) Count() (int64, error) {
	return -1, nil
}

func (b *blockWithClients) Remaining() (int64, error) {
	return -1, nil
}

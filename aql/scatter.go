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

// clientPos addresses the next row for one client inside the shared buffer:
// batch is the index into the buffer, row the position inside that batch.
type clientPos struct {
	batch int
	row   int
}

// ScatterBlock hands every upstream row to every client, in upstream order.
// All clients share one buffer of upstream batches; a batch is freed once
// the slowest client has moved past it.
type ScatterBlock struct {
	blockWithClients
	posForClient []clientPos
}

var _ MultiClientBlock = (*ScatterBlock)(nil)

func NewScatterBlock(query *Query, dependency ExecutionBlock, shardIDs []string) *ScatterBlock {
	s := &ScatterBlock{
		blockWithClients: newBlockWithClients(query, dependency, shardIDs),
	}
	s.dispatch = s
	return s
}

func (s *ScatterBlock) InitializeCursor(items *rowbatch.Batch, pos int) error {
	if err := s.blockWithClients.InitializeCursor(items, pos); err != nil {
		return err
	}
	s.posForClient = make([]clientPos, s.nrClients)
	return nil
}

func (s *ScatterBlock) Shutdown(errorCode int) error {
	err := s.blockWithClients.Shutdown(errorCode)
	s.posForClient = nil
	return err
}

func (s *ScatterBlock) HasMoreForShard(shardID string) (bool, error) {
	clientID, err := s.getClientID(shardID)
	if err != nil {
		return false, err
	}
	if s.doneForClient[clientID] {
		return false, nil
	}
	pos := s.posForClient[clientID]
	if pos.batch > len(s.buffer) {
		ok, err := s.getBlock(DefaultBatchSize, DefaultBatchSize)
		if err != nil {
			return false, err
		}
		if !ok {
			s.doneForClient[clientID] = true
			return false, nil
		}
	}
	return true, nil
}

// RemainingForShard is the upstream remaining count plus what is still
// buffered for this client, or -1 when upstream is unknown.
func (s *ScatterBlock) RemainingForShard(shardID string) (int64, error) {
	clientID, err := s.getClientID(shardID)
	if err != nil {
		return 0, err
	}
	if s.doneForClient[clientID] {
		return 0, nil
	}
	sum, err := s.dependencies[0].Remaining()
	if err != nil {
		return 0, err
	}
	if sum == -1 {
		return -1, nil
	}
	pos := s.posForClient[clientID]
	if pos.batch < len(s.buffer) {
		sum += int64(s.buffer[pos.batch].Size() - pos.row)
		for i := pos.batch + 1; i < len(s.buffer); i++ {
			sum += int64(s.buffer[i].Size())
		}
	}
	return sum, nil
}

func (s *ScatterBlock) getOrSkipSomeForShard(atLeast int, atMost int, skipping bool, shardID string) (*rowbatch.Batch, int, error) {
	clientID, err := s.getClientID(shardID)
	if err != nil {
		return nil, 0, err
	}
	if s.doneForClient[clientID] {
		return nil, 0, nil
	}

	pos := s.posForClient[clientID]

	// pull another batch from the dependency if this client ran off the end
	if pos.batch >= len(s.buffer) {
		ok, err := s.getBlock(atLeast, atMost)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			s.doneForClient[clientID] = true
			return nil, 0, nil
		}
	}

	available := s.buffer[pos.batch].Size() - pos.row
	skipped := available
	if skipped > atMost {
		skipped = atMost
	}

	var result *rowbatch.Batch
	if !skipping {
		result = s.buffer[pos.batch].Slice(pos.row, pos.row+skipped)
	}

	s.posForClient[clientID].row += skipped

	// once this client finished its current batch, see whether the head of
	// the shared buffer can go
	if s.posForClient[clientID].row == s.buffer[s.posForClient[clientID].batch].Size() {
		s.posForClient[clientID].batch++
		s.posForClient[clientID].row = 0

		popit := true
		for i := 0; i < s.nrClients; i++ {
			if s.posForClient[i].batch == 0 {
				popit = false
				break
			}
		}
		if popit {
			s.buffer = s.buffer[1:]
			for i := 0; i < s.nrClients; i++ {
				s.posForClient[i].batch--
			}
		}
	}

	return result, skipped, nil
}

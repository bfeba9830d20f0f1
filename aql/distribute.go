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
	"strconv"

	"github.com/brennv/arangodb/cluster"
	"github.com/brennv/arangodb/docjson"
	"github.com/brennv/arangodb/errors"
	"github.com/brennv/arangodb/rowbatch"
)

// ticket references one routed row by its batch index in the shared buffer
// and its row inside that batch.
type ticket struct {
	batch int
	row   int
}

// DistributeConfig carries the plan-node settings of a distribute block.
type DistributeConfig struct {
	// Collection is the plan id of the target collection.
	Collection string
	// RegID is the register holding the document to inspect.
	RegID rowbatch.RegisterID
	// AlternativeRegID, if set, is consulted when the primary value is null.
	// Upsert uses this: one register holds the search document, the other
	// the insert document.
	AlternativeRegID rowbatch.RegisterID
	// CreateKeys makes the block synthesize missing document keys.
	CreateKeys bool
	// AllowKeyConversionToObject turns a plain string input into {_key: s}.
	AllowKeyConversionToObject bool
}

// DistributeBlock routes each upstream row to exactly one client, chosen
// from the row's document content. Rows may be rewritten in place (key
// synthesis) before any client observes them; the shared upstream buffer is
// kept alive until shutdown so the per-client tickets stay valid.
type DistributeBlock struct {
	blockWithClients
	directory           *cluster.Directory
	config              DistributeConfig
	usesDefaultSharding bool
	index               int
	pos                 int
	distBuffer          [][]ticket
}

var _ MultiClientBlock = (*DistributeBlock)(nil)

func NewDistributeBlock(query *Query, dependency ExecutionBlock, directory *cluster.Directory,
	shardIDs []string, config DistributeConfig) (*DistributeBlock, error) {
	info, ok := directory.Collection(config.Collection)
	if !ok {
		return nil, errors.NewAQLErrorf(errors.Internal, "unknown collection plan id %s", config.Collection)
	}
	if config.RegID == rowbatch.NoRegister {
		return nil, errors.NewInternalError("distribute block has no input register")
	}
	d := &DistributeBlock{
		blockWithClients:    newBlockWithClients(query, dependency, shardIDs),
		directory:           directory,
		config:              config,
		usesDefaultSharding: info.UsesDefaultSharding(),
	}
	d.dispatch = d
	return d, nil
}

func (d *DistributeBlock) InitializeCursor(items *rowbatch.Batch, pos int) error {
	if err := d.blockWithClients.InitializeCursor(items, pos); err != nil {
		return err
	}
	d.distBuffer = make([][]ticket, d.nrClients)
	d.index = 0
	d.pos = 0
	return nil
}

func (d *DistributeBlock) Shutdown(errorCode int) error {
	err := d.blockWithClients.Shutdown(errorCode)
	d.distBuffer = nil
	return err
}

func (d *DistributeBlock) HasMoreForShard(shardID string) (bool, error) {
	clientID, err := d.getClientID(shardID)
	if err != nil {
		return false, err
	}
	if d.doneForClient[clientID] {
		return false, nil
	}
	if len(d.distBuffer[clientID]) > 0 {
		return true, nil
	}
	ok, err := d.getBlockForClient(DefaultBatchSize, DefaultBatchSize, clientID)
	if err != nil {
		return false, err
	}
	if !ok {
		d.doneForClient[clientID] = true
		return false, nil
	}
	return true, nil
}

// RemainingForShard cannot be computed per client before routing has
// happened, so it is always unknown.
func (d *DistributeBlock) RemainingForShard(shardID string) (int64, error) {
	if _, err := d.getClientID(shardID); err != nil {
		return 0, err
	}
	return -1, nil
}

func (d *DistributeBlock) getOrSkipSomeForShard(atLeast int, atMost int, skipping bool, shardID string) (*rowbatch.Batch, int, error) {
	clientID, err := d.getClientID(shardID)
	if err != nil {
		return nil, 0, err
	}
	if d.doneForClient[clientID] {
		return nil, 0, nil
	}

	if len(d.distBuffer[clientID]) == 0 {
		ok, err := d.getBlockForClient(atLeast, atMost, clientID)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			d.doneForClient[clientID] = true
			return nil, 0, nil
		}
	}

	buf := d.distBuffer[clientID]
	skipped := len(buf)
	if skipped > atMost {
		skipped = atMost
	}

	if skipping {
		d.distBuffer[clientID] = buf[skipped:]
		return nil, skipped, nil
	}

	// group consecutive tickets sharing a batch index and slice the source
	// batch by the grouped row list
	var collector []*rowbatch.Batch
	i := 0
	for i < skipped {
		var chosen []int
		n := buf[i].batch
		for i < skipped && buf[i].batch == n {
			chosen = append(chosen, buf[i].row)
			i++
		}
		collector = append(collector, d.buffer[n].SliceRows(chosen))
	}
	d.distBuffer[clientID] = buf[skipped:]

	var result *rowbatch.Batch
	if len(collector) == 1 {
		result = collector[0]
	} else {
		result = rowbatch.Concatenate(collector)
	}

	// the shared buffer stays intact; it is released at shutdown

	return result, skipped, nil
}

// getBlockForClient walks the upstream until at least atLeast tickets are
// queued for clientID, routing every row seen to its destination client on
// the way.
func (d *DistributeBlock) getBlockForClient(atLeast int, atMost int, clientID int) (bool, error) {
	if len(d.buffer) == 0 {
		d.index = 0
		d.pos = 0
	}

	for len(d.distBuffer[clientID]) < atLeast {
		if d.index == len(d.buffer) {
			ok, err := d.getBlock(atLeast, atMost)
			if err != nil {
				return false, err
			}
			if !ok {
				if len(d.distBuffer[clientID]) == 0 {
					d.doneForClient[clientID] = true
					return false, nil
				}
				break
			}
		}

		cur := d.buffer[d.index]

		for d.pos < cur.Size() && len(d.distBuffer[clientID]) < atMost {
			// this may rewrite the row in the shared buffer in place
			id, err := d.sendToClient(cur)
			if err != nil {
				return false, err
			}
			d.distBuffer[id] = append(d.distBuffer[id], ticket{batch: d.index, row: d.pos})
			d.pos++
		}

		if d.pos == cur.Size() {
			d.pos = 0
			d.index++
		} else {
			break
		}
	}

	return true, nil
}

// sendToClient inspects the current row's document, synthesizes a key when
// configured to, and returns the client the row belongs to.
func (d *DistributeBlock) sendToClient(cur *rowbatch.Batch) (int, error) {
	val := cur.GetValue(d.pos, d.config.RegID)

	if val.IsNull() && d.config.AlternativeRegID != rowbatch.NoRegister {
		// value is set, but null: fall back to the second input register
		val = cur.GetValue(d.pos, d.config.AlternativeRegID)
	}

	var value []byte
	hasCreatedKeyAttribute := false

	if val.IsString() && d.config.AllowKeyConversionToObject {
		value = docjson.KeyObject(val.StringVal())
		cur.DestroyValue(d.pos, d.config.RegID)
		cur.SetValue(d.pos, d.config.RegID, rowbatch.DocumentValue(value))
		hasCreatedKeyAttribute = true
	} else if !val.IsDocument() || !docjson.IsObject(val.Document()) {
		return 0, errors.NewAQLError(errors.DocumentTypeInvalid, "invalid document type")
	} else {
		value = val.Document()
	}

	if d.config.CreateKeys {
		// we are responsible for creating keys if none present
		if d.usesDefaultSharding {
			// the collection is sharded by _key
			if !hasCreatedKeyAttribute && !docjson.HasKeyField(value) {
				value = docjson.WithKeyField(value, d.createKey())
				cur.DestroyValue(d.pos, d.config.RegID)
				cur.SetValue(d.pos, d.config.RegID, rowbatch.DocumentValue(value))
			}
		} else {
			// the collection is not sharded by _key
			if hasCreatedKeyAttribute || docjson.HasKeyField(value) {
				// a key was given, but the user is not allowed to specify one
				return 0, errors.NewAQLError(errors.MustNotSpecifyKey,
					"must not specify _key for this collection")
			}
			value = docjson.WithKeyField(value, d.createKey())
			cur.DestroyValue(d.pos, d.config.RegID)
			cur.SetValue(d.pos, d.config.RegID, rowbatch.DocumentValue(value))
		}
	}

	shardID, _, err := d.directory.GetResponsibleShard(d.config.Collection, value, true)
	if err != nil {
		return 0, err
	}
	return d.getClientID(shardID)
}

// createKey asks the cluster directory for a fresh unique id; uniqueness is
// the directory's responsibility.
func (d *DistributeBlock) createKey() string {
	return strconv.FormatUint(d.directory.UniqueID(), 10)
}

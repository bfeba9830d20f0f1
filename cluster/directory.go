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

package cluster

import (
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"

	"github.com/brennv/arangodb/common"
	"github.com/brennv/arangodb/docjson"
	"github.com/brennv/arangodb/errors"
)

const shardLookupCacheSize = 4096

// ShardInfo binds one shard of a collection to the server responsible for it.
type ShardInfo struct {
	ShardID string
	Server  string
}

// CollectionInfo describes the sharding of one collection. ShardKeys lists
// the document attributes the responsible shard is computed from; a
// collection sharded solely by _key uses default sharding.
type CollectionInfo struct {
	PlanID    string
	ShardKeys []string
	Shards    []ShardInfo
}

func (ci *CollectionInfo) UsesDefaultSharding() bool {
	return len(ci.ShardKeys) == 1 && ci.ShardKeys[0] == docjson.KeyField
}

// Directory is the cluster-wide lookup the execution blocks consult: the
// shard to server mapping, the responsible shard for a document, and the
// unique-id allocator. All state is immutable after construction except the
// id counter and the lookup cache.
type Directory struct {
	lock        sync.RWMutex
	collections map[string]*CollectionInfo
	endpoints   map[string]string
	uniqueID    uint64
	shardCache  *lru.Cache
}

func NewDirectory() *Directory {
	cache, err := lru.New(shardLookupCacheSize)
	if err != nil {
		panic(err)
	}
	return &Directory{
		collections: map[string]*CollectionInfo{},
		endpoints:   map[string]string{},
		shardCache:  cache,
	}
}

func (d *Directory) AddCollection(info *CollectionInfo) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.collections[info.PlanID] = info
}

func (d *Directory) AddServer(serverID string, endpoint string) {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.endpoints[serverID] = endpoint
}

func (d *Directory) Collection(planID string) (*CollectionInfo, bool) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	info, ok := d.collections[planID]
	return info, ok
}

// ShardIDs returns the collection's shard ids in their stable plan order.
// Client numbering in the multi-client blocks is derived from this order.
func (d *Directory) ShardIDs(planID string) ([]string, error) {
	info, ok := d.Collection(planID)
	if !ok {
		return nil, errors.NewAQLErrorf(errors.Internal, "unknown collection plan id %s", planID)
	}
	shardIDs := make([]string, len(info.Shards))
	for i, shard := range info.Shards {
		shardIDs[i] = shard.ShardID
	}
	return shardIDs, nil
}

func (d *Directory) ServerForShard(shardID string) (string, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	for _, info := range d.collections {
		for _, shard := range info.Shards {
			if shard.ShardID == shardID {
				return shard.Server, nil
			}
		}
	}
	return "", errors.NewAQLErrorf(errors.Internal, "unknown shard id %s", shardID)
}

// EndpointForServer resolves a server id to its HTTP endpoint.
func (d *Directory) EndpointForServer(serverID string) (string, bool) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	endpoint, ok := d.endpoints[serverID]
	return endpoint, ok
}

// GetResponsibleShard computes which shard stores or accepts the given
// document. usedDefaultKeys reports whether the collection is sharded by
// _key only. When a shard key attribute is missing from the document and
// allowCreate is false, the lookup fails.
func (d *Directory) GetResponsibleShard(planID string, doc []byte, allowCreate bool) (string, bool, error) {
	info, ok := d.Collection(planID)
	if !ok {
		return "", false, errors.NewAQLErrorf(errors.Internal, "unknown collection plan id %s", planID)
	}
	var sb strings.Builder
	for _, keyAttr := range info.ShardKeys {
		val, present := docjson.FieldString(doc, keyAttr)
		if !present && !allowCreate {
			return "", false, errors.NewAQLErrorf(errors.Internal,
				"document misses shard key attribute %s of collection %s", keyAttr, planID)
		}
		sb.WriteString(val)
		sb.WriteByte(0)
	}
	lookupKey := planID + "\x00" + sb.String()
	if cached, ok := d.shardCache.Get(lookupKey); ok {
		return cached.(string), info.UsesDefaultSharding(), nil
	}
	hash := common.DefaultHash(common.StringToByteSliceZeroCopy(sb.String()))
	shardID := info.Shards[common.CalcShard(hash, len(info.Shards))].ShardID
	d.shardCache.Add(lookupKey, shardID)
	return shardID, info.UsesDefaultSharding(), nil
}

// UniqueID hands out cluster-wide monotonic ids, used for key generation.
func (d *Directory) UniqueID() uint64 {
	return atomic.AddUint64(&d.uniqueID, 1)
}

// SetUniqueIDStart positions the allocator so the next id is start.
func (d *Directory) SetUniqueIDStart(start uint64) {
	atomic.StoreUint64(&d.uniqueID, start-1)
}

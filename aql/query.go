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
	"sync"
)

type Warning struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Query is the per-query context the blocks share: identity, database name,
// the warnings registry and the aggregated execution stats.
type Query struct {
	id       string
	database string
	lock     sync.Mutex
	warnings []Warning
	stats    ExecutionStats
}

func NewQuery(id string, database string) *Query {
	return &Query{
		id:       id,
		database: database,
	}
}

func (q *Query) ID() string {
	return q.id
}

func (q *Query) Database() string {
	return q.database
}

func (q *Query) RegisterWarning(code int, message string) {
	q.lock.Lock()
	defer q.lock.Unlock()
	q.warnings = append(q.warnings, Warning{Code: code, Message: message})
}

func (q *Query) Warnings() []Warning {
	q.lock.Lock()
	defer q.lock.Unlock()
	warnings := make([]Warning, len(q.warnings))
	copy(warnings, q.warnings)
	return warnings
}

func (q *Query) AddStats(stats ExecutionStats) {
	q.lock.Lock()
	defer q.lock.Unlock()
	q.stats.Add(stats)
}

// AddStatsDelta folds the change between two snapshots of a remote
// counter set into the query totals.
func (q *Query) AddStatsDelta(old ExecutionStats, now ExecutionStats) {
	q.lock.Lock()
	defer q.lock.Unlock()
	q.stats.AddDelta(old, now)
}

func (q *Query) Stats() ExecutionStats {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.stats
}

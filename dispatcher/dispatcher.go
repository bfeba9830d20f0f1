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

// Package dispatcher provides the bounded worker pool queries execute on. A
// worker about to block on external I/O yields its slot with Thread.Block so
// other work can be scheduled, and reacquires it with Thread.Unblock.
package dispatcher

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/brennv/arangodb/common"
)

var currentThread = common.NewGRLocal()

type Dispatcher struct {
	slots *semaphore.Weighted
}

func NewDispatcher(maxThreads int) *Dispatcher {
	if maxThreads < 1 {
		panic("dispatcher needs at least one thread")
	}
	return &Dispatcher{
		slots: semaphore.NewWeighted(int64(maxThreads)),
	}
}

// Dispatch runs f on the pool, waiting for a free slot first.
func (d *Dispatcher) Dispatch(f func()) {
	if err := d.slots.Acquire(context.Background(), 1); err != nil {
		panic(err)
	}
	thread := &Thread{dispatcher: d}
	common.Go(func() {
		currentThread.Set(thread)
		defer func() {
			currentThread.Delete()
			d.slots.Release(1)
		}()
		f()
	})
}

// CurrentThread returns the dispatcher thread the calling goroutine runs on,
// or nil when the goroutine does not belong to a dispatcher.
func CurrentThread() *Thread {
	v, ok := currentThread.Get()
	if !ok {
		return nil
	}
	return v.(*Thread)
}

// Thread is the slot ticket of one pooled worker.
type Thread struct {
	dispatcher *Dispatcher
}

// Block gives the slot back to the pool. Must be paired with Unblock.
func (t *Thread) Block() {
	t.dispatcher.slots.Release(1)
}

// Unblock takes a slot from the pool again, waiting if none is free.
func (t *Thread) Unblock() {
	if err := t.dispatcher.slots.Acquire(context.Background(), 1); err != nil {
		panic(err)
	}
}

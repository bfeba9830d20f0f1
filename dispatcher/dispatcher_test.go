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

package dispatcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCurrentThreadOnlyInsidePool(t *testing.T) {
	require.Nil(t, CurrentThread())

	d := NewDispatcher(1)
	got := make(chan *Thread, 1)
	d.Dispatch(func() {
		got <- CurrentThread()
	})
	require.NotNil(t, <-got)
	require.Nil(t, CurrentThread())
}

func TestBlockYieldsSlot(t *testing.T) {
	d := NewDispatcher(1)

	blocked := make(chan struct{})
	release := make(chan struct{})
	d.Dispatch(func() {
		thread := CurrentThread()
		thread.Block()
		close(blocked)
		// simulates a long synchronous call; the single slot is free now
		<-release
		thread.Unblock()
	})

	<-blocked

	// with the first worker blocked the single slot must be available
	ran := make(chan struct{})
	d.Dispatch(func() {
		close(ran)
	})
	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("second task did not get the yielded slot")
	}

	close(release)
}

func TestDispatchWaitsForSlot(t *testing.T) {
	d := NewDispatcher(1)
	release := make(chan struct{})
	started := make(chan struct{})
	d.Dispatch(func() {
		close(started)
		<-release
	})
	<-started

	ran := make(chan struct{})
	go func() {
		d.Dispatch(func() {
			close(ran)
		})
	}()

	select {
	case <-ran:
		t.Fatal("second task ran while the slot was held")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("second task never ran")
	}
}

// Copyright 2019 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package cache

import (
	"context"

	"github.com/pingcap-incubator/nscache/state"
	. "github.com/pingcap/check"
)

var _ = Suite(&testPruneSuite{})

type testPruneSuite struct{}

// setupPruneCache commits 5 roots with id i and lifetime [10*i, 10*(i+1)),
// each with children 10+i and 20+i.
func setupPruneCache(c *C) *NamespaceCache {
	cache := newTestCache()
	delta := cache.CreateDelta()
	defer delta.Release()
	for i := state.NamespaceID(0); i < 5; i++ {
		c.Assert(delta.InsertRoot(newRoot(i, owner, state.Height(10*i), state.Height(10*(i+1)))), IsNil)
		insertChildren(c, delta, i, 10+i, 20+i)
	}
	commit(c, cache, delta)
	return cache
}

// renewSameOwner renews root 0 and adds child 30 to it.
func renewSameOwner(c *C, cache *NamespaceCache) {
	delta := cache.CreateDelta()
	defer delta.Release()
	entry, err := delta.Get(0)
	c.Assert(err, IsNil)
	c.Assert(delta.InsertRoot(entry.Root().Renew(state.NewLifetime(100, 110))), IsNil)
	insertChildren(c, delta, 0, 30)
	commit(c, cache, delta)
}

// renewDifferentOwner hands root 4 to another owner and adds child 34 to it.
func renewDifferentOwner(c *C, cache *NamespaceCache) {
	delta := cache.CreateDelta()
	defer delta.Release()
	c.Assert(delta.InsertRoot(newRoot(4, diffOwner, 120, 130)), IsNil)
	insertChildren(c, delta, 4, 34)
	commit(c, cache, delta)
}

func (s *testPruneSuite) TestPruneSingleVersionRoot(c *C) {
	cache := setupPruneCache(c)
	delta := cache.CreateDelta()
	defer delta.Release()
	assertSizes(c, delta, 5, 15, 15)

	c.Assert(delta.Prune(10), Equals, 1)
	commit(c, cache, delta)

	assertSizes(c, delta, 4, 12, 12)
	assertContents(c, cache, 1, 11, 21, 2, 12, 22, 3, 13, 23, 4, 14, 24)
}

func (s *testPruneSuite) TestPruneDropsEveryVersionEndingAtOrBeforeHeight(c *C) {
	cache := setupPruneCache(c)
	delta := cache.CreateDelta()
	defer delta.Release()

	// Roots 0, 1 and 2 end at 10, 20 and 30.
	c.Assert(delta.Prune(30), Equals, 3)
	commit(c, cache, delta)

	assertSizes(c, delta, 2, 6, 6)
	assertContents(c, cache, 3, 13, 23, 4, 14, 24)
	c.Assert(delta.Prune(30), Equals, 0)
}

func (s *testPruneSuite) TestPruneOlderVersionKeepsForwardedChildren(c *C) {
	cache := setupPruneCache(c)
	renewSameOwner(c, cache)
	delta := cache.CreateDelta()
	defer delta.Release()
	assertSizes(c, delta, 5, 16, 19)

	c.Assert(delta.Prune(10), Equals, 1)
	commit(c, cache, delta)

	assertSizes(c, delta, 5, 16, 16)
	assertContents(c, cache, 0, 10, 20, 30, 1, 11, 21, 2, 12, 22, 3, 13, 23, 4, 14, 24)
	c.Assert(delta.IsActive(10, 105), IsTrue)
}

func (s *testPruneSuite) TestPruneDropsChildrenOfExpiredOwner(c *C) {
	cache := setupPruneCache(c)
	renewDifferentOwner(c, cache)
	delta := cache.CreateDelta()
	defer delta.Release()
	assertSizes(c, delta, 5, 14, 17)

	for height := state.Height(10); height <= 50; height += 10 {
		delta.Prune(height)
	}
	commit(c, cache, delta)

	assertSizes(c, delta, 1, 2, 2)
	assertContents(c, cache, 4, 34)

	// Children of the pruned version are gone for good and their ids are free again.
	c.Assert(delta.InsertRoot(newRoot(14, owner, 200, 300)), IsNil)
}

func (s *testPruneSuite) TestPruneTopmostRevealsPreviousVersion(c *C) {
	cache := newTestCache()
	delta := cache.CreateDelta()
	defer delta.Release()
	c.Assert(delta.InsertRoot(newRoot(1, owner, 0, 100)), IsNil)
	insertChildren(c, delta, 1, 2)
	c.Assert(delta.InsertRoot(newRoot(1, diffOwner, 10, 20)), IsNil)
	insertChildren(c, delta, 1, 3)
	c.Assert(delta.Contains(2), IsFalse)

	c.Assert(delta.Prune(20), Equals, 1)

	c.Assert(delta.Contains(2), IsTrue)
	c.Assert(delta.Contains(3), IsFalse)
	assertSizes(c, delta, 1, 2, 2)
	// 3 only lived in the dropped version.
	c.Assert(delta.InsertRoot(newRoot(3, owner, 0, 1)), IsNil)
}

func (s *testPruneSuite) TestPruneIsIdempotent(c *C) {
	cache := setupPruneCache(c)
	renewSameOwner(c, cache)
	delta := cache.CreateDelta()
	defer delta.Release()

	c.Assert(delta.Prune(25), Equals, 2)
	once := contents(delta)
	active, unique, deep := delta.ActiveSize(), delta.Size(), delta.DeepSize()

	c.Assert(delta.Prune(25), Equals, 0)
	c.Assert(contents(delta), DeepEquals, once)
	assertSizes(c, delta, active, unique, deep)
}

func (s *testPruneSuite) TestPruneNothing(c *C) {
	cache := setupPruneCache(c)
	delta := cache.CreateDelta()
	defer delta.Release()

	c.Assert(delta.Prune(9), Equals, 0)
	c.Assert(delta.Changes().Empty(), IsTrue)
}

func (s *testPruneSuite) TestPruner(c *C) {
	cache := setupPruneCache(c)
	renewDifferentOwner(c, cache)

	pruner := NewPruner(cache)
	pruner.Start()
	ctx := context.Background()
	for height := state.Height(5); height <= 50; height += 5 {
		c.Assert(pruner.Notify(ctx, height), IsNil)
	}
	pruner.Stop()

	c.Assert(pruner.Height(), Equals, state.Height(50))
	c.Assert(pruner.PrunedVersions(), Equals, uint64(5))
	c.Assert(cache.HasOutstandingDelta(), IsFalse)
	assertContents(c, cache, 4, 34)
}

func (s *testPruneSuite) TestPrunerNotifyHonoursContext(c *C) {
	cache := newTestCache()
	pruner := NewPruner(cache)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The worker is not started, fill the queue until the context wins.
	var err error
	for i := 0; i <= cache.cfg.PruneQueueCapacity && err == nil; i++ {
		err = pruner.Notify(ctx, state.Height(i))
	}
	c.Assert(err, NotNil)
}

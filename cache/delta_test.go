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
	"github.com/pingcap-incubator/nscache/state"
	. "github.com/pingcap/check"
)

var _ = Suite(&testDeltaSuite{})

type testDeltaSuite struct{}

func (s *testDeltaSuite) TestInsertRoot(c *C) {
	cache := newTestCache()
	delta := cache.CreateDelta()
	defer delta.Release()

	c.Assert(delta.InsertRoot(newRoot(123, owner, 234, 321)), IsNil)
	c.Assert(delta.Contains(123), IsTrue)
	c.Assert(IsInvalidArgument(delta.InsertRoot(nil)), IsTrue)
}

func (s *testDeltaSuite) TestRenewRoot(c *C) {
	cache := newTestCache()
	delta := cache.CreateDelta()
	defer delta.Release()

	root1 := newRoot(123, owner, 234, 321)
	root2 := newRoot(123, owner, 345, 456)
	root3 := newRoot(123, owner, 456, 567)
	c.Assert(delta.InsertRoot(root1), IsNil)
	c.Assert(delta.InsertRoot(root2), IsNil)
	c.Assert(delta.InsertRoot(root3), IsNil)
	commit(c, cache, delta)

	view := cache.CreateView()
	defer view.Release()
	assertSizes(c, view, 1, 1, 3)
	entry, err := view.Get(123)
	c.Assert(err, IsNil)
	c.Assert(entry.Root().Equal(root3), IsTrue)
}

func (s *testDeltaSuite) TestRenewingRootUpdatesChildren(c *C) {
	cache := newTestCache()
	delta := cache.CreateDelta()
	defer delta.Release()

	original := newRoot(123, owner, 234, 321)
	c.Assert(delta.InsertRoot(original), IsNil)
	insertChildren(c, delta, 123, 124, 125)
	for _, id := range []state.NamespaceID{123, 124, 125} {
		entry, err := delta.Get(id)
		c.Assert(err, IsNil)
		c.Assert(entry.Root().Lifetime(), Equals, original.Lifetime())
	}

	c.Assert(delta.InsertRoot(original.Renew(state.NewLifetime(345, 456))), IsNil)
	for _, id := range []state.NamespaceID{123, 124, 125} {
		entry, err := delta.Get(id)
		c.Assert(err, IsNil)
		c.Assert(entry.Root().Lifetime(), Equals, state.NewLifetime(345, 456))
		c.Assert(entry.Root().Size(), Equals, 2)
	}
}

func (s *testDeltaSuite) TestInsertChildren(c *C) {
	cache := newTestCache()
	delta := cache.CreateDelta()
	defer delta.Release()

	insertRoots(c, delta, owner, 123, 124)
	c.Assert(delta.InsertDescendant(mustNamespace(c, 123, 127)), IsNil)
	c.Assert(delta.InsertDescendant(mustNamespace(c, 123, 127, 128)), IsNil)
	c.Assert(delta.InsertDescendant(mustNamespace(c, 124, 125)), IsNil)

	c.Assert(delta.Contains(127), IsTrue)
	c.Assert(delta.Contains(128), IsTrue)
	c.Assert(delta.Contains(125), IsTrue)
	entry, err := delta.Get(128)
	c.Assert(err, IsNil)
	c.Assert(entry.NS().ParentID(), Equals, state.NamespaceID(127))
	c.Assert(entry.NS().RootID(), Equals, state.NamespaceID(123))
	assertSizes(c, delta, 2, 5, 5)
}

func (s *testDeltaSuite) TestAbandonInsert(c *C) {
	cache := newTestCache()
	delta := cache.CreateDelta()
	c.Assert(delta.InsertRoot(newRoot(123, owner, 234, 321)), IsNil)
	commit(c, cache, delta)
	insertChildren(c, delta, 123, 127)
	c.Assert(delta.Contains(127), IsTrue)
	delta.Release()

	view := cache.CreateView()
	defer view.Release()
	c.Assert(view.Contains(127), IsFalse)
	c.Assert(view.Contains(123), IsTrue)
	assertSizes(c, view, 1, 1, 1)
}

func (s *testDeltaSuite) TestCannotInsertChildWithUnknownAncestor(c *C) {
	cache := newTestCache()
	delta := cache.CreateDelta()
	defer delta.Release()
	c.Assert(delta.InsertRoot(newRoot(123, owner, 234, 321)), IsNil)

	c.Assert(IsInvalidArgument(delta.InsertDescendant(mustNamespace(c, 123, 126, 127))), IsTrue)
	c.Assert(IsInvalidArgument(delta.InsertDescendant(mustNamespace(c, 125, 127))), IsTrue)
	c.Assert(IsInvalidArgument(delta.InsertDescendant(mustNamespace(c, 122))), IsTrue)
	c.Assert(IsInvalidArgument(delta.InsertDescendant(state.Namespace{})), IsTrue)
	assertSizes(c, delta, 1, 1, 1)
	c.Assert(delta.Changes().Added, DeepEquals, []state.NamespaceID{123})
}

func (s *testDeltaSuite) TestIDsAreNeverShared(c *C) {
	cache := newTestCache()
	delta := cache.CreateDelta()
	defer delta.Release()
	insertRoots(c, delta, owner, 1, 2)
	insertChildren(c, delta, 1, 10)

	// Visible child.
	c.Assert(IsInvalidArgument(delta.InsertDescendant(mustNamespace(c, 1, 10))), IsTrue)
	// Child of another root.
	c.Assert(IsInvalidArgument(delta.InsertDescendant(mustNamespace(c, 2, 10))), IsTrue)
	// Root id reused as a child.
	c.Assert(IsInvalidArgument(delta.InsertDescendant(mustNamespace(c, 1, 2))), IsTrue)
	// Child id reused as a root.
	c.Assert(IsInvalidArgument(delta.InsertRoot(newRoot(10, owner, 1, 2))), IsTrue)

	// A child hidden by an owner change still belongs to its root.
	c.Assert(delta.InsertRoot(newRoot(1, diffOwner, 300, 400)), IsNil)
	c.Assert(delta.Contains(10), IsFalse)
	c.Assert(IsInvalidArgument(delta.InsertDescendant(mustNamespace(c, 2, 10))), IsTrue)
	c.Assert(IsInvalidArgument(delta.InsertRoot(newRoot(10, owner, 1, 2))), IsTrue)
	insertChildren(c, delta, 1, 10)
	assertSizes(c, delta, 2, 3, 5)
}

func (s *testDeltaSuite) TestCannotRemoveUnknownNamespace(c *C) {
	cache := populatedCache(c)
	delta := cache.CreateDelta()
	defer delta.Release()

	c.Assert(IsInvalidArgument(delta.Remove(12)), IsTrue)
	c.Assert(IsInvalidArgument(delta.Remove(123)), IsTrue)
	c.Assert(IsInvalidArgument(delta.Remove(3579)), IsTrue)
	c.Assert(delta.Changes().Empty(), IsTrue)
}

func (s *testDeltaSuite) TestCannotRemoveInvisibleChild(c *C) {
	cache := newTestCache()
	delta := cache.CreateDelta()
	defer delta.Release()
	c.Assert(delta.InsertRoot(newRoot(1, owner, 1, 10)), IsNil)
	insertChildren(c, delta, 1, 2)
	c.Assert(delta.InsertRoot(newRoot(1, diffOwner, 10, 20)), IsNil)

	c.Assert(IsInvalidArgument(delta.Remove(2)), IsTrue)
	assertSizes(c, delta, 1, 1, 3)
}

func (s *testDeltaSuite) TestRemoveChildFromAllVersions(c *C) {
	cache := populatedCache(c)
	delta := cache.CreateDelta()
	defer delta.Release()

	entry, err := delta.Get(2)
	c.Assert(err, IsNil)
	c.Assert(entry.NS().IsRoot(), IsFalse)
	c.Assert(entry.Root().Size(), Equals, 4)

	c.Assert(delta.Remove(2), IsNil)

	c.Assert(delta.Contains(2), IsFalse)
	entry, err = delta.Get(1)
	c.Assert(err, IsNil)
	c.Assert(entry.Root().Size(), Equals, 3)
	// Both versions of root 1 held child 2.
	assertSizes(c, delta, 5, 9, 13)

	// Popping the renewal does not bring it back.
	c.Assert(delta.Remove(1), IsNil)
	c.Assert(delta.Contains(2), IsFalse)
	c.Assert(delta.Contains(4), IsTrue)
}

func (s *testDeltaSuite) TestAbandonRemoveChild(c *C) {
	cache := populatedCache(c)
	delta := cache.CreateDelta()
	c.Assert(delta.Remove(2), IsNil)
	delta.Release()

	view := cache.CreateView()
	defer view.Release()
	c.Assert(view.Contains(2), IsTrue)
	entry, err := view.Get(1)
	c.Assert(err, IsNil)
	c.Assert(entry.Root().Size(), Equals, 4)
	assertSizes(c, view, 5, 10, 15)
}

func (s *testDeltaSuite) TestCannotRemoveChildWithDescendants(c *C) {
	cache := newTestCache()
	delta := cache.CreateDelta()
	defer delta.Release()
	c.Assert(delta.InsertRoot(newRoot(1, owner, 1, 10)), IsNil)
	c.Assert(delta.InsertDescendant(mustNamespace(c, 1, 2)), IsNil)
	c.Assert(delta.InsertDescendant(mustNamespace(c, 1, 2, 3)), IsNil)

	c.Assert(IsInvariantViolation(delta.Remove(2)), IsTrue)
	c.Assert(delta.Contains(2), IsTrue)

	c.Assert(delta.Remove(3), IsNil)
	c.Assert(delta.Remove(2), IsNil)
	assertSizes(c, delta, 1, 1, 1)
}

func (s *testDeltaSuite) TestRemoveRootWithoutChildren(c *C) {
	cache := populatedCache(c)
	delta := cache.CreateDelta()
	defer delta.Release()

	entry, err := delta.Get(5)
	c.Assert(err, IsNil)
	c.Assert(entry.NS().IsRoot(), IsTrue)
	c.Assert(entry.Root().Empty(), IsTrue)

	c.Assert(delta.Remove(5), IsNil)
	c.Assert(delta.Contains(5), IsFalse)
	assertSizes(c, delta, 4, 9, 14)
}

func (s *testDeltaSuite) TestRemoveRootWithChildrenPopsRenewal(c *C) {
	cache := populatedCache(c)
	delta := cache.CreateDelta()
	defer delta.Release()

	for _, id := range []state.NamespaceID{1, 2, 4, 6, 8} {
		entry, err := delta.Get(id)
		c.Assert(err, IsNil)
		c.Assert(entry.Root().Lifetime().Start, Equals, state.Height(345))
	}

	c.Assert(delta.Remove(1), IsNil)

	for _, id := range []state.NamespaceID{1, 2, 4, 6, 8} {
		entry, err := delta.Get(id)
		c.Assert(err, IsNil)
		c.Assert(entry.Root().Lifetime().Start, Equals, state.Height(234))
		c.Assert(entry.Root().Size(), Equals, 4)
	}
	assertSizes(c, delta, 5, 10, 10)

	changes := delta.Changes()
	c.Assert(changes.Modified, DeepEquals, []state.NamespaceID{1})
	c.Assert(changes.Added, HasLen, 0)
	c.Assert(changes.Removed, HasLen, 0)
}

func (s *testDeltaSuite) TestRemoveRenewedRootWithoutChildren(c *C) {
	cache := populatedCache(c)
	delta := cache.CreateDelta()
	defer delta.Release()

	entry, err := delta.Get(5)
	c.Assert(err, IsNil)
	c.Assert(delta.InsertRoot(entry.Root().Renew(state.NewLifetime(567, 678))), IsNil)
	c.Assert(delta.IsActive(5, 600), IsTrue)

	c.Assert(delta.Remove(5), IsNil)

	entry, err = delta.Get(5)
	c.Assert(err, IsNil)
	c.Assert(entry.Root().Empty(), IsTrue)
	c.Assert(entry.Root().Lifetime(), Equals, state.NewLifetime(234, 321))
}

func (s *testDeltaSuite) TestCannotRemoveOnlyVersionOfRootWithChildren(c *C) {
	cache := populatedCache(c)
	delta := cache.CreateDelta()
	defer delta.Release()

	entry, err := delta.Get(3)
	c.Assert(err, IsNil)
	c.Assert(entry.Root().Empty(), IsFalse)

	err = delta.Remove(3)
	c.Assert(IsInvariantViolation(err), IsTrue)
	c.Assert(IsInvalidArgument(err), IsFalse)
	c.Assert(delta.Contains(3), IsTrue)
	c.Assert(delta.Contains(10), IsTrue)
	assertSizes(c, delta, 5, 10, 15)
}

func (s *testDeltaSuite) TestChanges(c *C) {
	cache := populatedCache(c)
	c.Assert(cache.LastChanges().Added, DeepEquals, []state.NamespaceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})

	delta := cache.CreateDelta()
	defer delta.Release()
	c.Assert(delta.Remove(10), IsNil)
	c.Assert(delta.Remove(3), IsNil)
	c.Assert(delta.InsertRoot(newRoot(20, owner, 1, 2)), IsNil)
	insertChildren(c, delta, 5, 21)
	entry, err := delta.Get(7)
	c.Assert(err, IsNil)
	c.Assert(delta.InsertRoot(entry.Root().Renew(state.NewLifetime(400, 500))), IsNil)

	// Insert and remove within the same delta leaves no trace.
	c.Assert(delta.InsertRoot(newRoot(30, owner, 1, 2)), IsNil)
	c.Assert(delta.Remove(30), IsNil)

	changes := commit(c, cache, delta)
	c.Assert(changes.Added, DeepEquals, []state.NamespaceID{20, 21})
	c.Assert(changes.Modified, DeepEquals, []state.NamespaceID{5, 7})
	c.Assert(changes.Removed, DeepEquals, []state.NamespaceID{3, 10})
	c.Assert(cache.LastChanges(), DeepEquals, changes)
}

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
	"github.com/pingcap-incubator/nscache/util/spinlock"
)

// Reader is the query surface shared by views and deltas.
type Reader interface {
	Contains(id state.NamespaceID) bool
	Get(id state.NamespaceID) (state.NamespaceEntry, error)
	IsActive(id state.NamespaceID, height state.Height) bool
	Size() int
	DeepSize() int
	ActiveSize() int
	ForEach(fn func(entry state.NamespaceEntry) bool)
}

var _ Reader = &NamespaceCacheView{}
var _ Reader = &NamespaceCacheDelta{}

// NamespaceCacheView is a read-only snapshot of the committed cache.
// It holds a reader lock of the cache until Release is called, so commits
// wait for it; keep views short-lived.
type NamespaceCacheView struct {
	guard       *spinlock.ReaderGuard
	state       *namespaceState
	lastChanges Changes
}

// Release releases the view. It is safe to call more than once.
func (v *NamespaceCacheView) Release() {
	v.guard.Release()
}

// Contains checks whether id is visible.
func (v *NamespaceCacheView) Contains(id state.NamespaceID) bool {
	return v.state.contains(id)
}

// Get returns the visible namespace id together with the topmost version of its root.
func (v *NamespaceCacheView) Get(id state.NamespaceID) (state.NamespaceEntry, error) {
	return v.state.get(id)
}

// IsActive checks whether the root owning id is active at height.
func (v *NamespaceCacheView) IsActive(id state.NamespaceID, height state.Height) bool {
	return v.state.isActive(id, height)
}

// Size returns the number of visible ids.
func (v *NamespaceCacheView) Size() int {
	return v.state.size
}

// DeepSize returns the number of versions plus the number of child copies held by all versions.
func (v *NamespaceCacheView) DeepSize() int {
	return v.state.deepSize
}

// ActiveSize returns the number of roots.
func (v *NamespaceCacheView) ActiveSize() int {
	return v.state.activeSize()
}

// ForEach iterates the visible namespaces, roots in ascending order each
// followed by its visible descendants.
func (v *NamespaceCacheView) ForEach(fn func(entry state.NamespaceEntry) bool) {
	v.state.forEach(fn)
}

// LastChanges returns the changes of the commit that produced this snapshot.
func (v *NamespaceCacheView) LastChanges() Changes {
	return v.lastChanges
}

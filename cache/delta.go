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
	"github.com/google/btree"
	"github.com/pingcap-incubator/nscache/state"
	"github.com/pingcap-incubator/nscache/util/spinlock"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// NamespaceCacheDelta is the mutable working copy of the cache.
// Only one delta exists per cache at a time. Mutations are invisible to views
// until the delta is committed; releasing an uncommitted delta discards them.
// A failed mutation leaves the working copy unchanged.
type NamespaceCacheDelta struct {
	cache *NamespaceCache
	guard *spinlock.ReaderGuard

	base    *namespaceState
	working *namespaceState
	// Histories already cloned into working.
	owned map[state.NamespaceID]struct{}
	// Roots changed since base.
	touched map[state.NamespaceID]struct{}

	released bool
}

func newNamespaceCacheDelta(cache *NamespaceCache, guard *spinlock.ReaderGuard, base *namespaceState) *NamespaceCacheDelta {
	d := &NamespaceCacheDelta{
		cache: cache,
		guard: guard,
	}
	d.rebase(base)
	return d
}

func (d *NamespaceCacheDelta) rebase(base *namespaceState) {
	d.base = base
	d.working = base.clone()
	d.owned = make(map[state.NamespaceID]struct{})
	d.touched = make(map[state.NamespaceID]struct{})
}

// Release gives up the delta and lets the next CreateDelta proceed.
// It is safe to call more than once.
func (d *NamespaceCacheDelta) Release() {
	if d.released {
		return
	}
	d.released = true
	if len(d.touched) > 0 {
		log.Debug("discard uncommitted delta", zap.Int("touched-roots", len(d.touched)))
	}
	d.guard.Release()
	d.cache.releaseDelta()
}

// Contains checks whether id is visible.
func (d *NamespaceCacheDelta) Contains(id state.NamespaceID) bool {
	return d.working.contains(id)
}

// Get returns the visible namespace id together with the topmost version of its root.
func (d *NamespaceCacheDelta) Get(id state.NamespaceID) (state.NamespaceEntry, error) {
	return d.working.get(id)
}

// IsActive checks whether the root owning id is active at height.
func (d *NamespaceCacheDelta) IsActive(id state.NamespaceID, height state.Height) bool {
	return d.working.isActive(id, height)
}

// Size returns the number of visible ids.
func (d *NamespaceCacheDelta) Size() int {
	return d.working.size
}

// DeepSize returns the number of versions plus the number of child copies held by all versions.
func (d *NamespaceCacheDelta) DeepSize() int {
	return d.working.deepSize
}

// ActiveSize returns the number of roots.
func (d *NamespaceCacheDelta) ActiveSize() int {
	return d.working.activeSize()
}

// ForEach iterates the visible namespaces of the working copy.
func (d *NamespaceCacheDelta) ForEach(fn func(entry state.NamespaceEntry) bool) {
	d.working.forEach(fn)
}

// Changes returns the changes made since the delta was created or last committed.
func (d *NamespaceCacheDelta) Changes() Changes {
	return diffStates(d.base, d.working, d.touched)
}

// InsertRoot pushes root as the new topmost version of its history.
// A renewal by the same owner keeps the children of the previous version.
func (d *NamespaceCacheDelta) InsertRoot(root *state.RootNamespace) error {
	if root == nil {
		return state.NewInvalidArgument(0, "cannot insert nil root")
	}
	id := root.ID()
	if owner, ok := d.working.ownerOf(id); ok {
		return state.NewInvalidArgument(id, "id is registered as a descendant of root %d", owner)
	}

	done := d.working.track(id)
	h := d.mutableHistory(id)
	if h == nil {
		h = state.NewRootNamespaceHistory(id)
		if err := h.Push(root); err != nil {
			return err
		}
		d.working.putHistory(h)
		d.owned[id] = struct{}{}
	} else if err := h.Push(root); err != nil {
		return err
	}
	done()
	d.touch(id)

	log.Debug("insert root namespace",
		zap.Uint64("root-id", uint64(id)),
		zap.Stringer("lifetime", root.Lifetime()),
		zap.Int("depth", h.Depth()))
	return nil
}

// InsertDescendant adds ns to the topmost version of its root. Every
// ancestor of ns must be visible and the id must not be visible yet.
func (d *NamespaceCacheDelta) InsertDescendant(ns state.Namespace) error {
	path := ns.Path()
	if len(path) < 2 || len(path) > state.MaxPathDepth {
		return state.NewInvalidArgument(0, "descendant path must contain between 2 and %d ids, got %d", state.MaxPathDepth, len(path))
	}
	id, rootID := path.ID(), path.RootID()

	h := d.working.history(rootID)
	if h == nil {
		return state.NewInvalidArgument(rootID, "unknown root")
	}
	if d.working.history(id) != nil {
		return state.NewInvalidArgument(id, "id is registered as a root")
	}
	if owner, ok := d.working.ownerOf(id); ok && owner != rootID {
		return state.NewInvalidArgument(id, "id is registered under root %d", owner)
	}
	if err := h.CheckChild(path); err != nil {
		return err
	}

	done := d.working.track(rootID)
	h = d.mutableHistory(rootID)
	if err := h.AddChild(path); err != nil {
		return err
	}
	d.working.setOwner(id, rootID)
	done()
	d.touch(rootID)

	log.Debug("insert child namespace", zap.Stringer("path", path))
	return nil
}

// Remove removes a visible id.
//
// For a root with several versions only the topmost version is popped and the
// previous version becomes visible again. A root with a single version is
// erased only when it has no children. A descendant is removed from every
// version of its root, and only when nothing is registered below it.
func (d *NamespaceCacheDelta) Remove(id state.NamespaceID) error {
	if h := d.working.history(id); h != nil {
		return d.removeRoot(h)
	}

	rootID, ok := d.working.ownerOf(id)
	if !ok {
		return state.NewInvalidArgument(id, "unknown id")
	}
	h := d.working.history(rootID)
	if h == nil || !h.Back().HasChild(id) {
		return state.NewInvalidArgument(id, "unknown id")
	}
	if h.HasDescendantsOf(id) {
		log.Warn("refuse to remove namespace with descendants",
			zap.Uint64("id", uint64(id)),
			zap.Uint64("root-id", uint64(rootID)))
		return state.NewInvariantViolation(id, "namespace still has descendants")
	}

	done := d.working.track(rootID)
	h = d.mutableHistory(rootID)
	copies := h.RemoveChild(id)
	d.working.deleteOwner(id)
	done()
	d.touch(rootID)

	log.Debug("remove child namespace",
		zap.Uint64("id", uint64(id)),
		zap.Uint64("root-id", uint64(rootID)),
		zap.Int("copies", copies))
	return nil
}

func (d *NamespaceCacheDelta) removeRoot(h *state.RootNamespaceHistory) error {
	id := h.ID()
	if h.Depth() == 1 {
		if !h.Back().Empty() {
			log.Warn("refuse to remove root namespace with children",
				zap.Uint64("root-id", uint64(id)),
				zap.Int("children", h.Back().Size()))
			return state.NewInvariantViolation(id, "cannot remove the only version of a root with children")
		}
		done := d.working.track(id)
		d.working.deleteHistory(id)
		delete(d.owned, id)
		done()
		d.touch(id)
		log.Debug("remove root namespace", zap.Uint64("root-id", uint64(id)))
		return nil
	}

	done := d.working.track(id)
	h = d.mutableHistory(id)
	popped, err := h.Pop()
	if err != nil {
		return err
	}
	d.dropOrphans(id, []*state.RootNamespace{popped})
	done()
	d.touch(id)

	log.Debug("pop root namespace",
		zap.Uint64("root-id", uint64(id)),
		zap.Stringer("lifetime", popped.Lifetime()),
		zap.Int("depth", h.Depth()))
	return nil
}

// Prune drops every root version whose lifetime ended at or before height and
// returns the number of dropped versions. Histories left without versions are erased.
func (d *NamespaceCacheDelta) Prune(height state.Height) int {
	var expired []state.NamespaceID
	d.working.roots.Ascend(func(i btree.Item) bool {
		item := i.(*historyItem)
		if item.history.HasExpiredVersions(height) {
			expired = append(expired, item.id)
		}
		return true
	})

	dropped, erased := 0, 0
	for _, id := range expired {
		done := d.working.track(id)
		h := d.mutableHistory(id)
		versions := h.PruneExpired(height)
		if h.IsEmpty() {
			d.working.deleteHistory(id)
			delete(d.owned, id)
			erased++
		}
		d.dropOrphans(id, versions)
		done()
		d.touch(id)
		dropped += len(versions)
	}

	if dropped > 0 {
		if d.cache.cfg.EnableMetrics {
			prunedVersionCounter.Add(float64(dropped))
		}
		log.Debug("prune namespaces",
			zap.Uint64("height", uint64(height)),
			zap.Int("versions", dropped),
			zap.Int("erased-roots", erased))
	}
	return dropped
}

// mutableHistory returns the history of root id owned by the working copy,
// cloning the shared one on first use. It returns nil for unknown roots.
func (d *NamespaceCacheDelta) mutableHistory(id state.NamespaceID) *state.RootNamespaceHistory {
	h := d.working.history(id)
	if h == nil {
		return nil
	}
	if _, ok := d.owned[id]; ok {
		return h
	}
	h = h.Clone()
	d.working.putHistory(h)
	d.owned[id] = struct{}{}
	return h
}

// dropOrphans removes from the ownership index the children of dropped
// versions that no remaining version of root id holds.
func (d *NamespaceCacheDelta) dropOrphans(id state.NamespaceID, dropped []*state.RootNamespace) {
	h := d.working.history(id)
	for _, version := range dropped {
		for _, childID := range version.ChildIDs() {
			if h == nil || !h.ContainsChild(childID) {
				d.working.deleteOwner(childID)
			}
		}
	}
}

func (d *NamespaceCacheDelta) touch(id state.NamespaceID) {
	d.touched[id] = struct{}{}
}

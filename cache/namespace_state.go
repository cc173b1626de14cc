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
)

var _ btree.Item = &historyItem{}
var _ btree.Item = &ownerItem{}

// historyItem keys a root history by its id.
type historyItem struct {
	id      state.NamespaceID
	history *state.RootNamespaceHistory
}

// Less returns true if the root id is less than the other.
func (i *historyItem) Less(other btree.Item) bool {
	return i.id < other.(*historyItem).id
}

// ownerItem maps a descendant id to the id of its root. It covers every
// descendant held by any version, visible or not.
type ownerItem struct {
	id   state.NamespaceID
	root state.NamespaceID
}

// Less returns true if the descendant id is less than the other.
func (i *ownerItem) Less(other btree.Item) bool {
	return i.id < other.(*ownerItem).id
}

const defaultBTreeDegree = 32

// namespaceState is an immutable-once-committed mapping from root id to history.
// Committed states are shared by views; a delta mutates its own clone.
type namespaceState struct {
	roots  *btree.BTree
	owners *btree.BTree

	// Number of visible ids and number of versions plus child copies.
	size     int
	deepSize int
}

func newNamespaceState(degree int) *namespaceState {
	if degree < 2 {
		degree = defaultBTreeDegree
	}
	return &namespaceState{
		roots:  btree.New(degree),
		owners: btree.New(degree),
	}
}

// clone returns a lazily copied state. Histories are shared and must be
// cloned before they are mutated.
func (s *namespaceState) clone() *namespaceState {
	return &namespaceState{
		roots:    s.roots.Clone(),
		owners:   s.owners.Clone(),
		size:     s.size,
		deepSize: s.deepSize,
	}
}

func (s *namespaceState) activeSize() int {
	return s.roots.Len()
}

func (s *namespaceState) history(id state.NamespaceID) *state.RootNamespaceHistory {
	item := s.roots.Get(&historyItem{id: id})
	if item == nil {
		return nil
	}
	return item.(*historyItem).history
}

func (s *namespaceState) putHistory(history *state.RootNamespaceHistory) {
	s.roots.ReplaceOrInsert(&historyItem{id: history.ID(), history: history})
}

func (s *namespaceState) deleteHistory(id state.NamespaceID) {
	s.roots.Delete(&historyItem{id: id})
}

func (s *namespaceState) ownerOf(id state.NamespaceID) (state.NamespaceID, bool) {
	item := s.owners.Get(&ownerItem{id: id})
	if item == nil {
		return 0, false
	}
	return item.(*ownerItem).root, true
}

func (s *namespaceState) setOwner(id, root state.NamespaceID) {
	s.owners.ReplaceOrInsert(&ownerItem{id: id, root: root})
}

func (s *namespaceState) deleteOwner(id state.NamespaceID) {
	s.owners.Delete(&ownerItem{id: id})
}

// track records the counters of history id and returns a function that
// applies the difference once the history has been changed or erased.
func (s *namespaceState) track(id state.NamespaceID) func() {
	visible, deep := 0, 0
	if h := s.history(id); h != nil {
		visible, deep = h.NumVisible(), h.DeepSize()
	}
	return func() {
		newVisible, newDeep := 0, 0
		if h := s.history(id); h != nil {
			newVisible, newDeep = h.NumVisible(), h.DeepSize()
		}
		s.size += newVisible - visible
		s.deepSize += newDeep - deep
	}
}

// lookup resolves a visible id to its root history and its path.
// The owning root is found through the ownership index, never through a
// reference stored in the descendant.
func (s *namespaceState) lookup(id state.NamespaceID) (*state.RootNamespaceHistory, state.Path, bool) {
	if h := s.history(id); h != nil {
		return h, state.Path{id}, true
	}
	rootID, ok := s.ownerOf(id)
	if !ok {
		return nil, nil, false
	}
	h := s.history(rootID)
	if h == nil {
		return nil, nil, false
	}
	path, ok := h.Back().Child(id)
	if !ok {
		return nil, nil, false
	}
	return h, path, true
}

func (s *namespaceState) contains(id state.NamespaceID) bool {
	_, _, ok := s.lookup(id)
	return ok
}

func (s *namespaceState) get(id state.NamespaceID) (state.NamespaceEntry, error) {
	h, path, ok := s.lookup(id)
	if !ok {
		return state.NamespaceEntry{}, state.NewInvalidArgument(id, "unknown id")
	}
	ns, err := state.NewNamespace(path)
	if err != nil {
		return state.NamespaceEntry{}, err
	}
	return state.NewNamespaceEntry(ns, h.Back()), nil
}

func (s *namespaceState) isActive(id state.NamespaceID, height state.Height) bool {
	h, _, ok := s.lookup(id)
	if !ok {
		return false
	}
	return h.Back().Lifetime().IsActiveAt(height)
}

// forEach calls fn for every visible namespace: each root in ascending id
// order followed by its visible descendants in ascending id order.
// Iteration stops when fn returns false.
func (s *namespaceState) forEach(fn func(entry state.NamespaceEntry) bool) {
	s.roots.Ascend(func(i btree.Item) bool {
		h := i.(*historyItem).history
		top := h.Back()
		rootNS, err := state.NewNamespace(state.Path{h.ID()})
		if err != nil {
			return false
		}
		if !fn(state.NewNamespaceEntry(rootNS, top)) {
			return false
		}
		for _, childID := range top.ChildIDs() {
			path, _ := top.Child(childID)
			ns, err := state.NewNamespace(path)
			if err != nil {
				return false
			}
			if !fn(state.NewNamespaceEntry(ns, top)) {
				return false
			}
		}
		return true
	})
}

// visibleIDs returns the ids h exposes, root first.
func visibleIDs(h *state.RootNamespaceHistory) []state.NamespaceID {
	if h == nil || h.IsEmpty() {
		return nil
	}
	return append([]state.NamespaceID{h.ID()}, h.Back().ChildIDs()...)
}

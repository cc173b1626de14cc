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

package state

import (
	"fmt"
	"sort"
)

// RootNamespace is one version of a root namespace.
// Read-Only once pushed into a history; children are only changed through the history.
type RootNamespace struct {
	id       NamespaceID
	owner    Owner
	lifetime Lifetime
	children map[NamespaceID]Path
}

// NewRootNamespace creates a root version without children.
func NewRootNamespace(id NamespaceID, owner Owner, lifetime Lifetime) *RootNamespace {
	return &RootNamespace{
		id:       id,
		owner:    owner,
		lifetime: lifetime,
		children: make(map[NamespaceID]Path),
	}
}

// Renew creates a new version of the root with the same owner and a new lifetime.
// Children are forwarded when the renewal is pushed into the history.
func (r *RootNamespace) Renew(lifetime Lifetime) *RootNamespace {
	return NewRootNamespace(r.id, r.owner, lifetime)
}

// ID returns the root id.
func (r *RootNamespace) ID() NamespaceID {
	return r.id
}

// Owner returns the root owner.
func (r *RootNamespace) Owner() Owner {
	return r.owner
}

// Lifetime returns the root lifetime.
func (r *RootNamespace) Lifetime() Lifetime {
	return r.lifetime
}

// Size returns the number of children.
func (r *RootNamespace) Size() int {
	return len(r.children)
}

// Empty returns true when the root has no children.
func (r *RootNamespace) Empty() bool {
	return len(r.children) == 0
}

// HasChild checks whether id is a child of this version.
func (r *RootNamespace) HasChild(id NamespaceID) bool {
	_, ok := r.children[id]
	return ok
}

// Child returns the path of child id.
func (r *RootNamespace) Child(id NamespaceID) (Path, bool) {
	path, ok := r.children[id]
	return path, ok
}

// ChildIDs returns the ids of all children in ascending order.
func (r *RootNamespace) ChildIDs() []NamespaceID {
	ids := make([]NamespaceID, 0, len(r.children))
	for id := range r.children {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Children returns a copy of the children map.
func (r *RootNamespace) Children() map[NamespaceID]Path {
	children := make(map[NamespaceID]Path, len(r.children))
	for id, path := range r.children {
		children[id] = path
	}
	return children
}

// HasDescendantsOf checks whether any child path passes through id.
func (r *RootNamespace) HasDescendantsOf(id NamespaceID) bool {
	for childID, path := range r.children {
		if childID == id {
			continue
		}
		for _, ancestor := range path[1 : len(path)-1] {
			if ancestor == id {
				return true
			}
		}
	}
	return false
}

// Equal compares id, owner, lifetime and children.
func (r *RootNamespace) Equal(other *RootNamespace) bool {
	if r == nil || other == nil {
		return r == other
	}
	if r.id != other.id || r.owner != other.owner || r.lifetime != other.lifetime {
		return false
	}
	if len(r.children) != len(other.children) {
		return false
	}
	for id, path := range r.children {
		otherPath, ok := other.children[id]
		if !ok || !path.Equal(otherPath) {
			return false
		}
	}
	return true
}

func (r *RootNamespace) String() string {
	return fmt.Sprintf("root %d owner %s lifetime %s children %d", r.id, r.owner, r.lifetime, len(r.children))
}

// clone copies the version including its children map. Paths are immutable and shared.
func (r *RootNamespace) clone() *RootNamespace {
	root := &RootNamespace{
		id:       r.id,
		owner:    r.owner,
		lifetime: r.lifetime,
		children: make(map[NamespaceID]Path, len(r.children)),
	}
	for id, path := range r.children {
		root.children[id] = path
	}
	return root
}

func (r *RootNamespace) addChild(path Path) {
	r.children[path.ID()] = path
}

func (r *RootNamespace) removeChild(id NamespaceID) bool {
	if _, ok := r.children[id]; !ok {
		return false
	}
	delete(r.children, id)
	return true
}

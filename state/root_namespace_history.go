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

// RootNamespaceHistory is the ordered stack of versions of one root namespace.
// The newest version is at the back and is called the topmost version.
//
// Renewing a root with the same owner forwards the children of the previous
// topmost version into the new one, so a child registered before the renewal
// exists once per version. Children added afterwards only exist in the versions
// they were added to.
type RootNamespaceHistory struct {
	id       NamespaceID
	versions []*RootNamespace
}

// NewRootNamespaceHistory creates an empty history for id.
func NewRootNamespaceHistory(id NamespaceID) *RootNamespaceHistory {
	return &RootNamespaceHistory{id: id}
}

// ID returns the id shared by all versions.
func (h *RootNamespaceHistory) ID() NamespaceID {
	return h.id
}

// Depth returns the number of versions.
func (h *RootNamespaceHistory) Depth() int {
	return len(h.versions)
}

// IsEmpty returns true when there are no versions left.
func (h *RootNamespaceHistory) IsEmpty() bool {
	return len(h.versions) == 0
}

// Back returns the topmost version, or nil for an empty history.
func (h *RootNamespaceHistory) Back() *RootNamespace {
	if len(h.versions) == 0 {
		return nil
	}
	return h.versions[len(h.versions)-1]
}

// Versions returns the versions from oldest to newest.
func (h *RootNamespaceHistory) Versions() []*RootNamespace {
	versions := make([]*RootNamespace, len(h.versions))
	copy(versions, h.versions)
	return versions
}

// NumVisible returns the number of ids exposed by the history: the root itself
// plus the children of the topmost version.
func (h *RootNamespaceHistory) NumVisible() int {
	top := h.Back()
	if top == nil {
		return 0
	}
	return 1 + top.Size()
}

// DeepSize counts every version and every child copy held by every version.
func (h *RootNamespaceHistory) DeepSize() int {
	size := 0
	for _, version := range h.versions {
		size += 1 + version.Size()
	}
	return size
}

// NumAllHistoricalChildren returns the number of child copies over all versions.
func (h *RootNamespaceHistory) NumAllHistoricalChildren() int {
	return h.DeepSize() - len(h.versions)
}

// ContainsChild checks whether any version holds child id.
func (h *RootNamespaceHistory) ContainsChild(id NamespaceID) bool {
	for _, version := range h.versions {
		if version.HasChild(id) {
			return true
		}
	}
	return false
}

// HasDescendantsOf checks whether any version holds a path passing through id.
func (h *RootNamespaceHistory) HasDescendantsOf(id NamespaceID) bool {
	for _, version := range h.versions {
		if version.HasDescendantsOf(id) {
			return true
		}
	}
	return false
}

// Push adds root as the new topmost version. When the owner did not change,
// the children of the previous topmost version are forwarded to the new one.
func (h *RootNamespaceHistory) Push(root *RootNamespace) error {
	if root == nil {
		return NewInvalidArgument(h.id, "cannot push nil root")
	}
	if root.ID() != h.id {
		return NewInvalidArgument(root.ID(), "root does not belong to history %d", h.id)
	}

	version := root.clone()
	if top := h.Back(); top != nil && top.Owner() == version.Owner() {
		for id, path := range top.children {
			version.children[id] = path
		}
	}
	h.versions = append(h.versions, version)
	return nil
}

// Pop removes the topmost version and returns it.
func (h *RootNamespaceHistory) Pop() (*RootNamespace, error) {
	top := h.Back()
	if top == nil {
		return nil, NewInvalidArgument(h.id, "cannot pop from empty history")
	}
	h.versions[len(h.versions)-1] = nil
	h.versions = h.versions[:len(h.versions)-1]
	return top, nil
}

// CheckChild validates that path can be added to the topmost version:
// it must be a descendant path of this root, its parent must be visible and
// the id itself must not be visible yet.
func (h *RootNamespaceHistory) CheckChild(path Path) error {
	if len(path) < 2 || len(path) > MaxPathDepth {
		return NewInvalidArgument(0, "descendant path must contain between 2 and %d ids, got %d", MaxPathDepth, len(path))
	}
	if path.RootID() != h.id {
		return NewInvalidArgument(path.ID(), "path root %d does not match history %d", path.RootID(), h.id)
	}
	top := h.Back()
	if top == nil {
		return NewInvalidArgument(path.RootID(), "unknown root")
	}
	if path.ID() == h.id {
		return NewInvalidArgument(path.ID(), "child cannot reuse the root id")
	}
	if len(path) == MaxPathDepth {
		parent, ok := top.Child(path.ParentID())
		if !ok {
			return NewInvalidArgument(path.ParentID(), "unknown parent")
		}
		if !parent.Equal(path[:len(path)-1]) {
			return NewInvalidArgument(path.ParentID(), "parent path mismatch %s", parent)
		}
	}
	if top.HasChild(path.ID()) {
		return NewInvalidArgument(path.ID(), "child already exists")
	}
	return nil
}

// AddChild adds path to the topmost version only.
func (h *RootNamespaceHistory) AddChild(path Path) error {
	if err := h.CheckChild(path); err != nil {
		return err
	}
	h.Back().addChild(path.Clone())
	return nil
}

// RemoveChild removes child id from every version holding it and returns the
// number of removed copies.
func (h *RootNamespaceHistory) RemoveChild(id NamespaceID) int {
	removed := 0
	for _, version := range h.versions {
		if version.removeChild(id) {
			removed++
		}
	}
	return removed
}

// HasExpiredVersions checks whether PruneExpired would drop anything at height.
func (h *RootNamespaceHistory) HasExpiredVersions(height Height) bool {
	for _, version := range h.versions {
		if version.Lifetime().IsExpiredAt(height) {
			return true
		}
	}
	return false
}

// PruneExpired drops every version whose lifetime ended at or before height,
// wherever it is in the stack, and returns the dropped versions oldest first.
// Surviving versions keep their children untouched.
func (h *RootNamespaceHistory) PruneExpired(height Height) []*RootNamespace {
	var dropped []*RootNamespace
	kept := h.versions[:0]
	for _, version := range h.versions {
		if version.Lifetime().IsExpiredAt(height) {
			dropped = append(dropped, version)
			continue
		}
		kept = append(kept, version)
	}
	for i := len(kept); i < len(h.versions); i++ {
		h.versions[i] = nil
	}
	h.versions = kept
	return dropped
}

// Clone deep copies the history so the copy can be mutated independently.
func (h *RootNamespaceHistory) Clone() *RootNamespaceHistory {
	history := &RootNamespaceHistory{
		id:       h.id,
		versions: make([]*RootNamespace, 0, len(h.versions)),
	}
	for _, version := range h.versions {
		history.versions = append(history.versions, version.clone())
	}
	return history
}

// Equal compares two histories version by version.
func (h *RootNamespaceHistory) Equal(other *RootNamespaceHistory) bool {
	if h == nil || other == nil {
		return h == other
	}
	if h.id != other.id || len(h.versions) != len(other.versions) {
		return false
	}
	for i := range h.versions {
		if !h.versions[i].Equal(other.versions[i]) {
			return false
		}
	}
	return true
}

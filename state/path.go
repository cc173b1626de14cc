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
	"strings"
)

// MaxPathDepth is the maximum number of ids in a namespace path.
const MaxPathDepth = 3

// Path is the chain of ids from a root namespace down to a namespace.
// A path of length 1 is a root, longer paths name descendants.
type Path []NamespaceID

// NewPath validates ids and returns them as a Path.
func NewPath(ids ...NamespaceID) (Path, error) {
	if len(ids) == 0 || len(ids) > MaxPathDepth {
		return nil, NewInvalidArgument(0, "path must contain between 1 and %d ids, got %d", MaxPathDepth, len(ids))
	}
	path := make(Path, len(ids))
	copy(path, ids)
	return path, nil
}

// ID returns the id the path leads to.
func (p Path) ID() NamespaceID {
	return p[len(p)-1]
}

// RootID returns the first id of the path.
func (p Path) RootID() NamespaceID {
	return p[0]
}

// ParentID returns the id preceding the last one. It is the root id for roots.
func (p Path) ParentID() NamespaceID {
	if len(p) == 1 {
		return p[0]
	}
	return p[len(p)-2]
}

// IsRoot returns true for single element paths.
func (p Path) IsRoot() bool {
	return len(p) == 1
}

// Equal compares two paths element by element.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the path.
func (p Path) Clone() Path {
	path := make(Path, len(p))
	copy(path, p)
	return path
}

func (p Path) String() string {
	parts := make([]string, 0, len(p))
	for _, id := range p {
		parts = append(parts, fmt.Sprintf("%d", id))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Namespace is a registered name, either a root or one of its descendants.
type Namespace struct {
	path Path
}

// NewNamespace creates a namespace from a validated path.
func NewNamespace(path Path) (Namespace, error) {
	if len(path) == 0 || len(path) > MaxPathDepth {
		return Namespace{}, NewInvalidArgument(0, "path must contain between 1 and %d ids, got %d", MaxPathDepth, len(path))
	}
	return Namespace{path: path.Clone()}, nil
}

// Path returns the full path of the namespace.
func (n Namespace) Path() Path {
	return n.path
}

// ID returns the namespace id.
func (n Namespace) ID() NamespaceID {
	return n.path.ID()
}

// ParentID returns the parent id, which is the id itself for roots.
func (n Namespace) ParentID() NamespaceID {
	return n.path.ParentID()
}

// RootID returns the id of the owning root.
func (n Namespace) RootID() NamespaceID {
	return n.path.RootID()
}

// IsRoot returns true when the namespace is a root.
func (n Namespace) IsRoot() bool {
	return n.path.IsRoot()
}

func (n Namespace) String() string {
	return n.path.String()
}

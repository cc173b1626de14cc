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

// NamespaceEntry pairs a visible namespace with the topmost version of its root.
type NamespaceEntry struct {
	ns   Namespace
	root *RootNamespace
}

// NewNamespaceEntry creates an entry.
func NewNamespaceEntry(ns Namespace, root *RootNamespace) NamespaceEntry {
	return NamespaceEntry{ns: ns, root: root}
}

// NS returns the namespace.
func (e NamespaceEntry) NS() Namespace {
	return e.ns
}

// Root returns the owning root version.
func (e NamespaceEntry) Root() *RootNamespace {
	return e.root
}

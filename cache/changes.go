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
	"fmt"
	"sort"

	"github.com/pingcap-incubator/nscache/state"
)

// Changes is the difference between two committed states.
//
// Added and Removed list ids whose visibility changed. Modified lists roots
// that are visible on both sides but whose history differs, e.g. after a
// renewal or a prune of an older version.
type Changes struct {
	Added    []state.NamespaceID `json:"added"`
	Modified []state.NamespaceID `json:"modified"`
	Removed  []state.NamespaceID `json:"removed"`
}

// Empty returns true when nothing changed.
func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Modified) == 0 && len(c.Removed) == 0
}

func (c Changes) String() string {
	return fmt.Sprintf("added %v modified %v removed %v", c.Added, c.Modified, c.Removed)
}

// diffStates compares the histories of roots in base and working.
func diffStates(base, working *namespaceState, roots map[state.NamespaceID]struct{}) Changes {
	var changes Changes
	for id := range roots {
		before, after := base.history(id), working.history(id)
		if before != nil && after != nil && !before.Equal(after) {
			changes.Modified = append(changes.Modified, id)
		}

		visibleBefore := make(map[state.NamespaceID]struct{})
		for _, v := range visibleIDs(before) {
			visibleBefore[v] = struct{}{}
		}
		for _, v := range visibleIDs(after) {
			if _, ok := visibleBefore[v]; ok {
				delete(visibleBefore, v)
				continue
			}
			changes.Added = append(changes.Added, v)
		}
		for v := range visibleBefore {
			changes.Removed = append(changes.Removed, v)
		}
	}
	sortIDs(changes.Added)
	sortIDs(changes.Modified)
	sortIDs(changes.Removed)
	return changes
}

func sortIDs(ids []state.NamespaceID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

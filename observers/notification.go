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

package observers

import (
	"fmt"

	"github.com/pingcap-incubator/nscache/state"
)

// NotificationType is the kind of a notification.
type NotificationType uint16

// Notification types.
const (
	RootRegistration NotificationType = iota + 1
	ChildRegistration
	BlockHeight
)

func (t NotificationType) String() string {
	switch t {
	case RootRegistration:
		return "root-registration"
	case ChildRegistration:
		return "child-registration"
	case BlockHeight:
		return "block-height"
	}
	return fmt.Sprintf("unknown(%d)", uint16(t))
}

// Notification is an event raised while a block is processed.
type Notification interface {
	Type() NotificationType
}

// RootRegistrationNotification registers or renews a root namespace.
type RootRegistrationNotification struct {
	ID       state.NamespaceID
	Owner    state.Owner
	Lifetime state.Lifetime
}

// Type implements Notification.
func (n *RootRegistrationNotification) Type() NotificationType { return RootRegistration }

// ChildRegistrationNotification registers a descendant namespace.
type ChildRegistrationNotification struct {
	Path state.Path
}

// Type implements Notification.
func (n *ChildRegistrationNotification) Type() NotificationType { return ChildRegistration }

// BlockHeightNotification is raised once per processed block.
type BlockHeightNotification struct {
	Height state.Height
}

// Type implements Notification.
func (n *BlockHeightNotification) Type() NotificationType { return BlockHeight }

// NotifyMode tells observers whether a block is applied or undone.
type NotifyMode int

// Notify modes.
const (
	Commit NotifyMode = iota
	Rollback
)

func (m NotifyMode) String() string {
	if m == Rollback {
		return "rollback"
	}
	return "commit"
}

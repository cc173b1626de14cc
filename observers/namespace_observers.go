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
	"github.com/pingcap-incubator/nscache/state"
	"github.com/pingcap/errors"
)

// RegisterNamespaceObservers adds the observers that keep a namespace cache in
// sync with block processing.
func RegisterNamespaceObservers(b *DemuxObserverBuilder) *DemuxObserverBuilder {
	return b.
		Add("RootRegistrationObserver", RootRegistration, observeRootRegistration).
		Add("ChildRegistrationObserver", ChildRegistration, observeChildRegistration).
		Add("NamespacePruningObserver", BlockHeight, observeBlockHeight)
}

func observeRootRegistration(n Notification, ctx *ObserverContext) error {
	notification, ok := n.(*RootRegistrationNotification)
	if !ok {
		return errors.Errorf("unexpected notification %T", n)
	}
	if ctx.Mode == Rollback {
		return ctx.Namespaces.Remove(notification.ID)
	}
	root := state.NewRootNamespace(notification.ID, notification.Owner, notification.Lifetime)
	return ctx.Namespaces.InsertRoot(root)
}

func observeChildRegistration(n Notification, ctx *ObserverContext) error {
	notification, ok := n.(*ChildRegistrationNotification)
	if !ok {
		return errors.Errorf("unexpected notification %T", n)
	}
	ns, err := state.NewNamespace(notification.Path)
	if err != nil {
		return err
	}
	if ctx.Mode == Rollback {
		return ctx.Namespaces.Remove(ns.ID())
	}
	return ctx.Namespaces.InsertDescendant(ns)
}

// Pruned versions cannot be restored, so a rolled back height prunes nothing.
func observeBlockHeight(n Notification, ctx *ObserverContext) error {
	notification, ok := n.(*BlockHeightNotification)
	if !ok {
		return errors.Errorf("unexpected notification %T", n)
	}
	if ctx.Mode == Commit {
		ctx.Namespaces.Prune(notification.Height)
	}
	return nil
}

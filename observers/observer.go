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
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// NamespaceMutator is the mutation surface observers apply notifications to.
// A namespace cache delta implements it.
type NamespaceMutator interface {
	InsertRoot(root *state.RootNamespace) error
	InsertDescendant(ns state.Namespace) error
	Remove(id state.NamespaceID) error
	Prune(height state.Height) int
}

// ObserverContext carries what an observer needs besides the notification.
type ObserverContext struct {
	Mode       NotifyMode
	Height     state.Height
	Namespaces NamespaceMutator
}

// NotificationHandler handles one notification.
type NotificationHandler func(n Notification, ctx *ObserverContext) error

// Observer applies notifications to the state in ctx.
type Observer interface {
	Name() string
	// Names returns the names of the registered handlers in registration order.
	Names() []string
	Notify(n Notification, ctx *ObserverContext) error
}

type entry struct {
	name    string
	all     bool
	kind    NotificationType
	handler NotificationHandler
}

// DemuxObserverBuilder builds an observer that dispatches each notification
// to the handlers registered for its type.
type DemuxObserverBuilder struct {
	entries []entry
}

// NewDemuxObserverBuilder creates an empty builder.
func NewDemuxObserverBuilder() *DemuxObserverBuilder {
	return &DemuxObserverBuilder{}
}

// Add registers handler for notifications of type kind.
func (b *DemuxObserverBuilder) Add(name string, kind NotificationType, handler NotificationHandler) *DemuxObserverBuilder {
	b.entries = append(b.entries, entry{name: name, kind: kind, handler: handler})
	return b
}

// AddAll registers handler for every notification.
func (b *DemuxObserverBuilder) AddAll(name string, handler NotificationHandler) *DemuxObserverBuilder {
	b.entries = append(b.entries, entry{name: name, all: true, handler: handler})
	return b
}

// Build creates the aggregate observer. Later changes to the builder do not affect it.
func (b *DemuxObserverBuilder) Build() Observer {
	entries := make([]entry, len(b.entries))
	copy(entries, b.entries)
	return &demuxObserver{entries: entries}
}

type demuxObserver struct {
	entries []entry
}

func (o *demuxObserver) Name() string {
	return "DemuxObserver"
}

func (o *demuxObserver) Names() []string {
	names := make([]string, 0, len(o.entries))
	for _, e := range o.entries {
		names = append(names, e.name)
	}
	return names
}

// Notify calls the matching handlers in registration order on commit and in
// reverse order on rollback. It stops at the first failure.
func (o *demuxObserver) Notify(n Notification, ctx *ObserverContext) error {
	for i := range o.entries {
		e := o.entries[i]
		if ctx.Mode == Rollback {
			e = o.entries[len(o.entries)-1-i]
		}
		if !e.all && e.kind != n.Type() {
			continue
		}
		if err := e.handler(n, ctx); err != nil {
			log.Warn("observer failed",
				zap.String("observer", e.name),
				zap.Stringer("notification", n.Type()),
				zap.Stringer("mode", ctx.Mode),
				zap.Uint64("height", uint64(ctx.Height)),
				zap.Error(err))
			return errors.Annotatef(err, "observer %s at height %d", e.name, ctx.Height)
		}
	}
	return nil
}

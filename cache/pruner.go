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
	"context"
	"sync"

	"github.com/pingcap-incubator/nscache/state"
	"github.com/pingcap-incubator/nscache/util/worker"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// PruneTask asks the pruner to expire versions at Height.
type PruneTask struct {
	Height state.Height
}

type pruneHandler struct {
	cache   *NamespaceCache
	pruned  *atomic.Uint64
	highest *atomic.Uint64
}

func (h *pruneHandler) Handle(t worker.Task) {
	task, ok := t.(PruneTask)
	if !ok {
		log.Error("unexpected task", zap.Reflect("task", t))
		return
	}

	delta := h.cache.CreateDelta()
	defer delta.Release()
	dropped := delta.Prune(task.Height)
	if dropped == 0 {
		h.highest.Store(uint64(task.Height))
		return
	}
	if _, err := h.cache.Commit(delta); err != nil {
		log.Error("commit pruned namespaces failed", zap.Uint64("height", uint64(task.Height)), zap.Error(err))
		return
	}
	h.pruned.Add(uint64(dropped))
	h.highest.Store(uint64(task.Height))
	log.Info("pruned expired namespaces",
		zap.Uint64("height", uint64(task.Height)),
		zap.Int("versions", dropped))
}

// Pruner expires root versions in the background as the chain height advances.
// Heights are handled in the order they are notified.
type Pruner struct {
	cache   *NamespaceCache
	worker  *worker.Worker
	wg      sync.WaitGroup
	pruned  atomic.Uint64
	highest atomic.Uint64
}

// NewPruner creates a pruner for cache. Start must be called before Notify.
func NewPruner(cache *NamespaceCache) *Pruner {
	p := &Pruner{cache: cache}
	p.worker = worker.NewWorker("namespace-pruner", cache.cfg.PruneQueueCapacity, &p.wg)
	return p
}

// Start starts the worker goroutine.
func (p *Pruner) Start() {
	p.worker.Start(&pruneHandler{
		cache:   p.cache,
		pruned:  &p.pruned,
		highest: &p.highest,
	})
}

// Notify queues a prune at height. It blocks while the queue is full, until ctx is done.
func (p *Pruner) Notify(ctx context.Context, height state.Height) error {
	select {
	case p.worker.Sender() <- PruneTask{Height: height}:
		return nil
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	}
}

// Stop handles the queued heights and waits for the worker to exit.
func (p *Pruner) Stop() {
	p.worker.Stop()
	p.wg.Wait()
}

// PrunedVersions returns the number of versions dropped so far.
func (p *Pruner) PrunedVersions() uint64 {
	return p.pruned.Load()
}

// Height returns the last height handled.
func (p *Pruner) Height() state.Height {
	return state.Height(p.highest.Load())
}

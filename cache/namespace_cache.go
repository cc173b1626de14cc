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
	"runtime"
	"time"

	"github.com/pingcap-incubator/nscache/config"
	"github.com/pingcap-incubator/nscache/state"
	"github.com/pingcap-incubator/nscache/util/spinlock"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var (
	errDeltaReleased = errors.New("delta has already been released")
	errForeignDelta  = errors.New("delta was created by another cache")
)

// NamespaceCache owns the committed namespace state.
//
// Readers use views, which share the committed state. All mutations go
// through the single delta returned by CreateDelta and become visible to
// views created after Commit. A goroutine holding a view must not commit,
// since the commit waits for every view to be released.
type NamespaceCache struct {
	cfg  config.CacheConfig
	lock *spinlock.RWLock

	// Set while a delta is outstanding.
	deltaFlag atomic.Uint32
	commits   atomic.Uint64

	// Guarded by lock.
	committed   *namespaceState
	lastChanges Changes
}

// NewNamespaceCache creates an empty cache. A nil cfg uses the default cache configuration.
func NewNamespaceCache(cfg *config.CacheConfig) *NamespaceCache {
	if cfg == nil {
		cfg = &config.NewDefaultConfig().Cache
	}
	return &NamespaceCache{
		cfg:       *cfg,
		lock:      spinlock.NewRWLock(cfg.SpinsBeforeYield),
		committed: newNamespaceState(cfg.BTreeDegree),
	}
}

// CreateView returns a read-only snapshot of the committed state.
// The view must be released.
func (c *NamespaceCache) CreateView() *NamespaceCacheView {
	start := time.Now()
	guard := c.lock.AcquireReader()
	c.observeLockWait("reader", start)
	return &NamespaceCacheView{
		guard:       guard,
		state:       c.committed,
		lastChanges: c.lastChanges,
	}
}

// CreateDelta returns the mutable working copy of the committed state.
// It spins until the previous delta has been released. The delta must be released.
func (c *NamespaceCache) CreateDelta() *NamespaceCacheDelta {
	start := time.Now()
	spins := 0
	for !c.deltaFlag.CAS(0, 1) {
		spins++
		if spins >= c.cfg.SpinsBeforeYield {
			spins = 0
			runtime.Gosched()
		}
	}
	guard := c.lock.AcquireReader()
	c.observeLockWait("delta", start)
	return newNamespaceCacheDelta(c, guard, c.committed)
}

// HasOutstandingDelta checks whether a delta has been created and not released yet.
func (c *NamespaceCache) HasOutstandingDelta() bool {
	return c.deltaFlag.Load() != 0
}

func (c *NamespaceCache) releaseDelta() {
	c.deltaFlag.Store(0)
}

// Commit makes the mutations of delta visible to views created afterwards
// and returns what changed. It waits until every other reader has been released.
// The delta stays usable and starts from the new committed state.
func (c *NamespaceCache) Commit(delta *NamespaceCacheDelta) (Changes, error) {
	if delta == nil || delta.cache != c {
		return Changes{}, errForeignDelta
	}
	if delta.released {
		return Changes{}, errDeltaReleased
	}
	changes := delta.Changes()

	start := time.Now()
	writer, err := delta.guard.PromoteToWriter()
	if err != nil {
		return Changes{}, errors.Trace(err)
	}
	c.observeLockWait("writer", start)

	c.committed = delta.working
	c.lastChanges = changes
	delta.rebase(c.committed)
	writer.Release()

	c.commits.Inc()
	c.updateMetrics(delta.base, changes)
	log.Debug("commit namespace cache",
		zap.Uint64("commit", c.commits.Load()),
		zap.Int("added", len(changes.Added)),
		zap.Int("modified", len(changes.Modified)),
		zap.Int("removed", len(changes.Removed)),
		zap.Int("size", delta.base.size),
		zap.Int("deep-size", delta.base.deepSize))
	return changes, nil
}

// LastChanges returns the changes of the most recent commit.
func (c *NamespaceCache) LastChanges() Changes {
	view := c.CreateView()
	defer view.Release()
	return view.LastChanges()
}

// Commits returns the number of commits so far.
func (c *NamespaceCache) Commits() uint64 {
	return c.commits.Load()
}

func (c *NamespaceCache) observeLockWait(kind string, start time.Time) {
	if !c.cfg.EnableMetrics {
		return
	}
	lockWaitHistogram.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

func (c *NamespaceCache) updateMetrics(s *namespaceState, changes Changes) {
	if !c.cfg.EnableMetrics {
		return
	}
	cacheSizeGauge.WithLabelValues("active").Set(float64(s.activeSize()))
	cacheSizeGauge.WithLabelValues("unique").Set(float64(s.size))
	cacheSizeGauge.WithLabelValues("deep").Set(float64(s.deepSize))
	if changes.Empty() {
		commitCounter.WithLabelValues("empty").Inc()
		return
	}
	commitCounter.WithLabelValues("changed").Inc()
	changeCounter.WithLabelValues("added").Add(float64(len(changes.Added)))
	changeCounter.WithLabelValues("modified").Add(float64(len(changes.Modified)))
	changeCounter.WithLabelValues("removed").Add(float64(len(changes.Removed)))
}

// IsInvalidArgument checks whether err was caused by a reference to an unknown
// or invisible namespace.
func IsInvalidArgument(err error) bool {
	return state.IsInvalidArgument(err)
}

// IsInvariantViolation checks whether err was caused by a mutation that was
// refused to keep the cache consistent.
func IsInvariantViolation(err error) bool {
	return state.IsInvariantViolation(err)
}

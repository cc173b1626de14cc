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

package stress

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/pingcap-incubator/nscache/cache"
	"github.com/pingcap-incubator/nscache/config"
	"github.com/pingcap-incubator/nscache/observers"
	"github.com/pingcap-incubator/nscache/state"
	"github.com/juju/ratelimit"
	"github.com/montanaflynn/stats"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Report summarizes a stress run.
type Report struct {
	Blocks         uint64        `json:"blocks"`
	Registrations  uint64        `json:"registrations"`
	Rollbacks      uint64        `json:"rollbacks"`
	Commits        uint64        `json:"commits"`
	ViewsVerified  uint64        `json:"views-verified"`
	PrunedVersions uint64        `json:"pruned-versions"`
	ActiveSize     int           `json:"active-size"`
	Size           int           `json:"size"`
	DeepSize       int           `json:"deep-size"`
	CommitMean     time.Duration `json:"commit-mean"`
	CommitP99      time.Duration `json:"commit-p99"`
	Elapsed        time.Duration `json:"elapsed"`
}

func (r *Report) String() string {
	return fmt.Sprintf("blocks %d registrations %d rollbacks %d commits %d views %d pruned %d sizes %d/%d/%d commit mean %s p99 %s elapsed %s",
		r.Blocks, r.Registrations, r.Rollbacks, r.Commits, r.ViewsVerified, r.PrunedVersions,
		r.ActiveSize, r.Size, r.DeepSize, r.CommitMean, r.CommitP99, r.Elapsed)
}

type harness struct {
	cfg      config.StressConfig
	cache    *cache.NamespaceCache
	observer observers.Observer
	pruner   *cache.Pruner
	rng      *rand.Rand
	owners   [2]state.Owner
	bucket   *ratelimit.Bucket

	// Commit latencies in nanoseconds, only touched by the writer.
	commitLatencies stats.Float64Data

	blocks        atomic.Uint64
	registrations atomic.Uint64
	rollbacks     atomic.Uint64
	views         atomic.Uint64
}

// Run drives nc with one writer applying blocks of registrations and
// cfg.Readers goroutines verifying every snapshot they see, until all
// heights are applied or cfg.Duration elapses.
func Run(ctx context.Context, cfg config.StressConfig, nc *cache.NamespaceCache) (*Report, error) {
	start := time.Now()
	if cfg.Duration.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration.Duration)
		defer cancel()
	}
	if cfg.RenewInterval == 0 {
		return nil, errors.New("renew interval must be greater than 0")
	}
	// Child ids are derived from root ids and must not collide with them.
	if cfg.Roots >= 1000 || cfg.ChildrenPerRoot >= 500 {
		return nil, errors.Errorf("too many roots %d or children per root %d", cfg.Roots, cfg.ChildrenPerRoot)
	}

	h := &harness{
		cfg:      cfg,
		cache:    nc,
		observer: observers.RegisterNamespaceObservers(observers.NewDemuxObserverBuilder()).Build(),
		pruner:   cache.NewPruner(nc),
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		owners:   [2]state.Owner{{1}, {2}},
	}
	if cfg.BlocksPerSecond > 0 {
		h.bucket = ratelimit.NewBucketWithRate(cfg.BlocksPerSecond, 1)
	}
	h.pruner.Start()

	g, gctx := errgroup.WithContext(ctx)
	writerDone := make(chan struct{})
	g.Go(func() error {
		defer close(writerDone)
		return h.write(gctx)
	})
	for i := 0; i < cfg.Readers; i++ {
		g.Go(func() error {
			return h.read(gctx, writerDone)
		})
	}
	err := g.Wait()
	h.pruner.Stop()
	if err != nil {
		return nil, err
	}

	view := nc.CreateView()
	defer view.Release()
	if err = Verify(view); err != nil {
		return nil, err
	}
	report := &Report{
		Blocks:         h.blocks.Load(),
		Registrations:  h.registrations.Load(),
		Rollbacks:      h.rollbacks.Load(),
		Commits:        nc.Commits(),
		ViewsVerified:  h.views.Load(),
		PrunedVersions: h.pruner.PrunedVersions(),
		ActiveSize:     view.ActiveSize(),
		Size:           view.Size(),
		DeepSize:       view.DeepSize(),
		Elapsed:        time.Since(start),
	}
	if len(h.commitLatencies) > 0 {
		mean, _ := stats.Mean(h.commitLatencies)
		p99, _ := stats.Percentile(h.commitLatencies, 99)
		report.CommitMean = time.Duration(mean)
		report.CommitP99 = time.Duration(p99)
	}
	log.Info("stress run finished", zap.Stringer("report", report))
	return report, nil
}

func (h *harness) write(ctx context.Context) error {
	for height := state.Height(1); uint64(height) <= h.cfg.Heights; height++ {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if !h.throttle(ctx) {
			return nil
		}
		if err := h.applyBlock(height); err != nil {
			return errors.Annotatef(err, "block %d", height)
		}
		h.blocks.Inc()
		if err := h.pruner.Notify(ctx, height); err != nil {
			return nil
		}
	}
	return nil
}

// throttle waits for the next block slot and reports false if ctx is done first.
func (h *harness) throttle(ctx context.Context) bool {
	if h.bucket == nil {
		return true
	}
	wait := h.bucket.Take(1)
	if wait == 0 {
		return true
	}
	select {
	case <-time.After(wait):
		return true
	case <-ctx.Done():
		return false
	}
}

func (h *harness) read(ctx context.Context, writerDone <-chan struct{}) error {
	for {
		select {
		case <-writerDone:
			return nil
		case <-ctx.Done():
			return nil
		default:
		}
		view := h.cache.CreateView()
		err := Verify(view)
		view.Release()
		if err != nil {
			return err
		}
		h.views.Inc()
	}
}

func rootID(r int) state.NamespaceID {
	return state.NamespaceID(r + 1)
}

func childID(root state.NamespaceID, k int) state.NamespaceID {
	return root*1000 + state.NamespaceID(k+1)
}

func grandchildID(root state.NamespaceID) state.NamespaceID {
	return root*1000 + 500
}

// shouldRegister decides whether root r is registered or renewed at height.
// Every third root stops renewing halfway so that it expires.
func (h *harness) shouldRegister(r int, height state.Height, reader cache.Reader) bool {
	if r%3 == 0 && uint64(height) > h.cfg.Heights/2 {
		return false
	}
	if !reader.Contains(rootID(r)) {
		return true
	}
	return (uint64(height)+uint64(r))%h.cfg.RenewInterval == 0
}

func (h *harness) owner(r int, height state.Height) state.Owner {
	if r%5 != 0 {
		return h.owners[0]
	}
	return h.owners[(uint64(height)/h.cfg.RenewInterval)%2]
}

func (h *harness) applyBlock(height state.Height) error {
	delta := h.cache.CreateDelta()
	defer delta.Release()
	ctx := &observers.ObserverContext{Mode: observers.Commit, Height: height, Namespaces: delta}

	var last []observers.Notification
	for r := 0; r < h.cfg.Roots; r++ {
		if !h.shouldRegister(r, height, delta) {
			continue
		}
		applied, err := h.register(r, height, ctx)
		if err != nil {
			return err
		}
		last = applied
	}

	// Undo the last registration of some blocks.
	if len(last) > 0 && h.rng.Intn(7) == 0 {
		ctx.Mode = observers.Rollback
		for i := len(last) - 1; i >= 0; i-- {
			if err := h.observer.Notify(last[i], ctx); err != nil {
				return err
			}
		}
		h.rollbacks.Inc()
	}

	start := time.Now()
	_, err := h.cache.Commit(delta)
	h.commitLatencies = append(h.commitLatencies, float64(time.Since(start)))
	return err
}

// register notifies a root registration followed by the registration of
// every child the new version does not expose yet.
func (h *harness) register(r int, height state.Height, ctx *observers.ObserverContext) ([]observers.Notification, error) {
	reader := ctx.Namespaces.(cache.Reader)
	id := rootID(r)
	applied := make([]observers.Notification, 0, h.cfg.ChildrenPerRoot+2)
	notify := func(n observers.Notification) error {
		if err := h.observer.Notify(n, ctx); err != nil {
			return err
		}
		applied = append(applied, n)
		return nil
	}

	err := notify(&observers.RootRegistrationNotification{
		ID:       id,
		Owner:    h.owner(r, height),
		Lifetime: state.NewLifetime(height, height+state.Height(h.cfg.Lifetime)),
	})
	if err != nil {
		return nil, err
	}
	h.registrations.Inc()

	children := h.rng.Intn(h.cfg.ChildrenPerRoot + 1)
	for k := 0; k < children; k++ {
		child := childID(id, k)
		if reader.Contains(child) {
			continue
		}
		if err = notify(&observers.ChildRegistrationNotification{Path: state.Path{id, child}}); err != nil {
			return nil, err
		}
		if k == 0 {
			path := state.Path{id, child, grandchildID(id)}
			if err = notify(&observers.ChildRegistrationNotification{Path: path}); err != nil {
				return nil, err
			}
		}
	}
	return applied, nil
}

// Verify checks the structural invariants of a snapshot.
func Verify(r cache.Reader) error {
	roots, visible := 0, 0
	var err error
	r.ForEach(func(entry state.NamespaceEntry) bool {
		visible++
		ns := entry.NS()
		root := entry.Root()
		switch {
		case root == nil || root.ID() != ns.RootID():
			err = errors.Errorf("namespace %s is not attached to its root", ns)
		case ns.IsRoot():
			roots++
		case !root.HasChild(ns.ID()):
			err = errors.Errorf("namespace %s is missing from its root", ns)
		case len(ns.Path()) == state.MaxPathDepth && !root.HasChild(ns.ParentID()):
			err = errors.Errorf("parent of namespace %s is not visible", ns)
		}
		if err == nil && !r.Contains(ns.ID()) {
			err = errors.Errorf("namespace %s is iterated but not contained", ns)
		}
		return err == nil
	})
	if err != nil {
		return err
	}
	if visible != r.Size() {
		return errors.Errorf("iterated %d namespaces, size is %d", visible, r.Size())
	}
	if roots != r.ActiveSize() {
		return errors.Errorf("iterated %d roots, active size is %d", roots, r.ActiveSize())
	}
	if r.DeepSize() < r.Size() {
		return errors.Errorf("deep size %d is less than size %d", r.DeepSize(), r.Size())
	}
	return nil
}

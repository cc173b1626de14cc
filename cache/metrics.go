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

import "github.com/prometheus/client_golang/prometheus"

var (
	cacheSizeGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "nscache",
			Subsystem: "cache",
			Name:      "size",
			Help:      "Size of the committed namespace cache.",
		}, []string{"type"})

	commitCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nscache",
			Subsystem: "cache",
			Name:      "commit_total",
			Help:      "Counter of delta commits.",
		}, []string{"type"})

	changeCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nscache",
			Subsystem: "cache",
			Name:      "change_total",
			Help:      "Counter of committed namespace changes.",
		}, []string{"type"})

	prunedVersionCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nscache",
			Subsystem: "cache",
			Name:      "pruned_versions_total",
			Help:      "Counter of root versions dropped by prune.",
		})

	lockWaitHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "nscache",
			Subsystem: "lock",
			Name:      "wait_duration_seconds",
			Help:      "Bucketed histogram of time spent waiting for the cache lock.",
			Buckets:   prometheus.ExponentialBuckets(0.000001, 4, 12),
		}, []string{"type"})
)

func init() {
	prometheus.MustRegister(cacheSizeGauge)
	prometheus.MustRegister(commitCounter)
	prometheus.MustRegister(changeCounter)
	prometheus.MustRegister(prunedVersionCounter)
	prometheus.MustRegister(lockWaitHistogram)
}

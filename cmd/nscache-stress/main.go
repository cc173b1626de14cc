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

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pingcap-incubator/nscache/cache"
	"github.com/pingcap-incubator/nscache/config"
	"github.com/pingcap-incubator/nscache/stress"
	"github.com/pingcap/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile  string
	metricsAddr string
	logLevel    string
	readers     int
	roots       int
	heights     uint64
	seed        int64
	duration    time.Duration
	rate        float64
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sc := make(chan os.Signal, 1)
	signal.Notify(sc,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	go func() {
		sig := <-sc
		fmt.Printf("\nGot signal [%v] to exit.\n", sig)
		cancel()
	}()

	rootCmd := &cobra.Command{
		Use:          "nscache-stress",
		Short:        "Race readers and a writer against a namespace cache",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(ctx, cmd)
		},
	}
	flags := rootCmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "config file")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "address to serve prometheus metrics on, disabled when empty")
	flags.StringVarP(&logLevel, "log-level", "L", "", "log level: debug, info, warn, error, fatal")
	flags.IntVar(&readers, "readers", 0, "number of reader goroutines")
	flags.IntVar(&roots, "roots", 0, "number of root namespaces")
	flags.Uint64Var(&heights, "heights", 0, "number of blocks to apply")
	flags.Int64Var(&seed, "seed", 0, "seed of the block generator")
	flags.DurationVar(&duration, "duration", 0, "maximum duration of the run")
	flags.Float64Var(&rate, "blocks-per-second", 0, "throttle the writer, 0 means unlimited")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewDefaultConfig()
	if configFile != "" {
		var err error
		if cfg, err = config.LoadFromFile(configFile); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("readers") {
		cfg.Stress.Readers = readers
	}
	if flags.Changed("roots") {
		cfg.Stress.Roots = roots
	}
	if flags.Changed("heights") {
		cfg.Stress.Heights = heights
	}
	if flags.Changed("seed") {
		cfg.Stress.Seed = seed
	}
	if flags.Changed("duration") {
		cfg.Stress.Duration = config.NewDuration(duration)
	}
	if flags.Changed("blocks-per-second") {
		cfg.Stress.BlocksPerSecond = rate
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	err = cfg.SetupLogger()
	if err != nil {
		return err
	}
	log.ReplaceGlobals(cfg.GetZapLogger(), cfg.GetZapLogProperties())
	// Flushing any buffered log entries
	defer log.Sync()

	for _, msg := range cfg.WarningMsgs {
		log.Warn(msg)
	}
	log.Info("nscache stress config", zap.Stringer("config", cfg))

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				log.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	nc := cache.NewNamespaceCache(&cfg.Cache)
	report, err := stress.Run(ctx, cfg.Stress, nc)
	if err != nil {
		log.Error("stress run failed", zap.Error(err))
		return err
	}
	fmt.Println(report)
	return nil
}

// Copyright 2024 Canonical, Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package coordinator runs the control-plane reconciler: on every
// triggering event it re-derives the engine and reverse-proxy configuration
// from the observed worker fleet, object-storage credentials and operator
// settings, and publishes the results to all dependents. Reconciliation is
// single-threaded and run-to-completion; all synthesis is pure over the
// per-cycle snapshot.
package coordinator

import (
	"context"
	"log/slog"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/time/rate"

	"github.com/canonical/loki-coordinator/common/metric"
	"github.com/canonical/loki-coordinator/common/process"
	"github.com/canonical/loki-coordinator/coordinator/cluster"
	"github.com/canonical/loki-coordinator/coordinator/engine"
	"github.com/canonical/loki-coordinator/coordinator/nginx"
	"github.com/canonical/loki-coordinator/coordinator/roles"
	"github.com/canonical/loki-coordinator/coordinator/rules"
)

type Config struct {
	MetricsBindAddress string

	// Output paths.
	EngineConfigPath     string
	NginxConfigPath      string
	DatasourceConfigPath string

	// Cert/key paths probed for the "certificates on disk" signal.
	CertFile string
	KeyFile  string

	NginxPort       int
	ServerName      string
	ResolverAddress string

	// ClusterName is the deployment's unique identity; the gossip cluster
	// label is derived from it.
	ClusterName   string
	DatasourceUID string
	TracingKind   string

	RulesSourceDirs  []string
	RulesTargetDir   string
	RulesSyncCommand string

	SnapshotProvider            func() (cluster.Snapshot, error)
	SettingsProvider            func() (engine.Limits, error)
	SnapshotChangeNotifications chan any

	Publisher cluster.Publisher
}

func NewConfig() Config {
	return Config{
		MetricsBindAddress: "0.0.0.0:9090",
		EngineConfigPath:   engine.ConfigFile,
		NginxConfigPath:    nginx.ConfigPath,
		NginxPort:          8080,
		TracingKind:        "tempo",
	}
}

type Coordinator struct {
	config  Config
	metrics *metric.PrometheusMetrics

	reconcileTotal  metric.Counter
	reconcileFailed metric.Counter
	coherentGauge   metric.Gauge
	roleGauges      []metric.Gauge

	syncer  *rules.Syncer
	limiter *rate.Limiter

	mu         sync.Mutex
	lastCounts map[roles.Role]int
	lastHealth roles.DeploymentHealth

	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger
}

func New(config Config) (*Coordinator, error) {
	c := &Coordinator{
		config: config,
		syncer: rules.NewSyncer(config.RulesSourceDirs, config.RulesTargetDir, config.RulesSyncCommand),
		// Coalesce bursts of change notifications: at most one
		// reconciliation per second, with room for one queued trigger.
		limiter: rate.NewLimiter(rate.Limit(1), 1),
		log:     slog.With(slog.String("component", "coordinator")),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	c.log.Info("Starting Loki coordinator",
		slog.String("cluster", config.ClusterName),
	)

	c.reconcileTotal = metric.NewCounter("loki_coordinator_reconcile_total",
		"Total number of reconciliation cycles", metric.Dimensionless, nil)
	c.reconcileFailed = metric.NewCounter("loki_coordinator_reconcile_failed",
		"Reconciliation cycles that were aborted", metric.Dimensionless, nil)
	c.coherentGauge = metric.NewGauge("loki_coordinator_cluster_coherent",
		"Whether the worker fleet covers all required roles", metric.Dimensionless, nil,
		func() int64 {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.lastHealth.Coherent {
				return 1
			}
			return 0
		})
	for _, role := range roles.Atomic() {
		role := role
		c.roleGauges = append(c.roleGauges, metric.NewGauge("loki_coordinator_role_units",
			"Number of worker units per role", metric.Dimensionless,
			map[string]any{"role": string(role)},
			func() int64 {
				c.mu.Lock()
				defer c.mu.Unlock()
				return int64(c.lastCounts[role])
			}))
	}

	var err error
	if c.metrics, err = metric.Start(config.MetricsBindAddress); err != nil {
		return nil, err
	}

	// First cycle runs immediately; later ones are event-driven.
	c.Reconcile()

	go process.DoWithLabels(map[string]string{
		"component": "coordinator",
	}, c.loop)

	return c, nil
}

func (c *Coordinator) loop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.config.SnapshotChangeNotifications:
			if err := c.limiter.Wait(c.ctx); err != nil {
				return
			}
			c.drainPending()
			c.Reconcile()
		}
	}
}

// drainPending collapses notifications that arrived while waiting, so one
// cycle serves them all.
func (c *Coordinator) drainPending() {
	for {
		select {
		case <-c.config.SnapshotChangeNotifications:
		default:
			return
		}
	}
}

func (c *Coordinator) Close() error {
	c.cancel()

	c.coherentGauge.Unregister()
	for _, g := range c.roleGauges {
		g.Unregister()
	}

	return multierr.Combine(
		c.metrics.Close(),
	)
}

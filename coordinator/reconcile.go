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

package coordinator

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/zeebo/xxh3"

	"github.com/canonical/loki-coordinator/coordinator/cluster"
	"github.com/canonical/loki-coordinator/coordinator/datasource"
	"github.com/canonical/loki-coordinator/coordinator/engine"
	"github.com/canonical/loki-coordinator/coordinator/nginx"
	"github.com/canonical/loki-coordinator/coordinator/roles"
)

// Reconcile runs one complete cycle: gather the fleet state, evaluate
// deployment health, synthesize both configuration documents, and publish
// everything to the dependents. It never panics on peer-supplied data; an
// aborted cycle leaves all previously-written outputs in place.
func (c *Coordinator) Reconcile() {
	c.reconcileTotal.Inc()
	if err := c.reconcile(); err != nil {
		c.reconcileFailed.Inc()
		c.log.Error("Reconciliation aborted", slog.Any("error", err))
	}
}

func (c *Coordinator) reconcile() error {
	snapshot, err := c.config.SnapshotProvider()
	if err != nil {
		return errors.Wrap(err, "failed to read cluster state")
	}

	limits, err := c.config.SettingsProvider()
	if err != nil {
		// Invalid operator settings block this cycle only; no partial
		// config is written.
		return errors.Wrap(err, "invalid operator configuration")
	}

	provider := cluster.NewProvider(&snapshot)
	counts := provider.GatherRoleCounts()
	addressesByRole := provider.GatherAddressesByRole()
	health := roles.EvaluateHealth(counts)

	c.mu.Lock()
	c.lastCounts = counts
	c.lastHealth = health
	c.mu.Unlock()

	// Health is surfaced every cycle, even when nothing else changes.
	c.log.Info(health.Summary(),
		slog.Bool("coherent", health.Coherent),
		slog.Bool("recommended", health.Recommended),
		slog.Int("workers", len(provider.GatherAddresses())),
	)

	tlsEnabled := c.certificatesOnDisk()

	engineCfg, err := engine.Build(engine.Params{
		RoleCounts:       counts,
		WorkerAddresses:  provider.GatherAddresses(),
		S3:               c.s3Config(&snapshot),
		TLSEnabled:       tlsEnabled,
		Limits:           limits,
		AlertmanagerURLs: snapshot.AlertmanagerURLs,
		ExternalURL:      snapshot.ExternalURL,
		ClusterLabel:     c.clusterLabel(),
	})
	if err != nil {
		return err
	}
	engineDoc, err := engineCfg.Render()
	if err != nil {
		return errors.Wrap(err, "failed to render engine config")
	}
	if err := c.writeIfChanged(c.config.EngineConfigPath, engineDoc); err != nil {
		return err
	}

	nginxDoc := nginx.Render(nginx.Build(nginx.Params{
		AddressesByRole: addressesByRole,
		Port:            c.config.NginxPort,
		TLSEnabled:      tlsEnabled,
		IPv6Enabled:     nginx.IsIPv6Enabled(),
		ResolverAddress: c.config.ResolverAddress,
		ServerName:      c.config.ServerName,
	}))
	if err := c.writeIfChanged(c.config.NginxConfigPath, []byte(nginxDoc)); err != nil {
		return err
	}

	c.publishWorkerData(&snapshot, engineDoc)
	c.publishDatasources(&snapshot, provider.DatasourceAddress())
	c.writeLogsToTraces(&snapshot)

	if c.config.RulesTargetDir != "" {
		if err := c.syncer.Sync(snapshot.ExternalURL); err != nil {
			// Not fatal: the next triggered cycle retries.
			c.log.Warn("Failed to sync alert rules", slog.Any("error", err))
		}
	}

	return nil
}

// certificatesOnDisk is the boolean TLS signal: both the certificate and
// the key must be present.
func (c *Coordinator) certificatesOnDisk() bool {
	if c.config.CertFile == "" || c.config.KeyFile == "" {
		return false
	}
	for _, path := range []string{c.config.CertFile, c.config.KeyFile} {
		if _, err := os.Stat(path); err != nil {
			return false
		}
	}
	return true
}

func (c *Coordinator) s3Config(snapshot *cluster.Snapshot) *cluster.S3Config {
	if !snapshot.S3Ready() {
		return nil
	}
	return snapshot.S3
}

func (c *Coordinator) clusterLabel() string {
	return fmt.Sprintf("%s-cluster", c.config.ClusterName)
}

// writeIfChanged pushes the document only when its content hash differs
// from what is already on disk, using a write-then-rename so a failed write
// leaves the previous config intact.
func (c *Coordinator) writeIfChanged(path string, content []byte) error {
	if existing, err := os.ReadFile(path); err == nil {
		if xxh3.Hash(existing) == xxh3.Hash(content) {
			return nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %s", path)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "failed to replace %s", path)
	}

	c.log.Info("Updated config", slog.String("path", path), slog.Int("bytes", len(content)))
	return nil
}

func (c *Coordinator) publishWorkerData(snapshot *cluster.Snapshot, engineDoc []byte) {
	endpoints := map[string]string{}
	if snapshot.ExternalURL != "" {
		endpoints["push"] = snapshot.ExternalURL + "/loki/api/v1/push"
	}

	for _, relation := range snapshot.Cluster {
		err := c.config.Publisher.PublishWorkerData(relation.ID, cluster.WorkerAppData{
			WorkerConfig:  string(engineDoc),
			LokiEndpoints: endpoints,
		})
		if err != nil {
			c.log.Error("Failed to publish worker config",
				slog.String("relation", relation.ID),
				slog.Any("error", err),
			)
		}
	}
}

func (c *Coordinator) publishDatasources(snapshot *cluster.Snapshot, sourceURL string) {
	payloads := datasource.Publish(c.config.DatasourceUID, sourceURL, snapshot.DatasourceExchange)
	for relationID, payload := range payloads {
		if err := c.config.Publisher.PublishDatasourceData(relationID, payload); err != nil {
			c.log.Error("Failed to publish datasource record",
				slog.String("relation", relationID),
				slog.Any("error", err),
			)
		}
	}
}

// writeLogsToTraces derives the logs-to-traces correlation map from the
// records the telemetry peers sent us. When no record matches the tracing
// kind, the file is removed rather than written empty.
func (c *Coordinator) writeLogsToTraces(snapshot *cluster.Snapshot) {
	if c.config.DatasourceConfigPath == "" {
		return
	}

	var received []cluster.DatasourceRecord
	for _, peer := range snapshot.DatasourceExchange {
		received = append(received, peer.Datasources...)
	}

	correlation := datasource.Correlate(received, c.config.TracingKind)
	if correlation == nil {
		if err := os.Remove(c.config.DatasourceConfigPath); err != nil && !os.IsNotExist(err) {
			c.log.Warn("Failed to remove stale correlation config", slog.Any("error", err))
		}
		return
	}

	content, err := json.MarshalIndent(correlation, "", "  ")
	if err != nil {
		c.log.Error("Failed to marshal correlation config", slog.Any("error", err))
		return
	}
	if err := c.writeIfChanged(c.config.DatasourceConfigPath, content); err != nil {
		c.log.Error("Failed to write correlation config", slog.Any("error", err))
	}
}

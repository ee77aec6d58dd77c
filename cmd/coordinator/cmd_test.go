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
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonical/loki-coordinator/coordinator"
	"github.com/canonical/loki-coordinator/coordinator/cluster"
)

func TestLoadSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cluster-state.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
cluster:
  - id: loki-cluster:0
    app:
      roles: '["read", "write"]'
    units:
      - name: loki/0
        data:
          address: '"loki-0.svc"'
s3:
  endpoint: s3.local:9000
  bucket: loki
alertmanager_urls:
  - http://am-0:9093
external_url: http://loki.example.com
`), 0o644))

	v := viper.New()
	setConfigPath(v, path)

	snapshot, err := loadSnapshot(v)
	require.NoError(t, err)

	require.Len(t, snapshot.Cluster, 1)
	assert.Equal(t, "loki-cluster:0", snapshot.Cluster[0].ID)
	assert.Equal(t, `["read", "write"]`, snapshot.Cluster[0].App["roles"])
	require.Len(t, snapshot.Cluster[0].Units, 1)
	assert.Equal(t, cluster.Databag{"address": `"loki-0.svc"`}, snapshot.Cluster[0].Units[0].Data)

	require.NotNil(t, snapshot.S3)
	assert.Equal(t, "loki", snapshot.S3.Bucket)
	assert.True(t, snapshot.S3Ready())

	assert.Equal(t, []string{"http://am-0:9093"}, snapshot.AlertmanagerURLs)
	assert.Equal(t, "http://loki.example.com", snapshot.ExternalURL)
}

func TestLoadSnapshotMissingFileIsEmptyFleet(t *testing.T) {
	v := viper.New()
	setConfigPath(v, filepath.Join(t.TempDir(), "missing.yaml"))

	snapshot, err := loadSnapshot(v)
	require.NoError(t, err)
	assert.Empty(t, snapshot.Cluster)
	assert.Nil(t, snapshot.S3)
}

func TestLoadSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ingestion-rate-mb: 10
ingestion-burst-size-mb: 20
retention-period: 30
reporting-enabled: true
`), 0o644))

	settingsFile = path
	defer func() { settingsFile = "" }()

	v := viper.New()
	setConfigPath(v, path)

	limits, err := loadSettings(v)
	require.NoError(t, err)
	assert.Equal(t, 10, limits.IngestionRateMB)
	assert.Equal(t, 20, limits.IngestionBurstSizeMB)
	assert.Equal(t, 30, limits.RetentionPeriodDays)
	assert.True(t, limits.ReportingEnabled)
}

func TestLoadSettingsDefaults(t *testing.T) {
	settingsFile = ""

	limits, err := loadSettings(viper.New())
	require.NoError(t, err)
	assert.Equal(t, 4, limits.IngestionRateMB)
	assert.Equal(t, 6, limits.IngestionBurstSizeMB)
	assert.Equal(t, 0, limits.RetentionPeriodDays)
}

func TestLoadSettingsRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ingestion-rate-mb: -1\n"), 0o644))

	settingsFile = path
	defer func() { settingsFile = "" }()

	v := viper.New()
	setConfigPath(v, path)

	_, err := loadSettings(v)
	assert.Error(t, err)
}

func TestApplyResolverDefault(t *testing.T) {
	resolvConf := filepath.Join(t.TempDir(), "resolv.conf")
	require.NoError(t, os.WriteFile(resolvConf,
		[]byte("search svc.cluster.local\nnameserver 10.152.183.10\n"), 0o644))

	c := coordinator.NewConfig()
	applyResolverDefault(&c, resolvConf)
	assert.Equal(t, "10.152.183.10", c.ResolverAddress)
}

func TestApplyResolverDefaultKeepsExplicitFlag(t *testing.T) {
	resolvConf := filepath.Join(t.TempDir(), "resolv.conf")
	require.NoError(t, os.WriteFile(resolvConf, []byte("nameserver 10.0.0.1\n"), 0o644))

	c := coordinator.NewConfig()
	c.ResolverAddress = "10.9.9.9"
	applyResolverDefault(&c, resolvConf)
	assert.Equal(t, "10.9.9.9", c.ResolverAddress)
}

func TestApplyResolverDefaultMissingResolvConf(t *testing.T) {
	c := coordinator.NewConfig()
	applyResolverDefault(&c, filepath.Join(t.TempDir(), "missing"))
	assert.Equal(t, "", c.ResolverAddress)
}

func TestValidate(t *testing.T) {
	snapshotFile = ""
	assert.Error(t, validate(nil, nil))

	snapshotFile = "cluster-state.yaml"
	defer func() { snapshotFile = "" }()
	conf.ClusterName = ""
	assert.Error(t, validate(nil, nil))

	conf.ClusterName = "loki"
	assert.NoError(t, validate(nil, nil))
}

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

package engine

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/canonical/loki-coordinator/coordinator/cluster"
	"github.com/canonical/loki-coordinator/coordinator/roles"
)

const (
	// replicationMinWorkers is the minimum number of backend workers for
	// replication to be meaningful. Below that the deployment degrades to
	// no replication instead of failing.
	replicationMinWorkers = 3
	defaultReplication    = 3
)

var ErrInvalidLimits = errors.New("invalid operator limits")

// Limits are the operator-supplied settings that feed the config.
type Limits struct {
	IngestionRateMB      int  `mapstructure:"ingestion-rate-mb"      yaml:"ingestion-rate-mb"`
	IngestionBurstSizeMB int  `mapstructure:"ingestion-burst-size-mb" yaml:"ingestion-burst-size-mb"`
	RetentionPeriodDays  int  `mapstructure:"retention-period"       yaml:"retention-period"`
	ReportingEnabled     bool `mapstructure:"reporting-enabled"      yaml:"reporting-enabled"`
}

func (l Limits) Validate() error {
	if l.IngestionRateMB <= 0 {
		return errors.Wrapf(ErrInvalidLimits, "ingestion-rate-mb must be positive, got %d", l.IngestionRateMB)
	}
	if l.IngestionBurstSizeMB <= 0 {
		return errors.Wrapf(ErrInvalidLimits, "ingestion-burst-size-mb must be positive, got %d", l.IngestionBurstSizeMB)
	}
	if l.RetentionPeriodDays < 0 {
		return errors.Wrapf(ErrInvalidLimits, "retention-period must not be negative, got %d", l.RetentionPeriodDays)
	}
	return nil
}

// Params is the narrowly-typed input of one synthesis run. All fields are
// snapshots: the builder never reaches out to ambient state.
type Params struct {
	RoleCounts       map[roles.Role]int
	WorkerAddresses  []string
	S3               *cluster.S3Config
	TLSEnabled       bool
	Limits           Limits
	AlertmanagerURLs []string
	ExternalURL      string
	ClusterLabel     string
}

// Build assembles the complete engine config. The only failure mode is
// invalid operator limits; everything else is total.
func Build(params Params) (*Config, error) {
	if err := params.Limits.Validate(); err != nil {
		return nil, err
	}

	return &Config{
		AuthEnabled:      false,
		ChunkStoreConfig: chunkStoreConfig(),
		Common:           commonConfig(params),
		Compactor:        compactorConfig(params),
		Frontend:         frontendConfig(),
		Ingester:         ingesterConfig(),
		LimitsConfig:     limitsConfig(params.Limits),
		Memberlist:       memberlistConfig(params),
		Querier:          querierConfig(),
		QueryRange:       queryRangeConfig(),
		Ruler:            rulerConfig(params),
		SchemaConfig:     schemaConfig(params),
		StorageConfig:    storageConfig(params),
		Server:           serverConfig(params.TLSEnabled),
		Analytics:        AnalyticsConfig{ReportingEnabled: params.Limits.ReportingEnabled},
	}, nil
}

// Render serializes the config document. Identical inputs render to
// byte-identical output.
func (c *Config) Render() ([]byte, error) {
	return yaml.Marshal(c)
}

func chunkStoreConfig() ChunkStoreConfig {
	return ChunkStoreConfig{
		ChunkCacheConfig: CacheConfig{
			EmbeddedCache: EmbeddedCache{Enabled: true},
		},
	}
}

func commonConfig(params Params) CommonConfig {
	storage := CommonStorage{
		Filesystem: &FilesystemStorage{
			ChunksDirectory: chunksDir,
			RulesDirectory:  rulesDir,
		},
	}
	if params.S3 != nil {
		storage = CommonStorage{S3: s3Storage(params.S3)}
	}

	return CommonConfig{
		PathPrefix:        lokiDir,
		ReplicationFactor: ReplicationFactor(params.RoleCounts[roles.Backend]),
		Storage:           storage,
	}
}

// ReplicationFactor degrades to 1 when there are not enough backend workers
// for replication to be safe.
func ReplicationFactor(backendScale int) int {
	if backendScale < replicationMinWorkers {
		return 1
	}
	return defaultReplication
}

func s3Storage(s3 *cluster.S3Config) *S3Storage {
	return &S3Storage{
		Endpoint:        s3.Endpoint,
		BucketNames:     s3.Bucket,
		AccessKeyID:     s3.AccessKeyID,
		SecretAccessKey: s3.SecretAccessKey,
		Region:          s3.Region,
		Insecure:        s3.Insecure,
		// Path-style addressing is forced on: virtual-host addressing does
		// not work against the common self-hosted object stores.
		ForcePathStyle: true,
		HTTPConfig: S3HTTPConfig{
			IdleConnTimeout:       "90s",
			ResponseHeaderTimeout: "0s",
		},
	}
}

func compactorConfig(params Params) CompactorConfig {
	retentionEnabled := params.Limits.RetentionPeriodDays != 0
	cfg := CompactorConfig{
		RetentionEnabled: retentionEnabled,
		WorkingDirectory: compactorDir,
	}
	if retentionEnabled && params.S3 != nil {
		cfg.DeleteRequestStore = "s3"
	}
	return cfg
}

func frontendConfig() FrontendConfig {
	return FrontendConfig{
		MaxOutstandingPerTenant: 8192,
		CompressResponses:       true,
	}
}

func ingesterConfig() IngesterConfig {
	return IngesterConfig{
		WAL: WALConfig{
			Dir:             path.Join(chunksDir, "wal"),
			Enabled:         true,
			FlushOnShutdown: true,
		},
	}
}

func limitsConfig(limits Limits) LimitsConfig {
	return LimitsConfig{
		IngestionRateMB:         float64(limits.IngestionRateMB),
		IngestionBurstSizeMB:    float64(limits.IngestionBurstSizeMB),
		PerStreamRateLimit:      fmt.Sprintf("%dMB", limits.IngestionRateMB),
		PerStreamRateLimitBurst: fmt.Sprintf("%dMB", limits.IngestionBurstSizeMB),
		// A single engine instance per deployment: splitting queries only
		// adds scheduling overhead.
		SplitQueriesByInterval: "0",
		RetentionPeriod:        fmt.Sprintf("%dd", limits.RetentionPeriodDays),
	}
}

func memberlistConfig(params Params) MemberlistConfig {
	members := make([]string, len(params.WorkerAddresses))
	copy(members, params.WorkerAddresses)
	sort.Strings(members)

	return MemberlistConfig{
		// The cluster label guards against gossip cross-talk between
		// independent deployments sharing a network.
		ClusterLabel: params.ClusterLabel,
		JoinMembers:  members,
	}
}

func querierConfig() QuerierConfig {
	return QuerierConfig{MaxConcurrent: 20}
}

func queryRangeConfig() QueryRangeConfig {
	return QueryRangeConfig{
		ParalleliseShardableQueries: false,
		ResultsCache: ResultsCacheConfig{
			Cache: CacheConfig{
				EmbeddedCache: EmbeddedCache{Enabled: true},
			},
		},
	}
}

func rulerConfig(params Params) RulerConfig {
	urls := make([]string, len(params.AlertmanagerURLs))
	copy(urls, params.AlertmanagerURLs)
	// Sorting makes the output stable even if the receiver set enumeration
	// order varies between cycles.
	sort.Strings(urls)

	return RulerConfig{
		AlertmanagerURL: strings.Join(urls, ","),
		ExternalURL:     params.ExternalURL,
	}
}

func objectStore(params Params) string {
	if params.S3 != nil {
		return "s3"
	}
	return "filesystem"
}

func schemaConfig(params Params) SchemaConfig {
	return SchemaConfig{
		Configs: []SchemaPeriod{{
			From:        "2020-10-24",
			Index:       IndexConfig{Period: "24h", Prefix: "index_"},
			ObjectStore: objectStore(params),
			Schema:      "v11",
			Store:       "boltdb-shipper",
		}},
	}
}

func storageConfig(params Params) StorageConfig {
	return StorageConfig{
		BoltDBShipper: BoltDBShipperConfig{
			ActiveIndexDirectory: boltdbDir,
			SharedStore:          objectStore(params),
			CacheLocation:        boltdbCacheDir,
		},
		Filesystem: StorageFilesystem{Directory: chunksDir},
	}
}

func serverConfig(tlsEnabled bool) ServerConfig {
	cfg := ServerConfig{
		HTTPListenAddress: "0.0.0.0",
		HTTPListenPort:    HTTPListenPort,
	}
	if tlsEnabled {
		cfg.HTTPTLSConfig = &TLSConfig{
			CertFile: CertFile,
			KeyFile:  KeyFile,
		}
	}
	return cfg
}

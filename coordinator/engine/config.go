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

// Package engine synthesizes the full configuration document for the
// distributed log engine. The synthesizer is a pure function of its inputs:
// it is recomputed on every reconciliation cycle and serializes to
// byte-identical output for identical inputs.
//
// Reference: https://grafana.com/docs/loki/latest/configure/
package engine

import "path"

const (
	HTTPListenPort = 3100

	// Paths on the worker filesystem.
	ConfigFile = "/etc/loki/loki-config.yaml"
	CertFile   = "/etc/loki/server.cert"
	KeyFile    = "/etc/loki/private.key"

	lokiDir = "/loki"
)

var (
	boltdbDir      = path.Join(lokiDir, "boltdb-shipper-active")
	boltdbCacheDir = path.Join(lokiDir, "boltdb-shipper-cache")
	compactorDir   = path.Join(lokiDir, "compactor")
	chunksDir      = path.Join(lokiDir, "chunks")
	rulesDir       = path.Join(lokiDir, "rules")
)

// Config is the complete engine configuration document. Field order matches
// the rendered document.
type Config struct {
	AuthEnabled      bool             `yaml:"auth_enabled"`
	ChunkStoreConfig ChunkStoreConfig `yaml:"chunk_store_config"`
	Common           CommonConfig     `yaml:"common"`
	Compactor        CompactorConfig  `yaml:"compactor"`
	Frontend         FrontendConfig   `yaml:"frontend"`
	Ingester         IngesterConfig   `yaml:"ingester"`
	LimitsConfig     LimitsConfig     `yaml:"limits_config"`
	Memberlist       MemberlistConfig `yaml:"memberlist"`
	Querier          QuerierConfig    `yaml:"querier"`
	QueryRange       QueryRangeConfig `yaml:"query_range"`
	Ruler            RulerConfig      `yaml:"ruler"`
	SchemaConfig     SchemaConfig     `yaml:"schema_config"`
	StorageConfig    StorageConfig    `yaml:"storage_config"`
	Server           ServerConfig     `yaml:"server"`
	Analytics        AnalyticsConfig  `yaml:"analytics"`
}

type ChunkStoreConfig struct {
	ChunkCacheConfig CacheConfig `yaml:"chunk_cache_config"`
}

type CacheConfig struct {
	EmbeddedCache EmbeddedCache `yaml:"embedded_cache"`
}

type EmbeddedCache struct {
	Enabled bool `yaml:"enabled"`
}

type CommonConfig struct {
	PathPrefix        string        `yaml:"path_prefix"`
	ReplicationFactor int           `yaml:"replication_factor"`
	Storage           CommonStorage `yaml:"storage"`
}

// CommonStorage is a two-way branch: object storage when credentials are
// present, local filesystem otherwise. Never both.
type CommonStorage struct {
	Filesystem *FilesystemStorage `yaml:"filesystem,omitempty"`
	S3         *S3Storage         `yaml:"s3,omitempty"`
}

type FilesystemStorage struct {
	ChunksDirectory string `yaml:"chunks_directory"`
	RulesDirectory  string `yaml:"rules_directory"`
}

type S3Storage struct {
	Endpoint        string       `yaml:"endpoint"`
	BucketNames     string       `yaml:"bucketnames"`
	AccessKeyID     string       `yaml:"access_key_id"`
	SecretAccessKey string       `yaml:"secret_access_key"`
	Region          string       `yaml:"region,omitempty"`
	Insecure        bool         `yaml:"insecure"`
	ForcePathStyle  bool         `yaml:"s3forcepathstyle"`
	HTTPConfig      S3HTTPConfig `yaml:"http_config"`
}

type S3HTTPConfig struct {
	IdleConnTimeout       string `yaml:"idle_conn_timeout"`
	ResponseHeaderTimeout string `yaml:"response_header_timeout"`
}

type CompactorConfig struct {
	RetentionEnabled bool   `yaml:"retention_enabled"`
	WorkingDirectory string `yaml:"working_directory"`
	// DeleteRequestStore is only set when retention is enabled and an
	// object-storage backend is available: deletion bookkeeping requires
	// durable storage.
	DeleteRequestStore string `yaml:"delete_request_store,omitempty"`
}

type FrontendConfig struct {
	// Requests beyond this error out with HTTP 429. The engine default of
	// 2048 is too low for the reference 8cpu16gb worker.
	MaxOutstandingPerTenant int  `yaml:"max_outstanding_per_tenant"`
	CompressResponses       bool `yaml:"compress_responses"`
}

type IngesterConfig struct {
	WAL WALConfig `yaml:"wal"`
}

type WALConfig struct {
	Dir             string `yaml:"dir"`
	Enabled         bool   `yaml:"enabled"`
	FlushOnShutdown bool   `yaml:"flush_on_shutdown"`
}

type LimitsConfig struct {
	IngestionRateMB      float64 `yaml:"ingestion_rate_mb"`
	IngestionBurstSizeMB float64 `yaml:"ingestion_burst_size_mb"`
	// The per-stream limits are intentionally set to match the per-tenant
	// limits: this deployment targets one stream per tenant.
	PerStreamRateLimit      string `yaml:"per_stream_rate_limit"`
	PerStreamRateLimitBurst string `yaml:"per_stream_rate_limit_burst"`
	SplitQueriesByInterval  string `yaml:"split_queries_by_interval"`
	RetentionPeriod         string `yaml:"retention_period"`
}

type MemberlistConfig struct {
	ClusterLabel string   `yaml:"cluster_label"`
	JoinMembers  []string `yaml:"join_members"`
}

type QuerierConfig struct {
	MaxConcurrent int `yaml:"max_concurrent"`
}

type QueryRangeConfig struct {
	ParalleliseShardableQueries bool               `yaml:"parallelise_shardable_queries"`
	ResultsCache                ResultsCacheConfig `yaml:"results_cache"`
}

type ResultsCacheConfig struct {
	Cache CacheConfig `yaml:"cache"`
}

type RulerConfig struct {
	AlertmanagerURL string `yaml:"alertmanager_url"`
	ExternalURL     string `yaml:"external_url"`
}

type SchemaConfig struct {
	Configs []SchemaPeriod `yaml:"configs"`
}

type SchemaPeriod struct {
	From        string      `yaml:"from"`
	Index       IndexConfig `yaml:"index"`
	ObjectStore string      `yaml:"object_store"`
	Schema      string      `yaml:"schema"`
	Store       string      `yaml:"store"`
}

type IndexConfig struct {
	Period string `yaml:"period"`
	Prefix string `yaml:"prefix"`
}

type StorageConfig struct {
	BoltDBShipper BoltDBShipperConfig `yaml:"boltdb_shipper"`
	Filesystem    StorageFilesystem   `yaml:"filesystem"`
}

type BoltDBShipperConfig struct {
	ActiveIndexDirectory string `yaml:"active_index_directory"`
	SharedStore          string `yaml:"shared_store"`
	CacheLocation        string `yaml:"cache_location"`
}

type StorageFilesystem struct {
	Directory string `yaml:"directory"`
}

type ServerConfig struct {
	HTTPListenAddress string     `yaml:"http_listen_address"`
	HTTPListenPort    int        `yaml:"http_listen_port"`
	HTTPTLSConfig     *TLSConfig `yaml:"http_tls_config,omitempty"`
}

type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type AnalyticsConfig struct {
	ReportingEnabled bool `yaml:"reporting_enabled"`
}

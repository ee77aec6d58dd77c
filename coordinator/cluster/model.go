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

// Package cluster aggregates the runtime state advertised by the worker
// fleet. Workers publish their roles in an application-scoped databag and
// their network address in unit-scoped databags; the aggregator derives the
// per-role unit counts and address sets every reconciliation cycle, without
// persisting anything between cycles.
package cluster

import (
	"github.com/canonical/loki-coordinator/coordinator/roles"
)

// Relation is one worker application's advertisement: one application
// databag plus one databag per member unit. All databag values are JSON
// documents keyed by field name.
type Relation struct {
	ID    string  `json:"id"    yaml:"id"    mapstructure:"id"`
	App   Databag `json:"app"   yaml:"app"   mapstructure:"app"`
	Units []Unit  `json:"units" yaml:"units" mapstructure:"units"`
}

type Unit struct {
	Name string  `json:"name" yaml:"name" mapstructure:"name"`
	Data Databag `json:"data" yaml:"data" mapstructure:"data"`
}

type Databag map[string]string

// AppData is the application-scoped payload workers publish.
type AppData struct {
	Roles []roles.Role `json:"roles"`
}

// UnitData is the unit-scoped payload workers publish.
type UnitData struct {
	Address  string            `json:"address"`
	Topology map[string]string `json:"juju_topology"`
}

// WorkerTopology is a flat per-unit listing used for observability only.
type WorkerTopology struct {
	Unit        string `json:"unit"`
	Application string `json:"application"`
	Address     string `json:"address"`
}

// S3Config is present iff the object-storage credentials relation is
// satisfied. Absence switches the engine config to filesystem storage.
type S3Config struct {
	Endpoint        string `json:"endpoint"   yaml:"endpoint"   mapstructure:"endpoint"`
	Bucket          string `json:"bucket"     yaml:"bucket"     mapstructure:"bucket"`
	AccessKeyID     string `json:"access_key" yaml:"access_key" mapstructure:"access_key"`
	SecretAccessKey string `json:"secret_key" yaml:"secret_key" mapstructure:"secret_key"`
	Region          string `json:"region"     yaml:"region"     mapstructure:"region"`
	Insecure        bool   `json:"insecure"   yaml:"insecure"   mapstructure:"insecure"`
}

// DatasourceRelation is one telemetry-system peer on the datasource
// exchange endpoint.
type DatasourceRelation struct {
	ID          string             `json:"id"           yaml:"id"          mapstructure:"id"`
	GrafanaUID  string             `json:"grafana_uid"  yaml:"grafana_uid" mapstructure:"grafana_uid"`
	Datasources []DatasourceRecord `json:"datasources"  yaml:"datasources" mapstructure:"datasources"`
}

type DatasourceRecord struct {
	Type       string `json:"type"        yaml:"type"        mapstructure:"type"`
	UID        string `json:"uid"         yaml:"uid"         mapstructure:"uid"`
	GrafanaUID string `json:"grafana_uid" yaml:"grafana_uid" mapstructure:"grafana_uid"`
}

// Snapshot is the full relation state consumed by one reconciliation cycle.
// It is re-read from the relation transport on every cycle and never cached.
type Snapshot struct {
	Cluster            []Relation           `json:"cluster"             yaml:"cluster"             mapstructure:"cluster"`
	S3                 *S3Config            `json:"s3,omitempty"        yaml:"s3,omitempty"        mapstructure:"s3"`
	AlertmanagerURLs   []string             `json:"alertmanager_urls"   yaml:"alertmanager_urls"   mapstructure:"alertmanager_urls"`
	DatasourceExchange []DatasourceRelation `json:"datasource_exchange" yaml:"datasource_exchange" mapstructure:"datasource_exchange"`
	ExternalURL        string               `json:"external_url"        yaml:"external_url"        mapstructure:"external_url"`
}

// S3Ready reports whether the object-storage backend can be used. The
// presence of credentials is a single binary signal with no partial state.
func (s *Snapshot) S3Ready() bool {
	return s.S3 != nil && s.S3.Bucket != "" && s.S3.Endpoint != ""
}

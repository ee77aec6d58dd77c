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

package cluster

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilePublisherWorkerData(t *testing.T) {
	dir := t.TempDir()
	p := NewFilePublisher(filepath.Join(dir, "outbox"))

	err := p.PublishWorkerData("loki-cluster:3", WorkerAppData{
		WorkerConfig:  "auth_enabled: false\n",
		LokiEndpoints: map[string]string{"push": "http://loki:8080/loki/api/v1/push"},
	})
	assert.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "outbox", "loki-cluster-3.json"))
	assert.NoError(t, err)

	var bag Databag
	assert.NoError(t, json.Unmarshal(raw, &bag))

	// Databag values are JSON documents themselves.
	assert.JSONEq(t, `"auth_enabled: false\n"`, bag["worker_config"])
	assert.JSONEq(t, `{"push": "http://loki:8080/loki/api/v1/push"}`, bag["loki_endpoints"])
}

func TestFilePublisherDatasourceData(t *testing.T) {
	dir := t.TempDir()
	p := NewFilePublisher(dir)

	err := p.PublishDatasourceData("ds-exchange:1", DatasourceAppData{
		Datasources: []DatasourceRecord{
			{Type: "loki", UID: "loki-abc", GrafanaUID: "graf-1"},
		},
		SourceURL: "loki-backend-0.svc",
	})
	assert.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "ds-exchange-1.json"))
	assert.NoError(t, err)

	var bag Databag
	assert.NoError(t, json.Unmarshal(raw, &bag))
	assert.JSONEq(t, `[{"type": "loki", "uid": "loki-abc", "grafana_uid": "graf-1"}]`, bag["datasources"])
	assert.JSONEq(t, `"loki-backend-0.svc"`, bag["source_url"])
}

func TestFilePublisherOverwrites(t *testing.T) {
	dir := t.TempDir()
	p := NewFilePublisher(dir)

	assert.NoError(t, p.PublishWorkerData("r:1", WorkerAppData{WorkerConfig: "v1"}))
	assert.NoError(t, p.PublishWorkerData("r:1", WorkerAppData{WorkerConfig: "v2"}))

	entries, err := os.ReadDir(dir)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)

	raw, _ := os.ReadFile(filepath.Join(dir, "r-1.json"))
	var bag Databag
	assert.NoError(t, json.Unmarshal(raw, &bag))
	assert.JSONEq(t, `"v2"`, bag["worker_config"])
}

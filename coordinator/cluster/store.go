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
	"strings"

	"github.com/pkg/errors"
)

// WorkerAppData is the outbound application databag published to every
// worker relation: the full engine config document plus the endpoints the
// workers should reach the coordinator on.
type WorkerAppData struct {
	WorkerConfig  string            `json:"worker_config"`
	LokiEndpoints map[string]string `json:"loki_endpoints,omitempty"`
}

// DatasourceAppData is the outbound application databag published to every
// telemetry-system peer on the datasource exchange endpoint. SourceURL is
// the backend address peers can query this datasource at; it is omitted
// until a backend unit has advertised.
type DatasourceAppData struct {
	Datasources []DatasourceRecord `json:"datasources"`
	SourceURL   string             `json:"source_url,omitempty"`
}

// Publisher pushes outbound databags into the relation transport.
type Publisher interface {
	PublishWorkerData(relationID string, data WorkerAppData) error
	PublishDatasourceData(relationID string, data DatasourceAppData) error
}

// filePublisher writes each relation's outbound databag as a JSON file in an
// outbox directory, one file per relation, for the relation transport to
// pick up. Files are written to a temp name and renamed so readers never see
// a partial databag.
type filePublisher struct {
	dir string
}

func NewFilePublisher(dir string) Publisher {
	return &filePublisher{dir: dir}
}

func (f *filePublisher) PublishWorkerData(relationID string, data WorkerAppData) error {
	bag, err := encode(data)
	if err != nil {
		return err
	}
	return f.write(relationID, bag)
}

func (f *filePublisher) PublishDatasourceData(relationID string, data DatasourceAppData) error {
	bag, err := encode(data)
	if err != nil {
		return err
	}
	return f.write(relationID, bag)
}

func (f *filePublisher) write(relationID string, bag Databag) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create outbox directory")
	}

	raw, err := json.Marshal(bag)
	if err != nil {
		return err
	}

	path := filepath.Join(f.dir, sanitizeRelationID(relationID)+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write outbound databag for %s", relationID)
	}
	return os.Rename(tmp, path)
}

func sanitizeRelationID(id string) string {
	return strings.NewReplacer("/", "-", ":", "-").Replace(id)
}

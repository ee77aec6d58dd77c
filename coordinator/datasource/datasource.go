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

// Package datasource implements the cross-system datasource identifier
// exchange: publishing this deployment's datasource record to every
// telemetry peer, and correlating received records into a logs-to-traces
// derived-field configuration.
package datasource

import (
	"sort"

	"github.com/google/uuid"

	"github.com/canonical/loki-coordinator/coordinator/cluster"
)

// EngineKind is the datasource type tag this deployment publishes.
const EngineKind = "loki"

// traceIDRegex extracts a trace id out of a log line for the derived-field
// link into the tracing system.
const traceIDRegex = `(?:trace_?id)[=:"\s]+(\w+)`

// GenerateUID mints a fresh datasource UID for deployments that did not
// configure one.
func GenerateUID() string {
	return "loki-" + uuid.NewString()
}

// Publish computes the per-peer outbound payload: one record per telemetry
// peer, carrying our uid, the grafana uid that peer negotiated, and the
// backend address the datasource is queryable at.
func Publish(localUID string, sourceURL string, peers []cluster.DatasourceRelation) map[string]cluster.DatasourceAppData {
	payloads := make(map[string]cluster.DatasourceAppData, len(peers))
	for _, peer := range peers {
		payloads[peer.ID] = cluster.DatasourceAppData{
			Datasources: []cluster.DatasourceRecord{{
				Type:       EngineKind,
				UID:        localUID,
				GrafanaUID: peer.GrafanaUID,
			}},
			SourceURL: sourceURL,
		}
	}
	return payloads
}

// DerivedField is one logs-to-traces extraction rule in the shape the
// dashboard datasource config expects.
type DerivedField struct {
	Name          string `json:"name"`
	MatcherRegex  string `json:"matcherRegex"`
	URL           string `json:"url"`
	DatasourceUID string `json:"datasourceUid"`
}

type LogsToTraces struct {
	DerivedFields []DerivedField `json:"derivedFields"`
}

// Correlate filters the received records down to the tracing system's kind
// and builds one derived-field rule per qualifying record. It returns nil
// when nothing qualifies: the section is omitted entirely, never emitted
// empty. When several records share a grafana uid, the lexicographically
// smallest uid wins, so the output does not depend on enumeration order.
func Correlate(received []cluster.DatasourceRecord, tracingKind string) *LogsToTraces {
	byGrafanaUID := make(map[string]cluster.DatasourceRecord)
	for _, record := range received {
		if record.Type != tracingKind {
			continue
		}
		if existing, ok := byGrafanaUID[record.GrafanaUID]; ok && existing.UID <= record.UID {
			continue
		}
		byGrafanaUID[record.GrafanaUID] = record
	}

	if len(byGrafanaUID) == 0 {
		return nil
	}

	fields := make([]DerivedField, 0, len(byGrafanaUID))
	for _, record := range byGrafanaUID {
		fields = append(fields, DerivedField{
			Name:          "traceID",
			MatcherRegex:  traceIDRegex,
			URL:           "$${__value.raw}",
			DatasourceUID: record.UID,
		})
	}
	sort.Slice(fields, func(i, j int) bool {
		return fields[i].DatasourceUID < fields[j].DatasourceUID
	})

	return &LogsToTraces{DerivedFields: fields}
}

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
	"log/slog"

	"github.com/canonical/loki-coordinator/common/collection"
	"github.com/canonical/loki-coordinator/coordinator/roles"
)

// Provider aggregates worker advertisements out of one relation snapshot.
// It is read-only over peer-supplied data: a malformed payload produces an
// empty contribution from that peer plus a diagnostic log entry, never an
// error to the caller.
type Provider struct {
	snapshot *Snapshot
	log      *slog.Logger
}

func NewProvider(snapshot *Snapshot) *Provider {
	return &Provider{
		snapshot: snapshot,
		log:      slog.With(slog.String("component", "cluster")),
	}
}

// GatherRoleCounts sums the unit counts per atomic role across all worker
// advertisements. An advertisement represents a scaled application: each of
// its expanded roles is credited with the number of member units, not 1.
// Meta roles never appear as output keys.
func (p *Provider) GatherRoleCounts() map[roles.Role]int {
	counts := make(map[roles.Role]int)
	for _, relation := range p.snapshot.Cluster {
		appData, err := relation.App.appData()
		if err != nil {
			p.log.Info("invalid databag contents",
				slog.String("relation", relation.ID),
				slog.Any("error", err),
			)
			continue
		}

		n := len(relation.Units)
		for _, role := range roles.Expand(appData.Roles).GetSorted() {
			counts[role] += n
		}
	}
	return counts
}

// GatherAddressesByRole collects every live unit's published address into
// the address set of each atomic role its application declares. A bad unit
// payload only drops that unit's contribution.
func (p *Provider) GatherAddressesByRole() map[roles.Role][]string {
	sets := make(map[roles.Role]collection.Set[string])
	for _, relation := range p.snapshot.Cluster {
		appData, err := relation.App.appData()
		if err != nil {
			p.log.Info("invalid databag contents",
				slog.String("relation", relation.ID),
				slog.Any("error", err),
			)
			continue
		}
		workerRoles := roles.Expand(appData.Roles).GetSorted()

		for _, unit := range relation.Units {
			unitData, err := unit.Data.unitData()
			if err != nil {
				p.log.Info("invalid databag contents",
					slog.String("unit", unit.Name),
					slog.Any("error", err),
				)
				continue
			}
			for _, role := range workerRoles {
				if sets[role] == nil {
					sets[role] = collection.NewSet[string]()
				}
				sets[role].Add(unitData.Address)
			}
		}
	}

	out := make(map[roles.Role][]string, len(sets))
	for role, addresses := range sets {
		out[role] = addresses.GetSorted()
	}
	return out
}

// GatherAddresses is the union over all roles of GatherAddressesByRole.
func (p *Provider) GatherAddresses() []string {
	all := collection.NewSet[string]()
	for _, addresses := range p.GatherAddressesByRole() {
		for _, addr := range addresses {
			all.Add(addr)
		}
	}
	return all.GetSorted()
}

// GatherTopology is a flat per-unit listing for observability. It is not
// used in config synthesis.
func (p *Provider) GatherTopology() []WorkerTopology {
	var topology []WorkerTopology
	for _, relation := range p.snapshot.Cluster {
		for _, unit := range relation.Units {
			unitData, err := unit.Data.unitData()
			if err != nil {
				p.log.Info("invalid databag contents",
					slog.String("unit", unit.Name),
					slog.Any("error", err),
				)
				continue
			}
			topology = append(topology, WorkerTopology{
				Unit:        unit.Name,
				Application: relation.ID,
				Address:     unitData.Address,
			})
		}
	}
	return topology
}

// DatasourceAddress returns one backend address suitable for wiring a
// dashboard datasource, or "" when no backend unit has advertised yet.
func (p *Provider) DatasourceAddress() string {
	addresses := p.GatherAddressesByRole()[roles.Backend]
	if len(addresses) == 0 {
		return ""
	}
	return addresses[0]
}

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

package roles

import (
	"fmt"
	"strings"

	"github.com/canonical/loki-coordinator/common/collection"
)

// DeploymentHealth is the per-cycle verdict on the worker fleet shape.
type DeploymentHealth struct {
	Coherent     bool
	MissingRoles []Role
	Recommended  bool
}

// IsCoherent reports whether every minimally required role has at
// least one unit.
func IsCoherent(counts map[Role]int) bool {
	return MissingRoles(counts).IsEmpty()
}

// MissingRoles returns the minimally required roles that have no units.
func MissingRoles(counts map[Role]int) collection.Set[Role] {
	present := collection.NewSet[Role]()
	for r := range counts {
		present.Add(r)
	}
	return collection.NewSetFrom(MinimalDeployment).Complement(present)
}

// IsRecommended reports whether every role in the recommended deployment map
// has at least its recommended number of units.
func IsRecommended(counts map[Role]int) bool {
	for role, minN := range RecommendedDeployment {
		if counts[role] < minN {
			return false
		}
	}
	return true
}

func EvaluateHealth(counts map[Role]int) DeploymentHealth {
	missing := MissingRoles(counts)
	return DeploymentHealth{
		Coherent:     missing.IsEmpty(),
		MissingRoles: missing.GetSorted(),
		Recommended:  IsRecommended(counts),
	}
}

// Summary renders the health in the form the operator status surfaces.
func (h DeploymentHealth) Summary() string {
	if !h.Coherent {
		missing := make([]string, len(h.MissingRoles))
		for i, r := range h.MissingRoles {
			missing[i] = string(r)
		}
		return fmt.Sprintf("deployment is incoherent: missing roles %s", strings.Join(missing, ", "))
	}
	if !h.Recommended {
		return "deployment is below the recommended scale"
	}
	return "deployment is healthy"
}

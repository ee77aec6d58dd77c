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

// Package roles defines the fixed set of worker roles a Loki worker process
// can take on, along with the meta-role expansion table and the deployment
// shapes the coordinator validates against.
package roles

import (
	"github.com/canonical/loki-coordinator/common/collection"
)

type Role string

const (
	Read    Role = "read"
	Write   Role = "write"
	Backend Role = "backend"

	// All is a meta role that expands to every atomic role.
	All Role = "all"
)

// metaRoles is a flat expansion table. Meta roles never appear in
// aggregated output, only in worker advertisements.
var metaRoles = map[Role][]Role{
	All: {Read, Write, Backend},
}

// Atomic returns the closed set of atomic roles.
func Atomic() []Role {
	return []Role{Read, Write, Backend}
}

func IsValid(r Role) bool {
	switch r {
	case Read, Write, Backend, All:
		return true
	}
	return false
}

// Expand replaces any meta role with its atomic members.
// Expand is idempotent: Expand(Expand(s)) == Expand(s).
func Expand(rs []Role) collection.Set[Role] {
	expanded := collection.NewSet[Role]()
	for _, r := range rs {
		if members, ok := metaRoles[r]; ok {
			for _, m := range members {
				expanded.Add(m)
			}
		} else {
			expanded.Add(r)
		}
	}
	return expanded
}

// MinimalDeployment is the set of roles that need at least one unit for the
// deployment to be considered coherent.
var MinimalDeployment = []Role{Read, Write, Backend}

// RecommendedDeployment maps each role to the minimum number of units the
// official guidelines call for in a robust deployment.
var RecommendedDeployment = map[Role]int{
	Read:    3,
	Write:   3,
	Backend: 3,
}

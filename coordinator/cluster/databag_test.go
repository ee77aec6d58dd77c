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
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/canonical/loki-coordinator/coordinator/roles"
)

func TestAppData(t *testing.T) {
	tests := []struct {
		name    string
		bag     Databag
		want    AppData
		wantErr bool
	}{
		{"valid", Databag{"roles": `["read", "backend"]`},
			AppData{Roles: []roles.Role{roles.Read, roles.Backend}}, false},
		{"meta-role-passes-validation", Databag{"roles": `["all"]`},
			AppData{Roles: []roles.Role{roles.All}}, false},
		{"builtin-keys-ignored", Databag{
			"roles":           `["write"]`,
			"ingress-address": "10.0.0.1",
			"private-address": "10.0.0.1",
			"egress-subnets":  "10.0.0.0/24",
		}, AppData{Roles: []roles.Role{roles.Write}}, false},
		{"empty-bag", Databag{}, AppData{}, true},
		{"no-roles", Databag{"roles": `[]`}, AppData{}, true},
		{"unknown-role", Databag{"roles": `["ruler"]`}, AppData{}, true},
		{"not-json", Databag{"roles": `read`}, AppData{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.bag.appData()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrDataValidation)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestUnitData(t *testing.T) {
	bag := Databag{
		"address":       `"http://loki-read-0:3100"`,
		"juju_topology": `{"model": "prod", "unit": "loki-read/0"}`,
	}
	got, err := bag.unitData()
	assert.NoError(t, err)
	assert.Equal(t, "http://loki-read-0:3100", got.Address)
	assert.Equal(t, "prod", got.Topology["model"])

	_, err = Databag{"juju_topology": `{}`}.unitData()
	assert.ErrorIs(t, err, ErrDataValidation)
}

func TestEncodeRoundTrips(t *testing.T) {
	in := UnitData{
		Address:  "http://loki-read-0:3100",
		Topology: map[string]string{"unit": "loki-read/0"},
	}
	bag, err := encode(in)
	assert.NoError(t, err)
	assert.Equal(t, `"http://loki-read-0:3100"`, bag["address"])

	out, err := bag.unitData()
	assert.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestS3Ready(t *testing.T) {
	assert.False(t, (&Snapshot{}).S3Ready())
	assert.False(t, (&Snapshot{S3: &S3Config{Endpoint: "s3.local"}}).S3Ready())
	assert.True(t, (&Snapshot{S3: &S3Config{Endpoint: "s3.local", Bucket: "loki"}}).S3Ready())
}

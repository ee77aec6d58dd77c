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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpand(t *testing.T) {
	tests := []struct {
		name  string
		roles []Role
		want  []Role
	}{
		{"empty", nil, []Role{}},
		{"atomic", []Role{Read}, []Role{Read}},
		{"atomic-multi", []Role{Read, Write}, []Role{Read, Write}},
		{"meta", []Role{All}, []Role{Backend, Read, Write}},
		{"meta-and-atomic", []Role{All, Read}, []Role{Backend, Read, Write}},
		{"duplicates", []Role{Read, Read}, []Role{Read}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Expand(tt.roles).GetSorted())
		})
	}
}

func TestExpandIsIdempotent(t *testing.T) {
	for _, rs := range [][]Role{
		{All},
		{Read, All},
		{Read, Write, Backend},
		{},
	} {
		once := Expand(rs).GetSorted()
		twice := Expand(once).GetSorted()
		assert.Equal(t, once, twice)
	}
}

func TestExpandNeverYieldsMetaRoles(t *testing.T) {
	expanded := Expand([]Role{All, Read, Backend})
	assert.False(t, expanded.Contains(All))
	for _, r := range expanded.GetSorted() {
		assert.Contains(t, Atomic(), r)
	}
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid(Read))
	assert.True(t, IsValid(All))
	assert.False(t, IsValid("ruler"))
	assert.False(t, IsValid(""))
}

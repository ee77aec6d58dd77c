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

package nginx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderDirectives(t *testing.T) {
	tests := []struct {
		name       string
		directives []Directive
		want       string
	}{
		{
			"simple",
			[]Directive{{Name: "worker_processes", Args: []string{"5"}}},
			"worker_processes 5;\n",
		},
		{
			"no-args",
			[]Directive{{Name: "stub_status"}},
			"stub_status;\n",
		},
		{
			"empty-block",
			[]Directive{{Name: "events", Args: []string{}, Block: []Directive{}}},
			"events {\n}\n",
		},
		{
			"nested",
			[]Directive{
				{Name: "http", Args: []string{}, Block: []Directive{
					{Name: "server", Args: []string{}, Block: []Directive{
						{Name: "listen", Args: []string{"8080"}},
					}},
				}},
			},
			"http {\n    server {\n        listen 8080;\n    }\n}\n",
		},
		{
			"multiple-args",
			[]Directive{{Name: "error_log", Args: []string{"/dev/stderr", "error"}}},
			"error_log /dev/stderr error;\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.directives))
		})
	}
}

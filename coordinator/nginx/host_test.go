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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDNSIPAddress(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
		wantErr bool
	}{
		{
			"typical",
			"search svc.cluster.local cluster.local\nnameserver 10.152.183.10\noptions ndots:5\n",
			"10.152.183.10",
			false,
		},
		{
			"first-nameserver-wins",
			"nameserver 10.0.0.1\nnameserver 10.0.0.2\n",
			"10.0.0.1",
			false,
		},
		{
			"no-nameserver",
			"search example.com\n",
			"",
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "resolv.conf")
			assert.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			got, err := DNSIPAddress(path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestDNSIPAddressMissingFile(t *testing.T) {
	_, err := DNSIPAddress(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

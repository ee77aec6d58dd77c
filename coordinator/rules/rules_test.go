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

package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRule(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestSyncConsolidatesWithSourcePrefix(t *testing.T) {
	base := t.TempDir()
	sourceA := filepath.Join(base, "loki-read")
	sourceB := filepath.Join(base, "loki-write")
	target := filepath.Join(base, "rules")

	writeRule(t, sourceA, "alerts.yaml", "groups: [a]\n")
	writeRule(t, sourceB, "alerts.yaml", "groups: [b]\n")

	syncer := NewSyncer([]string{sourceA, sourceB}, target, "")
	require.NoError(t, syncer.Sync("http://loki.example.com"))

	gotA, err := os.ReadFile(filepath.Join(target, "loki-read-alerts.yaml"))
	assert.NoError(t, err)
	assert.Equal(t, "groups: [a]\n", string(gotA))

	gotB, err := os.ReadFile(filepath.Join(target, "loki-write-alerts.yaml"))
	assert.NoError(t, err)
	assert.Equal(t, "groups: [b]\n", string(gotB))
}

func TestSyncRecordsHashSidecar(t *testing.T) {
	base := t.TempDir()
	source := filepath.Join(base, "loki-read")
	target := filepath.Join(base, "rules")
	writeRule(t, source, "alerts.yaml", "groups: []\n")

	syncer := NewSyncer([]string{source}, target, "")
	require.NoError(t, syncer.Sync(""))

	sidecar, err := os.ReadFile(filepath.Join(target, hashSidecarFile))
	assert.NoError(t, err)
	assert.Len(t, sidecar, 16)
}

func TestSyncSkipsWhenUnchanged(t *testing.T) {
	base := t.TempDir()
	source := filepath.Join(base, "loki-read")
	target := filepath.Join(base, "rules")
	writeRule(t, source, "alerts.yaml", "groups: []\n")

	syncer := NewSyncer([]string{source}, target, "")
	require.NoError(t, syncer.Sync(""))

	// Removing the consolidated file exposes whether the second run
	// rewrites anything.
	require.NoError(t, os.Remove(filepath.Join(target, "loki-read-alerts.yaml")))
	require.NoError(t, syncer.Sync(""))
	assert.NoFileExists(t, filepath.Join(target, "loki-read-alerts.yaml"))
}

func TestSyncReactsToContentChange(t *testing.T) {
	base := t.TempDir()
	source := filepath.Join(base, "loki-read")
	target := filepath.Join(base, "rules")
	writeRule(t, source, "alerts.yaml", "groups: [v1]\n")

	syncer := NewSyncer([]string{source}, target, "")
	require.NoError(t, syncer.Sync(""))

	writeRule(t, source, "alerts.yaml", "groups: [v2]\n")
	require.NoError(t, syncer.Sync(""))

	got, err := os.ReadFile(filepath.Join(target, "loki-read-alerts.yaml"))
	assert.NoError(t, err)
	assert.Equal(t, "groups: [v2]\n", string(got))
}

func TestSyncMissingSourceDirIsNotAnError(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "rules")

	syncer := NewSyncer([]string{filepath.Join(base, "missing")}, target, "")
	assert.NoError(t, syncer.Sync(""))
}

func TestSyncToolFailureIsNotFatal(t *testing.T) {
	base := t.TempDir()
	source := filepath.Join(base, "loki-read")
	target := filepath.Join(base, "rules")
	writeRule(t, source, "alerts.yaml", "groups: []\n")

	syncer := NewSyncer([]string{source}, target, "/nonexistent/rules-sync")
	assert.NoError(t, syncer.Sync("http://loki.example.com"))
}

func TestAggregateHash(t *testing.T) {
	a := []ruleFile{{name: "a", content: []byte("x")}}
	b := []ruleFile{{name: "a", content: []byte("y")}}
	c := []ruleFile{{name: "b", content: []byte("x")}}

	assert.Equal(t, aggregateHash(a), aggregateHash(a))
	assert.NotEqual(t, aggregateHash(a), aggregateHash(b))
	assert.NotEqual(t, aggregateHash(a), aggregateHash(c))
	assert.NotEqual(t, aggregateHash(nil), aggregateHash(a))
}

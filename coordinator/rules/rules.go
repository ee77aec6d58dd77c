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

// Package rules consolidates the per-source alert rule files into one
// directory and pushes them to the deployment through an external
// rules-sync tool. The tool is only re-executed when the aggregate content
// hash of the rule set changes; the last hash is kept in a sidecar file
// next to the rules.
package rules

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/juju/fslock"
	"github.com/pkg/errors"
	"github.com/zeebo/xxh3"
)

const hashSidecarFile = ".rules-hash"

type Syncer struct {
	sourceDirs []string
	targetDir  string
	// syncCommand is the external rules-sync tool. Empty disables the exec
	// step, leaving only the consolidation.
	syncCommand string

	lock *fslock.Lock
	log  *slog.Logger
}

func NewSyncer(sourceDirs []string, targetDir string, syncCommand string) *Syncer {
	return &Syncer{
		sourceDirs:  sourceDirs,
		targetDir:   targetDir,
		syncCommand: syncCommand,
		lock:        fslock.New(filepath.Join(targetDir, ".lock")),
		log:         slog.With(slog.String("component", "rules")),
	}
}

// Sync consolidates the rule files and, when the aggregate hash changed
// since the last recorded one, invokes the rules-sync tool against the
// deployment's public URL. Tool failures are logged with captured output
// and are not fatal: the next naturally-triggered cycle retries.
func (s *Syncer) Sync(externalURL string) error {
	files, err := s.gather()
	if err != nil {
		return err
	}

	newHash := aggregateHash(files)

	if err := os.MkdirAll(s.targetDir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create rules directory")
	}
	if err := s.lock.Lock(); err != nil {
		return errors.Wrap(err, "failed to acquire rules directory lock")
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.log.Warn("Failed to release rules directory lock", slog.Any("error", err))
		}
	}()

	if newHash == s.lastHash() {
		return nil
	}

	if err := s.writeFiles(files); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(s.targetDir, hashSidecarFile), []byte(newHash), 0o644); err != nil {
		return errors.Wrap(err, "failed to record rules hash")
	}

	s.execSyncTool(externalURL)
	return nil
}

type ruleFile struct {
	name    string
	content []byte
}

// gather reads every rule file from the source directories. Each file is
// prefixed with its source identity so distinct log sources never collide.
func (s *Syncer) gather() ([]ruleFile, error) {
	var files []ruleFile
	for _, dir := range s.sourceDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, errors.Wrapf(err, "failed to list rules in %s", dir)
		}
		source := filepath.Base(dir)
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			content, err := os.ReadFile(filepath.Join(dir, entry.Name()))
			if err != nil {
				return nil, errors.Wrapf(err, "failed to read rule file %s", entry.Name())
			}
			files = append(files, ruleFile{
				name:    fmt.Sprintf("%s-%s", source, entry.Name()),
				content: content,
			})
		}
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].name < files[j].name
	})
	return files, nil
}

func aggregateHash(files []ruleFile) string {
	h := xxh3.New()
	for _, f := range files {
		_, _ = h.WriteString(f.name)
		_, _ = h.Write([]byte{0})
		_, _ = h.Write(f.content)
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

func (s *Syncer) lastHash() string {
	content, err := os.ReadFile(filepath.Join(s.targetDir, hashSidecarFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(content))
}

func (s *Syncer) writeFiles(files []ruleFile) error {
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(s.targetDir, f.name), f.content, 0o644); err != nil {
			return errors.Wrapf(err, "failed to write rule file %s", f.name)
		}
	}
	return nil
}

func (s *Syncer) execSyncTool(externalURL string) {
	if s.syncCommand == "" {
		return
	}

	cmd := exec.Command(s.syncCommand, "--address", externalURL, s.targetDir) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		s.log.Error("Rules sync tool failed",
			slog.String("command", s.syncCommand),
			slog.String("output", string(output)),
			slog.Any("error", err),
		)
		return
	}
	s.log.Info("Rules synced",
		slog.String("address", externalURL),
		slog.Int("files", len(s.sourceDirs)),
	)
}

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

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/canonical/loki-coordinator/cmd/coordinator"
	"github.com/canonical/loki-coordinator/common/logging"
	"github.com/canonical/loki-coordinator/common/process"
)

var (
	logLevelStr string

	rootCmd = &cobra.Command{
		Use:               "loki-coordinator",
		Short:             "Control plane for a coordinated Loki worker fleet",
		Long:              `Control plane that reconciles the configuration of a horizontally-scaled Loki deployment and its reverse-proxy front end`,
		PersistentPreRunE: configureLogLevel,
	}
)

func init() {
	defaultLogLevel := logging.DefaultLogLevel
	rootCmd.PersistentFlags().StringVarP(&logLevelStr, "log-level", "l", defaultLogLevel.String(), "Set logging level [debug|info|warn|error]")
	rootCmd.PersistentFlags().BoolVarP(&logging.LogJSON, "log-json", "j", false, "Print logs in JSON format")
	rootCmd.PersistentFlags().BoolVar(&process.PprofEnable, "profile", false, "Enable pprof profiler")
	rootCmd.PersistentFlags().StringVar(&process.PprofBindAddress, "profile-bind-address", "127.0.0.1:6060", "Bind address for pprof")

	rootCmd.AddCommand(coordinator.Cmd)
}

func configureLogLevel(_ *cobra.Command, _ []string) error {
	logLevel, err := logging.ParseLogLevel(logLevelStr)
	if err != nil {
		return err
	}
	logging.LogLevel = logLevel
	logging.ConfigureLogger()
	return nil
}

func main() {
	process.DoWithLabels(map[string]string{
		"binary": "loki-coordinator",
	}, func() {
		if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
			slog.Debug(fmt.Sprintf(format, args...))
		})); err != nil {
			_, _ = fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if err := rootCmd.Execute(); err != nil {
			_, _ = fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	})
}

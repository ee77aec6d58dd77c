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

package coordinator

import (
	"io"
	"log/slog"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/canonical/loki-coordinator/cmd/flag"
	"github.com/canonical/loki-coordinator/common/process"
	"github.com/canonical/loki-coordinator/coordinator"
	"github.com/canonical/loki-coordinator/coordinator/cluster"
	"github.com/canonical/loki-coordinator/coordinator/datasource"
	"github.com/canonical/loki-coordinator/coordinator/engine"
	"github.com/canonical/loki-coordinator/coordinator/nginx"
)

var (
	conf         = coordinator.NewConfig()
	snapshotFile string
	settingsFile string
	outboxDir    string

	Cmd = &cobra.Command{
		Use:     "coordinator",
		Short:   "Start the log-cluster coordinator",
		Long:    `Start the control-plane reconciler that derives the engine and reverse-proxy configuration from the worker fleet`,
		PreRunE: validate,
		RunE:    exec,
	}
)

func init() {
	flag.MetricsAddr(Cmd, &conf.MetricsBindAddress)
	flag.NginxPort(Cmd, &conf.NginxPort)
	Cmd.Flags().StringVarP(&snapshotFile, "cluster-state", "f", "", "Relation state file with the worker fleet advertisements")
	Cmd.Flags().StringVarP(&settingsFile, "settings", "s", "", "Operator settings file")
	Cmd.Flags().StringVar(&outboxDir, "outbox-dir", "data/outbox", "Directory for outbound relation databags")
	Cmd.Flags().StringVar(&conf.EngineConfigPath, "engine-config", conf.EngineConfigPath, "Path the engine config document is written to")
	Cmd.Flags().StringVar(&conf.NginxConfigPath, "nginx-config", conf.NginxConfigPath, "Path the reverse-proxy config is written to")
	Cmd.Flags().StringVar(&conf.DatasourceConfigPath, "datasource-config", "", "Path the logs-to-traces correlation config is written to")
	Cmd.Flags().StringVar(&conf.CertFile, "tls-cert-file", "", "Tls certificate file")
	Cmd.Flags().StringVar(&conf.KeyFile, "tls-key-file", "", "Tls key file")
	Cmd.Flags().StringVar(&conf.ServerName, "server-name", "", "Server name for the TLS server block")
	Cmd.Flags().StringVar(&conf.ResolverAddress, "resolver", "", "Custom DNS resolver address for the reverse proxy")
	Cmd.Flags().StringVar(&conf.ClusterName, "cluster-name", "", "Unique identity of this deployment")
	Cmd.Flags().StringVar(&conf.DatasourceUID, "datasource-uid", "", "Datasource UID published to telemetry peers (generated when empty)")
	Cmd.Flags().StringVar(&conf.TracingKind, "tracing-kind", conf.TracingKind, "Datasource type tag of the tracing system")
	Cmd.Flags().StringSliceVar(&conf.RulesSourceDirs, "rules-source-dir", nil, "Directories with per-source alert rule files")
	Cmd.Flags().StringVar(&conf.RulesTargetDir, "rules-dir", "", "Directory the consolidated alert rules are pushed to")
	Cmd.Flags().StringVar(&conf.RulesSyncCommand, "rules-sync-command", "", "External tool invoked to sync the alert rules")
}

func validate(*cobra.Command, []string) error {
	if snapshotFile == "" {
		return errors.New("cluster-state must be set")
	}
	if conf.ClusterName == "" {
		return errors.New("cluster-name must be set")
	}
	return nil
}

// applyResolverDefault fills in the reverse-proxy resolver from the host's
// DNS configuration when the operator did not pick one explicitly. On any
// read failure the proxy keeps its built-in cluster default.
func applyResolverDefault(conf *coordinator.Config, resolvConf string) {
	if conf.ResolverAddress != "" {
		return
	}
	addr, err := nginx.DNSIPAddress(resolvConf)
	if err != nil {
		slog.Warn("Cannot determine the host nameserver, using the cluster default resolver",
			slog.Any("error", err),
		)
		return
	}
	conf.ResolverAddress = addr
}

func setConfigPath(v *viper.Viper, file string) {
	v.SetConfigType("yaml")
	v.SetConfigFile(file)
	v.WatchConfig()
}

func loadSnapshot(v *viper.Viper) (cluster.Snapshot, error) {
	snapshot := cluster.Snapshot{}

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			// No workers related yet: an empty fleet is a valid state.
			return snapshot, nil
		}
		return snapshot, err
	}

	if err := v.Unmarshal(&snapshot, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(), // default hook
		mapstructure.StringToSliceHookFunc(","),     // default hook
	))); err != nil {
		return snapshot, errors.Wrap(err, "failed to load cluster state")
	}

	return snapshot, nil
}

func loadSettings(v *viper.Viper) (engine.Limits, error) {
	limits := engine.Limits{
		IngestionRateMB:      4,
		IngestionBurstSizeMB: 6,
	}
	if settingsFile == "" {
		return limits, nil
	}

	if err := v.ReadInConfig(); err != nil {
		return limits, err
	}
	if err := v.Unmarshal(&limits); err != nil {
		return limits, errors.Wrap(err, "failed to load operator settings")
	}
	return limits, limits.Validate()
}

func exec(*cobra.Command, []string) error {
	snapshotViper := viper.New()
	settingsViper := viper.New()

	conf.SnapshotChangeNotifications = make(chan any, 1)
	conf.SnapshotProvider = func() (cluster.Snapshot, error) {
		return loadSnapshot(snapshotViper)
	}
	conf.SettingsProvider = func() (engine.Limits, error) {
		return loadSettings(settingsViper)
	}
	conf.Publisher = cluster.NewFilePublisher(outboxDir)

	if conf.DatasourceUID == "" {
		conf.DatasourceUID = datasource.GenerateUID()
	}
	applyResolverDefault(&conf, nginx.ResolvConf)

	notify := func(_ fsnotify.Event) {
		select {
		case conf.SnapshotChangeNotifications <- nil:
		default:
		}
	}
	snapshotViper.OnConfigChange(notify)
	settingsViper.OnConfigChange(notify)

	setConfigPath(snapshotViper, snapshotFile)
	if settingsFile != "" {
		setConfigPath(settingsViper, settingsFile)
	}

	if _, err := loadSnapshot(snapshotViper); err != nil {
		return err
	}

	process.RunProcess(func() (io.Closer, error) {
		return coordinator.New(conf)
	})
	return nil
}

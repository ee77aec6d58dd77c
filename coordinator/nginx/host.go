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
	"net"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// IsIPv6Enabled probes the host network stack for any configured IPv6
// address. It errs on the side of false: a proxy listening on a missing
// address family fails to start.
func IsIPv6Enabled() bool {
	interfaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range interfaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if ipNet.IP.To4() == nil && ipNet.IP.To16() != nil {
				return true
			}
		}
	}
	return false
}

// ResolvConf is the host's DNS configuration file.
const ResolvConf = "/etc/resolv.conf"

// DNSIPAddress extracts the first nameserver from the given resolv.conf,
// used as the proxy's explicit resolver.
func DNSIPAddress(resolvConfPath string) (string, error) {
	content, err := os.ReadFile(resolvConfPath)
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(string(content), "\n") {
		if !strings.HasPrefix(line, "nameserver") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			return fields[1], nil
		}
	}
	return "", errors.Errorf("cannot find nameserver in %s", resolvConfPath)
}
